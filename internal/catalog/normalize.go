package catalog

import (
	"fmt"
	"strings"
	"time"
)

// VendorRow is one component record from the signed vendor API's
// getComponentInfos page payload.
type VendorRow struct {
	ComponentCode            string       `json:"componentCode"`
	FirstSortName            string       `json:"firstSortName"`
	SecondSortName           string       `json:"secondSortName"`
	ComponentModelEn         string       `json:"componentModelEn"`
	ComponentSpecificationEn string       `json:"componentSpecificationEn"`
	SolderPoint              int          `json:"soldPoint"`
	ComponentBrandEn         string       `json:"componentBrandEn"`
	AssemblyType             string       `json:"assemblyType"`
	LibraryType              string       `json:"libraryType"`
	Describe                 string       `json:"describe"`
	DataManualURL            string       `json:"dataManualUrl"`
	StockCount               int          `json:"stockCount"`
	Prices                   []PriceBreak `json:"prices"`
}

// NormalizeVendorRow converts a vendor API record into the canonical Part
// shape. The tier is inferred from the assembly type when the explicit
// libraryType field is absent; Extended is the fallback.
func NormalizeVendorRow(row VendorRow, now time.Time) Part {
	return Part{
		LCSCID:       NormalizeLCSC(row.ComponentCode),
		Category:     row.FirstSortName,
		Subcategory:  row.SecondSortName,
		MfrPart:      row.ComponentModelEn,
		Package:      row.ComponentSpecificationEn,
		SolderJoints: row.SolderPoint,
		Manufacturer: row.ComponentBrandEn,
		LibraryType:  vendorLibraryType(row),
		Description:  row.Describe,
		Datasheet:    row.DataManualURL,
		Stock:        row.StockCount,
		PriceBreaks:  row.Prices,
		LastUpdated:  now.Unix(),
	}
}

func vendorLibraryType(row VendorRow) string {
	switch {
	case strings.Contains(row.AssemblyType, "Basic"), row.LibraryType == "base":
		return TierBasic
	case strings.Contains(row.AssemblyType, "Extended"):
		return TierExtended
	case strings.Contains(row.AssemblyType, "Prefer"):
		return TierPreferred
	default:
		return TierExtended
	}
}

// SnapshotRow is one component record in the community snapshot's row shape,
// after the store's schema adapter has resolved its column synonyms.
type SnapshotRow struct {
	LCSC         string
	Category     string
	Subcategory  string
	MfrPart      string
	Package      string
	SolderJoints int
	Manufacturer string
	Basic        bool
	Preferred    bool
	Description  string
	Datasheet    string
	Stock        int
	Price        float64 // single flat price; serialized break lists stay raw at the store layer
	HasPrice     bool
	LastUpdated  int64

	// Structured attributes used to derive a description when no free-text
	// description is present.
	Resistance        string
	Capacitance       string
	ToleranceFraction float64
	HasTolerance      bool
	PowerWatts        string
	Voltage           string
}

// NormalizeSnapshotRow converts a community snapshot record into the
// canonical Part shape: the numeric identifier gains its C prefix, boolean
// tier flags collapse into a single tier (Preferred wins over Basic), a flat
// price becomes a one-entry price break list, and a description is assembled
// from structured attributes when the source carries no free text.
func NormalizeSnapshotRow(row SnapshotRow, now time.Time) Part {
	tier := TierExtended
	if row.Basic {
		tier = TierBasic
	}
	if row.Preferred {
		tier = TierPreferred
	}

	var breaks []PriceBreak
	if row.HasPrice {
		breaks = []PriceBreak{{Qty: 1, Price: row.Price}}
	}

	last := row.LastUpdated
	if last == 0 {
		last = now.Unix()
	}

	return Part{
		LCSCID:       NormalizeLCSC(row.LCSC),
		Category:     row.Category,
		Subcategory:  row.Subcategory,
		MfrPart:      row.MfrPart,
		Package:      row.Package,
		SolderJoints: row.SolderJoints,
		Manufacturer: row.Manufacturer,
		LibraryType:  tier,
		Description:  snapshotDescription(row),
		Datasheet:    row.Datasheet,
		Stock:        row.Stock,
		PriceBreaks:  breaks,
		LastUpdated:  last,
	}
}

// snapshotDescription prefers the source's own description and otherwise
// assembles one from whatever structured attributes the row carries.
func snapshotDescription(row SnapshotRow) string {
	if row.Description != "" {
		return row.Description
	}

	var parts []string
	if row.Resistance != "" {
		parts = append(parts, row.Resistance+"Ω")
	}
	if row.Capacitance != "" {
		parts = append(parts, row.Capacitance+"F")
	}
	if row.HasTolerance {
		parts = append(parts, fmt.Sprintf("±%g%%", row.ToleranceFraction*100))
	}
	if row.PowerWatts != "" {
		parts = append(parts, row.PowerWatts+"mW")
	}
	if row.Voltage != "" {
		parts = append(parts, row.Voltage+"V")
	}
	return strings.Join(parts, " ")
}
