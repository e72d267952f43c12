package catalog

import (
	"testing"
	"time"
)

var testNow = time.Unix(1700000000, 0)

// TestNormalizeVendorRow_Basic tests tier inference from assembly type.
func TestNormalizeVendorRow_Basic(t *testing.T) {
	row := VendorRow{
		ComponentCode:            "C25804",
		FirstSortName:            "Resistors",
		SecondSortName:           "Chip Resistor - Surface Mount",
		ComponentModelEn:         "0603WAF1002T5E",
		ComponentSpecificationEn: "0603",
		ComponentBrandEn:         "UNI-ROYAL",
		AssemblyType:             "SMT Basic",
		Describe:                 "10kΩ ±1% 1/10W",
		StockCount:               250000,
		Prices:                   []PriceBreak{{Qty: 100, Price: 0.0008}, {Qty: 1, Price: 0.002}},
	}

	part := NormalizeVendorRow(row, testNow)

	if part.LCSCID != "C25804" {
		t.Errorf("LCSCID = %q, want C25804", part.LCSCID)
	}
	if part.LibraryType != TierBasic {
		t.Errorf("LibraryType = %q, want Basic", part.LibraryType)
	}
	if part.LastUpdated != testNow.Unix() {
		t.Errorf("LastUpdated = %d, want %d", part.LastUpdated, testNow.Unix())
	}
	if len(part.PriceBreaks) != 2 {
		t.Fatalf("PriceBreaks = %d entries, want 2", len(part.PriceBreaks))
	}
	if got := part.LowestPrice(999); got != 0.0008 {
		t.Errorf("LowestPrice = %v, want 0.0008", got)
	}
}

// TestNormalizeVendorRow_TierFallback tests that unknown assembly types
// default to Extended.
func TestNormalizeVendorRow_TierFallback(t *testing.T) {
	cases := []struct {
		assembly string
		libType  string
		want     string
	}{
		{"SMT Basic", "", TierBasic},
		{"", "base", TierBasic},
		{"SMT Extended", "", TierExtended},
		{"Preference", "", TierPreferred},
		{"", "", TierExtended},
		{"unknown", "", TierExtended},
	}

	for _, tc := range cases {
		row := VendorRow{ComponentCode: "C1", AssemblyType: tc.assembly, LibraryType: tc.libType}
		part := NormalizeVendorRow(row, testNow)
		if part.LibraryType != tc.want {
			t.Errorf("assembly=%q libType=%q: got %q, want %q", tc.assembly, tc.libType, part.LibraryType, tc.want)
		}
	}
}

// TestNormalizeSnapshotRow_NumericID tests C-prefix normalization and tier
// flag collapsing.
func TestNormalizeSnapshotRow_NumericID(t *testing.T) {
	row := SnapshotRow{
		LCSC:        "25804",
		Category:    "Resistors",
		Subcategory: "Chip Resistor - Surface Mount",
		Package:     "0603",
		Basic:       true,
		Stock:       10000,
		Price:       0.002,
		HasPrice:    true,
		LastUpdated: 1690000000,
	}

	part := NormalizeSnapshotRow(row, testNow)

	if part.LCSCID != "C25804" {
		t.Errorf("LCSCID = %q, want C25804", part.LCSCID)
	}
	if part.LibraryType != TierBasic {
		t.Errorf("LibraryType = %q, want Basic", part.LibraryType)
	}
	if len(part.PriceBreaks) != 1 || part.PriceBreaks[0].Qty != 1 || part.PriceBreaks[0].Price != 0.002 {
		t.Errorf("PriceBreaks = %+v, want single qty-1 break at 0.002", part.PriceBreaks)
	}
	if part.LastUpdated != 1690000000 {
		t.Errorf("LastUpdated = %d, want source value preserved", part.LastUpdated)
	}
}

// TestNormalizeSnapshotRow_PreferredWins tests that the preferred flag
// outranks the basic flag.
func TestNormalizeSnapshotRow_PreferredWins(t *testing.T) {
	part := NormalizeSnapshotRow(SnapshotRow{LCSC: "1", Basic: true, Preferred: true}, testNow)
	if part.LibraryType != TierPreferred {
		t.Errorf("LibraryType = %q, want Preferred", part.LibraryType)
	}
}

// TestNormalizeSnapshotRow_DerivedDescription tests description assembly
// from structured attributes.
func TestNormalizeSnapshotRow_DerivedDescription(t *testing.T) {
	row := SnapshotRow{
		LCSC:              "42",
		Resistance:        "10k",
		ToleranceFraction: 0.01,
		HasTolerance:      true,
		PowerWatts:        "100",
	}

	part := NormalizeSnapshotRow(row, testNow)
	want := "10kΩ ±1% 100mW"
	if part.Description != want {
		t.Errorf("Description = %q, want %q", part.Description, want)
	}

	// Free text wins over derived attributes.
	row.Description = "10kΩ resistor"
	part = NormalizeSnapshotRow(row, testNow)
	if part.Description != "10kΩ resistor" {
		t.Errorf("Description = %q, want free text preserved", part.Description)
	}
}

// TestTierRank tests the placement-cost ordering.
func TestTierRank(t *testing.T) {
	if !(TierRank(TierBasic) < TierRank(TierPreferred) && TierRank(TierPreferred) < TierRank(TierExtended)) {
		t.Errorf("tier ranks out of order: basic=%d preferred=%d extended=%d",
			TierRank(TierBasic), TierRank(TierPreferred), TierRank(TierExtended))
	}
	if TierRank("bogus") <= TierRank(TierExtended) {
		t.Errorf("unknown tier should rank last")
	}
}

// TestNormalizeLCSC tests prefix handling.
func TestNormalizeLCSC(t *testing.T) {
	cases := map[string]string{
		"25804":  "C25804",
		"C25804": "C25804",
		" 17  ":  "C17",
		"":       "",
	}
	for in, want := range cases {
		if got := NormalizeLCSC(in); got != want {
			t.Errorf("NormalizeLCSC(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestPart_Validate tests key and tier validation.
func TestPart_Validate(t *testing.T) {
	p := Part{LCSCID: "C1", LibraryType: TierBasic}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() failed for valid part: %v", err)
	}

	p.LCSCID = ""
	if err := p.Validate(); err == nil {
		t.Error("Validate() accepted empty LCSC id")
	}

	p.LCSCID = "C1"
	p.LibraryType = "Premium"
	if err := p.Validate(); err == nil {
		t.Error("Validate() accepted unknown library type")
	}
}
