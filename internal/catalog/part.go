// Package catalog defines the normalized parts-catalog row shape shared by
// every ingestion source and by the local store.
//
// Two upstream formats feed the catalog: the paginated vendor API (nested
// price tiers, textual LCSC codes) and the community-maintained snapshot
// (numeric LCSC identifiers, boolean tier flags, single flat price). Both
// normalize into Part before anything touches the database.
package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// Library tiers, in placement-cost order. Basic parts carry no additional
// assembly setup fee, so they rank ahead of Preferred and Extended whenever
// results are presented as a ranked set.
const (
	TierBasic     = "Basic"
	TierPreferred = "Preferred"
	TierExtended  = "Extended"
)

// PriceBreak is one quantity-threshold price point.
type PriceBreak struct {
	Qty   int     `json:"qty"`
	Price float64 `json:"price"`
}

// Part is one denormalized catalog row. LCSCID is the globally unique
// primary key (format "C<digits>"); re-ingestion is an idempotent upsert
// by that key.
type Part struct {
	LCSCID       string       `json:"lcsc"`
	Category     string       `json:"category"`
	Subcategory  string       `json:"subcategory"`
	MfrPart      string       `json:"mfr_part"`
	Package      string       `json:"package"`
	SolderJoints int          `json:"solder_joints"`
	Manufacturer string       `json:"manufacturer"`
	LibraryType  string       `json:"library_type"`
	Description  string       `json:"description"`
	Datasheet    string       `json:"datasheet"`
	Stock        int          `json:"stock"`
	PriceBreaks  []PriceBreak `json:"price_breaks"`
	LastUpdated  int64        `json:"last_updated"`
}

// Validate checks the invariants the store relies on.
func (p *Part) Validate() error {
	if p.LCSCID == "" {
		return fmt.Errorf("part has empty LCSC id")
	}
	switch p.LibraryType {
	case TierBasic, TierPreferred, TierExtended:
	default:
		return fmt.Errorf("part %s has unknown library type %q", p.LCSCID, p.LibraryType)
	}
	return nil
}

// TierRank maps a library tier to its default sort position:
// Basic (0) ahead of Preferred (1) ahead of Extended (2).
// Unknown tiers sort last.
func TierRank(tier string) int {
	switch tier {
	case TierBasic:
		return 0
	case TierPreferred:
		return 1
	case TierExtended:
		return 2
	default:
		return 3
	}
}

// LowestPrice returns the cheapest listed price break, or fallback when the
// part has no price data. Used as a ranking key for alternative suggestions.
func (p *Part) LowestPrice(fallback float64) float64 {
	if len(p.PriceBreaks) == 0 {
		return fallback
	}
	lowest := p.PriceBreaks[0].Price
	for _, pb := range p.PriceBreaks[1:] {
		if pb.Price < lowest {
			lowest = pb.Price
		}
	}
	return lowest
}

// NormalizeLCSC ensures the "C<digits>" key format. Numeric identifiers
// (the community snapshot stores them as bare integers) gain the C prefix;
// anything already prefixed passes through unchanged.
func NormalizeLCSC(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}
	if _, err := strconv.Atoi(s); err == nil {
		return "C" + s
	}
	return s
}
