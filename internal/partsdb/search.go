package partsdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"partsync/internal/catalog"
)

// SearchOptions narrows a catalog search. Zero-value fields are ignored.
type SearchOptions struct {
	// Query is matched against the full-text index (description, mfr part
	// number, manufacturer). Empty means no text constraint.
	Query string
	// Category and Subcategory are substring matches, case-insensitive.
	Category    string
	Subcategory string
	// Package is a substring match.
	Package string
	// Manufacturer is a substring match.
	Manufacturer string
	// LibraryType filters on the exact assembly tier (Basic, Preferred,
	// Extended).
	LibraryType string
	// InStockOnly drops parts with zero stock.
	InStockOnly bool
	// Limit caps the result set; <= 0 uses DefaultSearchLimit.
	Limit int
}

// DefaultSearchLimit bounds result sets when the caller does not.
const DefaultSearchLimit = 50

const partColumns = `
	lcsc, category, subcategory, mfr_part, package,
	solder_joints, manufacturer, library_type, description,
	datasheet, stock, price_json, last_updated`

// SearchParts queries the catalog. When no explicit tier filter is given,
// results are ordered Basic before Preferred before Extended, so the parts
// with the lowest assembly cost surface first.
func (db *DB) SearchParts(ctx context.Context, opts SearchOptions) ([]catalog.Part, error) {
	var conds []string
	var args []interface{}

	if q := strings.TrimSpace(opts.Query); q != "" {
		conds = append(conds,
			"lcsc IN (SELECT lcsc FROM components_fts WHERE components_fts MATCH ?)")
		args = append(args, ftsQuery(q))
	}
	if opts.Category != "" {
		conds = append(conds, "category LIKE ?")
		args = append(args, "%"+opts.Category+"%")
	}
	if opts.Subcategory != "" {
		conds = append(conds, "subcategory LIKE ?")
		args = append(args, "%"+opts.Subcategory+"%")
	}
	if opts.Package != "" {
		conds = append(conds, "package LIKE ?")
		args = append(args, "%"+opts.Package+"%")
	}
	if opts.Manufacturer != "" {
		conds = append(conds, "manufacturer LIKE ?")
		args = append(args, "%"+opts.Manufacturer+"%")
	}
	if opts.LibraryType != "" {
		conds = append(conds, "library_type = ?")
		args = append(args, opts.LibraryType)
	}
	if opts.InStockOnly {
		conds = append(conds, "stock > 0")
	}

	query := "SELECT " + partColumns + " FROM components"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if opts.LibraryType == "" {
		query += ` ORDER BY CASE library_type
			WHEN 'Basic' THEN 0
			WHEN 'Preferred' THEN 1
			WHEN 'Extended' THEN 2
			ELSE 3 END, stock DESC`
	} else {
		query += " ORDER BY stock DESC"
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer rows.Close()

	return collectParts(rows)
}

// GetPart looks up a single part by LCSC ID. Bare numeric IDs are accepted
// and get the C prefix. Returns sql.ErrNoRows when absent.
func (db *DB) GetPart(ctx context.Context, lcscID string) (*catalog.Part, error) {
	lcscID = catalog.NormalizeLCSC(lcscID)

	row := db.conn.QueryRowContext(ctx,
		"SELECT "+partColumns+" FROM components WHERE lcsc = ?", lcscID)

	part, err := scanPart(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load part %s: %w", lcscID, err)
	}
	return part, nil
}

// SuggestAlternatives finds substitutes for a part: same subcategory and
// same package, in stock, the reference part excluded. Candidates are
// ranked Basic tier first, then by lowest unit price, then by deepest
// stock.
func (db *DB) SuggestAlternatives(ctx context.Context, lcscID string, limit int) (*catalog.Part, []catalog.Part, error) {
	ref, err := db.GetPart(ctx, lcscID)
	if err != nil {
		return nil, nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	// Overfetch so ranking happens over a meaningful candidate pool.
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+partColumns+` FROM components
		WHERE subcategory = ? AND package = ? AND stock > 0 AND lcsc != ?
		ORDER BY stock DESC LIMIT ?`,
		ref.Subcategory, ref.Package, ref.LCSCID, limit*3)
	if err != nil {
		return nil, nil, fmt.Errorf("alternatives query failed: %w", err)
	}
	defer rows.Close()

	parts, err := collectParts(rows)
	if err != nil {
		return nil, nil, err
	}

	sort.SliceStable(parts, func(i, j int) bool {
		ri, rj := catalog.TierRank(parts[i].LibraryType), catalog.TierRank(parts[j].LibraryType)
		if ri != rj {
			return ri < rj
		}
		pi, pj := parts[i].LowestPrice(999), parts[j].LowestPrice(999)
		if pi != pj {
			return pi < pj
		}
		return parts[i].Stock > parts[j].Stock
	})

	if len(parts) > limit {
		parts = parts[:limit]
	}
	return ref, parts, nil
}

// ftsQuery turns free text into an FTS5 query: each word is quoted and
// prefix-matched, so raw user input cannot inject FTS syntax.
func ftsQuery(text string) string {
	words := strings.Fields(text)
	terms := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ReplaceAll(w, `"`, "")
		if w == "" {
			continue
		}
		terms = append(terms, `"`+w+`"*`)
	}
	return strings.Join(terms, " ")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPart(row rowScanner) (*catalog.Part, error) {
	var (
		part      catalog.Part
		joints    sql.NullInt64
		stock     sql.NullInt64
		priceJSON sql.NullString
		last      sql.NullInt64
	)
	err := row.Scan(&part.LCSCID, &part.Category, &part.Subcategory, &part.MfrPart,
		&part.Package, &joints, &part.Manufacturer, &part.LibraryType,
		&part.Description, &part.Datasheet, &stock, &priceJSON, &last)
	if err != nil {
		return nil, err
	}
	part.SolderJoints = int(joints.Int64)
	part.Stock = int(stock.Int64)
	part.LastUpdated = last.Int64
	part.PriceBreaks = parsePriceJSON(priceJSON.String)
	return &part, nil
}

func collectParts(rows *sql.Rows) ([]catalog.Part, error) {
	var parts []catalog.Part
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan part row: %w", err)
		}
		parts = append(parts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating part rows: %w", err)
	}
	return parts, nil
}

// parsePriceJSON tolerates the two price encodings seen in the wild: the
// canonical break list, and the snapshot's [{"qFrom":..,"price":..}] shape.
func parsePriceJSON(raw string) []catalog.PriceBreak {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil
	}

	var breaks []catalog.PriceBreak
	if err := json.Unmarshal([]byte(raw), &breaks); err == nil && len(breaks) > 0 && breaks[0].Price > 0 {
		return breaks
	}

	var alt []struct {
		QFrom float64 `json:"qFrom"`
		Price float64 `json:"price"`
	}
	if err := json.Unmarshal([]byte(raw), &alt); err == nil {
		out := make([]catalog.PriceBreak, 0, len(alt))
		for _, a := range alt {
			if a.Price <= 0 {
				continue
			}
			qty := int(a.QFrom)
			if qty < 1 {
				qty = 1
			}
			out = append(out, catalog.PriceBreak{Qty: qty, Price: a.Price})
		}
		if len(out) > 0 {
			return out
		}
	}

	return breaks
}
