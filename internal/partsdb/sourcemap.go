package partsdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// The community snapshot's schema drifts across generations: newer builds
// expose a denormalized v_components view, older ones a components table
// joined to categories and manufacturers, and several columns have been
// renamed over time. sourceSchema is resolved ONCE per import run and maps
// each logical field to the column expression valid for the generation at
// hand, with constant fallbacks where a field is absent entirely.
type sourceSchema struct {
	// fromClause is either the bare view or the three-table join.
	fromClause string
	// selectList yields columns aliased to the canonical names:
	// lcsc, category, subcategory, mfr, package, joints, manufacturer,
	// basic, preferred, description, datasheet, stock, price, last_update.
	selectList string
	// stockCond filters in-stock rows for this generation.
	stockCond string
	// lastCond formats the incremental boundary; empty when the source has
	// no last-update column (incremental filtering is then impossible and
	// the run degrades to a full scan).
	lastCond string
	// maxLastSQL computes MAX(last-update) over a given WHERE clause;
	// empty when unavailable.
	maxLastExpr string
}

// resolveSourceSchema probes the snapshot database's schema and returns the
// mapping for its generation.
func resolveSourceSchema(ctx context.Context, src *sql.DB) (*sourceSchema, error) {
	hasView, err := relationExists(ctx, src, "view", "v_components")
	if err != nil {
		return nil, err
	}
	if hasView {
		return resolveViewSchema(ctx, src)
	}
	return resolveJoinSchema(ctx, src)
}

func resolveViewSchema(ctx context.Context, src *sql.DB) (*sourceSchema, error) {
	cols, err := relationColumns(ctx, src, "v_components")
	if err != nil {
		return nil, err
	}

	mfr := firstExisting(cols, "mfr", "mfr_part", "component_model")
	joints := firstExisting(cols, "joints", "solder_joints")
	last := firstExisting(cols, "last_update", "last_updated")
	price := firstExisting(cols, "price", "price_json")

	s := &sourceSchema{
		fromClause: "v_components",
		stockCond:  "stock > 0",
	}

	s.selectList = strings.Join([]string{
		"lcsc",
		"category",
		"subcategory",
		exprOr(mfr, "''") + " AS mfr",
		"package",
		exprOr(joints, "0") + " AS joints",
		"manufacturer",
		tierFlagExpr(cols, "basic", "is_basic", "Basic", "") + " AS basic",
		tierFlagExpr(cols, "preferred", "is_preferred", "Preferred", "") + " AS preferred",
		"description",
		"datasheet",
		"stock",
		exprOr(price, "NULL") + " AS price",
		exprOr(last, "NULL") + " AS last_update",
	}, ", ")

	if last != "" {
		s.lastCond = last + " > ?"
		s.maxLastExpr = last
	}

	return s, nil
}

func resolveJoinSchema(ctx context.Context, src *sql.DB) (*sourceSchema, error) {
	compCols, err := relationColumns(ctx, src, "components")
	if err != nil {
		return nil, err
	}
	catCols, err := relationColumns(ctx, src, "categories")
	if err != nil {
		return nil, err
	}
	mCols, err := relationColumns(ctx, src, "manufacturers")
	if err != nil {
		return nil, err
	}
	if !compCols["lcsc"] {
		return nil, fmt.Errorf("%w: no v_components view and no components.lcsc column", ErrSourceSchema)
	}

	mfr := prefixed("c", firstExisting(compCols, "mfr", "mfr_part"))
	joints := prefixed("c", firstExisting(compCols, "joints", "solder_joints"))
	last := prefixed("c", firstExisting(compCols, "last_update", "last_updated"))
	price := prefixed("c", firstExisting(compCols, "price", "price_json"))
	catName := prefixed("cat", firstExisting(catCols, "category", "name"))
	subcatName := prefixed("cat", firstExisting(catCols, "subcategory", "sub_category"))
	manuName := prefixed("m", firstExisting(mCols, "name", "manufacturer"))

	from := "components c"
	if len(catCols) > 0 {
		from += " LEFT JOIN categories cat ON c.category_id = cat.id"
	} else {
		catName = prefixed("c", firstExisting(compCols, "category"))
		subcatName = prefixed("c", firstExisting(compCols, "subcategory"))
	}
	if len(mCols) > 0 {
		from += " LEFT JOIN manufacturers m ON c.manufacturer_id = m.id"
	} else {
		manuName = prefixed("c", firstExisting(compCols, "manufacturer"))
	}

	s := &sourceSchema{
		fromClause: from,
		stockCond:  "c.stock > 0",
	}

	s.selectList = strings.Join([]string{
		"c.lcsc AS lcsc",
		exprOr(catName, "''") + " AS category",
		exprOr(subcatName, "''") + " AS subcategory",
		exprOr(mfr, "''") + " AS mfr",
		"c.package AS package",
		exprOr(joints, "0") + " AS joints",
		exprOr(manuName, "''") + " AS manufacturer",
		tierFlagExpr(compCols, "basic", "is_basic", "Basic", "c") + " AS basic",
		tierFlagExpr(compCols, "preferred", "is_preferred", "Preferred", "c") + " AS preferred",
		"c.description AS description",
		"c.datasheet AS datasheet",
		"c.stock AS stock",
		exprOr(price, "NULL") + " AS price",
		exprOr(last, "NULL") + " AS last_update",
	}, ", ")

	if last != "" {
		s.lastCond = last + " > ?"
		s.maxLastExpr = last
	}

	return s, nil
}

// selectSQL builds the row-streaming query for the given conditions.
func (s *sourceSchema) selectSQL(conds []string) string {
	q := "SELECT " + s.selectList + " FROM " + s.fromClause
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	return q
}

// countSQL builds the row-count query for the given conditions.
func (s *sourceSchema) countSQL(conds []string) string {
	q := "SELECT COUNT(*) FROM " + s.fromClause
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	return q
}

// maxLastSQL builds the MAX(last-update) query, or "" when the generation
// has no last-update column.
func (s *sourceSchema) maxLastSQL(conds []string) string {
	if s.maxLastExpr == "" {
		return ""
	}
	q := "SELECT MAX(" + s.maxLastExpr + ") FROM " + s.fromClause
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	return q
}

// tierFlagExpr resolves a boolean tier flag: prefer the dedicated flag
// column, else derive from a library_type column, else constant 0.
func tierFlagExpr(cols map[string]bool, flagCol, altFlagCol, tier, prefix string) string {
	if col := firstExisting(cols, flagCol, altFlagCol); col != "" {
		return prefixed(prefix, col)
	}
	if cols["library_type"] {
		return fmt.Sprintf("CASE WHEN %s = '%s' THEN 1 ELSE 0 END",
			prefixed(prefix, "library_type"), tier)
	}
	return "0"
}

func relationExists(ctx context.Context, src *sql.DB, typ, name string) (bool, error) {
	var one int
	err := src.QueryRowContext(ctx,
		"SELECT 1 FROM sqlite_master WHERE type = ? AND name = ?", typ, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to probe source schema: %w", err)
	}
	return true, nil
}

func relationColumns(ctx context.Context, src *sql.DB, name string) (map[string]bool, error) {
	rows, err := src.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", name))
	if err != nil {
		return nil, fmt.Errorf("failed to probe columns of %s: %w", name, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			colName string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column info for %s: %w", name, err)
		}
		cols[colName] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns of %s: %w", name, err)
	}
	return cols, nil
}

func firstExisting(cols map[string]bool, candidates ...string) string {
	for _, c := range candidates {
		if cols[c] {
			return c
		}
	}
	return ""
}

func exprOr(expr, fallback string) string {
	if expr == "" {
		return fallback
	}
	return expr
}

func prefixed(prefix, col string) string {
	if col == "" || prefix == "" {
		return col
	}
	return prefix + "." + col
}
