package partsdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"partsync/internal/catalog"
)

type srcRow struct {
	lcsc        string
	category    string
	subcategory string
	mfrPart     string
	pkg         string
	basic       int
	preferred   int
	description string
	stock       int
	price       string
	lastUpdate  int64
}

func defaultSrcRow(lcsc string, last int64) srcRow {
	return srcRow{
		lcsc:        lcsc,
		category:    "Resistors",
		subcategory: "Chip Resistor - Surface Mount",
		mfrPart:     "RC0402FR-0710KL",
		pkg:         "0402",
		basic:       0,
		preferred:   0,
		description: "10kΩ ±1% 0402 chip resistor",
		stock:       1000,
		price:       `[{"qty":1,"price":0.001}]`,
		lastUpdate:  last,
	}
}

// writeViewSource builds a snapshot source exposing the denormalized
// v_components view over a backing table.
func writeViewSource(t *testing.T, rows []srcRow) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.sqlite3")
	src, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("failed to open source db: %v", err)
	}
	defer src.Close()

	stmts := []string{
		`CREATE TABLE raw_components (
			lcsc TEXT PRIMARY KEY, category TEXT, subcategory TEXT,
			mfr TEXT, package TEXT, joints INTEGER, manufacturer TEXT,
			basic INTEGER, preferred INTEGER, description TEXT,
			datasheet TEXT, stock INTEGER, price TEXT, last_update INTEGER)`,
		`CREATE VIEW v_components AS SELECT * FROM raw_components`,
	}
	for _, s := range stmts {
		if _, err := src.Exec(s); err != nil {
			t.Fatalf("failed to build source schema: %v", err)
		}
	}

	for _, r := range rows {
		_, err := src.Exec(`INSERT INTO raw_components VALUES
			(?, ?, ?, ?, ?, 2, 'YAGEO', ?, ?, ?, '', ?, ?, ?)`,
			r.lcsc, r.category, r.subcategory, r.mfrPart, r.pkg,
			r.basic, r.preferred, r.description, r.stock, r.price, r.lastUpdate)
		if err != nil {
			t.Fatalf("failed to insert source row: %v", err)
		}
	}
	return path
}

// writeJoinSource builds an older-generation snapshot: normalized tables
// with the renamed column variants.
func writeJoinSource(t *testing.T, rows []srcRow) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.sqlite3")
	src, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("failed to open source db: %v", err)
	}
	defer src.Close()

	stmts := []string{
		`CREATE TABLE categories (id INTEGER PRIMARY KEY, category TEXT, sub_category TEXT)`,
		`CREATE TABLE manufacturers (id INTEGER PRIMARY KEY, name TEXT)`,
		`CREATE TABLE components (
			lcsc TEXT PRIMARY KEY, category_id INTEGER, manufacturer_id INTEGER,
			mfr_part TEXT, package TEXT, solder_joints INTEGER,
			library_type TEXT, description TEXT, datasheet TEXT,
			stock INTEGER, price_json TEXT, last_updated INTEGER)`,
		`INSERT INTO manufacturers VALUES (1, 'YAGEO')`,
	}
	for _, s := range stmts {
		if _, err := src.Exec(s); err != nil {
			t.Fatalf("failed to build source schema: %v", err)
		}
	}

	catIDs := make(map[string]int64)
	for _, r := range rows {
		key := r.category + "/" + r.subcategory
		if _, ok := catIDs[key]; !ok {
			res, err := src.Exec("INSERT INTO categories(category, sub_category) VALUES (?, ?)",
				r.category, r.subcategory)
			if err != nil {
				t.Fatalf("failed to insert category: %v", err)
			}
			id, _ := res.LastInsertId()
			catIDs[key] = id
		}
		tier := "Extended"
		if r.basic != 0 {
			tier = "Basic"
		} else if r.preferred != 0 {
			tier = "Preferred"
		}
		_, err := src.Exec(`INSERT INTO components VALUES
			(?, ?, 1, ?, ?, 2, ?, ?, '', ?, ?, ?)`,
			r.lcsc, catIDs[key], r.mfrPart, r.pkg, tier,
			r.description, r.stock, r.price, r.lastUpdate)
		if err != nil {
			t.Fatalf("failed to insert source row: %v", err)
		}
	}
	return path
}

func TestImportParts_SkipsInvalidRows(t *testing.T) {
	db := newTestDB(t)

	parts := []catalog.Part{
		testPart("C1001", catalog.TierBasic, 100, 0.001),
		{LCSCID: "", Description: "no id"},
		testPart("C1002", catalog.TierExtended, 50, 0.002),
	}
	imported, skipped, err := db.ImportParts(context.Background(), parts, nil)
	if err != nil {
		t.Fatalf("ImportParts failed: %v", err)
	}
	if imported != 2 {
		t.Errorf("imported = %d, want 2", imported)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if n := countParts(t, db); n != 2 {
		t.Errorf("stored parts = %d, want 2", n)
	}
}

func TestImportSnapshot_FullRun(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	src := writeViewSource(t, []srcRow{
		defaultSrcRow("C1001", 100),
		defaultSrcRow("C1002", 200),
		defaultSrcRow("C1003", 150),
	})

	res, err := db.ImportSnapshot(ctx, src, SnapshotImportOptions{})
	if err != nil {
		t.Fatalf("ImportSnapshot failed: %v", err)
	}
	if res.Imported != 3 || res.Total != 3 {
		t.Errorf("Imported/Total = %d/%d, want 3/3", res.Imported, res.Total)
	}
	if res.SourceMaxLastUpdate != 200 {
		t.Errorf("SourceMaxLastUpdate = %d, want 200", res.SourceMaxLastUpdate)
	}
	if res.Watermark != 200 {
		t.Errorf("Watermark = %d, want 200", res.Watermark)
	}
	if n := countIndexes(t, db); n != 6 {
		t.Errorf("index count after full import = %d, want 6", n)
	}
	if n := ftsMatches(t, db, "resistor"); n != 3 {
		t.Errorf("fts matches = %d, want 3", n)
	}
}

func TestImportSnapshot_FullRunIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rows := []srcRow{defaultSrcRow("C1001", 100), defaultSrcRow("C1002", 200)}
	src := writeViewSource(t, rows)

	if _, err := db.ImportSnapshot(ctx, src, SnapshotImportOptions{}); err != nil {
		t.Fatalf("first ImportSnapshot failed: %v", err)
	}
	res, err := db.ImportSnapshot(ctx, src, SnapshotImportOptions{})
	if err != nil {
		t.Fatalf("second ImportSnapshot failed: %v", err)
	}
	if res.Imported != 2 {
		t.Errorf("second run imported = %d, want 2", res.Imported)
	}
	if n := countParts(t, db); n != 2 {
		t.Errorf("parts after repeated full import = %d, want 2", n)
	}
	if n := ftsMatches(t, db, "resistor"); n != 2 {
		t.Errorf("fts matches after repeated import = %d, want 2", n)
	}
}

func TestImportSnapshot_InStockOnly(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	out := defaultSrcRow("C1002", 200)
	out.stock = 0
	src := writeViewSource(t, []srcRow{defaultSrcRow("C1001", 100), out})

	res, err := db.ImportSnapshot(ctx, src, SnapshotImportOptions{InStockOnly: true})
	if err != nil {
		t.Fatalf("ImportSnapshot failed: %v", err)
	}
	if res.Imported != 1 {
		t.Errorf("Imported = %d, want 1", res.Imported)
	}
	// The source-wide max is reported regardless of the stock filter.
	if res.SourceMaxLastUpdate != 200 {
		t.Errorf("SourceMaxLastUpdate = %d, want 200", res.SourceMaxLastUpdate)
	}
}

func TestImportSnapshot_IncrementalBoundary(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	src := writeViewSource(t, []srcRow{
		defaultSrcRow("C1001", 100),
		defaultSrcRow("C1002", 200),
	})
	if _, err := db.ImportSnapshot(ctx, src, SnapshotImportOptions{}); err != nil {
		t.Fatalf("full ImportSnapshot failed: %v", err)
	}

	// Next snapshot generation: C1002 revised, C1003 new, C1001 untouched.
	updated := defaultSrcRow("C1002", 250)
	updated.description = "22kΩ ±5% 0402 thick film resistor"
	src2 := writeViewSource(t, []srcRow{
		defaultSrcRow("C1001", 100),
		updated,
		defaultSrcRow("C1003", 300),
	})

	since := int64(200)
	res, err := db.ImportSnapshot(ctx, src2, SnapshotImportOptions{Since: &since})
	if err != nil {
		t.Fatalf("incremental ImportSnapshot failed: %v", err)
	}
	if res.Imported != 2 {
		t.Errorf("Imported = %d, want 2 (only rows newer than the watermark)", res.Imported)
	}
	if res.Watermark != 300 {
		t.Errorf("Watermark = %d, want 300", res.Watermark)
	}
	if n := countParts(t, db); n != 3 {
		t.Errorf("parts after incremental = %d, want 3", n)
	}
	// The FTS index must reflect the revised text for touched rows only.
	if n := ftsMatches(t, db, "\"thick film\""); n != 1 {
		t.Errorf("fts matches for revised description = %d, want 1", n)
	}
	if n := ftsMatches(t, db, "resistor"); n != 3 {
		t.Errorf("fts matches overall = %d, want 3", n)
	}
}

func TestImportSnapshot_IncrementalReviseKeepsFTSConsistent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := defaultSrcRow("C2001", 100)
	first.description = "blue widget alpha"
	if _, err := db.ImportSnapshot(ctx, writeViewSource(t, []srcRow{first}),
		SnapshotImportOptions{}); err != nil {
		t.Fatalf("full ImportSnapshot failed: %v", err)
	}

	// Revise the only row twice in a row; each pass must unindex the prior
	// text before the content row changes, or the external-content index
	// drifts out of sync with the table.
	for i, desc := range []string{"green widget beta", "red widget gamma"} {
		revised := defaultSrcRow("C2001", int64(200+i))
		revised.description = desc
		since := int64(150 + i)
		if _, err := db.ImportSnapshot(ctx, writeViewSource(t, []srcRow{revised}),
			SnapshotImportOptions{Since: &since}); err != nil {
			t.Fatalf("incremental ImportSnapshot pass %d failed: %v", i+1, err)
		}
	}

	if n := ftsMatches(t, db, "gamma"); n != 1 {
		t.Errorf("fts matches for current description = %d, want 1", n)
	}
	for _, stale := range []string{"alpha", "beta"} {
		if n := ftsMatches(t, db, stale); n != 0 {
			t.Errorf("fts matches for replaced description %q = %d, want 0", stale, n)
		}
	}
	// The index must still agree with the content table row for row.
	if _, err := db.conn.ExecContext(ctx,
		"INSERT INTO components_fts(components_fts) VALUES('integrity-check')"); err != nil {
		t.Errorf("fts integrity check failed: %v", err)
	}
}

func TestImportSnapshot_EmptyIncrementalIsNoOp(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	src := writeViewSource(t, []srcRow{defaultSrcRow("C1001", 100)})
	if _, err := db.ImportSnapshot(ctx, src, SnapshotImportOptions{}); err != nil {
		t.Fatalf("full ImportSnapshot failed: %v", err)
	}

	since := int64(500)
	res, err := db.ImportSnapshot(ctx, src, SnapshotImportOptions{Since: &since})
	if err != nil {
		t.Fatalf("empty incremental failed: %v", err)
	}
	if res.Imported != 0 || res.Total != 0 {
		t.Errorf("Imported/Total = %d/%d, want 0/0", res.Imported, res.Total)
	}
	if res.Watermark != 500 {
		t.Errorf("Watermark = %d, want unchanged 500", res.Watermark)
	}
	if res.SourceMaxLastUpdate != 100 {
		t.Errorf("SourceMaxLastUpdate = %d, want 100", res.SourceMaxLastUpdate)
	}
	if n := countParts(t, db); n != 1 {
		t.Errorf("parts after no-op incremental = %d, want 1", n)
	}
}

func TestImportSnapshot_JoinSchemaSource(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	basic := defaultSrcRow("C1001", 100)
	basic.basic = 1
	src := writeJoinSource(t, []srcRow{basic, defaultSrcRow("C1002", 200)})

	res, err := db.ImportSnapshot(ctx, src, SnapshotImportOptions{})
	if err != nil {
		t.Fatalf("ImportSnapshot on join-schema source failed: %v", err)
	}
	if res.Imported != 2 {
		t.Errorf("Imported = %d, want 2", res.Imported)
	}
	if res.SourceMaxLastUpdate != 200 {
		t.Errorf("SourceMaxLastUpdate = %d, want 200", res.SourceMaxLastUpdate)
	}

	part, err := db.GetPart(ctx, "C1001")
	if err != nil {
		t.Fatalf("GetPart failed: %v", err)
	}
	if part.LibraryType != catalog.TierBasic {
		t.Errorf("LibraryType = %q, want %q", part.LibraryType, catalog.TierBasic)
	}
	if part.Category != "Resistors" {
		t.Errorf("Category = %q, want Resistors (resolved through the join)", part.Category)
	}
	if part.Manufacturer != "YAGEO" {
		t.Errorf("Manufacturer = %q, want YAGEO", part.Manufacturer)
	}
}

func TestImportSnapshot_UnrecognizedSource(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "cache.sqlite3")
	src, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("failed to open source db: %v", err)
	}
	if _, err := src.Exec("CREATE TABLE something_else (id INTEGER)"); err != nil {
		t.Fatalf("failed to build source: %v", err)
	}
	src.Close()

	_, err = db.ImportSnapshot(ctx, path, SnapshotImportOptions{})
	if !errors.Is(err, ErrSourceSchema) {
		t.Errorf("err = %v, want ErrSourceSchema", err)
	}
}

func TestImportSnapshot_CancelRollsBack(t *testing.T) {
	db := newTestDB(t)

	// Seed with known-good content that a failed import must not disturb.
	seed := writeViewSource(t, []srcRow{defaultSrcRow("C1001", 100)})
	if _, err := db.ImportSnapshot(context.Background(), seed, SnapshotImportOptions{}); err != nil {
		t.Fatalf("seed ImportSnapshot failed: %v", err)
	}

	rows := make([]srcRow, 0, 2500)
	for i := 0; i < 2500; i++ {
		rows = append(rows, defaultSrcRow(fmt.Sprintf("C%d", 2000+i), 200))
	}
	src := writeViewSource(t, rows)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel after the first batch commits to the in-flight transaction.
	progress := func(current, total int64, message string) {
		cancel()
	}
	_, err := db.ImportSnapshot(ctx, src, SnapshotImportOptions{
		Tuning:   TuningOverrides{BatchSize: 1000},
		Progress: progress,
	})
	if err == nil {
		t.Fatal("ImportSnapshot with canceled context succeeded, want error")
	}

	if n := countParts(t, db); n != 1 {
		t.Errorf("parts after rollback = %d, want the 1 seeded part", n)
	}
	if n := countIndexes(t, db); n != 6 {
		t.Errorf("index count after rollback = %d, want 6", n)
	}
	part, err := db.GetPart(context.Background(), "C1001")
	if err != nil {
		t.Fatalf("seeded part lost after rollback: %v", err)
	}
	if part.Stock != 1000 {
		t.Errorf("seeded part stock = %d, want 1000", part.Stock)
	}
}
