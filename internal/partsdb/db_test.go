package partsdb

import (
	"context"
	"path/filepath"
	"testing"

	"partsync/internal/catalog"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "parts.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}
	return db
}

func testPart(lcsc, tier string, stock int, price float64) catalog.Part {
	return catalog.Part{
		LCSCID:       lcsc,
		Category:     "Resistors",
		Subcategory:  "Chip Resistor - Surface Mount",
		MfrPart:      "RC0402FR-0710KL",
		Package:      "0402",
		SolderJoints: 2,
		Manufacturer: "YAGEO",
		LibraryType:  tier,
		Description:  "10kΩ ±1% 62.5mW 0402 chip resistor",
		Stock:        stock,
		PriceBreaks:  []catalog.PriceBreak{{Qty: 1, Price: price}},
		LastUpdated:  1700000000,
	}
}

func mustImportParts(t *testing.T, db *DB, parts ...catalog.Part) {
	t.Helper()
	imported, _, err := db.ImportParts(context.Background(), parts, nil)
	if err != nil {
		t.Fatalf("ImportParts failed: %v", err)
	}
	if imported != int64(len(parts)) {
		t.Fatalf("imported %d parts, want %d", imported, len(parts))
	}
}

func TestOpen_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "parts.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()
	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}

func TestMetadata_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	got, err := db.GetMetadata(ctx, "missing")
	if err != nil || got != "" {
		t.Errorf("GetMetadata on missing key = (%q, %v), want empty and nil", got, err)
	}

	if err := db.SetMetadata(ctx, "source", "snapshot"); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}
	got, err = db.GetMetadata(ctx, "source")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if got != "snapshot" {
		t.Errorf("GetMetadata = %q, want %q", got, "snapshot")
	}

	if err := db.SetMetadata(ctx, "source", "vendor"); err != nil {
		t.Fatalf("SetMetadata overwrite failed: %v", err)
	}
	got, _ = db.GetMetadata(ctx, "source")
	if got != "vendor" {
		t.Errorf("GetMetadata after overwrite = %q, want %q", got, "vendor")
	}
}

func TestWatermark_Monotonic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	wm, err := db.Watermark(ctx)
	if err != nil {
		t.Fatalf("Watermark failed: %v", err)
	}
	if wm != 0 {
		t.Errorf("initial watermark = %d, want 0", wm)
	}

	if err := db.SetWatermark(ctx, 1700000000); err != nil {
		t.Fatalf("SetWatermark failed: %v", err)
	}
	// A lower value must not move the watermark backwards.
	if err := db.SetWatermark(ctx, 1600000000); err != nil {
		t.Fatalf("SetWatermark failed: %v", err)
	}
	wm, _ = db.Watermark(ctx)
	if wm != 1700000000 {
		t.Errorf("watermark after lower set = %d, want 1700000000", wm)
	}

	if err := db.SetWatermark(ctx, 1800000000); err != nil {
		t.Fatalf("SetWatermark failed: %v", err)
	}
	wm, _ = db.Watermark(ctx)
	if wm != 1800000000 {
		t.Errorf("watermark after higher set = %d, want 1800000000", wm)
	}
}

func TestGetStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	mustImportParts(t, db,
		testPart("C1001", catalog.TierBasic, 5000, 0.001),
		testPart("C1002", catalog.TierPreferred, 0, 0.002),
		testPart("C1003", catalog.TierExtended, 100, 0.003),
		testPart("C1004", catalog.TierExtended, 0, 0.004),
	)

	stats, err := db.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.TotalParts != 4 {
		t.Errorf("TotalParts = %d, want 4", stats.TotalParts)
	}
	if stats.BasicParts != 1 {
		t.Errorf("BasicParts = %d, want 1", stats.BasicParts)
	}
	if stats.PreferredParts != 1 {
		t.Errorf("PreferredParts = %d, want 1", stats.PreferredParts)
	}
	if stats.ExtendedParts != 2 {
		t.Errorf("ExtendedParts = %d, want 2", stats.ExtendedParts)
	}
	if stats.InStock != 2 {
		t.Errorf("InStock = %d, want 2", stats.InStock)
	}
	if stats.DBSizeBytes <= 0 {
		t.Errorf("DBSizeBytes = %d, want > 0", stats.DBSizeBytes)
	}
}

func TestHasParts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	has, err := db.HasParts(ctx)
	if err != nil {
		t.Fatalf("HasParts failed: %v", err)
	}
	if has {
		t.Error("HasParts on empty store = true, want false")
	}

	mustImportParts(t, db, testPart("C1001", catalog.TierBasic, 100, 0.001))

	has, _ = db.HasParts(ctx)
	if !has {
		t.Error("HasParts after import = false, want true")
	}
}

func countIndexes(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	err := db.RawDB().QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_%'").Scan(&n)
	if err != nil {
		t.Fatalf("index count query failed: %v", err)
	}
	return n
}

func countParts(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	if err := db.RawDB().QueryRow("SELECT COUNT(*) FROM components").Scan(&n); err != nil {
		t.Fatalf("part count query failed: %v", err)
	}
	return n
}

func ftsMatches(t *testing.T, db *DB, match string) int {
	t.Helper()
	var n int
	err := db.RawDB().QueryRow(
		"SELECT COUNT(*) FROM components_fts WHERE components_fts MATCH ?", match).Scan(&n)
	if err != nil {
		t.Fatalf("fts query failed: %v", err)
	}
	return n
}
