// Package partsdb provides the embedded parts-catalog store.
//
// The store is a local SQLite database (via ncruces/go-sqlite3) holding the
// denormalized component catalog plus an FTS5 index over the searchable text
// columns. It is the sole owner of catalog rows and of the import watermark;
// the sync job writes through it, search reads from it.
//
// Layout:
//   - components: one row per part, keyed by LCSC id
//   - components_fts: FTS5 external-content index (description, mfr_part,
//     manufacturer)
//   - metadata: key/value store for the import watermark and bookkeeping
package partsdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Metadata keys owned by the store.
const (
	// metaWatermark is the highest last-updated epoch observed in the most
	// recent successful ingestion. Bounds incremental scans.
	metaWatermark = "last_imported_epoch"
	// metaSnapshotTotalParts remembers the last snapshot's part count so
	// estimates can report it without opening the snapshot again.
	metaSnapshotTotalParts = "snapshot_last_total_parts"
)

// DB wraps the catalog database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens the parts database at path.
//
// The database is opened in WAL mode with a busy timeout so searches can run
// concurrently with an in-progress import. The caller MUST call Close() when
// done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection after checkpointing the WAL.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the catalog schema if it doesn't exist. Idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS components (
		lcsc TEXT PRIMARY KEY,
		category TEXT,
		subcategory TEXT,
		mfr_part TEXT,
		package TEXT,
		solder_joints INTEGER,
		manufacturer TEXT,
		library_type TEXT,
		description TEXT,
		datasheet TEXT,
		stock INTEGER,
		price_json TEXT,
		last_updated INTEGER
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS components_fts USING fts5(
		lcsc,
		description,
		mfr_part,
		manufacturer,
		content=components
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := createComponentIndexes(ctx, db.conn); err != nil {
		return err
	}

	return nil
}

// execer covers *sql.DB, *sql.Conn and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// createComponentIndexes (re)creates the secondary indexes. Safe to call on a
// database that already has them.
func createComponentIndexes(ctx context.Context, e execer) error {
	stmts := []string{
		"CREATE INDEX IF NOT EXISTS idx_category ON components(category, subcategory)",
		"CREATE INDEX IF NOT EXISTS idx_subcategory ON components(subcategory, package)",
		"CREATE INDEX IF NOT EXISTS idx_package ON components(package)",
		"CREATE INDEX IF NOT EXISTS idx_manufacturer ON components(manufacturer)",
		"CREATE INDEX IF NOT EXISTS idx_library_type ON components(library_type)",
		"CREATE INDEX IF NOT EXISTS idx_mfr_part ON components(mfr_part)",
	}
	for _, stmt := range stmts {
		if _, err := e.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// dropComponentIndexes removes the secondary indexes ahead of a full bulk
// load. They are recreated inside the same transaction once the load is done.
func dropComponentIndexes(ctx context.Context, e execer) error {
	stmts := []string{
		"DROP INDEX IF EXISTS idx_category",
		"DROP INDEX IF EXISTS idx_subcategory",
		"DROP INDEX IF EXISTS idx_package",
		"DROP INDEX IF EXISTS idx_manufacturer",
		"DROP INDEX IF EXISTS idx_library_type",
		"DROP INDEX IF EXISTS idx_mfr_part",
	}
	for _, stmt := range stmts {
		if _, err := e.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to drop index: %w", err)
		}
	}
	return nil
}

// GetMetadata returns the value for key, or "" when unset.
func (db *DB) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata %s: %w", key, err)
	}
	return value, nil
}

// SetMetadata inserts or replaces the value for key.
func (db *DB) SetMetadata(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT OR REPLACE INTO metadata(key, value) VALUES(?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata %s: %w", key, err)
	}
	return nil
}

// Watermark returns the persisted import watermark, or 0 when no ingestion
// has recorded one yet.
func (db *DB) Watermark(ctx context.Context) (int64, error) {
	raw, err := db.GetMetadata(ctx, metaWatermark)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, nil
	}
	mark, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt watermark %q: %w", raw, err)
	}
	return mark, nil
}

// SetWatermark persists the import watermark. The watermark only advances;
// a value below the current one is ignored.
func (db *DB) SetWatermark(ctx context.Context, mark int64) error {
	current, err := db.Watermark(ctx)
	if err != nil {
		return err
	}
	if mark <= current {
		return nil
	}
	return db.SetMetadata(ctx, metaWatermark, strconv.FormatInt(mark, 10))
}

// SetSnapshotTotalParts records the part count of the last imported snapshot.
func (db *DB) SetSnapshotTotalParts(ctx context.Context, total int64) error {
	return db.SetMetadata(ctx, metaSnapshotTotalParts, strconv.FormatInt(total, 10))
}

// SnapshotTotalParts returns the recorded snapshot part count, or 0.
func (db *DB) SnapshotTotalParts(ctx context.Context) (int64, error) {
	raw, err := db.GetMetadata(ctx, metaSnapshotTotalParts)
	if err != nil || raw == "" {
		return 0, err
	}
	total, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, nil
	}
	return total, nil
}

// HasParts reports whether the catalog contains at least one row.
func (db *DB) HasParts(ctx context.Context) (bool, error) {
	var one int
	err := db.conn.QueryRowContext(ctx, "SELECT 1 FROM components LIMIT 1").Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check for parts: %w", err)
	}
	return true, nil
}

// Stats summarizes the catalog: row counts per tier plus file size.
type Stats struct {
	TotalParts     int64
	BasicParts     int64
	PreferredParts int64
	ExtendedParts  int64
	InStock        int64
	DBPath         string
	DBSizeBytes    int64
}

// GetStats returns catalog statistics.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{DBPath: db.path}

	counts := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM components", &stats.TotalParts},
		{"SELECT COUNT(*) FROM components WHERE library_type = 'Basic'", &stats.BasicParts},
		{"SELECT COUNT(*) FROM components WHERE library_type = 'Preferred'", &stats.PreferredParts},
		{"SELECT COUNT(*) FROM components WHERE library_type = 'Extended'", &stats.ExtendedParts},
		{"SELECT COUNT(*) FROM components WHERE stock > 0", &stats.InStock},
	}
	for _, c := range counts {
		if err := db.conn.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to compute stats: %w", err)
		}
	}

	if info, err := os.Stat(db.path); err == nil {
		stats.DBSizeBytes = info.Size()
	}

	return stats, nil
}
