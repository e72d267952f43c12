package partsdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"partsync/internal/catalog"
)

// Progress reports ingestion advancement. total may be 0 when the source
// cannot be counted up front.
type Progress func(current, total int64, message string)

// upsertSQL is the single write path into the catalog: idempotent by the
// lcsc primary key, so re-ingesting the same source never duplicates rows.
// Conflicts update in place rather than delete-and-reinsert, keeping rowids
// stable for the external-content FTS index.
const upsertSQL = `
INSERT INTO components (
	lcsc, category, subcategory, mfr_part, package,
	solder_joints, manufacturer, library_type, description,
	datasheet, stock, price_json, last_updated
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(lcsc) DO UPDATE SET
	category = excluded.category,
	subcategory = excluded.subcategory,
	mfr_part = excluded.mfr_part,
	package = excluded.package,
	solder_joints = excluded.solder_joints,
	manufacturer = excluded.manufacturer,
	library_type = excluded.library_type,
	description = excluded.description,
	datasheet = excluded.datasheet,
	stock = excluded.stock,
	price_json = excluded.price_json,
	last_updated = excluded.last_updated
`

// ftsUnindexSQL removes a key's existing entry from the external-content FTS
// index using the FTS5 'delete' command. It must carry the column values the
// index currently holds, so it has to run before the content row changes.
// A no-op for keys not yet in the catalog.
const ftsUnindexSQL = `
INSERT INTO components_fts(components_fts, rowid, lcsc, description, mfr_part, manufacturer)
SELECT 'delete', rowid, lcsc, description, mfr_part, manufacturer
FROM components WHERE lcsc = ?
`

// ImportParts ingests a list of normalized parts (the signed vendor API
// path). The whole load runs in one transaction; the FTS index is rebuilt
// from scratch afterwards. Invalid rows are skipped, not fatal.
func (db *DB) ImportParts(ctx context.Context, parts []catalog.Part, progress Progress) (imported, skipped int64, err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin import transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	total := int64(len(parts))
	for i, part := range parts {
		if part.Validate() != nil {
			skipped++
			continue
		}
		if _, err := execUpsert(ctx, stmt, &part); err != nil {
			return 0, 0, &ImportError{Stage: "insert", Err: err}
		}
		imported++

		if progress != nil && (i+1)%1000 == 0 {
			progress(int64(i+1), total, fmt.Sprintf("Imported %d parts...", imported))
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO components_fts(components_fts) VALUES('rebuild')"); err != nil {
		return 0, 0, &ImportError{Stage: "fts rebuild", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, &ImportError{Stage: "commit", Err: err}
	}

	return imported, skipped, nil
}

func execUpsert(ctx context.Context, stmt *sql.Stmt, part *catalog.Part) (sql.Result, error) {
	priceJSON, err := marshalPriceBreaks(part.PriceBreaks)
	if err != nil {
		return nil, err
	}
	return stmt.ExecContext(ctx,
		part.LCSCID,
		part.Category,
		part.Subcategory,
		part.MfrPart,
		part.Package,
		part.SolderJoints,
		part.Manufacturer,
		part.LibraryType,
		part.Description,
		part.Datasheet,
		part.Stock,
		priceJSON,
		part.LastUpdated,
	)
}

func marshalPriceBreaks(breaks []catalog.PriceBreak) (string, error) {
	if breaks == nil {
		breaks = []catalog.PriceBreak{}
	}
	raw, err := json.Marshal(breaks)
	if err != nil {
		return "", fmt.Errorf("failed to marshal price breaks: %w", err)
	}
	return string(raw), nil
}

// SnapshotImportOptions configures an ImportSnapshot run.
type SnapshotImportOptions struct {
	// InStockOnly restricts ingestion to rows with positive stock.
	InStockOnly bool
	// Since, when non-nil, selects the incremental path: only source rows
	// with last-update strictly greater than *Since are touched.
	Since *int64
	// Tuning overrides; zero values use hardware-adaptive defaults.
	Tuning TuningOverrides
	// Progress callback, invoked per committed batch.
	Progress Progress
}

// SnapshotImportResult reports what an ImportSnapshot run did.
type SnapshotImportResult struct {
	Imported int64
	Total    int64
	// SourceMaxLastUpdate is the max last-update across the whole source,
	// regardless of filtering. 0 when the source has no last-update column.
	SourceMaxLastUpdate int64
	// Watermark is the new import watermark: the max last-update across the
	// filtered set for incremental runs (unchanged when the filtered set is
	// empty), the source max for full runs.
	Watermark int64
}

// ImportSnapshot ingests the extracted community snapshot database at
// sourcePath.
//
// Full path (opts.Since == nil): one IMMEDIATE transaction that drops the
// secondary indexes, deletes every existing row, stream-inserts in tuned
// batches, rebuilds the FTS index from scratch and recreates the indexes.
// Any failure rolls the transaction back and restores the indexes before
// returning, so the store is never left without them.
//
// Incremental path (opts.Since != nil): only rows newer than the watermark
// are upserted; their keys are collected in a temp table and the FTS index
// is deleted and rebuilt selectively for just those keys. An empty filtered
// set is a no-op returning the unchanged watermark.
func (db *DB) ImportSnapshot(ctx context.Context, sourcePath string, opts SnapshotImportOptions) (*SnapshotImportResult, error) {
	src, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", sourcePath))
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot source: %w", err)
	}
	defer src.Close()
	if err := src.Ping(); err != nil {
		return nil, fmt.Errorf("failed to open snapshot source: %w", err)
	}

	schema, err := resolveSourceSchema(ctx, src)
	if err != nil {
		return nil, err
	}

	incremental := opts.Since != nil

	var conds []string
	var args []interface{}
	if opts.InStockOnly {
		conds = append(conds, schema.stockCond)
	}
	if incremental && schema.lastCond != "" {
		conds = append(conds, schema.lastCond)
		args = append(args, *opts.Since)
	}

	result := &SnapshotImportResult{}
	if incremental {
		result.Watermark = *opts.Since
	}

	// Source-wide max last-update, independent of filtering and batching.
	if q := schema.maxLastSQL(nil); q != "" {
		var max sql.NullInt64
		if err := src.QueryRowContext(ctx, q).Scan(&max); err != nil {
			return nil, fmt.Errorf("failed to read source max last-update: %w", err)
		}
		result.SourceMaxLastUpdate = max.Int64
	}

	if err := src.QueryRowContext(ctx, schema.countSQL(conds), args...).Scan(&result.Total); err != nil {
		return nil, fmt.Errorf("failed to count source rows: %w", err)
	}

	// Empty incremental runs touch nothing: rows, FTS and indexes all stay
	// as they are and the watermark is returned unchanged.
	if incremental && result.Total == 0 {
		return result, nil
	}

	// Filtered-set max bounds the new watermark for incremental runs.
	if incremental {
		if q := schema.maxLastSQL(conds); q != "" {
			var max sql.NullInt64
			if err := src.QueryRowContext(ctx, q, args...).Scan(&max); err != nil {
				return nil, fmt.Errorf("failed to read filtered max last-update: %w", err)
			}
			if max.Valid && max.Int64 > result.Watermark {
				result.Watermark = max.Int64
			}
		}
	} else {
		result.Watermark = result.SourceMaxLastUpdate
	}

	tuning := AutoTuning(incremental, opts.Tuning)

	// The import needs its pragmas and explicit transaction pinned to one
	// connection, so it takes a dedicated one from the pool.
	conn, err := db.conn.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire import connection: %w", err)
	}
	defer conn.Close()

	pragmas := []string{
		"PRAGMA temp_store = MEMORY",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = %d", tuning.CacheKB),
		fmt.Sprintf("PRAGMA threads = %d", tuning.Threads),
		fmt.Sprintf("PRAGMA mmap_size = %d", tuning.MmapBytes),
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to apply import pragma: %w", err)
		}
	}

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return nil, &ImportError{Stage: "begin", Err: err}
	}

	// Cleanup must run even when ctx is already canceled.
	cleanupCtx := context.WithoutCancel(ctx)

	if err := db.runSnapshotImport(ctx, conn, src, schema, conds, args, incremental, tuning, opts.Progress, result); err != nil {
		// Roll back first, then make sure the secondary indexes exist; the
		// store must never be left without them.
		_, _ = conn.ExecContext(cleanupCtx, "ROLLBACK")
		_ = createComponentIndexes(cleanupCtx, db.conn)
		return nil, err
	}

	if _, err := conn.ExecContext(cleanupCtx, "COMMIT"); err != nil {
		_, _ = conn.ExecContext(cleanupCtx, "ROLLBACK")
		_ = createComponentIndexes(cleanupCtx, db.conn)
		return nil, &ImportError{Stage: "commit", Err: err}
	}

	return result, nil
}

// runSnapshotImport performs the in-transaction body of ImportSnapshot on the
// dedicated connection.
func (db *DB) runSnapshotImport(
	ctx context.Context,
	conn *sql.Conn,
	src *sql.DB,
	schema *sourceSchema,
	conds []string,
	args []interface{},
	incremental bool,
	tuning Tuning,
	progress Progress,
	result *SnapshotImportResult,
) error {
	if !incremental {
		if err := dropComponentIndexes(ctx, conn); err != nil {
			return &ImportError{Stage: "drop indexes", Err: err}
		}
		if _, err := conn.ExecContext(ctx, "DELETE FROM components"); err != nil {
			return &ImportError{Stage: "truncate", Err: err}
		}
	} else {
		if _, err := conn.ExecContext(ctx,
			"CREATE TEMP TABLE IF NOT EXISTS updated_lcsc(lcsc TEXT PRIMARY KEY)"); err != nil {
			return &ImportError{Stage: "touched-key table", Err: err}
		}
	}

	rows, err := src.QueryContext(ctx, schema.selectSQL(conds), args...)
	if err != nil {
		return &ImportError{Stage: "source scan", Err: err}
	}
	defer rows.Close()

	now := time.Now()
	batch := make([]catalog.Part, 0, tuning.BatchSize)
	rawPrices := make([]string, 0, tuning.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := db.insertBatch(ctx, conn, batch, rawPrices, incremental); err != nil {
			return err
		}
		result.Imported += int64(len(batch))
		batch = batch[:0]
		rawPrices = rawPrices[:0]
		if progress != nil {
			progress(result.Imported, result.Total,
				fmt.Sprintf("Imported %d/%d parts", result.Imported, result.Total))
		}
		return nil
	}

	for rows.Next() {
		part, rawPrice, err := scanSnapshotRow(rows, now)
		if err != nil {
			return &ImportError{Stage: "source scan", Err: err}
		}
		batch = append(batch, part)
		rawPrices = append(rawPrices, rawPrice)

		if len(batch) >= tuning.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return &ImportError{Stage: "source scan", Err: err}
	}
	if err := flush(); err != nil {
		return err
	}

	if !incremental {
		if _, err := conn.ExecContext(ctx,
			"INSERT INTO components_fts(components_fts) VALUES('rebuild')"); err != nil {
			return &ImportError{Stage: "fts rebuild", Err: err}
		}
		if err := createComponentIndexes(ctx, conn); err != nil {
			return &ImportError{Stage: "recreate indexes", Err: err}
		}
	} else {
		// Old FTS entries were unindexed row by row before their content
		// changed; only the re-insert for the touched keys remains.
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO components_fts(rowid, lcsc, description, mfr_part, manufacturer)
			SELECT c.rowid, c.lcsc, c.description, c.mfr_part, c.manufacturer
			FROM components c
			JOIN updated_lcsc u ON u.lcsc = c.lcsc`); err != nil {
			return &ImportError{Stage: "fts reindex", Err: err}
		}
		if _, err := conn.ExecContext(ctx, "DROP TABLE IF EXISTS updated_lcsc"); err != nil {
			return &ImportError{Stage: "touched-key table", Err: err}
		}
	}

	return nil
}

// insertBatch upserts one batch and, on the incremental path, records its
// keys in the touched-key table.
func (db *DB) insertBatch(ctx context.Context, conn *sql.Conn, batch []catalog.Part, rawPrices []string, incremental bool) error {
	stmt, err := conn.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return &ImportError{Stage: "insert", Err: err}
	}
	defer stmt.Close()

	var touchStmt, unindexStmt *sql.Stmt
	if incremental {
		touchStmt, err = conn.PrepareContext(ctx,
			"INSERT OR IGNORE INTO updated_lcsc(lcsc) VALUES (?)")
		if err != nil {
			return &ImportError{Stage: "insert", Err: err}
		}
		defer touchStmt.Close()

		unindexStmt, err = conn.PrepareContext(ctx, ftsUnindexSQL)
		if err != nil {
			return &ImportError{Stage: "fts unindex", Err: err}
		}
		defer unindexStmt.Close()
	}

	for i := range batch {
		part := &batch[i]
		priceJSON := rawPrices[i]
		if priceJSON == "" {
			priceJSON, err = marshalPriceBreaks(part.PriceBreaks)
			if err != nil {
				return &ImportError{Stage: "insert", Err: err}
			}
		}
		if unindexStmt != nil {
			if _, err := unindexStmt.ExecContext(ctx, part.LCSCID); err != nil {
				return &ImportError{Stage: "fts unindex", Err: err}
			}
		}
		if _, err := stmt.ExecContext(ctx,
			part.LCSCID, part.Category, part.Subcategory, part.MfrPart, part.Package,
			part.SolderJoints, part.Manufacturer, part.LibraryType, part.Description,
			part.Datasheet, part.Stock, priceJSON, part.LastUpdated,
		); err != nil {
			return &ImportError{Stage: "insert", Err: err}
		}
		if touchStmt != nil {
			if _, err := touchStmt.ExecContext(ctx, part.LCSCID); err != nil {
				return &ImportError{Stage: "insert", Err: err}
			}
		}
	}

	return nil
}

// scanSnapshotRow reads one resolved source row and normalizes it. The price
// column may hold an already-serialized JSON list (returned raw) or a bare
// number (normalized into a single qty-1 break).
func scanSnapshotRow(rows *sql.Rows, now time.Time) (catalog.Part, string, error) {
	var (
		lcsc         sql.NullString
		category     sql.NullString
		subcategory  sql.NullString
		mfr          sql.NullString
		pkg          sql.NullString
		joints       sql.NullInt64
		manufacturer sql.NullString
		basic        sql.NullInt64
		preferred    sql.NullInt64
		description  sql.NullString
		datasheet    sql.NullString
		stock        sql.NullInt64
		price        interface{}
		lastUpdate   sql.NullInt64
	)

	if err := rows.Scan(&lcsc, &category, &subcategory, &mfr, &pkg, &joints,
		&manufacturer, &basic, &preferred, &description, &datasheet, &stock,
		&price, &lastUpdate); err != nil {
		return catalog.Part{}, "", err
	}

	row := catalog.SnapshotRow{
		LCSC:         lcsc.String,
		Category:     category.String,
		Subcategory:  subcategory.String,
		MfrPart:      mfr.String,
		Package:      pkg.String,
		SolderJoints: int(joints.Int64),
		Manufacturer: manufacturer.String,
		Basic:        basic.Int64 != 0,
		Preferred:    preferred.Int64 != 0,
		Description:  description.String,
		Datasheet:    datasheet.String,
		Stock:        int(stock.Int64),
		LastUpdated:  lastUpdate.Int64,
	}

	var rawPrice string
	switch v := price.(type) {
	case string:
		rawPrice = v
	case []byte:
		rawPrice = string(v)
	case float64:
		row.Price = v
		row.HasPrice = true
	case int64:
		row.Price = float64(v)
		row.HasPrice = true
	}

	return catalog.NormalizeSnapshotRow(row, now), rawPrice, nil
}
