package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"partsync/internal/hostinfo"
)

// Progress reports download advancement: bytes done, bytes planned, and a
// human-readable message.
type Progress func(done, total int64, message string)

const (
	downloadChunkBytes = 1 << 20  // stream in 1 MB chunks
	progressEveryBytes = 10 << 20 // report at >=10 MB granularity
)

// DownloadResult describes a completed DownloadCache run.
type DownloadResult struct {
	// CacheDBPath is the extracted flat catalog database.
	CacheDBPath string
	CacheDir    string

	DownloadedBytes    int64
	TotalDownloadBytes int64
	RemoteTotalBytes   int64

	ChangedParts int
	ReusedParts  int
	UpdatedParts []string

	ManifestPath string

	// ExpectedTotalParts is the row count of the extracted database, 0 when
	// it could not be read.
	ExpectedTotalParts int64
}

// DownloadCache updates the archive cache in targetDir: plans which parts
// changed, verifies free space, streams the changed parts, commits the
// manifest, extracts the archive into extractDir (targetDir when empty) and
// verifies the expanded catalog file.
//
// Returns ErrNoUpdate without touching anything when the remote epoch
// matches the local cache. Cancellation is honored between archive parts,
// not mid-file. The manifest is only rewritten after every planned part has
// downloaded, so a failed run leaves it at its last-known-good state.
func (c *Client) DownloadCache(ctx context.Context, targetDir, extractDir string, progress Progress) (*DownloadResult, error) {
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, err
	}

	est, err := c.EstimateUpdate(ctx, targetDir, true)
	if err != nil {
		return nil, err
	}
	if est.ChangedParts != nil && *est.ChangedParts == 0 && est.UpdateDownloadBytes == 0 {
		return nil, ErrNoUpdate
	}

	manifestPath := filepath.Join(targetDir, ManifestName)
	manifest := LoadManifest(manifestPath)

	remote, err := c.ProbeMetadata(ctx, est.ArchiveParts)
	if err != nil {
		return nil, err
	}
	plan := PlanDownload(targetDir, est.ArchiveParts, remote, manifest.Files)

	if extractDir == "" {
		extractDir = targetDir
	}
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return nil, err
	}

	estimatedDBBytes := int64(est.EstimatedDatabaseSizeMB * 1024 * 1024)
	if err := c.preflightSpace(targetDir, plan.TotalDownloadBytes, "archive download"); err != nil {
		return nil, err
	}
	if err := c.preflightSpace(extractDir, estimatedDBBytes, "extraction"); err != nil {
		return nil, err
	}

	if progress != nil {
		progress(0, max64(plan.TotalDownloadBytes, 1),
			fmt.Sprintf("Reusing %d unchanged archive parts; downloading %d changed/new parts",
				len(plan.Reused), len(plan.ToDownload)))
	}

	var downloaded int64
	for i, name := range plan.ToDownload {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		meta := remote[name]
		if err := c.downloadPart(ctx, meta, filepath.Join(targetDir, name),
			i+1, len(plan.ToDownload), plan.TotalDownloadBytes, &downloaded, progress); err != nil {
			return nil, err
		}
	}

	// All planned parts are on disk: the manifest can now record the full
	// current remote map as the on-disk truth.
	final := &Manifest{
		UpdatedAt: time.Now().Unix(),
		Source:    "public",
		CreatedAt: est.CreatedAt,
		Files:     make(map[string]FileMeta, len(est.ArchiveParts)),
	}
	for _, name := range est.ArchiveParts {
		meta := remote[name]
		final.Files[name] = FileMeta{
			Size:         meta.Size,
			ETag:         meta.ETag,
			LastModified: meta.LastModified,
		}
	}
	if err := SaveManifest(manifestPath, final); err != nil {
		return nil, err
	}

	if _, err := os.Stat(filepath.Join(targetDir, FinalArchiveName)); err != nil {
		return nil, &ArchiveIntegrityError{Reason: FinalArchiveName + " was not downloaded"}
	}
	var missing []string
	for _, name := range est.ArchiveParts {
		if _, err := os.Stat(filepath.Join(targetDir, name)); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &ArchiveIntegrityError{Missing: missing}
	}

	if err := extractArchive(ctx, filepath.Join(targetDir, FinalArchiveName), extractDir, c.extractThreads); err != nil {
		return nil, err
	}

	cacheDBPath := filepath.Join(extractDir, ExtractedDBName)
	if _, err := os.Stat(cacheDBPath); err != nil {
		return nil, &ArchiveIntegrityError{Reason: "extracted archive did not produce " + ExtractedDBName}
	}

	return &DownloadResult{
		CacheDBPath:        cacheDBPath,
		CacheDir:           targetDir,
		DownloadedBytes:    downloaded,
		TotalDownloadBytes: plan.TotalDownloadBytes,
		RemoteTotalBytes:   est.DownloadSizeBytes,
		ChangedParts:       len(plan.ToDownload),
		ReusedParts:        len(plan.Reused),
		UpdatedParts:       plan.ToDownload,
		ManifestPath:       manifestPath,
		ExpectedTotalParts: countCacheParts(ctx, cacheDBPath),
	}, nil
}

func (c *Client) preflightSpace(dir string, requiredBytes int64, purpose string) error {
	if requiredBytes <= 0 {
		return nil
	}
	free, err := c.freeBytes(dir)
	if err != nil {
		return fmt.Errorf("failed to check free space in %s: %w", dir, err)
	}
	if int64(free) < requiredBytes {
		return &DiskSpaceError{
			Purpose:     purpose,
			RequiredMB:  roundMB(requiredBytes),
			AvailableMB: roundMB(int64(free)),
		}
	}
	return nil
}

func (c *Client) downloadPart(ctx context.Context, meta RemoteMeta, outputPath string,
	index, count int, totalBytes int64, downloaded *int64, progress Progress) error {
	url := meta.URL
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &NetworkError{Op: "GET", URL: url, Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: "GET", URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &NetworkError{Op: "GET", URL: url,
			Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outputPath, err)
	}
	defer out.Close()

	name := filepath.Base(outputPath)
	buf := make([]byte, downloadChunkBytes)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				if errors.Is(err, syscall.ENOSPC) {
					return &DiskSpaceError{Purpose: "archive download"}
				}
				return fmt.Errorf("failed to write %s: %w", outputPath, err)
			}
			prev := *downloaded
			*downloaded += int64(n)
			if progress != nil && *downloaded/progressEveryBytes != prev/progressEveryBytes {
				progress(*downloaded, max64(totalBytes, 1),
					fmt.Sprintf("Downloaded %s (%d/%d)", name, index, count))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return &NetworkError{Op: "GET", URL: url, Err: readErr}
		}
	}

	if err := out.Close(); err != nil {
		if errors.Is(err, syscall.ENOSPC) {
			return &DiskSpaceError{Purpose: "archive download"}
		}
		return fmt.Errorf("failed to finish %s: %w", outputPath, err)
	}

	if progress != nil {
		progress(*downloaded, max64(totalBytes, 1),
			fmt.Sprintf("Finished %s (%d/%d)", name, index, count))
	}
	return nil
}

// countCacheParts reads the extracted database's row count so import totals
// can be sanity-checked. Best effort: 0 on any failure.
func countCacheParts(ctx context.Context, dbPath string) int64 {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", dbPath))
	if err != nil {
		return 0
	}
	defer db.Close()

	var one int
	table := "components"
	err = db.QueryRowContext(ctx,
		"SELECT 1 FROM sqlite_master WHERE type = 'view' AND name = 'v_components'").Scan(&one)
	if err == nil {
		table = "v_components"
	}

	var count int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
		return 0
	}
	return count
}

func defaultFreeBytes(dir string) (uint64, error) {
	free, err := hostinfo.FreeBytes(dir)
	if err != nil {
		return 0, err
	}
	return uint64(free), nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
