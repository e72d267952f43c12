package snapshot

import (
	"context"
	"math"
	"os"
	"path/filepath"
)

// Catalog-scale constants for estimates where the remote cannot tell us.
// Recent public snapshots are around 950 MB of archive expanding to roughly
// 1.8x that, holding about 7 million parts.
const (
	defaultDownloadMB = 950.0
	dbSizeMultiplier  = 1.8

	estimatedPartCountMin = 6_500_000
	estimatedPartCount    = 7_000_000
	estimatedPartCountMax = 7_500_000
	estimatedInStockParts = 650_000
	estimatedBasicParts   = 350

	// Download-time estimates bracket typical consumer links.
	fastLinkMbps = 100.0
	slowLinkMbps = 20.0
)

// Estimate describes an upcoming snapshot download. Both the fresh-probe and
// the cached no-remote-check paths fill the same shape, so callers never
// branch on which produced it.
type Estimate struct {
	Source    string `json:"source"`
	CreatedAt string `json:"createdAt,omitempty"`

	ArchiveParts  []string         `json:"archiveParts"`
	DownloadFiles map[string]int64 `json:"downloadFiles,omitempty"`

	DownloadSizeBytes       int64   `json:"downloadSizeBytes"`
	DownloadSizeMB          float64 `json:"downloadSizeMB"`
	EstimatedDatabaseSizeMB float64 `json:"estimatedDatabaseSizeMB"`

	PartCountMin  int64 `json:"estimatedPartCountMin"`
	PartCountMax  int64 `json:"estimatedPartCountMax"`
	InStockParts  int64 `json:"estimatedInStockParts"`
	BasicParts    int64 `json:"estimatedBasicParts"`
	ExtendedParts int64 `json:"estimatedExtendedParts"`

	DownloadMinutesMin float64 `json:"downloadMinutesMin"`
	DownloadMinutesMax float64 `json:"downloadMinutesMax"`

	// Update-specific fields, filled by EstimateUpdate.
	CacheDir            string `json:"cacheDirectory,omitempty"`
	ManifestPath        string `json:"cacheManifestPath,omitempty"`
	UpdateDownloadBytes int64  `json:"estimatedUpdateDownloadBytes"`
	// UpdateDownloadMB mirrors UpdateDownloadBytes for display.
	UpdateDownloadMB float64 `json:"estimatedUpdateDownloadMB"`
	// ChangedParts is nil when the quick path skipped the per-file diff.
	ChangedParts     *int    `json:"changedArchiveParts"`
	ReusedParts      int     `json:"reusedArchiveParts"`
	InitialDownload  bool    `json:"isInitialArchiveDownload"`
	UpdateMinutesMin float64 `json:"updateMinutesMin"`
	UpdateMinutesMax float64 `json:"updateMinutesMax"`
}

// estimateMinutes converts a byte count to transfer minutes at mbps.
func estimateMinutes(totalBytes int64, mbps float64) float64 {
	if totalBytes <= 0 || mbps <= 0 {
		return 0
	}
	bits := float64(totalBytes) * 8
	seconds := bits / (mbps * 1_000_000)
	return math.Round(seconds/60*10) / 10
}

func roundMB(bytes int64) float64 {
	return math.Round(float64(bytes)/(1024*1024)*10) / 10
}

func newBaseEstimate(totalBytes int64) *Estimate {
	mb := roundMB(totalBytes)
	return &Estimate{
		Source:                  "public",
		DownloadSizeBytes:       totalBytes,
		DownloadSizeMB:          mb,
		EstimatedDatabaseSizeMB: math.Round(mb*dbSizeMultiplier*10) / 10,
		PartCountMin:            estimatedPartCountMin,
		PartCountMax:            estimatedPartCountMax,
		InStockParts:            estimatedInStockParts,
		BasicParts:              estimatedBasicParts,
		ExtendedParts:           estimatedPartCount - estimatedBasicParts,
		DownloadMinutesMin:      estimateMinutes(totalBytes, fastLinkMbps),
		DownloadMinutesMax:      estimateMinutes(totalBytes, slowLinkMbps),
	}
}

// EstimateDownload probes the full archive and estimates a from-scratch
// download: part list, total size, derived database size and transfer time.
func (c *Client) EstimateDownload(ctx context.Context) (*Estimate, error) {
	parts, err := c.DiscoverParts(ctx)
	if err != nil {
		return nil, err
	}
	remote, err := c.ProbeMetadata(ctx, parts)
	if err != nil {
		return nil, err
	}

	files := make(map[string]int64, len(remote))
	var totalBytes int64
	for name, meta := range remote {
		files[name] = meta.Size
		totalBytes += meta.Size
	}

	est := newBaseEstimate(totalBytes)
	est.ArchiveParts = parts
	est.DownloadFiles = files
	est.CreatedAt = c.FetchIndexCreatedAt(ctx)
	return est, nil
}

// EstimateUpdate estimates what an update of the cache in targetDir would
// download.
//
// With remoteCheck false, nothing touches the network: the manifest's
// recorded sizes stand in for the remote (falling back to the typical full
// archive size when no manifest exists) and ChangedParts stays nil.
//
// With remoteCheck true, the remote epoch timestamp is compared first: when
// it matches the manifest and every part file is on disk, the update is
// reported as zero bytes without per-file probing. Otherwise the full
// archive is probed and diffed.
func (c *Client) EstimateUpdate(ctx context.Context, targetDir string, remoteCheck bool) (*Estimate, error) {
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, err
	}

	manifestPath := filepath.Join(targetDir, ManifestName)
	manifest := LoadManifest(manifestPath)

	if !remoteCheck {
		return c.cachedEstimate(targetDir, manifestPath, manifest), nil
	}

	remoteCreatedAt := c.FetchIndexCreatedAt(ctx)
	if epochUnchanged(remoteCreatedAt, manifest, targetDir) {
		totalBytes := manifest.TotalBytes()
		est := newBaseEstimate(totalBytes)
		est.CreatedAt = remoteCreatedAt
		est.ArchiveParts = sortedNames(manifest.Files)
		est.CacheDir = targetDir
		est.ManifestPath = manifestPath
		zero := 0
		est.ChangedParts = &zero
		est.ReusedParts = len(manifest.Files)
		return est, nil
	}

	est, err := c.EstimateDownload(ctx)
	if err != nil {
		return nil, err
	}

	remote, err := c.ProbeMetadata(ctx, est.ArchiveParts)
	if err != nil {
		return nil, err
	}
	plan := PlanDownload(targetDir, est.ArchiveParts, remote, manifest.Files)

	changed := len(plan.ToDownload)
	est.CacheDir = targetDir
	est.ManifestPath = manifestPath
	est.UpdateDownloadBytes = plan.TotalDownloadBytes
	est.UpdateDownloadMB = roundMB(plan.TotalDownloadBytes)
	est.ChangedParts = &changed
	est.ReusedParts = len(plan.Reused)
	est.InitialDownload = len(plan.Reused) == 0
	est.UpdateMinutesMin = estimateMinutes(plan.TotalDownloadBytes, fastLinkMbps)
	est.UpdateMinutesMax = estimateMinutes(plan.TotalDownloadBytes, slowLinkMbps)
	return est, nil
}

func (c *Client) cachedEstimate(targetDir, manifestPath string, manifest *Manifest) *Estimate {
	totalBytes := manifest.TotalBytes()
	parts := sortedNames(manifest.Files)

	if totalBytes <= 0 {
		totalBytes = int64(defaultDownloadMB * 1024 * 1024)
		parts = nil
	}

	est := newBaseEstimate(totalBytes)
	est.CreatedAt = manifest.CreatedAt
	est.ArchiveParts = parts
	est.CacheDir = targetDir
	est.ManifestPath = manifestPath
	est.UpdateDownloadBytes = totalBytes
	est.UpdateDownloadMB = est.DownloadSizeMB
	est.ReusedParts = len(parts)
	est.InitialDownload = len(parts) == 0
	est.UpdateMinutesMin = est.DownloadMinutesMin
	est.UpdateMinutesMax = est.DownloadMinutesMax
	return est
}

// epochUnchanged reports whether the remote epoch matches the manifest's and
// every manifest part file is present locally, making per-file probing
// unnecessary.
func epochUnchanged(remoteCreatedAt string, manifest *Manifest, targetDir string) bool {
	if remoteCreatedAt == "" || manifest.CreatedAt == "" || remoteCreatedAt != manifest.CreatedAt {
		return false
	}
	if len(manifest.Files) == 0 {
		return false
	}
	for name := range manifest.Files {
		if _, err := os.Stat(filepath.Join(targetDir, name)); err != nil {
			return false
		}
	}
	return true
}
