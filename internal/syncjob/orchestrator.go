package syncjob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"partsync/internal/partsdb"
	"partsync/internal/snapshot"
	"partsync/internal/vendorapi"
)

// ErrSyncRunning is returned by Start while another job is live.
var ErrSyncRunning = errors.New("sync job already running")

// Config wires a Manager's collaborators.
type Config struct {
	DB       *partsdb.DB
	Snapshot *snapshot.Client
	Vendor   *vendorapi.Client
	// CacheDir holds the archive parts and their manifest.
	CacheDir string
	// Tuning overrides for snapshot imports; zero values stay
	// hardware-adaptive.
	Tuning partsdb.TuningOverrides
	Logger *log.Logger
}

// Manager owns the single sync job: it enforces single-flight execution,
// walks the source-selection/confirmation gates, runs the job in a
// background goroutine and publishes status to pollers.
type Manager struct {
	db       *partsdb.DB
	snapshot *snapshot.Client
	vendor   *vendorapi.Client
	cacheDir string
	tuning   partsdb.TuningOverrides
	logger   *log.Logger

	status *statusStore

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewManager returns an idle Manager.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Manager{
		db:       cfg.DB,
		snapshot: cfg.Snapshot,
		vendor:   cfg.Vendor,
		cacheDir: cfg.CacheDir,
		tuning:   cfg.Tuning,
		logger:   logger,
		status:   newStatusStore(),
	}
}

// Status returns the current job status snapshot.
func (m *Manager) Status() Status {
	return m.status.snapshot()
}

// StartOptions control a sync start request.
type StartOptions struct {
	// Source selects the catalog source: "official", "public" or "auto".
	// Auto parks the job awaiting selection.
	Source string
	// Force replaces an existing populated catalog without gating.
	Force bool
	// Confirm acknowledges the public snapshot's download size.
	Confirm bool
}

// StartResult reports what a Start call did. Exactly one of Started or a
// Requires* flag is set on success-shaped results.
type StartResult struct {
	Started bool
	Message string
	Status  Status

	RequiresSourceSelection      bool
	RequiresDownloadConfirmation bool
	RequiresReplaceConfirmation  bool

	// Estimate accompanies the download-confirmation gate.
	Estimate *snapshot.Estimate
}

// Start begins a sync job, or parks it at a gate when a caller decision is
// needed. While another job is live it returns ErrSyncRunning together with
// a result carrying the live status snapshot.
func (m *Manager) Start(ctx context.Context, opts StartOptions) (*StartResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return &StartResult{
			Message: "catalog sync is already running",
			Status:  m.status.snapshot(),
		}, ErrSyncRunning
	}

	if opts.Source == "" {
		opts.Source = SourceAuto
	}

	// An existing populated catalog is not silently replaced.
	if !opts.Force {
		if has, err := m.db.HasParts(ctx); err == nil && has {
			m.status.update(func(s *Status) {
				s.Running = false
				s.Stage = StageAwaitingReplaceConfirmation
				s.Source = ""
				s.Message = "catalog already populated; confirm replace to continue"
			})
			return &StartResult{
				RequiresReplaceConfirmation: true,
				Message:                     "catalog already populated; re-run with force to replace it",
				Status:                      m.status.snapshot(),
			}, nil
		}
	}

	switch opts.Source {
	case SourceAuto:
		m.status.update(func(s *Status) {
			s.Running = false
			s.Stage = StageAwaitingSourceSelection
			s.Source = ""
			s.Message = "select a catalog source"
		})
		return &StartResult{
			RequiresSourceSelection: true,
			Message:                 "select source=official or source=public to continue",
			Status:                  m.status.snapshot(),
		}, nil

	case SourceOfficial:
		if !m.vendor.HasCredentials() {
			return &StartResult{
				RequiresSourceSelection: true,
				Message:                 vendorapi.ErrCredentialsNotConfigured.Error(),
				Status:                  m.status.snapshot(),
			}, vendorapi.ErrCredentialsNotConfigured
		}

	case SourcePublic:
		if !opts.Confirm {
			est, err := m.snapshot.EstimateUpdate(ctx, m.cacheDir, false)
			if err != nil {
				return nil, err
			}
			m.status.update(func(s *Status) {
				s.Running = false
				s.Stage = StageAwaitingDownloadConfirmation
				s.Source = SourcePublic
				s.Message = "public snapshot download requires confirmation"
			})
			return &StartResult{
				RequiresDownloadConfirmation: true,
				Message:                      fmt.Sprintf("confirm download of ~%.1f MB to continue", est.DownloadSizeMB),
				Estimate:                     est,
				Status:                       m.status.snapshot(),
			}, nil
		}

	default:
		return nil, fmt.Errorf("unsupported source %q (allowed: official, public)", opts.Source)
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})

	started := time.Now()
	m.status.update(func(s *Status) {
		prev := s.LastSuccess
		*s = Status{
			Running:     true,
			Stage:       StageQueued,
			Source:      opts.Source,
			Message:     "sync queued",
			StartedAt:   started.Unix(),
			LastSuccess: prev,
		}
	})

	go m.run(jobCtx, opts.Source, started)

	return &StartResult{
		Started: true,
		Message: "catalog sync started in background",
		Status:  m.status.snapshot(),
	}, nil
}

// Cancel stops a running job. The signal is honored between archive-part
// and import-batch boundaries, not mid-file. No-op when idle.
func (m *Manager) Cancel() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the current job finishes. Mainly for the CLI's
// foreground mode and tests.
func (m *Manager) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (m *Manager) run(ctx context.Context, source string, started time.Time) {
	defer func() {
		m.mu.Lock()
		m.running = false
		m.cancel = nil
		close(m.done)
		m.mu.Unlock()
	}()

	m.status.update(func(s *Status) {
		s.Stage = StageStarting
		s.Message = "initializing sync"
	})

	var err error
	switch source {
	case SourceOfficial:
		err = m.runOfficial(ctx, started)
	default:
		err = m.runPublic(ctx, started)
	}

	if err != nil {
		m.logger.Printf("catalog sync failed: %v", err)
		msg := "sync failed"
		switch {
		case errors.Is(ctx.Err(), context.Canceled):
			msg = "sync cancelled"
		case snapshot.IsDiskSpaceError(err):
			msg = "sync failed: not enough disk space"
		case snapshot.IsIntegrityError(err):
			msg = "sync failed: downloaded archive is incomplete"
		case snapshot.IsNetworkError(err):
			msg = "sync failed: network error"
		}
		m.status.update(func(s *Status) {
			s.Running = false
			s.Stage = StageFailed
			s.Message = msg
			s.Error = err.Error()
			s.ElapsedSeconds = round1(time.Since(started).Seconds())
			// LastSuccess keeps the prior successful run.
		})
	}
}

// runOfficial syncs from the signed vendor API: page through the full
// catalog, then import it in one transaction.
func (m *Manager) runOfficial(ctx context.Context, started time.Time) error {
	parts, err := m.vendor.DownloadAll(ctx, func(page int, count int64, msg string) {
		m.status.update(func(s *Status) {
			s.Stage = StageDownloading
			s.Message = msg
			s.DownloadedParts = count
		})
	})
	if err != nil {
		return err
	}

	imported, skipped, err := m.db.ImportParts(ctx, parts, func(current, total int64, msg string) {
		m.status.update(func(s *Status) {
			s.Stage = StageImporting
			s.Message = msg
			s.ImportedParts = current
			s.TotalParts = total
		})
	})
	if err != nil {
		return err
	}
	if skipped > 0 {
		m.logger.Printf("official import skipped %d invalid rows", skipped)
	}

	return m.finishSuccess(ctx, SourceOfficial, started, imported, 0, 0)
}

// runPublic syncs from the community snapshot: update the archive cache,
// extract into a scratch directory, then ingest incrementally against the
// watermark.
func (m *Manager) runPublic(ctx context.Context, started time.Time) error {
	extractDir, err := os.MkdirTemp("", "partsync-extract-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(extractDir)

	download, err := m.snapshot.DownloadCache(ctx, m.cacheDir, extractDir, func(done, total int64, msg string) {
		m.status.update(func(s *Status) {
			s.Stage = StageDownloading
			s.Message = msg
			s.DownloadedBytes = done
			s.TotalBytes = total
		})
	})
	if errors.Is(err, snapshot.ErrNoUpdate) {
		m.logger.Printf("no public snapshot archive updates detected")
		return m.finishSuccess(ctx, SourcePublic, started, 0, 0, -1)
	}
	if err != nil {
		return err
	}

	var since *int64
	if wm, err := m.db.Watermark(ctx); err == nil && wm > 0 {
		since = &wm
	}

	result, err := m.db.ImportSnapshot(ctx, download.CacheDBPath, partsdb.SnapshotImportOptions{
		Since:  since,
		Tuning: m.tuning,
		Progress: func(current, total int64, msg string) {
			m.status.update(func(s *Status) {
				s.Stage = StageImporting
				s.Message = msg
				s.ImportedParts = current
				s.TotalParts = total
			})
		},
	})
	if err != nil {
		return err
	}

	if result.Watermark > 0 {
		if err := m.db.SetWatermark(ctx, result.Watermark); err != nil {
			return err
		}
	}

	return m.finishSuccess(ctx, SourcePublic, started, result.Imported,
		download.ChangedParts, download.ReusedParts)
}

// finishSuccess records the completed stage and the success snapshot.
// reusedParts < 0 means the archive diff was skipped (no-update path).
func (m *Manager) finishSuccess(ctx context.Context, source string, started time.Time, imported int64, updatedParts, reusedParts int) error {
	stats, err := m.db.GetStats(ctx)
	if err != nil {
		return err
	}
	if source == SourcePublic {
		if err := m.db.SetSnapshotTotalParts(ctx, stats.TotalParts); err != nil {
			m.logger.Printf("failed to record snapshot part count: %v", err)
		}
	}
	if reusedParts < 0 {
		reusedParts = 0
	}

	finished := time.Now()
	m.status.update(func(s *Status) {
		s.Running = false
		s.Stage = StageCompleted
		s.Message = "sync completed"
		s.ImportedParts = imported
		s.TotalParts = stats.TotalParts
		s.ElapsedSeconds = round1(finished.Sub(started).Seconds())
		s.LastSuccess = &SuccessSnapshot{
			FinishedAt:     finished.Unix(),
			Source:         source,
			TotalParts:     stats.TotalParts,
			BasicParts:     stats.BasicParts,
			PreferredParts: stats.PreferredParts,
			ExtendedParts:  stats.ExtendedParts,
			InStock:        stats.InStock,
			DBPath:         stats.DBPath,
			UpdatedParts:   updatedParts,
			ReusedParts:    reusedParts,
		}
	})
	return nil
}
