// Package syncjob runs the catalog synchronization as a single background
// job and publishes its progress to concurrent pollers.
package syncjob

import (
	"sync"
	"time"
)

// Stage is the sync job's lifecycle position.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageQueued      Stage = "queued"
	StageStarting    Stage = "starting"
	StageDownloading Stage = "downloading"
	StageImporting   Stage = "importing"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"

	// Gating stages: the job is parked waiting for a caller decision.
	StageAwaitingSourceSelection      Stage = "awaiting_source_selection"
	StageAwaitingDownloadConfirmation Stage = "awaiting_download_confirmation"
	StageAwaitingReplaceConfirmation  Stage = "awaiting_replace_confirmation"
)

// Catalog sources.
const (
	SourceAuto     = "auto"
	SourceOfficial = "official"
	SourcePublic   = "public"
)

// SuccessSnapshot captures the catalog state after the last successful sync.
// It survives later failures, so callers can tell "never succeeded" from
// "failed after prior success".
type SuccessSnapshot struct {
	FinishedAt     int64  `json:"finishedAt"`
	Source         string `json:"source"`
	TotalParts     int64  `json:"totalParts"`
	BasicParts     int64  `json:"basicParts"`
	PreferredParts int64  `json:"preferredParts"`
	ExtendedParts  int64  `json:"extendedParts"`
	InStock        int64  `json:"inStock"`
	DBPath         string `json:"dbPath"`
	UpdatedParts   int    `json:"updatedArchiveParts"`
	ReusedParts    int    `json:"reusedArchiveParts"`
}

// Status is one observable snapshot of the sync job.
type Status struct {
	Running bool   `json:"isRunning"`
	Stage   Stage  `json:"stage"`
	Source  string `json:"source,omitempty"`
	Message string `json:"message,omitempty"`

	StartedAt      int64   `json:"startedAt,omitempty"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`

	DownloadedBytes int64 `json:"downloadedBytes"`
	TotalBytes      int64 `json:"totalBytes"`
	DownloadedParts int64 `json:"downloadedParts"`
	ImportedParts   int64 `json:"importedParts"`
	TotalParts      int64 `json:"totalParts"`

	Error string `json:"error,omitempty"`

	LastSuccess *SuccessSnapshot `json:"lastSuccess,omitempty"`
}

// statusStore holds the single process-wide job status. The worker is the
// only writer; any number of pollers read consistent snapshots.
type statusStore struct {
	mu     sync.Mutex
	status Status
	now    func() time.Time
}

func newStatusStore() *statusStore {
	return &statusStore{
		status: Status{Stage: StageIdle},
		now:    time.Now,
	}
}

// update applies fn to the status under the lock.
func (s *statusStore) update(fn func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}

// snapshot returns a copy of the current status with elapsed time computed
// live for running jobs.
func (s *statusStore) snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.status
	if st.Running && st.StartedAt > 0 {
		st.ElapsedSeconds = round1(s.now().Sub(time.Unix(st.StartedAt, 0)).Seconds())
	}
	if st.LastSuccess != nil {
		snap := *st.LastSuccess
		st.LastSuccess = &snap
	}
	return st
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
