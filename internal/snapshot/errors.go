// Package snapshot mirrors the public parts-catalog archive: it probes the
// remote multi-volume archive, plans which parts actually changed, downloads
// only those, and extracts the flat catalog database for ingestion.
package snapshot

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoUpdate is returned by DownloadCache when the remote epoch matches the
// local one and every archive part is already on disk.
var ErrNoUpdate = errors.New("no archive updates detected")

// NetworkError wraps a failed remote operation: timeouts, refused
// connections, non-success HTTP statuses.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DiskSpaceError reports a failed free-space preflight or a mid-write
// out-of-space condition.
type DiskSpaceError struct {
	// Purpose names what the space was needed for ("archive download",
	// "extraction").
	Purpose     string
	RequiredMB  float64
	AvailableMB float64
}

func (e *DiskSpaceError) Error() string {
	if e.RequiredMB > 0 || e.AvailableMB > 0 {
		return fmt.Sprintf("insufficient disk space for %s: required ~%.1f MB, available %.1f MB",
			e.Purpose, e.RequiredMB, e.AvailableMB)
	}
	return fmt.Sprintf("insufficient disk space for %s", e.Purpose)
}

// ArchiveIntegrityError reports missing archive part files or a missing
// expanded catalog file.
type ArchiveIntegrityError struct {
	Missing []string
	Reason  string
}

func (e *ArchiveIntegrityError) Error() string {
	if len(e.Missing) > 0 {
		show := e.Missing
		if len(show) > 5 {
			show = show[:5]
		}
		return fmt.Sprintf("archive integrity check failed: missing %s", strings.Join(show, ", "))
	}
	return "archive integrity check failed: " + e.Reason
}

// ExtractionError reports a non-zero exit from the external archive tool.
type ExtractionError struct {
	Output string
	Err    error
}

func (e *ExtractionError) Error() string {
	out := e.Output
	if len(out) > 800 {
		out = out[len(out)-800:]
	}
	return fmt.Sprintf("failed to extract snapshot archive: %v: %s", e.Err, out)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IsNetworkError reports whether err originated in a remote call.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsDiskSpaceError reports whether err is a free-space failure, preflight or
// mid-write.
func IsDiskSpaceError(err error) bool {
	var de *DiskSpaceError
	return errors.As(err, &de)
}

// IsIntegrityError reports whether err is a missing-file integrity failure.
func IsIntegrityError(err error) bool {
	var ae *ArchiveIntegrityError
	return errors.As(err, &ae)
}
