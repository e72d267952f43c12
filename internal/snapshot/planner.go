package snapshot

import (
	"os"
	"path/filepath"
	"strings"
)

// Plan is the outcome of diffing remote metadata against the manifest and
// the local files: which parts must be fetched and how many bytes that is.
type Plan struct {
	ToDownload []string
	Reused     []string
	// TotalDownloadBytes is the sum of remote sizes for planned downloads
	// only. Reused parts do not count.
	TotalDownloadBytes int64
}

// PlanDownload decides, per archive part, whether the local copy can be
// reused. The rules are evaluated in order; identity signals (entity tag,
// last-modified) are trusted over size, since size alone cannot detect
// same-length content changes:
//
//  1. no local file: download
//  2. previous tag matches remote tag, or previous last-modified matches
//     remote last-modified: reuse
//  3. sizes differ and a tag or timestamp exists on either side: download
//  4. sizes equal: reuse
//  5. no usable signal at all: reuse
func PlanDownload(targetDir string, parts []string, remote map[string]RemoteMeta, previous map[string]FileMeta) Plan {
	var plan Plan

	for _, name := range parts {
		remoteMeta := remote[name]
		prev := previous[name]

		if shouldDownload(filepath.Join(targetDir, name), remoteMeta, prev) {
			plan.ToDownload = append(plan.ToDownload, name)
			plan.TotalDownloadBytes += remoteMeta.Size
		} else {
			plan.Reused = append(plan.Reused, name)
		}
	}

	return plan
}

func shouldDownload(localPath string, remote RemoteMeta, prev FileMeta) bool {
	info, err := os.Stat(localPath)
	if err != nil {
		return true
	}
	localSize := info.Size()

	prevETag := normalizeETag(prev.ETag)
	remoteETag := normalizeETag(remote.ETag)
	sameETag := prevETag != "" && remoteETag != "" && prevETag == remoteETag

	prevLastMod := strings.TrimSpace(prev.LastModified)
	remoteLastMod := strings.TrimSpace(remote.LastModified)
	sameLastMod := prevLastMod != "" && remoteLastMod != "" && prevLastMod == remoteLastMod

	if sameETag || sameLastMod {
		return false
	}

	sameSize := localSize == remote.Size
	anySignal := remoteETag != "" || remoteLastMod != "" || prevETag != "" || prevLastMod != ""
	if !sameSize && anySignal {
		return true
	}
	if sameSize {
		return false
	}

	// Weakest-signal case: no tag, no timestamp, sizes unknown or unequal.
	// Reuse by default; a content change here goes undetected until the
	// epoch timestamp moves.
	return false
}

// normalizeETag strips the weak-validator prefix and surrounding quotes so
// W/"abc" and "abc" compare equal.
func normalizeETag(value string) string {
	v := strings.TrimSpace(value)
	v = strings.TrimPrefix(v, "W/")
	return strings.Trim(v, `"`)
}
