package snapshot

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"partsync/internal/hostinfo"
)

// extractArchive expands the multi-volume archive with the external 7z tool,
// running in destDir so members land next to the archive parts. The thread
// hint defaults to the CPU count, overridable per client or via
// JLCPCB_EXTRACT_THREADS.
func extractArchive(ctx context.Context, archivePath, destDir string, threadHint int) error {
	sevenZip, err := exec.LookPath("7z")
	if err != nil {
		return &ExtractionError{Err: err, Output: "7z is required to extract the snapshot archive"}
	}

	threads := threadHint
	if threads < 1 {
		threads = hostinfo.CPUCount()
		if raw := os.Getenv("JLCPCB_EXTRACT_THREADS"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n >= 1 {
				threads = n
			}
		}
	}
	cmd := exec.CommandContext(ctx, sevenZip, "x", "-y", "-mmt="+strconv.Itoa(threads), archivePath)
	cmd.Dir = destDir

	out, err := cmd.CombinedOutput()
	if err != nil {
		lower := strings.ToLower(string(out))
		if strings.Contains(lower, "no space left") || strings.Contains(lower, "disk full") {
			return &DiskSpaceError{Purpose: "extraction"}
		}
		return &ExtractionError{Err: err, Output: string(out)}
	}
	return nil
}
