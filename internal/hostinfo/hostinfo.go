// Package hostinfo probes the machine the importer runs on: total physical
// memory, logical CPU count, and free disk space. The import tuner uses the
// first two to pick batch sizes; the download executor uses the last for its
// space preflight.
package hostinfo

import (
	"bufio"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// DefaultTotalMemoryBytes is assumed when every probe fails (8 GB).
const DefaultTotalMemoryBytes = 8 * 1024 * 1024 * 1024

// TotalMemoryBytes returns total physical memory. On Linux it reads
// /proc/meminfo; on Darwin it shells out to sysctl. When nothing works it
// returns DefaultTotalMemoryBytes rather than an error, so tuning always
// lands on a usable tier.
func TotalMemoryBytes() int64 {
	if total := memFromProcMeminfo("/proc/meminfo"); total > 0 {
		return total
	}
	if total := memFromSysctl(); total > 0 {
		return total
	}
	return DefaultTotalMemoryBytes
}

func memFromProcMeminfo(path string) int64 {
	fh, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb * 1024
	}
	return 0
}

func memFromSysctl() int64 {
	if runtime.GOOS != "darwin" {
		return 0
	}
	out, err := exec.Command("sysctl", "-n", "hw.memsize").Output()
	if err != nil {
		return 0
	}
	total, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return 0
	}
	return total
}

// CPUCount returns the logical CPU count, never less than 1.
func CPUCount() int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}

// FreeBytes returns the free space available to the current user on the
// filesystem holding dir.
func FreeBytes(dir string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
