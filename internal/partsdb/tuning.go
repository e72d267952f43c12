package partsdb

import "partsync/internal/hostinfo"

// Tuning fixes the bulk-import knobs for one run: insert batch size, SQLite
// worker-thread hint, page-cache budget (negative = KB, SQLite convention)
// and memory-map budget.
type Tuning struct {
	BatchSize int
	Threads   int
	CacheKB   int
	MmapBytes int64
}

// TuningOverrides carries explicit operator overrides; zero means "use the
// hardware-derived default". BatchSize overrides are clamped to a 1000-row
// floor so progress reporting and transaction sizing stay sane.
type TuningOverrides struct {
	BatchSize int
	Threads   int
	CacheKB   int
	MmapBytes int64
}

// AutoTuning selects import tuning from detected hardware, then applies
// overrides. Incremental imports get a smaller default batch size than full
// imports, tuned for their smaller row counts.
func AutoTuning(incremental bool, ov TuningOverrides) Tuning {
	return tuningForHardware(hostinfo.TotalMemoryBytes(), hostinfo.CPUCount(), incremental, ov)
}

func tuningForHardware(totalMemBytes int64, cpus int, incremental bool, ov TuningOverrides) Tuning {
	const gb = int64(1024 * 1024 * 1024)

	var fullBatch, incBatch, cacheKB, threadCap int
	var mmapBytes int64
	switch {
	case totalMemBytes >= 32*gb:
		fullBatch, incBatch = 250000, 100000
		cacheKB = -262144
		mmapBytes = 1 * gb
		threadCap = 16
	case totalMemBytes >= 16*gb:
		fullBatch, incBatch = 150000, 75000
		cacheKB = -131072
		mmapBytes = 512 * 1024 * 1024
		threadCap = 12
	case totalMemBytes >= 8*gb:
		fullBatch, incBatch = 100000, 50000
		cacheKB = -65536
		mmapBytes = 256 * 1024 * 1024
		threadCap = 8
	default:
		fullBatch, incBatch = 50000, 25000
		cacheKB = -32768
		mmapBytes = 128 * 1024 * 1024
		threadCap = 4
	}

	t := Tuning{
		BatchSize: fullBatch,
		Threads:   maxInt(1, minInt(cpus, threadCap)),
		CacheKB:   cacheKB,
		MmapBytes: mmapBytes,
	}
	if incremental {
		t.BatchSize = incBatch
	}

	if ov.BatchSize != 0 {
		t.BatchSize = maxInt(1000, ov.BatchSize)
	}
	if ov.Threads != 0 {
		t.Threads = maxInt(1, ov.Threads)
	}
	if ov.CacheKB != 0 {
		t.CacheKB = ov.CacheKB
	}
	if ov.MmapBytes != 0 {
		t.MmapBytes = ov.MmapBytes
	}

	return t
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
