package partsdb

import "testing"

const gib = int64(1) << 30

func TestTuningForHardware_Tiers(t *testing.T) {
	tests := []struct {
		name        string
		memBytes    int64
		incremental bool
		wantBatch   int
		wantCacheKB int
		wantMmap    int64
	}{
		{"32GB full", 32 * gib, false, 250000, -262144, 1 * gib},
		{"32GB incremental", 32 * gib, true, 100000, -262144, 1 * gib},
		{"16GB full", 16 * gib, false, 150000, -131072, 512 << 20},
		{"16GB incremental", 16 * gib, true, 75000, -131072, 512 << 20},
		{"8GB full", 8 * gib, false, 100000, -65536, 256 << 20},
		{"8GB incremental", 8 * gib, true, 50000, -65536, 256 << 20},
		{"4GB full", 4 * gib, false, 50000, -32768, 128 << 20},
		{"4GB incremental", 4 * gib, true, 25000, -32768, 128 << 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tuningForHardware(tt.memBytes, 8, tt.incremental, TuningOverrides{})
			if got.BatchSize != tt.wantBatch {
				t.Errorf("BatchSize = %d, want %d", got.BatchSize, tt.wantBatch)
			}
			if got.CacheKB != tt.wantCacheKB {
				t.Errorf("CacheKB = %d, want %d", got.CacheKB, tt.wantCacheKB)
			}
			if got.MmapBytes != tt.wantMmap {
				t.Errorf("MmapBytes = %d, want %d", got.MmapBytes, tt.wantMmap)
			}
		})
	}
}

func TestTuningForHardware_ThreadCap(t *testing.T) {
	tests := []struct {
		name     string
		memBytes int64
		cpus     int
		want     int
	}{
		{"32GB caps at 16", 32 * gib, 32, 16},
		{"16GB caps at 12", 16 * gib, 32, 12},
		{"8GB caps at 8", 8 * gib, 32, 8},
		{"4GB caps at 4", 4 * gib, 32, 4},
		{"fewer CPUs than cap", 32 * gib, 2, 2},
		{"never below one", 32 * gib, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tuningForHardware(tt.memBytes, tt.cpus, false, TuningOverrides{})
			if got.Threads != tt.want {
				t.Errorf("Threads = %d, want %d", got.Threads, tt.want)
			}
		})
	}
}

func TestTuningForHardware_Overrides(t *testing.T) {
	ov := TuningOverrides{
		BatchSize: 5000,
		Threads:   3,
		CacheKB:   -1024,
		MmapBytes: 64 << 20,
	}
	got := tuningForHardware(32*gib, 16, false, ov)
	if got.BatchSize != 5000 {
		t.Errorf("BatchSize = %d, want override 5000", got.BatchSize)
	}
	if got.Threads != 3 {
		t.Errorf("Threads = %d, want override 3", got.Threads)
	}
	if got.CacheKB != -1024 {
		t.Errorf("CacheKB = %d, want override -1024", got.CacheKB)
	}
	if got.MmapBytes != 64<<20 {
		t.Errorf("MmapBytes = %d, want override %d", got.MmapBytes, 64<<20)
	}
}

func TestTuningForHardware_BatchFloor(t *testing.T) {
	got := tuningForHardware(8*gib, 4, false, TuningOverrides{BatchSize: 10})
	if got.BatchSize != 1000 {
		t.Errorf("BatchSize = %d, want floor 1000", got.BatchSize)
	}
}
