package hostinfo

import (
	"os"
	"path/filepath"
	"testing"
)

// TestTotalMemoryBytes_Positive tests that detection always yields a usable value.
func TestTotalMemoryBytes_Positive(t *testing.T) {
	if got := TotalMemoryBytes(); got <= 0 {
		t.Errorf("TotalMemoryBytes() = %d, want > 0", got)
	}
}

// TestMemFromProcMeminfo_Parse tests MemTotal parsing.
func TestMemFromProcMeminfo_Parse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meminfo")
	content := "MemFree:  123 kB\nMemTotal:       16384000 kB\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got := memFromProcMeminfo(path)
	want := int64(16384000) * 1024
	if got != want {
		t.Errorf("memFromProcMeminfo = %d, want %d", got, want)
	}
}

// TestMemFromProcMeminfo_Missing tests that an absent file yields zero.
func TestMemFromProcMeminfo_Missing(t *testing.T) {
	if got := memFromProcMeminfo(filepath.Join(t.TempDir(), "nope")); got != 0 {
		t.Errorf("memFromProcMeminfo = %d, want 0 for missing file", got)
	}
}

// TestCPUCount_Positive tests the lower bound.
func TestCPUCount_Positive(t *testing.T) {
	if got := CPUCount(); got < 1 {
		t.Errorf("CPUCount() = %d, want >= 1", got)
	}
}

// TestFreeBytes_TempDir tests statfs against a real directory.
func TestFreeBytes_TempDir(t *testing.T) {
	free, err := FreeBytes(t.TempDir())
	if err != nil {
		t.Fatalf("FreeBytes() failed: %v", err)
	}
	if free <= 0 {
		t.Errorf("FreeBytes() = %d, want > 0", free)
	}
}
