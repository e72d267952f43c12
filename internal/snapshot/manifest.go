package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
)

// FileMeta is the persisted remote metadata for one archive part.
type FileMeta struct {
	Size         int64  `json:"size"`
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"lastModified,omitempty"`
}

// Manifest records the last-known remote metadata for every archive part in
// one cache directory.
type Manifest struct {
	UpdatedAt int64               `json:"updatedAt"`
	Source    string              `json:"source,omitempty"`
	CreatedAt string              `json:"createdAt,omitempty"`
	Files     map[string]FileMeta `json:"files"`
}

// LoadManifest reads the manifest at path. A missing or unparseable file is
// not an error: the planner then treats every part as never-seen, which only
// costs a redownload.
func LoadManifest(path string) *Manifest {
	empty := &Manifest{Files: map[string]FileMeta{}}

	raw, err := os.ReadFile(path)
	if err != nil {
		return empty
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return empty
	}
	if m.Files == nil {
		m.Files = map[string]FileMeta{}
	}
	return &m
}

// SaveManifest writes the manifest atomically: the content goes to a
// temporary file first, then replaces the previous manifest in one rename.
// A crash mid-write leaves the prior valid manifest untouched.
func SaveManifest(path string, m *Manifest) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}

// TotalBytes sums the recorded sizes of every file in the manifest.
func (m *Manifest) TotalBytes() int64 {
	var total int64
	for _, f := range m.Files {
		total += f.Size
	}
	return total
}
