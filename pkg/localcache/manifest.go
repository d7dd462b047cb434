package localcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/curlens/curlens/pkg/export"
)

// ManifestName is the hidden manifest file at the cache root.
const ManifestName = ".curlens-manifest.json"

// FileEntry records one synced file.
type FileEntry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Manifest records the file set the last completed sync observed remotely.
// A partition is complete when its on-disk files match its manifest entry
// by name and size.
type Manifest struct {
	SyncedAt   time.Time              `json:"synced_at"`
	Bucket     string                 `json:"bucket"`
	Prefix     string                 `json:"prefix"`
	ExportType export.Type            `json:"export_type"`
	Partitions map[string][]FileEntry `json:"partitions"` // keyed by partition value
}

// ReadManifest loads the manifest from the cache root. A missing manifest is
// not an error and yields nil.
func ReadManifest(root string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(root, ManifestName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// WriteManifest writes the manifest atomically (stage then rename).
func WriteManifest(root string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	tmp := filepath.Join(root, ManifestName+".partial")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to stage manifest: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(root, ManifestName)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to publish manifest: %w", err)
	}
	return nil
}
