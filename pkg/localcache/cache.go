package localcache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/curlens/curlens/pkg/export"
	"github.com/curlens/curlens/pkg/observability"
)

// StagingSuffix marks files still being written. Staged files are invisible
// to readers and reclaimed by the next sync run.
const StagingSuffix = ".partial"

// LocalFile is one data file present in the mirror.
type LocalFile struct {
	Partition export.Partition
	Path      string
	Name      string
	Size      int64
}

// PartitionStatus summarizes one on-disk partition.
type PartitionStatus struct {
	FileCount  int
	TotalBytes int64
	// Complete is true when the on-disk file set matches the manifest
	// entry for this partition by name and size. Without a manifest
	// completeness is unknown and reported false.
	Complete bool
}

// Cache is a read view over the local mirror of one export.
type Cache struct {
	root   string
	bucket string
	prefix string
	layout export.Layout
	logger *observability.Logger
}

// New creates a cache view rooted at root for the given remote location.
func New(root, bucket, prefix string, layout export.Layout, logger *observability.Logger) *Cache {
	return &Cache{
		root:   root,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		layout: layout,
		logger: logger,
	}
}

// Root returns the cache root directory.
func (c *Cache) Root() string { return c.root }

// Dir returns the mirror directory holding this export's partitions.
func (c *Cache) Dir() string {
	return filepath.Join(c.root, c.bucket, filepath.FromSlash(c.prefix))
}

// PathFor maps a remote object key to its local mirror path.
func (c *Cache) PathFor(key string) string {
	return filepath.Join(c.root, c.bucket, filepath.FromSlash(key))
}

// partitions returns the parsed on-disk partitions in ascending order.
func (c *Cache) partitions() ([]export.Partition, error) {
	entries, err := os.ReadDir(c.Dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache dir: %w", err)
	}
	var out []export.Partition
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p, err := c.layout.ParseDirName(e.Name())
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// partitionFiles lists the visible data files of one partition in name order.
func (c *Cache) partitionFiles(p export.Partition) ([]LocalFile, error) {
	dir := filepath.Join(c.Dir(), p.DirName())
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read partition %s: %w", p.DirName(), err)
	}
	var out []LocalFile
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), StagingSuffix) {
			continue
		}
		if !c.layout.AcceptsExtension(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", e.Name(), err)
		}
		out = append(out, LocalFile{
			Partition: p,
			Path:      filepath.Join(dir, e.Name()),
			Name:      e.Name(),
			Size:      info.Size(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListFiles returns the cached data files inside the inclusive [start, end]
// window, ordered by (partition, file name). Empty bounds are open.
func (c *Cache) ListFiles(start, end string) ([]LocalFile, error) {
	partitions, err := c.partitions()
	if err != nil {
		return nil, err
	}
	var out []LocalFile
	for _, p := range partitions {
		if !c.layout.InWindow(p.Value, start, end) {
			continue
		}
		files, err := c.partitionFiles(p)
		if err != nil {
			return nil, err
		}
		out = append(out, files...)
	}
	return out, nil
}

// Status reports per-partition file counts, sizes and completeness.
func (c *Cache) Status() (map[string]PartitionStatus, error) {
	manifest, err := ReadManifest(c.root)
	if err != nil {
		return nil, err
	}
	partitions, err := c.partitions()
	if err != nil {
		return nil, err
	}

	out := make(map[string]PartitionStatus, len(partitions))
	for _, p := range partitions {
		files, err := c.partitionFiles(p)
		if err != nil {
			return nil, err
		}
		st := PartitionStatus{FileCount: len(files)}
		for _, f := range files {
			st.TotalBytes += f.Size
		}
		if manifest != nil {
			if want, ok := manifest.Partitions[p.Value]; ok {
				st.Complete = matchesManifest(files, want)
			}
		}
		out[p.Value] = st
	}
	return out, nil
}

// matchesManifest reports whether the on-disk files equal the manifest entry
// by name and size.
func matchesManifest(files []LocalFile, want []FileEntry) bool {
	if len(files) != len(want) {
		return false
	}
	sizes := make(map[string]int64, len(files))
	for _, f := range files {
		sizes[f.Name] = f.Size
	}
	for _, w := range want {
		size, ok := sizes[w.Name]
		if !ok || size != w.Size {
			return false
		}
	}
	return true
}

// IsUsable reports whether the local root exists and holds at least one
// partition inside the current window.
func (c *Cache) IsUsable(start, end string) bool {
	partitions, err := c.partitions()
	if err != nil || len(partitions) == 0 {
		return false
	}
	for _, p := range partitions {
		if c.layout.InWindow(p.Value, start, end) {
			return true
		}
	}
	return false
}
