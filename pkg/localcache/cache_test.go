package localcache

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curlens/curlens/pkg/export"
	"github.com/curlens/curlens/pkg/observability"
)

func testCache(t *testing.T) *Cache {
	t.Helper()
	layout, err := export.LayoutFor(export.CUR20)
	require.NoError(t, err)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return New(t.TempDir(), "billing", "exports/cur", layout, logger)
}

func seedFile(t *testing.T, c *Cache, partition, name string, size int) {
	t.Helper()
	dir := filepath.Join(c.Dir(), "BILLING_PERIOD="+partition)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0o644))
}

func TestPathForMirrorsRemoteKey(t *testing.T) {
	c := testCache(t)
	key := "exports/cur/BILLING_PERIOD=2025-06/part-0.parquet"
	want := filepath.Join(c.Root(), "billing", "exports", "cur", "BILLING_PERIOD=2025-06", "part-0.parquet")
	assert.Equal(t, want, c.PathFor(key))
}

func TestListFilesOrderingAndWindow(t *testing.T) {
	c := testCache(t)
	seedFile(t, c, "2025-07", "a.parquet", 10)
	seedFile(t, c, "2025-05", "b.gz", 20)
	seedFile(t, c, "2025-05", "a.parquet", 30)
	seedFile(t, c, "2025-04", "a.parquet", 40)

	files, err := c.ListFiles("2025-05", "2025-07")
	require.NoError(t, err)

	require.Len(t, files, 3)
	assert.Equal(t, "2025-05", files[0].Partition.Value)
	assert.Equal(t, "a.parquet", files[0].Name)
	assert.Equal(t, "b.gz", files[1].Name)
	assert.Equal(t, "2025-07", files[2].Partition.Value)
	assert.Equal(t, int64(30), files[0].Size)
}

func TestListFilesHidesStagedAndForeign(t *testing.T) {
	c := testCache(t)
	seedFile(t, c, "2025-06", "a.parquet", 10)
	seedFile(t, c, "2025-06", "b.parquet.partial", 5)
	seedFile(t, c, "2025-06", "notes.txt", 5)

	files, err := c.ListFiles("", "")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.parquet", files[0].Name)
}

func TestStatusCompleteness(t *testing.T) {
	c := testCache(t)
	seedFile(t, c, "2025-06", "a.parquet", 10)
	seedFile(t, c, "2025-07", "a.parquet", 10)

	// no manifest: completeness unknown
	st, err := c.Status()
	require.NoError(t, err)
	assert.False(t, st["2025-06"].Complete)

	manifest := &Manifest{
		SyncedAt:   time.Now().UTC(),
		Bucket:     "billing",
		Prefix:     "exports/cur",
		ExportType: export.CUR20,
		Partitions: map[string][]FileEntry{
			"2025-06": {{Name: "a.parquet", Size: 10}},
			"2025-07": {{Name: "a.parquet", Size: 10}, {Name: "b.parquet", Size: 20}},
		},
	}
	require.NoError(t, WriteManifest(c.Root(), manifest))

	st, err = c.Status()
	require.NoError(t, err)
	assert.True(t, st["2025-06"].Complete)
	assert.Equal(t, 1, st["2025-06"].FileCount)
	assert.Equal(t, int64(10), st["2025-06"].TotalBytes)
	assert.False(t, st["2025-07"].Complete, "missing b.parquet locally")
}

func TestStatusSizeMismatchIncomplete(t *testing.T) {
	c := testCache(t)
	seedFile(t, c, "2025-06", "a.parquet", 7)
	require.NoError(t, WriteManifest(c.Root(), &Manifest{
		Partitions: map[string][]FileEntry{"2025-06": {{Name: "a.parquet", Size: 10}}},
	}))

	st, err := c.Status()
	require.NoError(t, err)
	assert.False(t, st["2025-06"].Complete)
}

func TestIsUsable(t *testing.T) {
	c := testCache(t)
	assert.False(t, c.IsUsable("", ""), "empty cache is unusable")

	seedFile(t, c, "2025-06", "a.parquet", 10)
	assert.True(t, c.IsUsable("", ""))
	assert.True(t, c.IsUsable("2025-06", "2025-06"))
	assert.False(t, c.IsUsable("2025-07", "2025-08"), "no partition in window")
}

func TestManifestRoundTrip(t *testing.T) {
	root := t.TempDir()

	m, err := ReadManifest(root)
	require.NoError(t, err)
	assert.Nil(t, m, "missing manifest is not an error")

	want := &Manifest{
		SyncedAt:   time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
		Bucket:     "billing",
		ExportType: export.Focus10,
		Partitions: map[string][]FileEntry{"2025-07": {{Name: "a.parquet", Size: 1}}},
	}
	require.NoError(t, WriteManifest(root, want))

	got, err := ReadManifest(root)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAdvisoryLock(t *testing.T) {
	root := t.TempDir()

	lock, err := AcquireLock(root)
	require.NoError(t, err)

	_, err = AcquireLock(root)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, lock.Release())

	again, err := AcquireLock(root)
	require.NoError(t, err)
	require.NoError(t, again.Release())
	require.NoError(t, again.Release(), "double release is safe")
}
