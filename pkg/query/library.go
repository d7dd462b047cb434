package query

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/curlens/curlens/pkg/export"
	"github.com/curlens/curlens/pkg/observability"
)

// Library serves stored-SQL files from under one root directory. File text
// is cached in an LRU; a filesystem watcher purges the cache whenever
// anything under the root changes, so edits are picked up immediately.
type Library struct {
	root    string
	cache   *lru.Cache[string, string]
	watcher *fsnotify.Watcher
	logger  *observability.Logger
	done    chan struct{}
}

// NewLibrary opens the stored-SQL library rooted at root.
func NewLibrary(root string, cacheSize int, logger *observability.Logger) (*Library, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve library root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open query library: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("query library root %s is not a directory", abs)
	}

	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create library cache: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create library watcher: %w", err)
	}

	lib := &Library{
		root:    abs,
		cache:   cache,
		watcher: watcher,
		logger:  logger,
		done:    make(chan struct{}),
	}

	// watch the root and every subdirectory present at open time
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch query library: %w", err)
	}

	go lib.watch()
	return lib, nil
}

// Root returns the absolute library root.
func (l *Library) Root() string { return l.root }

// watch purges the cache on any filesystem event under the root. Purging
// everything is coarse but keeps served text consistent with disk.
func (l *Library) watch() {
	for {
		select {
		case <-l.done:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			l.cache.Purge()
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					l.watcher.Add(event.Name)
				}
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.WithError(err).Warn("query library watcher error")
		}
	}
}

// Resolve maps a target to an absolute stored-SQL path under the root.
// Returns false when the target does not name an existing .sql file inside
// the library.
func (l *Library) Resolve(target string) (string, bool) {
	if !strings.HasSuffix(target, export.SQLExt) {
		return "", false
	}
	path := target
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.root, path)
	}
	path = filepath.Clean(path)
	if path != l.root && !strings.HasPrefix(path, l.root+string(filepath.Separator)) {
		return "", false
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// Load returns the stored SQL text at path, serving from cache when warm.
func (l *Library) Load(path string) (string, error) {
	if text, ok := l.cache.Get(path); ok {
		return text, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read stored query: %w", err)
	}
	text := string(data)
	l.cache.Add(path, text)
	return text, nil
}

// Close stops the watcher.
func (l *Library) Close() error {
	close(l.done)
	return l.watcher.Close()
}
