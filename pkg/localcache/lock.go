package localcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LockName is the hidden advisory lock marker at the cache root.
const LockName = ".curlens.lock"

// ErrLocked means another sync holds the advisory lock for this root.
var ErrLocked = errors.New("local cache is locked by another sync")

// Lock is a held advisory lock on one local root. The lock is per root, so
// concurrent syncs of different configs sharing a root exclude each other.
type Lock struct {
	path string
}

// AcquireLock takes the advisory lock for root, creating root if needed.
// Returns ErrLocked without waiting when the lock is already held.
func AcquireLock(root string) (*Lock, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache root: %w", err)
	}
	path := filepath.Join(root, LockName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w (remove %s if no sync is running)", ErrLocked, path)
		}
		return nil, fmt.Errorf("failed to acquire cache lock: %w", err)
	}
	fmt.Fprintf(f, "pid=%d acquired=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write cache lock: %w", err)
	}
	return &Lock{path: path}, nil
}

// Release removes the lock marker. Safe to call once.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to release cache lock: %w", err)
	}
	return nil
}
