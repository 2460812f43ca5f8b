package embed

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	herrors "github.com/Aman-CERP/hybridindex/internal/errors"
)

// LockFileName is created inside the data directory while a writer holds it.
const LockFileName = ".lock"

// FileLock is a cross-process lock on a data directory. Only one process may
// write the lexical index, vectors and file map at a time.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileLock creates a lock for dir. The lock file is <dir>/.lock.
func NewFileLock(dir string) *FileLock {
	path := filepath.Join(dir, LockFileName)
	return &FileLock{path: path, flock: flock.New(path)}
}

// Lock blocks until the lock is held.
func (l *FileLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.locked = true
	return nil
}

// TryLock takes the lock without blocking. It returns ERR_206 when another
// process holds it.
func (l *FileLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return herrors.New(herrors.ErrCodeDataDirLocked, "data directory is in use by another process", nil).
			WithDetail("lock_file", l.path).
			WithSuggestion("Stop the other hybridindex process or wait for it to finish")
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Safe to call when not held.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.path }

// IsLocked reports whether this FileLock holds the lock.
func (l *FileLock) IsLocked() bool { return l.locked }
