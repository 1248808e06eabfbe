package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	cwerrors "github.com/codewitness/codewitness/internal/errors"
)

// DirLock is a cross-process exclusive lock on a data directory. One process
// owns one data directory; a second process attempting to serve from the
// same directory fails fast instead of corrupting the WAL or racing the
// single-writer discipline.
type DirLock struct {
	path  string
	flock *flock.Flock
}

// LockDataDir acquires an exclusive, non-blocking lock on dir. It creates
// the directory if absent. Returns a Storage error naming the directory when
// another process already holds the lock.
func LockDataDir(dir string) (*DirLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase,
			fmt.Sprintf("creating data directory %s", dir), err)
	}
	lockPath := filepath.Join(dir, ".codewitness.lock")
	fl := flock.New(lockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase,
			fmt.Sprintf("locking data directory %s", dir), err)
	}
	if !ok {
		return nil, cwerrors.StorageError(cwerrors.ErrCodeStorageDatabase,
			fmt.Sprintf("data directory %s is owned by another process", dir), nil)
	}
	return &DirLock{path: lockPath, flock: fl}, nil
}

// Unlock releases the lock. Safe to call on a nil receiver.
func (l *DirLock) Unlock() error {
	if l == nil || l.flock == nil {
		return nil
	}
	return l.flock.Unlock()
}
