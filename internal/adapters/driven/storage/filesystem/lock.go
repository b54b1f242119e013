package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/custodia-labs/archivist/internal/core/ports/driven"
)

// LockFile is the name of the indexer run lock inside indexes/.
const LockFile = ".index.lock"

// RunLock is an exclusive advisory lock on a file. It serialises
// indexer runs across processes on one host.
type RunLock struct {
	path string

	mu   sync.Mutex
	file *os.File
}

var _ driven.RunLock = (*RunLock)(nil)

// NewRunLock returns a lock on path. The file is created on first use.
func NewRunLock(path string) *RunLock {
	return &RunLock{path: path}
}

// Path returns the lock file path.
func (l *RunLock) Path() string {
	return l.path
}

// TryLock acquires the lock or fails with domain.ErrIndexBusy.
func (l *RunLock) TryLock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return errBusy(l.path)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), dirPerm); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}
	f, err := lockFile(l.path)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

// Unlock releases the lock.
func (l *RunLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := unlockFile(l.file)
	l.file = nil
	return err
}
