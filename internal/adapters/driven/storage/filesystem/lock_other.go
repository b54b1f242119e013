//go:build !unix

package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/custodia-labs/archivist/internal/core/domain"
)

// Without flock the lock is the file's existence. A crashed run leaves
// the file behind and it must be removed by hand.
func lockFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, filePerm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, errBusy(path)
		}
		return nil, fmt.Errorf("creating lock file: %w", err)
	}
	return f, nil
}

func unlockFile(f *os.File) error {
	name := f.Name()
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing lock file: %w", err)
	}
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("removing lock file: %w", err)
	}
	return nil
}

func errBusy(path string) error {
	return fmt.Errorf("%w (lock %s)", domain.ErrIndexBusy, path)
}
