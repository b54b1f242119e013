// Package filesystem implements crash-atomic content placement.
//
// Every write lands in a temporary file beside its destination, is
// flushed and fsynced, and only then becomes visible: by hard link for
// no-clobber placement, by rename for replacement. The parent directory
// is fsynced afterwards so the new name survives a crash. Temporary
// files are always removed when a step fails.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/archivist/internal/core/digest"
	"github.com/custodia-labs/archivist/internal/core/domain"
	"github.com/custodia-labs/archivist/internal/core/ports/driven"
	"github.com/custodia-labs/archivist/internal/logger"
)

const (
	dirPerm  os.FileMode = 0o755
	filePerm os.FileMode = 0o644
)

// TempPrefix marks in-flight temporary files; scanners skip them.
const TempPrefix = "."

// tempMarker is part of every temporary file name.
const tempMarker = ".tmp-"

// Store writes files atomically.
type Store struct {
	// beforeCommit runs after the temp file is durable and before it
	// becomes visible. Tests use it to simulate a crash.
	beforeCommit func(tmp, dest string) error
}

var _ driven.ContentStore = (*Store)(nil)

// NewStore creates a Store.
func NewStore() *Store {
	return &Store{}
}

// IsTemp reports whether name is an in-flight temporary file.
func IsTemp(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, TempPrefix) && strings.Contains(base, tempMarker)
}

// Place makes data visible at path without replacing an existing file.
func (s *Store) Place(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Lstat(path); err == nil {
		return fmt.Errorf("placing %s: %w", path, domain.ErrAlreadyExists)
	}

	tmp, err := s.writeTemp(path, data)
	if err != nil {
		return err
	}
	defer removeQuietly(tmp)

	if err := s.commitHook(tmp, path); err != nil {
		return err
	}

	err = os.Link(tmp, path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("placing %s: %w", path, domain.ErrAlreadyExists)
	case linkUnsupported(err):
		// No hard links on this filesystem: check then rename.
		if _, statErr := os.Lstat(path); statErr == nil {
			return fmt.Errorf("placing %s: %w", path, domain.ErrAlreadyExists)
		}
		if err := os.Rename(tmp, path); err != nil {
			return fmt.Errorf("renaming into place: %w", err)
		}
	default:
		return fmt.Errorf("linking into place: %w", err)
	}

	syncDir(filepath.Dir(path))
	return nil
}

// Replace atomically writes data at path.
func (s *Store) Replace(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := s.writeTemp(path, data)
	if err != nil {
		return err
	}
	defer removeQuietly(tmp)

	if err := s.commitHook(tmp, path); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}

	syncDir(filepath.Dir(path))
	return nil
}

// Hash returns the digest and size of the file at path.
func (s *Store) Hash(path string) (string, int64, error) {
	d, n, err := digest.File(path)
	if err != nil {
		return "", 0, err
	}
	return d.String(), n, nil
}

// Append adds data to the end of path and fsyncs it. A new file also
// gets its directory entry synced.
func (s *Store) Append(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, statErr := os.Stat(path)
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("appending to %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if errors.Is(statErr, fs.ErrNotExist) {
		syncDir(filepath.Dir(path))
	}
	return nil
}

// Stat returns file info for path.
func (s *Store) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// ReadFile returns the contents of path.
func (s *Store) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Remove deletes path. Missing files are ignored.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

// ReadDir lists dir in name order.
func (s *Store) ReadDir(dir string) ([]fs.DirEntry, error) {
	return os.ReadDir(dir)
}

// Walk walks the tree rooted at root, skipping in-flight temporary files.
func (s *Store) Walk(root string, fn fs.WalkDirFunc) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && IsTemp(path) {
			return nil
		}
		return fn(path, d, err)
	})
}

func (s *Store) commitHook(tmp, dest string) error {
	if s.beforeCommit == nil {
		return nil
	}
	return s.beforeCommit(tmp, dest)
}

// writeTemp writes data to a fsynced temp file next to path.
func (s *Store) writeTemp(path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("creating directory %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, TempPrefix+filepath.Base(path)+tempMarker+"*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	name := f.Name()
	committed := false
	defer func() {
		if !committed {
			_ = f.Close()
			removeQuietly(name)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing temp file: %w", err)
	}
	if err := f.Chmod(filePerm); err != nil {
		return "", fmt.Errorf("setting permissions: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	committed = true
	return name, nil
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("removing temp file %s: %v", path, err)
	}
}

// syncDir fsyncs a directory so a new entry survives a crash.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		logger.Debug("opening %s for sync: %v", dir, err)
		return
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, errors.ErrUnsupported) {
		logger.Debug("syncing directory %s: %v", dir, err)
	}
}

func linkUnsupported(err error) bool {
	return errors.Is(err, errors.ErrUnsupported) || errors.Is(err, fs.ErrPermission)
}
