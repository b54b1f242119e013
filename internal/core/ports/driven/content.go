package driven

import (
	"context"
	"io/fs"
)

// ContentStore performs crash-atomic file operations. Every write goes
// through a temporary file in the destination directory that is
// flushed and fsynced before it becomes visible.
type ContentStore interface {
	// Place makes data visible at path without ever replacing an
	// existing file. Returns domain.ErrAlreadyExists if path is taken,
	// including when a concurrent writer won the race.
	Place(ctx context.Context, path string, data []byte) error

	// Replace atomically writes data at path, replacing any existing file.
	Replace(ctx context.Context, path string, data []byte) error

	// Append adds data to the end of path, creating it if needed, and
	// syncs the file before returning.
	Append(ctx context.Context, path string, data []byte) error

	// Hash returns the digest and size of the file at path.
	Hash(path string) (string, int64, error)

	// Stat reports whether path exists. Missing files return fs.ErrNotExist.
	Stat(path string) (fs.FileInfo, error)

	// ReadFile returns the contents of path.
	ReadFile(path string) ([]byte, error)

	// Remove deletes path. Removing a missing file is not an error.
	Remove(path string) error

	// ReadDir lists a directory in name order.
	ReadDir(dir string) ([]fs.DirEntry, error)

	// Walk visits the tree rooted at root in lexical order, as
	// filepath.WalkDir does.
	Walk(root string, fn fs.WalkDirFunc) error
}
