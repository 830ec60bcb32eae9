package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by a Backend when no checkpoint has been saved yet.
var ErrNotFound = errors.New("checkpoint not found")

// Backend persists one serialized checkpoint document.
type Backend interface {
	// Load returns the saved document, or ErrNotFound.
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the saved document.
	Save(ctx context.Context, data []byte) error

	// Remove deletes the saved document. Removing a missing document is not an error.
	Remove(ctx context.Context) error
}

// FileBackend stores the checkpoint document as a JSON file.
// Writes go to a temp file in the same directory followed by a rename, so a
// crash mid-write never leaves a truncated checkpoint behind.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend writing to path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the checkpoint file path.
func (b *FileBackend) Path() string {
	return b.path
}

// Load implements Backend.
func (b *FileBackend) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading checkpoint file: %w", err)
	}
	return data, nil
}

// Save implements Backend.
func (b *FileBackend) Save(_ context.Context, data []byte) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp checkpoint file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing temp checkpoint file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp checkpoint file: %w", err)
	}

	// Rename temp file to final path (atomic on POSIX)
	if err := os.Rename(tmpPath, b.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming checkpoint file: %w", err)
	}
	return nil
}

// Remove implements Backend.
func (b *FileBackend) Remove(_ context.Context) error {
	if err := os.Remove(b.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing checkpoint file: %w", err)
	}
	return nil
}
