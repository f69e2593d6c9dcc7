package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// File stores blobs as individual files under a data directory, one file
// per reference. Writes go through a temp file and rename so a crash never
// leaves a torn blob behind.
type File struct {
	dataDir string
}

// NewFile creates the file backend, creating the data directory if needed.
func NewFile(dataDir string) (*File, error) {
	absPath, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data dir: %w", err)
	}
	if err := os.MkdirAll(absPath, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return &File{dataDir: absPath}, nil
}

// Name implements Backend.
func (*File) Name() string { return "file" }

// Put implements Backend.
func (f *File) Put(_ context.Context, blob []byte) (Reference, error) {
	id := uuid.NewString()
	final := f.path(id)

	tmp, err := os.CreateTemp(f.dataDir, "put-*")
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Reference{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Reference{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return Reference{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return Reference{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return Reference{Backend: "file", ID: id}, nil
}

// Get implements Backend.
func (f *File) Get(_ context.Context, ref Reference) ([]byte, error) {
	if ref.ID == "" {
		return nil, ErrNotFound
	}
	// Reject IDs that escape the data dir.
	if filepath.Base(ref.ID) != ref.ID {
		return nil, ErrNotFound
	}

	blob, err := os.ReadFile(f.path(ref.ID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return blob, nil
}

func (f *File) path(id string) string {
	return filepath.Join(f.dataDir, id+".helper")
}
