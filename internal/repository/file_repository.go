package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"stockroom/internal/domain"

	"github.com/spf13/afero"
)

type fileRepository struct {
	fs   afero.Fs
	path string
}

// NewFileRepository stores the collection in <dir>/<slot>.json on the given filesystem
func NewFileRepository(fsys afero.Fs, dir, slot string) CollectionRepository {
	return &fileRepository{
		fs:   fsys,
		path: filepath.Join(dir, slot+".json"),
	}
}

// Load reads the slot file; a missing file means nothing was saved yet
func (r *fileRepository) Load(_ context.Context) ([]domain.Product, bool, error) {
	data, err := afero.ReadFile(r.fs, r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read %s: %w", r.path, err)
	}

	products, err := decodeCollection(data)
	if err != nil {
		return nil, false, err
	}
	return products, true, nil
}

// Save writes to a temporary file and renames it over the slot
func (r *fileRepository) Save(_ context.Context, products []domain.Product) error {
	data, err := encodeCollection(products)
	if err != nil {
		return err
	}

	if err := r.fs.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := afero.WriteFile(r.fs, tmp, data, 0o644); err != nil {
		_ = r.fs.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}

	if err := r.fs.Rename(tmp, r.path); err != nil {
		_ = r.fs.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", r.path, err)
	}

	return nil
}
