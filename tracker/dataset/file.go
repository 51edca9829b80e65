package dataset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/loredb-bench/tracker/types"
)

const lockRetryDelay = 50 * time.Millisecond

// LoadFile reads a data.js file. A missing file yields an empty dataset.
func LoadFile(path string) (*types.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return New(""), nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return New(""), nil
	}
	return Parse(data)
}

// SaveFile atomically replaces path with the encoded dataset
func SaveFile(path string, ds *types.Dataset) error {
	data, err := Encode(ds)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".data-*.js")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Update loads path under an exclusive file lock, applies fn and saves the
// result. The lock is held on path+".lock" so concurrent writers from other
// processes serialize.
func Update(ctx context.Context, path string, fn func(ds *types.Dataset) error) (*types.Dataset, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock %s", path)
	}
	defer lock.Unlock()

	ds, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := fn(ds); err != nil {
		return nil, err
	}
	if err := SaveFile(path, ds); err != nil {
		return nil, err
	}
	return ds, nil
}
