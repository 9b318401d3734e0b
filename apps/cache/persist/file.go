// Copyright (c) Openident.
// Licensed under the MIT license.

// Package persist provides ready-made cache.ExportReplace implementations
// that persist the credential cache outside the process, in a file or in
// Redis. Access and refresh tokens are written as the accessor receives
// them; encrypt the destination if the host cannot be trusted.
package persist

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/openident/authentication-library-for-go/apps/cache"
)

// FileAccessor persists the cache as a JSON file. Writes are atomic: the
// contents go to a temp file in the same directory which is then renamed
// over the target.
type FileAccessor struct {
	mu   sync.Mutex
	path string
}

// NewFileAccessor returns an accessor storing the cache at path. The file is
// created on first export.
func NewFileAccessor(path string) *FileAccessor {
	return &FileAccessor{path: path}
}

// Replace loads the persisted cache into u. A missing file is not an error,
// it simply means nothing has been exported yet.
func (f *FileAccessor) Replace(ctx context.Context, u cache.Unmarshaler, hints cache.ReplaceHints) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return u.Unmarshal(data)
}

// Export writes the cache contents to the file.
func (f *FileAccessor) Export(ctx context.Context, m cache.Marshaler, hints cache.ExportHints) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := m.Marshal()
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, f.path)
}
