package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mmynk/splitledger/internal/models"
)

// LocalStore keeps images on the local disk. It backs development setups
// and tests; the HTTP layer serves the directory under its base URL.
type LocalStore struct {
	dir     string
	baseURL string
}

// Ensure LocalStore implements Store
var _ Store = (*LocalStore)(nil)

// NewLocalStore creates the directory if needed.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Dir returns the root directory of the store.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Put writes the file under dir/folder.
func (s *LocalStore) Put(_ context.Context, folder string, f File) (models.Image, error) {
	key := newKey(folder, f.Filename)
	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return models.Image{}, fmt.Errorf("failed to create folder: %w", err)
	}

	out, err := os.Create(path)
	if err != nil {
		return models.Image{}, fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(out, f.Body); err != nil {
		out.Close()
		os.Remove(path)
		return models.Image{}, fmt.Errorf("failed to write file: %w", err)
	}
	if err := out.Close(); err != nil {
		return models.Image{}, fmt.Errorf("failed to close file: %w", err)
	}
	return models.Image{PublicID: key, URL: s.baseURL + "/" + key}, nil
}

// Delete removes the file. Missing files are ignored.
func (s *LocalStore) Delete(_ context.Context, publicID string) error {
	clean := filepath.Clean("/" + filepath.FromSlash(publicID))
	err := os.Remove(filepath.Join(s.dir, clean))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
