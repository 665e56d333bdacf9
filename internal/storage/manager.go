package storage

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/photo-gallery/backend/internal/models"
)

// Store defines the interface for image file storage.
type Store interface {
	Save(ext string, data []byte) (*models.StoredImage, error)
	List() ([]*models.StoredImage, error)
	Stat(name string) (*models.StoredImage, error)
	Resolve(name string) (string, error)
	URL(name string) string
	Dir() string
}

// LocalStore implements Store on a single flat directory.
type LocalStore struct {
	uploadDir string
	urlPrefix string
	reserved  map[string]struct{}
}

// NewLocalStore creates a new LocalStore. Files named in reserved (the hash
// index and its temp sibling) live in the same directory but are never
// listed or resolved.
func NewLocalStore(uploadDir, urlPrefix string, reserved ...string) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	abs, err := filepath.Abs(uploadDir)
	if err != nil {
		return nil, fmt.Errorf("resolving upload directory: %w", err)
	}

	s := &LocalStore{
		uploadDir: abs,
		urlPrefix: strings.TrimSuffix(urlPrefix, "/"),
		reserved:  make(map[string]struct{}, len(reserved)),
	}
	for _, name := range reserved {
		s.reserved[name] = struct{}{}
	}
	return s, nil
}

// Dir returns the absolute upload directory.
func (s *LocalStore) Dir() string {
	return s.uploadDir
}

// URL returns the public path a stored file is served under.
func (s *LocalStore) URL(name string) string {
	return s.urlPrefix + "/" + url.PathEscape(name)
}

// NewName generates a stored filename: 32 hex chars of a random UUID plus ext.
func NewName(ext string) string {
	id := uuid.New()
	return hex.EncodeToString(id[:]) + ext
}

// Save writes data under a freshly generated name with the given extension.
func (s *LocalStore) Save(ext string, data []byte) (*models.StoredImage, error) {
	name := NewName(ext)
	path := filepath.Join(s.uploadDir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("closing file: %w", err)
	}

	return s.Stat(name)
}

// Stat returns metadata for a stored file.
func (s *LocalStore) Stat(name string) (*models.StoredImage, error) {
	path, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	return s.describe(name, st), nil
}

// List returns every stored file, most recently modified first.
func (s *LocalStore) List() ([]*models.StoredImage, error) {
	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		return nil, fmt.Errorf("reading upload directory: %w", err)
	}

	list := make([]*models.StoredImage, 0, len(entries))
	for _, e := range entries {
		if _, ok := s.reserved[e.Name()]; ok {
			continue
		}
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		list = append(list, s.describe(e.Name(), info))
	}

	// Sort by ModTime desc
	sort.Slice(list, func(i, j int) bool {
		if list[i].ModTime.Equal(list[j].ModTime) {
			return list[i].Filename < list[j].Filename
		}
		return list[i].ModTime.After(list[j].ModTime)
	})

	return list, nil
}

// Resolve maps an untrusted filename onto the absolute path of an existing
// regular file directly inside the upload directory.
func (s *LocalStore) Resolve(name string) (string, error) {
	if !IsPlainName(name) {
		return "", fmt.Errorf("%w: invalid file name %q", models.ErrNotFound, name)
	}
	if _, ok := s.reserved[name]; ok {
		return "", fmt.Errorf("%w: %s", models.ErrNotFound, name)
	}

	path, err := JoinWithinRoot(s.uploadDir, name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrNotFound, err)
	}

	st, err := os.Lstat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", models.ErrNotFound, name)
	}
	if !st.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", models.ErrNotFound, name)
	}
	return path, nil
}

func (s *LocalStore) describe(name string, info os.FileInfo) *models.StoredImage {
	return &models.StoredImage{
		Filename: name,
		URL:      s.URL(name),
		Size:     info.Size(),
		ModTime:  info.ModTime(),
	}
}
