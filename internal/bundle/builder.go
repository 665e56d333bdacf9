// Package bundle builds ZIP archives of stored images for bulk download.
package bundle

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"

	"github.com/photo-gallery/backend/internal/logging"
	"github.com/photo-gallery/backend/internal/models"
)

const (
	// ArchiveName is the filename offered to clients.
	ArchiveName = "photos_bundle.zip"

	tempPattern = "bundle-*.zip"
)

// Resolver maps an untrusted filename onto a stored file path.
type Resolver interface {
	Resolve(name string) (string, error)
}

// Checker validates the download secret.
type Checker interface {
	Check(secret string) error
}

// Bundle is a built archive waiting to be served.
type Bundle struct {
	Path  string
	Name  string
	Files []string
}

// Remove deletes the archive from temporary storage.
func (b *Bundle) Remove() error {
	if err := os.Remove(b.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Builder validates download requests and writes archives.
type Builder struct {
	resolver Resolver
	gate     Checker
	dir      string
	logger   logging.Logger
}

// NewBuilder creates a Builder writing archives into dir.
func NewBuilder(resolver Resolver, gate Checker, dir string, logger logging.Logger) (*Builder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating bundle directory: %w", err)
	}
	return &Builder{
		resolver: resolver,
		gate:     gate,
		dir:      dir,
		logger:   logger,
	}, nil
}

// Dir returns the directory archives are written to.
func (b *Builder) Dir() string {
	return b.dir
}

// Validate returns the absolute paths of requested names that resolve to
// stored files, in request order and without repeats. Other names are dropped.
func (b *Builder) Validate(ctx context.Context, names []string) []string {
	seen := make(map[string]struct{}, len(names))
	var paths []string
	for _, name := range names {
		path, err := b.resolver.Resolve(name)
		if err != nil {
			b.logger.Debug(ctx, "dropping bundle entry", "name", name, "error", err)
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}
	return paths
}

// Build checks secret, validates names and writes a deflate ZIP containing
// each valid file under its base name.
func (b *Builder) Build(ctx context.Context, names []string, secret string) (*Bundle, error) {
	if err := b.gate.Check(secret); err != nil {
		return nil, err
	}

	paths := b.Validate(ctx, names)
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no valid files requested", models.ErrNotFound)
	}

	tmp, err := os.CreateTemp(b.dir, tempPattern)
	if err != nil {
		return nil, fmt.Errorf("creating bundle: %w", err)
	}
	bundle := &Bundle{Path: tmp.Name(), Name: ArchiveName}

	if err := writeArchive(ctx, tmp, paths); err != nil {
		tmp.Close()
		bundle.Remove()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		bundle.Remove()
		return nil, fmt.Errorf("closing bundle: %w", err)
	}

	for _, p := range paths {
		bundle.Files = append(bundle.Files, filepath.Base(p))
	}
	b.logger.Info(ctx, "bundle built", "files", len(bundle.Files), "path", bundle.Path)
	return bundle, nil
}

func writeArchive(ctx context.Context, w io.Writer, paths []string) error {
	zw := zip.NewWriter(w)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addFile(zw, p); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finishing bundle: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", filepath.Base(path), err)
	}
	hdr, err := zip.FileInfoHeader(st)
	if err != nil {
		return fmt.Errorf("zip header %s: %w", filepath.Base(path), err)
	}
	hdr.Name = filepath.Base(path)
	hdr.Method = zip.Deflate

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("adding %s: %w", hdr.Name, err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("compressing %s: %w", hdr.Name, err)
	}
	return nil
}
