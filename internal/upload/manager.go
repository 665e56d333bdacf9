package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/photo-gallery/backend/internal/index"
	"github.com/photo-gallery/backend/internal/logging"
	"github.com/photo-gallery/backend/internal/models"
	"github.com/photo-gallery/backend/internal/storage"
)

// File is one uploaded file: the client-supplied name and its raw bytes.
type File struct {
	Name string
	Data []byte
}

// Hasher computes perceptual fingerprints.
type Hasher interface {
	Hash(ctx context.Context, data []byte) (string, error)
}

// Store defines the interface needed from storage layer.
type Store interface {
	Save(ext string, data []byte) (*models.StoredImage, error)
	URL(name string) string
}

// Notifier receives an event for every newly stored image.
type Notifier interface {
	Publish(event models.GalleryEvent)
}

// Options configures a Manager.
type Options struct {
	// AllowedExtensions lists accepted extensions, with or without the dot.
	AllowedExtensions []string
	// DefaultExtension is used for files without an extension.
	DefaultExtension string
	// HashWorkers bounds concurrent hashing within one request.
	HashWorkers int
}

// Manager deduplicates and stores uploaded images.
type Manager struct {
	hasher     Hasher
	index      *index.Index
	store      Store
	notifier   Notifier
	logger     logging.Logger
	allowed    map[string]struct{}
	defaultExt string
	workers    int
}

// NewManager creates a new upload manager. notifier may be nil.
func NewManager(hasher Hasher, idx *index.Index, store Store, notifier Notifier, logger logging.Logger, opts Options) *Manager {
	allowed := make(map[string]struct{}, len(opts.AllowedExtensions))
	for _, ext := range opts.AllowedExtensions {
		allowed[normalizeExt(ext)] = struct{}{}
	}

	defaultExt := normalizeExt(opts.DefaultExtension)
	if defaultExt == "" {
		defaultExt = ".jpg"
	}
	workers := opts.HashWorkers
	if workers < 1 {
		workers = 1
	}

	return &Manager{
		hasher:     hasher,
		index:      idx,
		store:      store,
		notifier:   notifier,
		logger:     logger,
		allowed:    allowed,
		defaultExt: defaultExt,
		workers:    workers,
	}
}

// Allowed reports whether filename may be uploaded. Names without an
// extension are accepted and stored with the default extension.
func (m *Manager) Allowed(filename string) bool {
	ext := storage.Ext(filename, "")
	if ext == "" {
		return true
	}
	_, ok := m.allowed[ext]
	return ok
}

// Process handles one upload request. Every file gets a result in input
// order; a file that fails validation or decoding gets an error entry and
// does not affect the rest of the batch. The returned error is reserved for
// request cancellation and index persistence failures.
func (m *Manager) Process(ctx context.Context, files []File) ([]models.UploadResult, error) {
	results := make([]models.UploadResult, len(files))
	fingerprints := make([]string, len(files))

	// Stage 1: fingerprint accepted files in parallel
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i, f := range files {
		results[i].Original = f.Name
		if !m.Allowed(f.Name) {
			results[i].Error = models.ErrUnsupportedType.Error()
			continue
		}
		i, f := i, f
		g.Go(func() error {
			fp, err := m.hasher.Hash(gctx, f.Data)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				m.logger.Warn(ctx, "rejecting upload", "original", f.Name, "error", err)
				results[i].Error = failureMessage(err)
				return nil
			}
			fingerprints[i] = fp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Stage 2: dedup and store in input order under the index lock
	var added []*models.StoredImage
	err := m.index.Batch(func(tx *index.Tx) error {
		for i, f := range files {
			if results[i].Failed() {
				continue
			}
			fp := fingerprints[i]

			if name, ok := tx.Lookup(fp); ok {
				results[i].Stored = name
				results[i].Duplicate = true
				results[i].URL = m.store.URL(name)
				continue
			}

			img, err := m.store.Save(m.storedExt(f.Name), f.Data)
			if err != nil {
				m.logger.Error(ctx, "failed to store upload", "original", f.Name, "error", err)
				results[i].Error = "failed to store image"
				continue
			}
			tx.Insert(fp, img.Filename)
			results[i].Stored = img.Filename
			results[i].URL = img.URL
			added = append(added, img)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persisting hash index: %w", err)
	}

	m.publish(added)
	m.logSummary(ctx, results)
	return results, nil
}

func (m *Manager) publish(added []*models.StoredImage) {
	if m.notifier == nil {
		return
	}
	for _, img := range added {
		m.notifier.Publish(models.GalleryEvent{
			Type:      models.EventImageAdded,
			Image:     img,
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

func (m *Manager) logSummary(ctx context.Context, results []models.UploadResult) {
	var stored, dupes, failed int
	for _, r := range results {
		switch {
		case r.Failed():
			failed++
		case r.Duplicate:
			dupes++
		default:
			stored++
		}
	}
	m.logger.Info(ctx, "upload processed", "files", len(results), "stored", stored, "duplicates", dupes, "failed", failed)
}

// storedExt is the extension a new file is saved with. It is derived the same
// way Allowed checks it.
func (m *Manager) storedExt(filename string) string {
	return storage.Ext(filename, m.defaultExt)
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidImage):
		return models.ErrInvalidImage.Error()
	case errors.Is(err, models.ErrHashTimeout):
		return models.ErrHashTimeout.Error()
	default:
		return "failed to process image"
	}
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return ""
	}
	return "." + ext
}
