// Package index keeps the durable fingerprint -> stored filename mapping used
// to deduplicate uploads.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/photo-gallery/backend/internal/logging"
)

// Index maps perceptual fingerprints to stored filenames and mirrors the
// mapping to a JSON file.
type Index struct {
	mu      sync.RWMutex
	path    string
	entries map[string]string
}

// Load reads the index at path. A missing or malformed file yields an empty
// index; only the malformed case is logged.
func Load(ctx context.Context, path string, logger logging.Logger) *Index {
	x := &Index{path: path, entries: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn(ctx, "hash index unreadable, starting empty", "path", path, "error", err)
		}
		return x
	}

	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		logger.Warn(ctx, "hash index malformed, starting empty", "path", path, "error", err)
		return x
	}
	if entries != nil {
		x.entries = entries
	}
	logger.Info(ctx, "hash index loaded", "path", path, "entries", len(x.entries))
	return x
}

// Path returns the file the index persists to.
func (x *Index) Path() string {
	return x.path
}

// Lookup returns the stored filename for a fingerprint.
func (x *Index) Lookup(fp string) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	name, ok := x.entries[fp]
	return name, ok
}

// Insert adds or overwrites an entry in memory.
func (x *Index) Insert(fp, name string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries[fp] = name
}

// Len returns the number of entries.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Persist writes the whole mapping to disk, replacing the previous file.
func (x *Index) Persist() error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.persistLocked()
}

// Tx is the view of the index handed to a Batch callback. It must not be
// used after the callback returns.
type Tx struct {
	x *Index
}

// Lookup returns the stored name for fp, including entries inserted earlier
// in the same batch.
func (tx *Tx) Lookup(fp string) (string, bool) {
	name, ok := tx.x.entries[fp]
	return name, ok
}

// Insert maps fp to name. It is persisted when the batch ends.
func (tx *Tx) Insert(fp, name string) {
	tx.x.entries[fp] = name
}

// Batch runs fn while holding the writer lock and persists the index once
// afterwards. The index is persisted even when fn fails so that entries for
// files already written are not lost.
func (x *Index) Batch(fn func(tx *Tx) error) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	fnErr := fn(&Tx{x: x})
	if err := x.persistLocked(); err != nil {
		return errors.Join(fnErr, err)
	}
	return fnErr
}

func (x *Index) persistLocked() error {
	b, err := json.Marshal(x.entries)
	if err != nil {
		return fmt.Errorf("encoding hash index: %w", err)
	}

	tmp := x.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating hash index: %w", err)
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing hash index: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing hash index: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing hash index: %w", err)
	}

	// move into place (atomic within filesystem)
	if err := os.Rename(tmp, x.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing hash index: %w", err)
	}
	return nil
}

// TempName returns the basename of the transient file used while persisting.
func TempName(indexPath string) string {
	return filepath.Base(indexPath) + ".tmp"
}
