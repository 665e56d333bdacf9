package upload

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/photo-gallery/backend/internal/imagehash"
	"github.com/photo-gallery/backend/internal/index"
	"github.com/photo-gallery/backend/internal/logging"
	"github.com/photo-gallery/backend/internal/models"
	"github.com/photo-gallery/backend/internal/storage"
	"github.com/photo-gallery/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const indexName = "hash_index.json"

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.GalleryEvent
}

func (n *recordingNotifier) Publish(e models.GalleryEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

type fixture struct {
	dir      string
	store    *storage.LocalStore
	index    *index.Index
	notifier *recordingNotifier
	manager  *Manager
}

func newFixture(t *testing.T, dir string) *fixture {
	t.Helper()
	store, err := storage.NewLocalStore(dir, "/uploads", indexName, indexName+".tmp")
	require.NoError(t, err)
	idx := index.Load(context.Background(), filepath.Join(dir, indexName), logging.Discard())
	n := &recordingNotifier{}
	m := NewManager(imagehash.New(0, 5*time.Second), idx, store, n, logging.Discard(), Options{
		AllowedExtensions: []string{"png", "jpg", ".jpeg", "GIF"},
		DefaultExtension:  "jpg",
		HashWorkers:       2,
	})
	return &fixture{dir: dir, store: store, index: idx, notifier: n, manager: m}
}

func (f *fixture) storedFiles(t *testing.T) []*models.StoredImage {
	t.Helper()
	list, err := f.store.List()
	require.NoError(t, err)
	return list
}

func TestManager_Allowed(t *testing.T) {
	f := newFixture(t, t.TempDir())

	for name, want := range map[string]bool{
		"a.png":    true,
		"a.PNG":    true,
		"a.jpeg":   true,
		"a.gif":    true,
		"a.webp":   false,
		"a.png.sh": false,
		"a.PNG ":   true,
		"a.sh ":    false,
		"b. ":      true,
		"noext":    true,
	} {
		assert.Equal(t, want, f.manager.Allowed(name), name)
	}
}

func TestManager_Process_DuplicateAcrossRequests(t *testing.T) {
	f := newFixture(t, t.TempDir())
	ctx := context.Background()
	board := testutil.Checkerboard(128, 32, false)

	first, err := f.manager.Process(ctx, []File{{Name: "board.png", Data: testutil.PNG(t, board)}})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.False(t, first[0].Duplicate)
	assert.Empty(t, first[0].Error)
	assert.True(t, strings.HasSuffix(first[0].Stored, ".png"))
	assert.Equal(t, "/uploads/"+first[0].Stored, first[0].URL)

	// byte-identical and re-encoded copies are both duplicates
	second, err := f.manager.Process(ctx, []File{
		{Name: "again.png", Data: testutil.PNG(t, board)},
		{Name: "copy.jpg", Data: testutil.JPEG(t, board, 90)},
	})
	require.NoError(t, err)
	require.Len(t, second, 2)
	for _, r := range second {
		assert.True(t, r.Duplicate, r.Original)
		assert.Equal(t, first[0].Stored, r.Stored)
		assert.Equal(t, first[0].URL, r.URL)
	}

	assert.Len(t, f.storedFiles(t), 1)
	assert.Len(t, f.notifier.events, 1)
}

func TestManager_Process_DistinctImages(t *testing.T) {
	f := newFixture(t, t.TempDir())

	results, err := f.manager.Process(context.Background(), []File{
		{Name: "board.png", Data: testutil.PNG(t, testutil.Checkerboard(128, 32, false))},
		{Name: "stripes.gif", Data: testutil.GIF(t, testutil.Stripes(128, 32))},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.False(t, results[0].Duplicate)
	assert.False(t, results[1].Duplicate)
	assert.NotEqual(t, results[0].Stored, results[1].Stored)
	assert.True(t, strings.HasSuffix(results[1].Stored, ".gif"))
	assert.Len(t, f.storedFiles(t), 2)
	assert.Equal(t, 2, f.index.Len())

	require.Len(t, f.notifier.events, 2)
	assert.Equal(t, models.EventImageAdded, f.notifier.events[0].Type)
	assert.Equal(t, results[0].Stored, f.notifier.events[0].Image.Filename)
}

func TestManager_Process_DuplicateWithinBatch(t *testing.T) {
	f := newFixture(t, t.TempDir())
	data := testutil.PNG(t, testutil.Stripes(128, 32))

	results, err := f.manager.Process(context.Background(), []File{
		{Name: "one.png", Data: data},
		{Name: "two.png", Data: data},
	})
	require.NoError(t, err)

	assert.False(t, results[0].Duplicate)
	assert.True(t, results[1].Duplicate)
	assert.Equal(t, results[0].Stored, results[1].Stored)
	assert.Len(t, f.storedFiles(t), 1)
}

func TestManager_Process_PerFileErrors(t *testing.T) {
	f := newFixture(t, t.TempDir())
	good := testutil.PNG(t, testutil.Stripes(128, 32))

	results, err := f.manager.Process(context.Background(), []File{
		{Name: "script.sh", Data: []byte("#!/bin/sh")},
		{Name: "broken.jpg", Data: []byte("not really a jpeg")},
		{Name: "good.png", Data: good},
		{Name: "sneaky.webp", Data: good},
	})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "script.sh", results[0].Original)
	assert.Equal(t, models.ErrUnsupportedType.Error(), results[0].Error)
	assert.Empty(t, results[0].Stored)

	assert.Equal(t, models.ErrInvalidImage.Error(), results[1].Error)
	assert.Empty(t, results[1].Stored)

	assert.Empty(t, results[2].Error)
	assert.NotEmpty(t, results[2].Stored)

	assert.Equal(t, models.ErrUnsupportedType.Error(), results[3].Error)

	stored := f.storedFiles(t)
	require.Len(t, stored, 1)
	assert.Equal(t, results[2].Stored, stored[0].Filename)
}

func TestManager_Process_StoredExtension(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		data    func(t *testing.T) []byte
		wantExt string
	}{
		{"no extension", "camera-upload", func(t *testing.T) []byte { return testutil.PNG(t, testutil.Stripes(128, 32)) }, ".jpg"},
		{"uppercase with trailing space", "a.PNG ", func(t *testing.T) []byte { return testutil.PNG(t, testutil.Stripes(128, 32)) }, ".png"},
		{"bare dot with trailing space", "b. ", func(t *testing.T) []byte { return testutil.GIF(t, testutil.Checkerboard(128, 32, false)) }, ".jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, t.TempDir())

			results, err := f.manager.Process(context.Background(), []File{{Name: tt.file, Data: tt.data(t)}})
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Empty(t, results[0].Error)

			stored := results[0].Stored
			assert.Regexp(t, `^[0-9a-f]{32}`+regexp.QuoteMeta(tt.wantExt)+`$`, stored)
			assert.Equal(t, "/uploads/"+stored, results[0].URL)

			_, err = os.Stat(filepath.Join(f.dir, stored))
			assert.NoError(t, err)
		})
	}
}

func TestManager_Process_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	data := testutil.PNG(t, testutil.Checkerboard(128, 32, true))

	first, err := newFixture(t, dir).manager.Process(context.Background(), []File{{Name: "a.png", Data: data}})
	require.NoError(t, err)
	require.False(t, first[0].Duplicate)

	restarted := newFixture(t, dir)
	again, err := restarted.manager.Process(context.Background(), []File{{Name: "b.png", Data: data}})
	require.NoError(t, err)
	assert.True(t, again[0].Duplicate)
	assert.Equal(t, first[0].Stored, again[0].Stored)
	assert.Len(t, restarted.storedFiles(t), 1)
}

func TestManager_Process_PersistsIndexOncePerRequest(t *testing.T) {
	f := newFixture(t, t.TempDir())

	_, err := f.manager.Process(context.Background(), []File{{Name: "x.exe", Data: []byte("MZ")}})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(f.dir, indexName))
	assert.NoError(t, err, "index file is written even when nothing was stored")
	assert.Empty(t, f.storedFiles(t), "index file is not listed as an image")
}

func TestManager_Process_ConcurrentRequests(t *testing.T) {
	f := newFixture(t, t.TempDir())
	data := testutil.PNG(t, testutil.Checkerboard(128, 32, false))

	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := f.manager.Process(context.Background(), []File{{Name: "same.png", Data: data}})
			if !assert.NoError(t, err) {
				return
			}
			if !results[0].Duplicate {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh)
	assert.Len(t, f.storedFiles(t), 1)
}

func TestManager_Process_CanceledContext(t *testing.T) {
	f := newFixture(t, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.manager.Process(ctx, []File{{Name: "a.png", Data: testutil.PNG(t, testutil.Stripes(64, 16))}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.storedFiles(t))
}

type stubHasher struct {
	err error
}

func (s stubHasher) Hash(ctx context.Context, data []byte) (string, error) {
	return "", s.err
}

func TestManager_Process_HashTimeoutIsPerFile(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir, "/uploads", indexName)
	require.NoError(t, err)
	idx := index.Load(context.Background(), filepath.Join(dir, indexName), logging.Discard())
	m := NewManager(stubHasher{err: models.ErrHashTimeout}, idx, store, nil, logging.Discard(), Options{
		AllowedExtensions: []string{"png"},
	})

	results, err := m.Process(context.Background(), []File{{Name: "huge.png", Data: []byte("x")}})
	require.NoError(t, err)
	assert.Equal(t, models.ErrHashTimeout.Error(), results[0].Error)
}
