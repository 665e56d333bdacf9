// manager_test.go - Tests for storage layer
package storage

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/photo-gallery/backend/internal/models"
)

const indexName = "hash_index.json"

func createTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir(), "/uploads", indexName, indexName+".tmp")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func touch(t *testing.T, store *LocalStore, name string, mtime time.Time) {
	t.Helper()
	path := filepath.Join(store.Dir(), name)
	if err := os.WriteFile(path, []byte(name), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes %s: %v", name, err)
	}
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates upload directory", func(t *testing.T) {
		uploadDir := filepath.Join(t.TempDir(), "uploads")

		store, err := NewLocalStore(uploadDir, "/uploads")
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		if _, err := os.Stat(uploadDir); os.IsNotExist(err) {
			t.Error("Expected upload directory to be created")
		}
		if !filepath.IsAbs(store.Dir()) {
			t.Errorf("Expected absolute dir, got %s", store.Dir())
		}
	})
}

func TestLocalStore_Save(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save(".png", []byte("pixels"))
	if err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}

	if !regexp.MustCompile(`^[0-9a-f]{32}\.png$`).MatchString(info.Filename) {
		t.Errorf("Unexpected stored name %q", info.Filename)
	}
	if info.URL != "/uploads/"+info.Filename {
		t.Errorf("Unexpected URL %q", info.URL)
	}
	if info.Size != 6 {
		t.Errorf("Expected size 6, got %d", info.Size)
	}

	data, err := os.ReadFile(filepath.Join(store.Dir(), info.Filename))
	if err != nil {
		t.Fatalf("Failed to read saved file: %v", err)
	}
	if string(data) != "pixels" {
		t.Errorf("Expected content 'pixels', got %q", data)
	}

	other, err := store.Save(".png", []byte("pixels"))
	if err != nil {
		t.Fatalf("Failed to save second file: %v", err)
	}
	if other.Filename == info.Filename {
		t.Error("Expected unique names for separate saves")
	}
}

func TestLocalStore_List(t *testing.T) {
	store := createTestStore(t)
	base := time.Now().Add(-time.Hour)

	touch(t, store, "old.jpg", base)
	touch(t, store, "new.png", base.Add(2*time.Minute))
	touch(t, store, "mid.gif", base.Add(time.Minute))
	touch(t, store, "notes.txt", base.Add(30*time.Second))
	touch(t, store, indexName, base.Add(time.Hour))
	if err := os.Mkdir(filepath.Join(store.Dir(), "subdir"), 0755); err != nil {
		t.Fatal(err)
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	want := []string{"new.png", "mid.gif", "notes.txt", "old.jpg"}
	if len(list) != len(want) {
		t.Fatalf("Expected %d files, got %d", len(want), len(list))
	}
	for i, name := range want {
		if list[i].Filename != name {
			t.Errorf("position %d: expected %s, got %s", i, name, list[i].Filename)
		}
		if list[i].URL != "/uploads/"+name {
			t.Errorf("position %d: unexpected url %s", i, list[i].URL)
		}
	}
}

func TestLocalStore_ListTiesOrderedByName(t *testing.T) {
	store := createTestStore(t)
	at := time.Now().Add(-time.Minute)
	touch(t, store, "b.png", at)
	touch(t, store, "a.png", at)

	list, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Filename != "a.png" || list[1].Filename != "b.png" {
		t.Errorf("unexpected order: %+v", list)
	}
}

func TestLocalStore_Resolve(t *testing.T) {
	store := createTestStore(t)
	touch(t, store, "photo.jpg", time.Now())
	touch(t, store, indexName, time.Now())

	outside := filepath.Join(filepath.Dir(store.Dir()), "secret.txt")
	if err := os.WriteFile(outside, []byte("secret"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(store.Dir(), "link.jpg")); err != nil {
		t.Fatal(err)
	}

	path, err := store.Resolve("photo.jpg")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if path != filepath.Join(store.Dir(), "photo.jpg") {
		t.Errorf("unexpected path %s", path)
	}

	rejected := []string{
		"",
		".",
		"..",
		"../secret.txt",
		"sub/photo.jpg",
		`..\secret.txt`,
		"/etc/passwd",
		"photo.jpg\x00.png",
		"missing.jpg",
		indexName,
		"link.jpg",
	}
	for _, name := range rejected {
		if _, err := store.Resolve(name); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("Resolve(%q): expected ErrNotFound, got %v", name, err)
		}
	}
}

func TestExt(t *testing.T) {
	tests := map[string]string{
		"a.PNG":       ".png",
		"b.jpeg":      ".jpeg",
		"noext":       ".jpg",
		"trailing.":   ".jpg",
		"spaced.PNG ": ".png",
		"dot. ":       ".jpg",
		"arch.tar.gz": ".gz",
	}
	for in, want := range tests {
		if got := Ext(in, ".jpg"); got != want {
			t.Errorf("Ext(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestJoinWithinRoot(t *testing.T) {
	root := t.TempDir()
	if _, err := JoinWithinRoot(root, "a.png"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, rel := range []string{"..", "../x", "a/../../x", "", "."} {
		if _, err := JoinWithinRoot(root, rel); err == nil {
			t.Errorf("JoinWithinRoot(%q): expected error", rel)
		}
	}
}
