package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/photo-gallery/backend/internal/auth"
	"github.com/photo-gallery/backend/internal/bundle"
	"github.com/photo-gallery/backend/internal/imagehash"
	"github.com/photo-gallery/backend/internal/index"
	"github.com/photo-gallery/backend/internal/logging"
	"github.com/photo-gallery/backend/internal/storage"
	"github.com/photo-gallery/backend/internal/testutil"
	"github.com/photo-gallery/backend/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "open-sesame"

type testEnv struct {
	e         *echo.Echo
	store     *storage.LocalStore
	index     *index.Index
	bundleDir string
	feed      *GalleryFeed
	handlers  *Handlers
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	uploadDir := filepath.Join(root, "uploads")
	bundleDir := filepath.Join(root, "bundles")
	logger := logging.Discard()

	indexPath := filepath.Join(uploadDir, "hash_index.json")
	store, err := storage.NewLocalStore(uploadDir, "/uploads", filepath.Base(indexPath), filepath.Base(index.TempName(indexPath)))
	require.NoError(t, err)
	idx := index.Load(context.Background(), indexPath, logger)

	gate, err := auth.NewGate(testPassword, "")
	require.NoError(t, err)
	builder, err := bundle.NewBuilder(store, gate, bundleDir, logger)
	require.NoError(t, err)

	feed := NewGalleryFeed(logger)
	mgr := upload.NewManager(imagehash.New(0, 5*time.Second), idx, store, feed, logger, upload.Options{
		AllowedExtensions: []string{"png", "jpg", "jpeg", "gif"},
		HashWorkers:       2,
	})

	handlers := NewHandlers(&Dependencies{
		Store:    store,
		Uploader: mgr,
		Bundles:  builder,
		Gate:     gate,
		Index:    idx,
		Feed:     feed,
		Logger:   logger,
		Version:  "test",
	})

	e := echo.New()
	SetupMiddleware(e, MiddlewareConfig{BodyLimit: "2M", EnableGzip: true, GzipLevel: 5, EnableCORS: true}, logger)
	RegisterRoutes(e, handlers)
	t.Cleanup(feed.Close)

	return &testEnv{e: e, store: store, index: idx, bundleDir: bundleDir, feed: feed, handlers: handlers}
}

// serve runs req through the full router and middleware chain
func (env *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

// upload posts the given parts and returns the decoded results
func (env *testEnv) upload(t *testing.T, parts ...testutil.Part) []map[string]interface{} {
	t.Helper()
	body, contentType := testutil.MultipartBody(t, parts...)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := env.serve(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Uploaded []map[string]interface{} `json:"uploaded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Uploaded
}

func decodeAPIError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr), rec.Body.String())
	return apiErr
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, testutil.Part{Filename: "a.png", Data: testutil.PNG(t, testutil.Stripes(128, 32))})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)

	if assert.NoError(t, env.handlers.Health.HandleHealth(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok","version":"test","indexed":1}`, rec.Body.String())
	}
}

func TestErrorHandler(t *testing.T) {
	e := echo.New()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"api error", NewValidationError("files"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"echo error", echo.NewHTTPError(http.StatusRequestEntityTooLarge, "too big"), http.StatusRequestEntityTooLarge, "HTTP_ERROR"},
		{"unauthorized sentinel", bundleErr(t, "wrong"), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"unknown", os.ErrClosed, http.StatusInternalServerError, "UNKNOWN_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			ErrorHandler(tt.err, c)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeAPIError(t, rec).Code)
		})
	}
}

// bundleErr returns the error a Gate produces for a wrong secret
func bundleErr(t *testing.T, secret string) error {
	gate, err := auth.NewGate(testPassword, "")
	require.NoError(t, err)
	return gate.Check(secret)
}

func TestRoutes_BodyLimit(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := testutil.MultipartBody(t, testutil.Part{Filename: "big.png", Data: make([]byte, 3<<20)})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := env.serve(req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestParseOrigins(t *testing.T) {
	assert.Equal(t, []string{"http://a", "http://b"}, ParseOrigins(" http://a, ,http://b "))
	assert.Nil(t, ParseOrigins(""))
}
