// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/photo-gallery/backend/internal/bundle"
	"github.com/photo-gallery/backend/internal/models"
	"github.com/photo-gallery/backend/internal/upload"
)

// GalleryHandler handles gallery listing operations
type GalleryHandler interface {
	HandleListImages(c echo.Context) error
	HandleListImagesMsgpack(c echo.Context) error
	HandleImageInfo(c echo.Context) error
}

// UploadHandler handles image upload operations
type UploadHandler interface {
	HandleUpload(c echo.Context) error
}

// DownloadHandler handles password-gated downloads
type DownloadHandler interface {
	HandleBulkDownload(c echo.Context) error
	HandleFileDownload(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// FeedHandler handles gallery feed websocket connections
type FeedHandler interface {
	HandleWebSocket(c echo.Context) error
}

// ImageStore defines the storage operations the handlers need.
// This allows mocking in tests
type ImageStore interface {
	List() ([]*models.StoredImage, error)
	Stat(name string) (*models.StoredImage, error)
	Resolve(name string) (string, error)
}

// Uploader processes a batch of uploaded files
type Uploader interface {
	Process(ctx context.Context, files []upload.File) ([]models.UploadResult, error)
}

// BundleBuilder builds download archives
type BundleBuilder interface {
	Build(ctx context.Context, names []string, secret string) (*bundle.Bundle, error)
}

// SecretChecker validates the shared download secret
type SecretChecker interface {
	Check(secret string) error
}

// IndexStats reports the number of indexed fingerprints
type IndexStats interface {
	Len() int
}
