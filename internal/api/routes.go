// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/photo-gallery/backend/internal/logging"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store    ImageStore
	Uploader Uploader
	Bundles  BundleBuilder
	Gate     SecretChecker
	Index    IndexStats
	Feed     *GalleryFeed
	Logger   logging.Logger
	Version  string
}

// Handlers holds all handler instances
type Handlers struct {
	Health   HealthHandler
	Gallery  GalleryHandler
	Upload   UploadHandler
	Download DownloadHandler
	Feed     FeedHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	h := &Handlers{
		Health:   NewHealthHandler(deps.Version, deps.Index),
		Gallery:  NewGalleryHandler(deps.Store),
		Upload:   NewUploadHandler(deps.Uploader, deps.Logger),
		Download: NewDownloadHandler(deps.Store, deps.Bundles, deps.Gate, deps.Logger),
	}
	if deps.Feed != nil {
		h.Feed = deps.Feed
	}
	return h
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/health", handlers.Health.HandleHealth)

	// Gallery
	e.GET("/images", handlers.Gallery.HandleListImages)
	e.GET("/images/msgpack", handlers.Gallery.HandleListImagesMsgpack)
	e.GET("/images/:filename/info", handlers.Gallery.HandleImageInfo)

	// Upload
	e.POST("/upload", handlers.Upload.HandleUpload)

	// Download
	e.POST("/download", handlers.Download.HandleBulkDownload)
	e.GET("/download/:filename", handlers.Download.HandleFileDownload)

	// WebSocket gallery feed
	if handlers.Feed != nil {
		e.GET("/ws/gallery", handlers.Feed.HandleWebSocket)
	}
}

// MiddlewareConfig selects and tunes the common middleware
type MiddlewareConfig struct {
	BodyLimit        string
	RequestTimeout   time.Duration
	EnableCORS       bool
	AllowOrigins     []string
	EnableGzip       bool
	GzipLevel        int
	EnableRequestLog bool
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg MiddlewareConfig, logger logging.Logger) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler

	// Request logging through the application logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return !cfg.EnableRequestLog || c.Request().URL.Path == "/health"
		},
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			args := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
			}
			ctx := c.Request().Context()
			if v.Error != nil {
				logger.Warn(ctx, "request failed", append(args, "error", v.Error)...)
				return nil
			}
			logger.Info(ctx, "request", args...)
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error(c.Request().Context(), "panic recovered", "error", err, "stack", string(stack))
			return err
		},
	}))

	if cfg.RequestTimeout > 0 {
		e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
			Timeout: cfg.RequestTimeout,
			Skipper: func(c echo.Context) bool {
				return isStreamingPath(c.Request().URL.Path)
			},
			ErrorMessage: "Request timeout",
		}))
	}

	// Compression middleware
	if cfg.EnableGzip {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.GzipLevel,
			Skipper: func(c echo.Context) bool {
				return isStreamingPath(c.Request().URL.Path)
			},
		}))
	}

	// Body limit middleware
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	// CORS configuration
	if cfg.EnableCORS {
		origins := cfg.AllowOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, PasswordHeader},
		}))
	}
}

// ParseOrigins splits a comma separated origin list
func ParseOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// isStreamingPath reports paths that carry large bodies, already compressed
// payloads or long-lived connections.
func isStreamingPath(path string) bool {
	return path == "/upload" ||
		strings.HasPrefix(path, "/download") ||
		strings.HasPrefix(path, "/uploads/") ||
		strings.HasPrefix(path, "/ws/")
}

// Shutdown stops the server and disconnects feed clients
func Shutdown(ctx context.Context, e *echo.Echo, feed *GalleryFeed) error {
	if feed != nil {
		feed.Close()
	}
	return e.Shutdown(ctx)
}
