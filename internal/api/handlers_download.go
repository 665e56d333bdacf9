// handlers_download.go - Password-gated download handlers
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/photo-gallery/backend/internal/logging"
	"github.com/photo-gallery/backend/internal/models"
)

// PasswordHeader carries the shared download secret.
const PasswordHeader = "x-password"

// DownloadHandlerImpl implements the DownloadHandler interface
type DownloadHandlerImpl struct {
	store   ImageStore
	bundles BundleBuilder
	gate    SecretChecker
	logger  logging.Logger
}

// NewDownloadHandler creates a new download handler
func NewDownloadHandler(store ImageStore, bundles BundleBuilder, gate SecretChecker, logger logging.Logger) DownloadHandler {
	return &DownloadHandlerImpl{
		store:   store,
		bundles: bundles,
		gate:    gate,
		logger:  logger,
	}
}

// HandleBulkDownload zips the requested images. The body is a JSON array of
// stored filenames; names that do not resolve are skipped.
func (h *DownloadHandlerImpl) HandleBulkDownload(c echo.Context) error {
	var names []string
	if err := json.NewDecoder(c.Request().Body).Decode(&names); err != nil {
		return NewBadRequestError("request body must be a JSON array of filenames", err)
	}

	ctx := c.Request().Context()
	b, err := h.bundles.Build(ctx, names, c.Request().Header.Get(PasswordHeader))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnauthorized):
			h.logger.Warn(ctx, "bulk download rejected", "ip", c.RealIP())
			return NewUnauthorizedError()
		case errors.Is(err, models.ErrNotFound):
			return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "No valid files requested"}
		default:
			return NewInternalError("failed to build bundle", err)
		}
	}
	defer func() {
		if err := b.Remove(); err != nil {
			h.logger.Warn(ctx, "failed to remove bundle", "path", b.Path, "error", err)
		}
	}()

	return c.Attachment(b.Path, b.Name)
}

// HandleFileDownload serves a single stored image as an attachment. The
// secret is taken from the password query parameter or the x-password header.
func (h *DownloadHandlerImpl) HandleFileDownload(c echo.Context) error {
	secret := c.QueryParam("password")
	if secret == "" {
		secret = c.Request().Header.Get(PasswordHeader)
	}
	if err := h.gate.Check(secret); err != nil {
		return NewUnauthorizedError()
	}

	name := c.Param("filename")
	path, err := h.store.Resolve(name)
	if err != nil {
		return NewNotFoundError("image", name)
	}
	return c.Attachment(path, name)
}
