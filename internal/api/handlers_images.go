// handlers_images.go - Gallery listing handlers
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/photo-gallery/backend/internal/imageinfo"
	"github.com/photo-gallery/backend/internal/models"
	"github.com/vmihailenco/msgpack/v5"
)

// GalleryHandlerImpl implements the GalleryHandler interface
type GalleryHandlerImpl struct {
	store ImageStore
}

// NewGalleryHandler creates a new gallery handler
func NewGalleryHandler(store ImageStore) GalleryHandler {
	return &GalleryHandlerImpl{store: store}
}

// HandleListImages returns every stored image, newest first
func (h *GalleryHandlerImpl) HandleListImages(c echo.Context) error {
	images, err := h.store.List()
	if err != nil {
		return NewInternalError("failed to list images", err)
	}
	return c.JSON(http.StatusOK, images)
}

// HandleListImagesMsgpack returns the gallery listing encoded as msgpack
func (h *GalleryHandlerImpl) HandleListImagesMsgpack(c echo.Context) error {
	images, err := h.store.List()
	if err != nil {
		return NewInternalError("failed to list images", err)
	}

	data, err := msgpack.Marshal(images)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleImageInfo returns dimensions, format and EXIF details of one image
func (h *GalleryHandlerImpl) HandleImageInfo(c echo.Context) error {
	name := c.Param("filename")

	img, err := h.store.Stat(name)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return NewNotFoundError("image", name)
		}
		return NewInternalError("failed to read image", err)
	}
	path, err := h.store.Resolve(name)
	if err != nil {
		return NewNotFoundError("image", name)
	}

	info, err := imageinfo.Read(path, img.URL)
	if err != nil {
		return NewInternalError("failed to read image info", err)
	}
	return c.JSON(http.StatusOK, info)
}
