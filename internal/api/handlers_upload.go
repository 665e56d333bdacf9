// handlers_upload.go - Image upload handlers
package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/photo-gallery/backend/internal/logging"
	"github.com/photo-gallery/backend/internal/upload"
)

// Multipart field names accepted for uploaded files.
const (
	filesField = "files"
	fileField  = "file"
)

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	uploader Uploader
	logger   logging.Logger
}

// NewUploadHandler creates a new upload handler instance
func NewUploadHandler(uploader Uploader, logger logging.Logger) UploadHandler {
	return &UploadHandlerImpl{
		uploader: uploader,
		logger:   logger,
	}
}

// HandleUpload accepts one or more images as multipart form data, dedupes
// them by perceptual hash and reports a result per file
func (h *UploadHandlerImpl) HandleUpload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("invalid multipart form", err)
	}
	defer form.RemoveAll()

	var headers []*multipart.FileHeader
	headers = append(headers, form.File[filesField]...)
	headers = append(headers, form.File[fileField]...)
	if len(headers) == 0 {
		return NewValidationError(filesField)
	}

	files := make([]upload.File, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return NewBadRequestError(fmt.Sprintf("failed to read %s", fh.Filename), err)
		}
		files = append(files, upload.File{Name: fh.Filename, Data: data})
	}

	ctx := c.Request().Context()
	results, err := h.uploader.Process(ctx, files)
	if err != nil {
		h.logger.Error(ctx, "upload failed", "files", len(files), "error", err)
		if ctx.Err() != nil {
			return NewServiceUnavailableError("upload canceled")
		}
		return NewInternalError("failed to process upload", err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"uploaded": results,
	})
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
