// Package imageinfo reads descriptive metadata from stored images.
package imageinfo

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	// decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/photo-gallery/backend/internal/models"
)

// Read describes the image at path. Files that are not decodable images
// still get name, size and modification time; format is left empty.
func Read(path, url string) (*models.ImageInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat image: %w", err)
	}

	info := &models.ImageInfo{
		Filename:   filepath.Base(path),
		URL:        url,
		Size:       st.Size(),
		ModifiedAt: st.ModTime().UTC(),
	}

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return info, nil
	}
	info.Format = format
	info.Width = cfg.Width
	info.Height = cfg.Height

	if format == "jpeg" {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewinding image: %w", err)
		}
		readExif(f, info)
	}
	return info, nil
}

// readExif fills capture time and camera model. Missing or broken EXIF
// data is not an error.
func readExif(r io.Reader, info *models.ImageInfo) {
	x, err := exif.Decode(r)
	if err != nil {
		return
	}
	if t, err := x.DateTime(); err == nil && !t.IsZero() {
		taken := t.In(time.UTC)
		info.TakenAt = &taken
	}
	if tag, err := x.Get(exif.Model); err == nil {
		if model, err := tag.StringVal(); err == nil {
			info.CameraModel = strings.TrimSpace(strings.TrimRight(model, "\x00"))
		}
	}
}
