// Package imagehash computes perceptual fingerprints of image content.
//
// The fingerprint is an average hash: the image is reduced to 8x8 luma
// pixels and every pixel brighter than the mean sets one bit. Re-encoding or
// stripping metadata leaves the fingerprint unchanged in practice, while a
// single changed byte would change a cryptographic digest completely.
package imagehash

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"math/bits"
	"strconv"
	"time"

	// decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/photo-gallery/backend/internal/models"
)

const (
	hashSide = 8
	// HexLen is the length of a fingerprint string.
	HexLen = hashSide * hashSide / 4
)

// Hasher computes average-hash fingerprints.
type Hasher struct {
	// MaxPixels rejects images whose width*height exceeds it. Zero disables the check.
	MaxPixels int64
	// Timeout bounds a single Hash call. Zero means no limit beyond ctx.
	Timeout time.Duration
}

// New creates a Hasher.
func New(maxPixels int64, timeout time.Duration) *Hasher {
	return &Hasher{MaxPixels: maxPixels, Timeout: timeout}
}

// Hash decodes data and returns its fingerprint as 16 lowercase hex digits.
func (h *Hasher) Hash(ctx context.Context, data []byte) (string, error) {
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return "", contextError(err)
	}

	type result struct {
		fp  string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		fp, err := h.compute(ctx, data)
		ch <- result{fp: fp, err: err}
	}()

	// compute stops at its next checkpoint once ctx is done
	select {
	case r := <-ch:
		return r.fp, r.err
	case <-ctx.Done():
		return "", contextError(ctx.Err())
	}
}

func (h *Hasher) compute(ctx context.Context, data []byte) (string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", fmt.Errorf("%w: empty image", models.ErrInvalidImage)
	}
	if h.MaxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > h.MaxPixels {
		return "", fmt.Errorf("%w: %dx%d exceeds %d pixels", models.ErrInvalidImage, cfg.Width, cfg.Height, h.MaxPixels)
	}
	if err := ctx.Err(); err != nil {
		return "", contextError(err)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrInvalidImage, err)
	}
	return Average(img), nil
}

// Average returns the average hash of an already decoded image.
func Average(img image.Image) string {
	small := imaging.Resize(imaging.Grayscale(img), hashSide, hashSide, imaging.Lanczos)

	var luma [hashSide * hashSide]uint8
	var sum int
	for y := 0; y < hashSide; y++ {
		for x := 0; x < hashSide; x++ {
			v := small.Pix[y*small.Stride+x*4]
			luma[y*hashSide+x] = v
			sum += int(v)
		}
	}
	mean := float64(sum) / float64(len(luma))

	// first pixel is the most significant bit
	var fp uint64
	for _, v := range luma {
		fp <<= 1
		if float64(v) > mean {
			fp |= 1
		}
	}
	return fmt.Sprintf("%0*x", HexLen, fp)
}

// Distance returns the number of differing bits between two fingerprints.
func Distance(a, b string) (int, error) {
	x, err := strconv.ParseUint(a, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse fingerprint %q: %w", a, err)
	}
	y, err := strconv.ParseUint(b, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse fingerprint %q: %w", b, err)
	}
	return bits.OnesCount64(x ^ y), nil
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrHashTimeout, err)
	}
	return err
}
