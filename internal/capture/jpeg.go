package capture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

const (
	// defaultMaxWidth bounds the encoded frame width. The analysis service
	// runs face detection on small images; shipping full camera resolution
	// at 10 fps only burns uplink.
	defaultMaxWidth = 640

	// defaultQuality is the JPEG quality used for outbound frames.
	defaultQuality = 70
)

// Encoder turns raster frames into the base64 JPEG data URLs the analysis
// service expects. The zero value encodes at the default width and quality.
// An Encoder is read-only after construction and safe for concurrent use.
type Encoder struct {
	// MaxWidth is the maximum encoded width in pixels; wider frames are
	// downscaled preserving aspect ratio. Zero means defaultMaxWidth.
	MaxWidth int

	// Quality is the JPEG quality (1–100). Zero means defaultQuality.
	Quality int
}

// EncodeDataURL encodes img as a JPEG and returns it as a
// "data:image/jpeg;base64," URL.
func (e *Encoder) EncodeDataURL(img image.Image) (string, error) {
	maxWidth := e.MaxWidth
	if maxWidth <= 0 {
		maxWidth = defaultMaxWidth
	}
	quality := e.Quality
	if quality <= 0 {
		quality = defaultQuality
	}

	img = downscale(img, maxWidth)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("capture: encode jpeg: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// downscale resizes img to at most maxWidth pixels wide, preserving aspect
// ratio. Images already within bounds are returned unchanged.
func downscale(img image.Image, maxWidth int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxWidth || w == 0 {
		return img
	}

	scaledH := h * maxWidth / w
	if scaledH < 1 {
		scaledH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, scaledH))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}
