// Package raster holds the canonical normalized image passed between the
// normalize, compress and upload stages.
package raster

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const (
	// ContentType is the MIME type of every normalized image.
	ContentType = "image/jpeg"
	// Extension is the file extension used for stored objects.
	Extension = "jpg"
)

// Image is an upright image and its encoded JPEG bytes. Pixels holds the
// oriented source the encoding was produced from so later stages can
// re-encode without decoding or re-orienting again.
type Image struct {
	Pixels  image.Image
	Width   int
	Height  int
	Data    []byte
	Quality int
}

// Size returns the encoded length in bytes.
func (img *Image) Size() int64 {
	if img == nil {
		return 0
	}
	return int64(len(img.Data))
}

// ContentType returns the MIME type of Data.
func (img *Image) ContentType() string {
	return ContentType
}

// Encode renders pixels as JPEG at quality and wraps the result.
func Encode(pixels image.Image, quality int) (*Image, error) {
	if pixels == nil {
		return nil, fmt.Errorf("encode jpeg: nil image")
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, pixels, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	bounds := pixels.Bounds()
	return &Image{
		Pixels:  pixels,
		Width:   bounds.Dx(),
		Height:  bounds.Dy(),
		Data:    buf.Bytes(),
		Quality: quality,
	}, nil
}
