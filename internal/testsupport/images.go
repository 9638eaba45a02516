package testsupport

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand/v2"
	"testing"
)

// Quadrant colours used by Quadrants, in top-left, top-right, bottom-left,
// bottom-right order.
var (
	QuadrantTopLeft     = color.NRGBA{R: 220, G: 30, B: 30, A: 255}
	QuadrantTopRight    = color.NRGBA{R: 30, G: 200, B: 30, A: 255}
	QuadrantBottomLeft  = color.NRGBA{R: 30, G: 30, B: 220, A: 255}
	QuadrantBottomRight = color.NRGBA{R: 240, G: 240, B: 240, A: 255}
)

// Quadrants builds a w x h image with four solid quadrants so every flip and
// rotation produces a distinguishable result.
func Quadrants(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, QuadrantAt(x, y, w, h))
		}
	}
	return img
}

// QuadrantAt returns the colour Quadrants paints at (x, y).
func QuadrantAt(x, y, w, h int) color.NRGBA {
	left := x < w/2
	top := y < h/2
	switch {
	case top && left:
		return QuadrantTopLeft
	case top:
		return QuadrantTopRight
	case left:
		return QuadrantBottomLeft
	default:
		return QuadrantBottomRight
	}
}

// Noise builds a w x h image of deterministic random pixels. Noise compresses
// poorly, which makes it useful for exercising size budgets.
func Noise(w, h int, seed uint64) *image.NRGBA {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		v := rng.Uint32()
		img.Pix[i] = uint8(v)
		img.Pix[i+1] = uint8(v >> 8)
		img.Pix[i+2] = uint8(v >> 16)
		img.Pix[i+3] = 255
	}
	return img
}

// EncodeJPEG encodes img as a baseline JPEG at quality.
func EncodeJPEG(t testing.TB, img image.Image, quality int) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// EncodePNG encodes img as PNG.
func EncodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// EXIFSegment builds a JPEG APP1 segment whose IFD0 holds a single
// Orientation entry. bigEndian selects an MM header instead of II.
func EXIFSegment(orientation uint16, bigEndian bool) []byte {
	var order binary.ByteOrder = binary.LittleEndian
	header := []byte("II")
	if bigEndian {
		order = binary.BigEndian
		header = []byte("MM")
	}

	tiff := make([]byte, 26)
	copy(tiff[0:2], header)
	order.PutUint16(tiff[2:4], 42)
	order.PutUint32(tiff[4:8], 8)
	order.PutUint16(tiff[8:10], 1)
	order.PutUint16(tiff[10:12], 0x0112)
	order.PutUint16(tiff[12:14], 3)
	order.PutUint32(tiff[14:18], 1)
	order.PutUint16(tiff[18:20], orientation)
	order.PutUint32(tiff[22:26], 0)

	payload := append([]byte("Exif\x00\x00"), tiff...)
	segment := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(segment[2:4], uint16(len(payload)+2))
	return append(segment, payload...)
}

// WithEXIF inserts segment right after the SOI marker of a JPEG stream.
func WithEXIF(t testing.TB, jpegData, segment []byte) []byte {
	t.Helper()

	if len(jpegData) < 2 || jpegData[0] != 0xFF || jpegData[1] != 0xD8 {
		t.Fatalf("not a jpeg stream")
	}
	out := make([]byte, 0, len(jpegData)+len(segment))
	out = append(out, jpegData[:2]...)
	out = append(out, segment...)
	out = append(out, jpegData[2:]...)
	return out
}

// OrientedJPEG encodes img and tags it with orientation.
func OrientedJPEG(t testing.TB, img image.Image, orientation uint16, bigEndian bool) []byte {
	t.Helper()
	return WithEXIF(t, EncodeJPEG(t, img, 92), EXIFSegment(orientation, bigEndian))
}
