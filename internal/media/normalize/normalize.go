// Package normalize turns arbitrary uploaded image bytes into an upright,
// bounded JPEG.
//
// Normalization runs in a fixed order: decode, measure the display size,
// enforce the resolution floor, apply the orientation, clamp to the resolution
// ceiling and encode. The floor is checked against display dimensions so a
// portrait phone photo stored sideways is judged the way users see it. The
// output never carries EXIF, so decoding it again never rotates twice.
package normalize

import (
	"bytes"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // registers the WebP decoder

	"photoline/internal/faults"
	"photoline/internal/media/orientation"
	"photoline/internal/media/raster"
)

const (
	stage = "normalizing"

	// DefaultMaxPixels caps the decoded size of an upload at 100 megapixels.
	DefaultMaxPixels = 100_000_000
)

// Policy bounds the normalized output.
type Policy struct {
	MinWidth  int
	MinHeight int
	MaxWidth  int
	MaxHeight int
	Quality   int
	// MaxPixels bounds width*height of the source before it is decoded.
	// Zero selects DefaultMaxPixels.
	MaxPixels int64
}

// DefaultPolicy admits 1080p and above and downsamples past 4K.
func DefaultPolicy() Policy {
	return Policy{
		MinWidth:  1920,
		MinHeight: 1080,
		MaxWidth:  3840,
		MaxHeight: 2160,
		Quality:   95,
		MaxPixels: DefaultMaxPixels,
	}
}

// Normalizer applies a Policy.
type Normalizer struct {
	policy Policy
}

// New validates policy and returns a Normalizer.
func New(policy Policy) (*Normalizer, error) {
	if policy.MinWidth <= 0 || policy.MinHeight <= 0 {
		return nil, fmt.Errorf("normalize: minimum dimensions must be positive")
	}
	if policy.MaxWidth < policy.MinWidth || policy.MaxHeight < policy.MinHeight {
		return nil, fmt.Errorf("normalize: maximum dimensions must be at least the minimum")
	}
	if policy.Quality < 1 || policy.Quality > 100 {
		return nil, fmt.Errorf("normalize: quality must be between 1 and 100")
	}
	if policy.MaxPixels == 0 {
		policy.MaxPixels = DefaultMaxPixels
	}
	if policy.MaxPixels < 0 {
		return nil, fmt.Errorf("normalize: max pixels must be positive")
	}
	return &Normalizer{policy: policy}, nil
}

// Policy returns the active policy.
func (n *Normalizer) Policy() Policy {
	return n.policy
}

// Admits reports whether display dimensions pass the resolution floor. Only
// images short on both axes are rejected.
func (p Policy) Admits(width, height int) bool {
	return width >= p.MinWidth || height >= p.MinHeight
}

// Normalize decodes raw, orients it using tag and bounds it by the policy.
// Unknown means the caller has no external tag and the embedded EXIF value is
// used.
func (n *Normalizer) Normalize(raw []byte, tag orientation.Tag) (*raster.Image, error) {
	if len(raw) == 0 {
		return nil, faults.Wrap(faults.ImageLoadFailed, stage, "decode", "empty input", nil)
	}

	header, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, faults.Wrap(faults.ImageLoadFailed, stage, "decode", "", err)
	}
	if pixels := int64(header.Width) * int64(header.Height); pixels > n.policy.MaxPixels {
		return nil, faults.Wrap(faults.ImageLoadFailed, stage, "decode",
			fmt.Sprintf("%dx%d exceeds %d pixels", header.Width, header.Height, n.policy.MaxPixels), nil)
	}

	src, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, faults.Wrap(faults.ImageLoadFailed, stage, "decode", "", err)
	}

	embedded, hasEmbedded := orientation.Lookup(raw)
	if tag == orientation.Unknown {
		tag = orientation.Normal
		if hasEmbedded {
			tag = embedded
		}
	}

	bounds := src.Bounds()
	width, height := tag.DisplaySize(bounds.Dx(), bounds.Dy())
	if !n.policy.Admits(width, height) {
		return nil, faults.Newf(faults.ResolutionTooLow,
			"%dx%d is below %dx%d", width, height, n.policy.MinWidth, n.policy.MinHeight)
	}

	withinCeiling := width <= n.policy.MaxWidth && height <= n.policy.MaxHeight
	if isJPEG(raw) && tag == orientation.Normal && withinCeiling &&
		(!hasEmbedded || embedded == orientation.Normal) {
		return &raster.Image{
			Pixels:  src,
			Width:   width,
			Height:  height,
			Data:    raw,
			Quality: n.policy.Quality,
		}, nil
	}

	upright := tag.Apply(src)
	if !withinCeiling {
		targetW, targetH := FitWithin(width, height, n.policy.MaxWidth, n.policy.MaxHeight)
		upright = imaging.Resize(upright, targetW, targetH, imaging.Lanczos)
	}

	out, err := raster.Encode(upright, n.policy.Quality)
	if err != nil {
		return nil, faults.Wrap(faults.ConversionFailed, stage, "encode", "", err)
	}
	return out, nil
}

// FitWithin scales width x height down uniformly so it fits maxW x maxH,
// rounding to the nearest pixel and never exceeding the bounds.
func FitWithin(width, height, maxW, maxH int) (int, int) {
	if width <= maxW && height <= maxH {
		return width, height
	}
	scale := math.Min(float64(maxW)/float64(width), float64(maxH)/float64(height))
	w := clamp(int(math.Round(float64(width)*scale)), 1, maxW)
	h := clamp(int(math.Round(float64(height)*scale)), 1, maxH)
	return w, h
}

func isJPEG(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
