// Package compress fits a normalized image under a byte budget by lowering
// JPEG quality first and shrinking dimensions second.
package compress

import (
	"fmt"
	"math"

	"github.com/disintegration/imaging"

	"photoline/internal/faults"
	"photoline/internal/media/raster"
)

const (
	stage = "compressing"

	// maxShrink is the largest per-step scale factor in the resize phase.
	maxShrink = 0.9
)

// Policy controls the search.
type Policy struct {
	QualityStep  int
	QualityFloor int
	// MinWidth and MinHeight bound shrinking: neither axis of a landscape
	// result drops below them. Portrait images use the swapped floor.
	MinWidth    int
	MinHeight   int
	MaxAttempts int
}

// DefaultPolicy mirrors the normalizer's default floor.
func DefaultPolicy() Policy {
	return Policy{
		QualityStep:  10,
		QualityFloor: 50,
		MinWidth:     1920,
		MinHeight:    1080,
		MaxAttempts:  100,
	}
}

// Compressor applies a Policy.
type Compressor struct {
	policy Policy
}

// New validates policy and returns a Compressor.
func New(policy Policy) (*Compressor, error) {
	switch {
	case policy.QualityStep <= 0:
		return nil, fmt.Errorf("compress: quality step must be positive")
	case policy.QualityFloor < 1 || policy.QualityFloor > 100:
		return nil, fmt.Errorf("compress: quality floor must be between 1 and 100")
	case policy.MinWidth <= 0 || policy.MinHeight <= 0:
		return nil, fmt.Errorf("compress: minimum dimensions must be positive")
	case policy.MaxAttempts <= 0:
		return nil, fmt.Errorf("compress: max attempts must be positive")
	}
	return &Compressor{policy: policy}, nil
}

// Fit returns an image no larger than budget bytes. An image already within
// budget is returned as is. The result is never over budget: when quality and
// dimensions are exhausted Fit fails with IMAGE-COMPRESS-001.
func (c *Compressor) Fit(img *raster.Image, budget int64) (*raster.Image, error) {
	if img == nil || img.Pixels == nil {
		return nil, faults.Wrap(faults.ConversionFailed, stage, "fit", "no image", nil)
	}
	if img.Size() <= budget {
		return img, nil
	}
	if budget <= 0 {
		return nil, faults.Newf(faults.Unfittable, "budget %d bytes", budget)
	}

	s := &search{policy: c.policy, source: img, budget: budget}
	return s.run()
}

type search struct {
	policy   Policy
	source   *raster.Image
	budget   int64
	attempts int
}

func (s *search) run() (*raster.Image, error) {
	current := s.source
	quality := current.Quality
	if quality <= 0 || quality > 100 {
		quality = 100
	}

	for quality > s.policy.QualityFloor {
		if err := s.spend(); err != nil {
			return nil, err
		}
		quality = max(quality-s.policy.QualityStep, s.policy.QualityFloor)
		next, err := raster.Encode(s.source.Pixels, quality)
		if err != nil {
			return nil, faults.Wrap(faults.ConversionFailed, stage, "re-encode", "", err)
		}
		current = next
		if current.Size() <= s.budget {
			return current, nil
		}
	}

	baseW := s.source.Pixels.Bounds().Dx()
	baseH := s.source.Pixels.Bounds().Dy()
	minScale := s.policy.shrinkFloor(baseW, baseH)
	total := 1.0

	for {
		if err := s.spend(); err != nil {
			return nil, err
		}
		step := math.Min(math.Sqrt(float64(s.budget)/float64(current.Size())), maxShrink)
		total = math.Max(total*step, minScale)

		w, h := scaled(baseW, total), scaled(baseH, total)
		if w >= current.Width && h >= current.Height {
			return nil, faults.Newf(faults.Unfittable,
				"%d bytes at %dx%d q%d exceeds budget %d", current.Size(), current.Width, current.Height, quality, s.budget)
		}

		resized := imaging.Resize(s.source.Pixels, w, h, imaging.Lanczos)
		next, err := raster.Encode(resized, quality)
		if err != nil {
			return nil, faults.Wrap(faults.ConversionFailed, stage, "re-encode", "", err)
		}
		current = next
		if current.Size() <= s.budget {
			return current, nil
		}
	}
}

// shrinkFloor is the smallest scale that keeps both axes at or above the
// floor for the image's orientation. A value of 1 or more means no shrink is
// possible.
func (p Policy) shrinkFloor(w, h int) float64 {
	floorW, floorH := p.MinWidth, p.MinHeight
	if h > w {
		floorW, floorH = floorH, floorW
	}
	return math.Max(float64(floorW)/float64(w), float64(floorH)/float64(h))
}

func (s *search) spend() error {
	s.attempts++
	if s.attempts > s.policy.MaxAttempts {
		return faults.Newf(faults.Unfittable, "gave up after %d attempts", s.policy.MaxAttempts)
	}
	return nil
}

// scaled rounds up so a clamped scale never lands a pixel below the floor.
func scaled(dim int, scale float64) int {
	v := int(math.Ceil(float64(dim)*scale - 1e-6))
	if v < 1 {
		return 1
	}
	if v > dim {
		return dim
	}
	return v
}
