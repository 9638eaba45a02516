// Package orientation reads the EXIF orientation of an image and applies the
// matching pixel transform.
package orientation

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// Tag is an EXIF orientation value. Unknown means no tag was supplied.
type Tag int

const (
	Unknown        Tag = 0
	Normal         Tag = 1
	FlipHorizontal Tag = 2
	Rotate180      Tag = 3
	FlipVertical   Tag = 4
	Transpose      Tag = 5
	RotateCW       Tag = 6
	Transverse     Tag = 7
	RotateCCW      Tag = 8
)

var names = map[Tag]string{
	Unknown:        "unknown",
	Normal:         "normal",
	FlipHorizontal: "flip-horizontal",
	Rotate180:      "rotate-180",
	FlipVertical:   "flip-vertical",
	Transpose:      "transpose",
	RotateCW:       "rotate-cw",
	Transverse:     "transverse",
	RotateCCW:      "rotate-ccw",
}

func (t Tag) String() string {
	if name, ok := names[t]; ok {
		return name
	}
	return fmt.Sprintf("tag(%d)", int(t))
}

// Valid reports whether t is one of the eight EXIF values.
func (t Tag) Valid() bool {
	return t >= Normal && t <= RotateCCW
}

// SwapsAxes reports whether displaying the image exchanges width and height.
func (t Tag) SwapsAxes() bool {
	return t >= Transpose && t <= RotateCCW
}

// DisplaySize returns the upright dimensions of a w x h stored image.
func (t Tag) DisplaySize(w, h int) (int, int) {
	if t.SwapsAxes() {
		return h, w
	}
	return w, h
}

// Apply returns img transformed so it displays upright. Unknown, Normal and
// out-of-range tags return img unchanged.
func (t Tag) Apply(img image.Image) image.Image {
	switch t {
	case FlipHorizontal:
		return imaging.FlipH(img)
	case Rotate180:
		return imaging.Rotate180(img)
	case FlipVertical:
		return imaging.FlipV(img)
	case Transpose:
		return imaging.Transpose(img)
	case RotateCW:
		// imaging rotates counter-clockwise.
		return imaging.Rotate270(img)
	case Transverse:
		return imaging.Transverse(img)
	case RotateCCW:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// Resolve returns the orientation stored in data. It never fails: missing,
// truncated or out-of-range metadata resolves to Normal.
func Resolve(data []byte) Tag {
	if tag, ok := Lookup(data); ok {
		return tag
	}
	return Normal
}

// Lookup returns the orientation stored in data and whether a valid tag was
// present at all.
func Lookup(data []byte) (tag Tag, ok bool) {
	if len(data) == 0 {
		return Unknown, false
	}
	defer func() {
		if recover() != nil {
			tag, ok = Unknown, false
		}
	}()

	meta, err := exif.Decode(bytes.NewReader(data))
	if meta == nil || (err != nil && exif.IsCriticalError(err)) {
		return Unknown, false
	}
	field, err := meta.Get(exif.Orientation)
	if err != nil || field == nil {
		return Unknown, false
	}
	value, err := field.Int(0)
	if err != nil {
		return Unknown, false
	}
	tag = Tag(value)
	if !tag.Valid() {
		return Unknown, false
	}
	return tag, true
}
