// Package geometry computes square face crops from detected bounding boxes.
package geometry

import (
	"fmt"
	"image"
	"math"
)

// Point is a 2D coordinate in source image pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox is an axis-aligned face box given by its top-left and bottom-right corners.
type BoundingBox struct {
	TopLeft     Point `json:"topLeft"`
	BottomRight Point `json:"bottomRight"`
}

// Width returns the horizontal extent of the box.
func (b BoundingBox) Width() float64 {
	return b.BottomRight.X - b.TopLeft.X
}

// Height returns the vertical extent of the box.
func (b BoundingBox) Height() float64 {
	return b.BottomRight.Y - b.TopLeft.Y
}

// Size returns the longer of the two box dimensions.
func (b BoundingBox) Size() float64 {
	return math.Max(b.Width(), b.Height())
}

// Center returns the centroid of the box.
func (b BoundingBox) Center() Point {
	return Point{
		X: (b.TopLeft.X + b.BottomRight.X) / 2,
		Y: (b.TopLeft.Y + b.BottomRight.Y) / 2,
	}
}

// Valid reports whether the corners are finite and ordered.
func (b BoundingBox) Valid() bool {
	for _, v := range []float64{b.TopLeft.X, b.TopLeft.Y, b.BottomRight.X, b.BottomRight.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.BottomRight.X >= b.TopLeft.X && b.BottomRight.Y >= b.TopLeft.Y
}

// Rect converts the box to a pixel rectangle, rounding each corner.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(b.TopLeft.X)), int(math.Round(b.TopLeft.Y)),
		int(math.Round(b.BottomRight.X)), int(math.Round(b.BottomRight.Y)),
	)
}

// ImageDimensions is the pixel size of the source image.
type ImageDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether both dimensions are positive.
func (d ImageDimensions) Valid() bool {
	return d.Width > 0 && d.Height > 0
}

// DimensionsOf returns the dimensions of an image.
func DimensionsOf(img image.Image) ImageDimensions {
	b := img.Bounds()
	return ImageDimensions{Width: b.Dx(), Height: b.Dy()}
}

// CropRectangle is a square region of the source image.
type CropRectangle struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Side float64 `json:"side"`
}

// Valid reports whether the crop has a usable, finite, positive side.
// A zero side is what a degenerate detection produces and must never be rendered.
func (c CropRectangle) Valid() bool {
	for _, v := range []float64{c.X, c.Y, c.Side} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return c.Side > 0
}

// containEpsilon absorbs the rounding of (dim - side) + side.
const containEpsilon = 1e-9

// Contains reports whether the crop lies fully inside a width x height image.
func (c CropRectangle) Contains(width, height int) bool {
	return c.X >= 0 && c.Y >= 0 &&
		c.X+c.Side <= float64(width)+containEpsilon && c.Y+c.Side <= float64(height)+containEpsilon
}

// Center returns the centroid of the crop.
func (c CropRectangle) Center() Point {
	return Point{X: c.X + c.Side/2, Y: c.Y + c.Side/2}
}

// Rect converts the crop to a square pixel rectangle. The side is rounded once so the
// result is always square.
func (c CropRectangle) Rect() image.Rectangle {
	x := int(math.Round(c.X))
	y := int(math.Round(c.Y))
	s := int(math.Round(c.Side))
	return image.Rect(x, y, x+s, y+s)
}

func (c CropRectangle) String() string {
	return fmt.Sprintf("crop(x=%.2f y=%.2f side=%.2f)", c.X, c.Y, c.Side)
}

// EdgePolicy decides what happens when the crop is larger than the image on an axis.
type EdgePolicy int

// Edge policies
const (
	// EdgePin clamps the origin into [0, dim-side] and pins it to 0 when the crop is
	// larger than the image, letting the crop run past the far edge.
	EdgePin EdgePolicy = iota
	// EdgeAllowNegative clamps to 0 first and then to dim-side, so an oversized crop
	// gets a negative origin and overhangs both edges.
	EdgeAllowNegative
	// EdgeShrink reduces the side to fit the image before clamping.
	EdgeShrink
)

// String returns the string representation of an EdgePolicy.
func (p EdgePolicy) String() string {
	switch p {
	case EdgePin:
		return "pin"
	case EdgeAllowNegative:
		return "negative"
	case EdgeShrink:
		return "shrink"
	default:
		return "unknown"
	}
}

// ParseEdgePolicy parses the name produced by EdgePolicy.String.
func ParseEdgePolicy(s string) (EdgePolicy, error) {
	switch s {
	case "", "pin":
		return EdgePin, nil
	case "negative":
		return EdgeAllowNegative, nil
	case "shrink":
		return EdgeShrink, nil
	default:
		return EdgePin, fmt.Errorf("unknown edge policy %q (want pin, negative or shrink)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p EdgePolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *EdgePolicy) UnmarshalText(text []byte) error {
	v, err := ParseEdgePolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
