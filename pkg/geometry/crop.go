package geometry

import (
	"fmt"
	"math"
)

// Framing defaults. 0.6 keeps the face at 60% of the crop side.
const (
	DefaultTargetFacePercent = 0.6
	DefaultPaddingPercent    = 0.1
)

// Params holds the ratios used to frame a face.
type Params struct {
	TargetFacePercent float64    `json:"target_face_percent"` // Fraction of the crop side the face should fill, in (0, 1]
	PaddingPercent    float64    `json:"padding_percent"`     // Extra margin applied after sizing, >= 0
	Policy            EdgePolicy `json:"edge_policy"`
}

// DefaultParams returns the standard framing.
func DefaultParams() Params {
	return Params{
		TargetFacePercent: DefaultTargetFacePercent,
		PaddingPercent:    DefaultPaddingPercent,
		Policy:            EdgePin,
	}
}

// Validate checks the ratios are in range.
func (p Params) Validate() error {
	if math.IsNaN(p.TargetFacePercent) || p.TargetFacePercent <= 0 || p.TargetFacePercent > 1 {
		return fmt.Errorf("target face percent must be in (0, 1], got %v", p.TargetFacePercent)
	}
	if math.IsNaN(p.PaddingPercent) || math.IsInf(p.PaddingPercent, 0) || p.PaddingPercent < 0 {
		return fmt.Errorf("padding percent must be >= 0, got %v", p.PaddingPercent)
	}
	switch p.Policy {
	case EdgePin, EdgeAllowNegative, EdgeShrink:
	default:
		return fmt.Errorf("unknown edge policy %d", p.Policy)
	}
	return nil
}

// ComputeCrop frames the face so its longer side fills targetFacePercent of the crop,
// grows the crop by paddingPercent, centres it on the face and clamps it with EdgePin.
//
// A zero-area box yields a zero side. A targetFacePercent outside (0, 1] yields the zero
// rectangle. Either way callers must check Valid before rendering.
func ComputeCrop(box BoundingBox, imageWidth, imageHeight int, targetFacePercent, paddingPercent float64) CropRectangle {
	return ComputeCropWithPolicy(box, imageWidth, imageHeight, targetFacePercent, paddingPercent, EdgePin)
}

// ComputeCropWithPolicy is ComputeCrop with an explicit edge policy.
func ComputeCropWithPolicy(box BoundingBox, imageWidth, imageHeight int, targetFacePercent, paddingPercent float64, policy EdgePolicy) CropRectangle {
	if !(targetFacePercent > 0 && targetFacePercent <= 1) {
		return CropRectangle{}
	}

	baseCropSize := box.Size() / targetFacePercent
	cropSize := baseCropSize * (1 + paddingPercent)

	if policy == EdgeShrink {
		cropSize = math.Min(cropSize, math.Min(float64(imageWidth), float64(imageHeight)))
	}

	center := box.Center()
	return CropRectangle{
		X:    clampOrigin(center.X-cropSize/2, float64(imageWidth), cropSize, policy),
		Y:    clampOrigin(center.Y-cropSize/2, float64(imageHeight), cropSize, policy),
		Side: cropSize,
	}
}

// clampOrigin keeps a tentative origin inside [0, dim-side] on one axis.
func clampOrigin(tentative, dim, side float64, policy EdgePolicy) float64 {
	if policy == EdgeAllowNegative {
		return math.Min(math.Max(0, tentative), dim-side)
	}
	return math.Max(0, math.Min(tentative, dim-side))
}

// Frame bundles the rectangles produced while framing one face.
type Frame struct {
	Face   BoundingBox   `json:"face"`   // Raw detection
	Target CropRectangle `json:"target"` // Padded face square, centred on the face, unclamped
	Crop   CropRectangle `json:"crop"`   // Final clamped crop
}

// ComputeFrame computes the crop together with the padded target-face square used for
// debug overlays.
func ComputeFrame(box BoundingBox, dims ImageDimensions, p Params) Frame {
	side := box.Size() * (1 + p.PaddingPercent)
	c := box.Center()
	return Frame{
		Face:   box,
		Target: CropRectangle{X: c.X - side/2, Y: c.Y - side/2, Side: side},
		Crop:   ComputeCropWithPolicy(box, dims.Width, dims.Height, p.TargetFacePercent, p.PaddingPercent, p.Policy),
	}
}
