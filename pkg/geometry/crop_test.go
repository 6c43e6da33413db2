package geometry

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

func box(x0, y0, x1, y1 float64) BoundingBox {
	return BoundingBox{TopLeft: Point{X: x0, Y: y0}, BottomRight: Point{X: x1, Y: y1}}
}

func TestComputeCrop_CenteredFace(t *testing.T) {
	crop := ComputeCrop(box(400, 400, 600, 600), 1000, 1000, 0.7, 0.1)

	expectedSide := (200.0 / 0.7) * 1.1
	assert.InDelta(t, expectedSide, crop.Side, eps)
	assert.InDelta(t, 314.2857142857, crop.Side, 1e-6)
	assert.InDelta(t, 500-expectedSide/2, crop.X, eps)
	assert.InDelta(t, 342.8571428571, crop.Y, 1e-6)
	assert.True(t, crop.Contains(1000, 1000))

	// Face and crop share a centroid when nothing was clamped.
	assert.InDelta(t, 500.0, crop.Center().X, eps)
	assert.InDelta(t, 500.0, crop.Center().Y, eps)
}

func TestComputeCrop_FaceAtCorner(t *testing.T) {
	crop := ComputeCrop(box(0, 0, 100, 100), 500, 500, 0.7, 0.1)

	assert.InDelta(t, (100.0/0.7)*1.1, crop.Side, eps)
	assert.Equal(t, 0.0, crop.X)
	assert.Equal(t, 0.0, crop.Y)
	assert.True(t, crop.Contains(500, 500))
}

func TestComputeCrop_FaceAtFarCorner(t *testing.T) {
	crop := ComputeCrop(box(400, 400, 500, 500), 500, 500, 0.7, 0.1)

	assert.InDelta(t, 500-crop.Side, crop.X, eps)
	assert.InDelta(t, 500-crop.Side, crop.Y, eps)
	assert.True(t, crop.Contains(500, 500))
}

func TestComputeCrop_NonSquareFaceUsesLongerSide(t *testing.T) {
	crop := ComputeCrop(box(400, 400, 450, 550), 1000, 1000, 0.5, 0)
	assert.InDelta(t, 300.0, crop.Side, eps)
	assert.InDelta(t, 425.0, crop.Center().X, eps)
	assert.InDelta(t, 475.0, crop.Center().Y, eps)
}

func TestComputeCrop_Degenerate(t *testing.T) {
	crop := ComputeCrop(box(120, 80, 120, 80), 640, 480, 0.6, 0.1)
	assert.Equal(t, 0.0, crop.Side)
	assert.False(t, crop.Valid(), "zero side must not be renderable")

	// A zero-width but tall box still has a size.
	crop = ComputeCrop(box(120, 80, 120, 140), 640, 480, 0.6, 0)
	assert.InDelta(t, 100.0, crop.Side, eps)
	assert.True(t, crop.Valid())
}

func TestComputeCrop_InvalidTarget(t *testing.T) {
	for _, target := range []float64{0, -0.5, 1.5, math.NaN()} {
		crop := ComputeCrop(box(10, 10, 50, 50), 100, 100, target, 0.1)
		assert.Equal(t, CropRectangle{}, crop)
		assert.False(t, crop.Valid())
	}
}

func TestComputeCrop_OversizedCrop(t *testing.T) {
	// Face of 180 at target 0.6 and padding 0.1 needs a 330 crop in a 300x400 image.
	b := box(60, 100, 240, 280)

	t.Run("pin", func(t *testing.T) {
		crop := ComputeCropWithPolicy(b, 300, 400, 0.6, 0.1, EdgePin)
		assert.InDelta(t, 330.0, crop.Side, eps)
		assert.Equal(t, 0.0, crop.X, "origin pinned to 0 when the crop is wider than the image")
		assert.GreaterOrEqual(t, crop.Y, 0.0)
		assert.LessOrEqual(t, crop.Y+crop.Side, 400.0+eps)
		assert.False(t, crop.Contains(300, 400))
	})

	t.Run("negative", func(t *testing.T) {
		crop := ComputeCropWithPolicy(b, 300, 400, 0.6, 0.1, EdgeAllowNegative)
		assert.InDelta(t, 330.0, crop.Side, eps)
		assert.InDelta(t, -30.0, crop.X, eps)
		assert.GreaterOrEqual(t, crop.Y, 0.0)
		assert.False(t, crop.Contains(300, 400))
	})

	t.Run("shrink", func(t *testing.T) {
		crop := ComputeCropWithPolicy(b, 300, 400, 0.6, 0.1, EdgeShrink)
		assert.InDelta(t, 300.0, crop.Side, eps)
		assert.Equal(t, 0.0, crop.X)
		assert.True(t, crop.Contains(300, 400))
	})
}

func TestComputeCrop_Idempotent(t *testing.T) {
	b := box(13.37, 42.1, 250.9, 301.3)
	first := ComputeCrop(b, 777, 555, 0.63, 0.17)
	second := ComputeCrop(b, 777, 555, 0.63, 0.17)
	assert.Equal(t, math.Float64bits(first.X), math.Float64bits(second.X))
	assert.Equal(t, math.Float64bits(first.Y), math.Float64bits(second.Y))
	assert.Equal(t, math.Float64bits(first.Side), math.Float64bits(second.Side))
}

type generatedCase struct {
	box     BoundingBox
	w, h    int
	target  float64
	padding float64
}

func generateCases(n int) []generatedCase {
	rng := rand.New(rand.NewSource(42))
	cases := make([]generatedCase, 0, n)
	for i := 0; i < n; i++ {
		w := 1 + rng.Intn(4000)
		h := 1 + rng.Intn(4000)
		x0 := rng.Float64() * float64(w)
		y0 := rng.Float64() * float64(h)
		x1 := x0 + rng.Float64()*(float64(w)-x0)
		y1 := y0 + rng.Float64()*(float64(h)-y0)
		cases = append(cases, generatedCase{
			box:     box(x0, y0, x1, y1),
			w:       w,
			h:       h,
			target:  0.05 + rng.Float64()*0.95,
			padding: rng.Float64(),
		})
	}
	return cases
}

func TestComputeCrop_Properties(t *testing.T) {
	for _, c := range generateCases(5000) {
		unclamped := (c.box.Size() / c.target) * (1 + c.padding)

		pin := ComputeCropWithPolicy(c.box, c.w, c.h, c.target, c.padding, EdgePin)
		require.Equal(t, unclamped, pin.Side)
		for _, axis := range []struct {
			origin float64
			dim    float64
		}{{pin.X, float64(c.w)}, {pin.Y, float64(c.h)}} {
			require.GreaterOrEqual(t, axis.origin, 0.0)
			if pin.Side <= axis.dim {
				require.LessOrEqual(t, axis.origin+pin.Side, axis.dim+eps)
			} else {
				require.Equal(t, 0.0, axis.origin)
			}
		}

		neg := ComputeCropWithPolicy(c.box, c.w, c.h, c.target, c.padding, EdgeAllowNegative)
		require.Equal(t, unclamped, neg.Side)
		for _, axis := range []struct {
			origin float64
			dim    float64
		}{{neg.X, float64(c.w)}, {neg.Y, float64(c.h)}} {
			require.LessOrEqual(t, axis.origin+neg.Side, axis.dim+eps)
			if neg.Side <= axis.dim {
				require.GreaterOrEqual(t, axis.origin, 0.0)
			}
		}

		shrink := ComputeCropWithPolicy(c.box, c.w, c.h, c.target, c.padding, EdgeShrink)
		require.LessOrEqual(t, shrink.Side, unclamped)
		require.True(t, shrink.Contains(c.w, c.h), "shrunk crop %v escapes %dx%d", shrink, c.w, c.h)
	}
}

func TestComputeCrop_CenteringWithoutClamp(t *testing.T) {
	for _, c := range generateCases(2000) {
		crop := ComputeCrop(c.box, c.w, c.h, c.target, c.padding)
		center := c.box.Center()
		tentativeX := center.X - crop.Side/2
		tentativeY := center.Y - crop.Side/2
		if tentativeX < 0 || tentativeY < 0 ||
			tentativeX+crop.Side > float64(c.w) || tentativeY+crop.Side > float64(c.h) {
			continue
		}
		assert.InDelta(t, center.X, crop.Center().X, 1e-6)
		assert.InDelta(t, center.Y, crop.Center().Y, 1e-6)
	}
}

func TestComputeFrame(t *testing.T) {
	p := DefaultParams()
	frame := ComputeFrame(box(400, 400, 600, 600), ImageDimensions{Width: 1000, Height: 1000}, p)

	assert.Equal(t, box(400, 400, 600, 600), frame.Face)
	assert.InDelta(t, 220.0, frame.Target.Side, eps)
	assert.InDelta(t, 390.0, frame.Target.X, eps)
	assert.InDelta(t, (200/0.6)*1.1, frame.Crop.Side, eps)
	assert.Equal(t, ComputeCrop(frame.Face, 1000, 1000, p.TargetFacePercent, p.PaddingPercent), frame.Crop)
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{"defaults", DefaultParams(), false},
		{"full face", Params{TargetFacePercent: 1, PaddingPercent: 0}, false},
		{"zero target", Params{TargetFacePercent: 0, PaddingPercent: 0.1}, true},
		{"target above one", Params{TargetFacePercent: 1.2}, true},
		{"negative padding", Params{TargetFacePercent: 0.6, PaddingPercent: -0.1}, true},
		{"bad policy", Params{TargetFacePercent: 0.6, Policy: EdgePolicy(9)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
