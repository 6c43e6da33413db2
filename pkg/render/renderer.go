package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/dixieflatline76/facecrop/pkg/geometry"
	"golang.org/x/image/math/f64"

	xdraw "golang.org/x/image/draw"
)

// MaxSide caps the side of a rendered crop.
const MaxSide = 1 << 14

// Debug overlay colours.
var (
	FaceColor   = color.NRGBA{R: 255, G: 0, B: 0, A: 255} // Raw detection
	TargetColor = color.NRGBA{R: 0, G: 200, B: 0, A: 255} // Padded target face
	CropColor   = color.NRGBA{R: 0, G: 96, B: 255, A: 255} // Final crop
)

// Options configures a Renderer.
type Options struct {
	Background  color.Color
	OutputSize  int // Resize the crop to this side; 0 keeps the native side
	Format      Format
	Quality     int
	StrokeWidth int
	Resampler   imaging.ResampleFilter
}

// DefaultOptions returns PNG output at native size on a transparent background.
func DefaultOptions() Options {
	return Options{
		Background:  color.NRGBA{},
		Format:      FormatPNG,
		Quality:     95,
		StrokeWidth: 3,
		Resampler:   imaging.Lanczos,
	}
}

// Renderer turns crop geometry into pixels.
type Renderer struct {
	opts Options
}

// NewRenderer creates a renderer, filling zero options with defaults.
func NewRenderer(opts Options) *Renderer {
	def := DefaultOptions()
	if opts.Background == nil {
		opts.Background = def.Background
	}
	if opts.Format == "" {
		opts.Format = def.Format
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = def.Quality
	}
	if opts.StrokeWidth <= 0 {
		opts.StrokeWidth = def.StrokeWidth
	}
	if opts.Resampler.Support == 0 && opts.Resampler.Kernel == nil {
		opts.Resampler = def.Resampler
	}
	return &Renderer{opts: opts}
}

// Options returns the effective options.
func (r *Renderer) Options() Options {
	return r.opts
}

// Preview draws the source image with the raw face, padded target and crop outlined.
func (r *Renderer) Preview(src image.Image, frame geometry.Frame) *Surface {
	b := src.Bounds()
	s := NewSurface(b.Dx(), b.Dy())
	s.DrawImage(src, 0, 0, b.Dx(), b.Dy())

	s.StrokeRect(frame.Face.Rect(), FaceColor, r.opts.StrokeWidth)
	if frame.Target.Valid() {
		s.StrokeRect(frame.Target.Rect(), TargetColor, r.opts.StrokeWidth)
	}
	if frame.Crop.Valid() {
		s.StrokeRect(frame.Crop.Rect(), CropColor, r.opts.StrokeWidth)
	}
	return s
}

// Crop resamples the crop region of src into a new square surface. Areas of the crop
// outside src are left as the background colour. Crops with a non-positive side are
// refused.
func (r *Renderer) Crop(ctx context.Context, src image.Image, crop geometry.CropRectangle) (*Surface, error) {
	if !crop.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateGeometry, crop)
	}
	side := int(math.Round(crop.Side))
	if side < 1 {
		return nil, fmt.Errorf("%w: %v rounds to an empty image", ErrDegenerateGeometry, crop)
	}
	if side > MaxSide {
		return nil, fmt.Errorf("%w: crop side %d exceeds %d", ErrRender, side, MaxSide)
	}
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	b := src.Bounds()
	out := NewSurface(side, side)
	out.Fill(r.opts.Background)

	if isWhole(crop.X) && isWhole(crop.Y) && float64(side) == crop.Side {
		// Pixel aligned, copy straight through.
		origin := image.Pt(b.Min.X+int(crop.X), b.Min.Y+int(crop.Y))
		draw.Draw(out.img, out.img.Bounds(), src, origin, draw.Over)
	} else {
		scale := float64(side) / crop.Side
		s2d := f64.Aff3{
			scale, 0, -(float64(b.Min.X) + crop.X) * scale,
			0, scale, -(float64(b.Min.Y) + crop.Y) * scale,
		}
		xdraw.CatmullRom.Transform(out.img, s2d, src, b, xdraw.Over, nil)
	}

	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	if r.opts.OutputSize > 0 && r.opts.OutputSize != side {
		resized := imaging.Resize(out.img, r.opts.OutputSize, r.opts.OutputSize, r.opts.Resampler)
		return &Surface{img: resized}, nil
	}
	return out, nil
}

// Encode serialises a surface as a data URL in the configured format.
func (r *Renderer) Encode(s *Surface) (string, error) {
	if s == nil {
		return "", fmt.Errorf("%w: no surface", ErrRender)
	}
	return s.EncodeDataURL(r.opts.Format, r.opts.Quality)
}

// CropImage crops src to a square whose pixel rectangle is already known, as the
// smartcrop fallback produces.
func (r *Renderer) CropImage(ctx context.Context, src image.Image, rect image.Rectangle) (*Surface, error) {
	side := min(rect.Dx(), rect.Dy())
	b := src.Bounds()
	crop := geometry.CropRectangle{
		X:    float64(rect.Min.X - b.Min.X),
		Y:    float64(rect.Min.Y - b.Min.Y),
		Side: float64(side),
	}
	return r.Crop(ctx, src, crop)
}

func isWhole(v float64) bool {
	return v == math.Trunc(v)
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
