// Package render draws source images, debug overlays and square crops onto pixel
// surfaces and serialises them as data URLs.
package render

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	xdraw "golang.org/x/image/draw"
)

var (
	// ErrDegenerateGeometry is returned for crops with a zero, negative or non-finite side.
	ErrDegenerateGeometry = errors.New("degenerate crop geometry")
	// ErrRender is returned when a surface cannot be drawn or encoded.
	ErrRender = errors.New("render failed")
)

// Format is an output encoding.
type Format string

// Supported output formats.
const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// ParseFormat accepts png, jpeg or jpg.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Ext returns the file extension of the format, with the dot.
func (f Format) Ext() string {
	if f == FormatJPEG {
		return ".jpg"
	}
	return ".png"
}

// Surface is a 2D drawing target.
type Surface struct {
	img *image.NRGBA
}

// NewSurface creates a transparent width x height surface.
func NewSurface(width, height int) *Surface {
	return &Surface{img: image.NewNRGBA(image.Rect(0, 0, width, height))}
}

// Image returns the backing pixels.
func (s *Surface) Image() *image.NRGBA {
	return s.img
}

// Width returns the surface width in pixels.
func (s *Surface) Width() int {
	return s.img.Bounds().Dx()
}

// Height returns the surface height in pixels.
func (s *Surface) Height() int {
	return s.img.Bounds().Dy()
}

// Fill paints the whole surface with c.
func (s *Surface) Fill(c color.Color) {
	draw.Draw(s.img, s.img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
}

// DrawImage draws src at (x, y), scaled to width x height when the sizes differ.
func (s *Surface) DrawImage(src image.Image, x, y, width, height int) {
	dst := image.Rect(x, y, x+width, y+height)
	sb := src.Bounds()
	if sb.Dx() == width && sb.Dy() == height {
		draw.Draw(s.img, dst, src, sb.Min, draw.Over)
		return
	}
	xdraw.CatmullRom.Scale(s.img, dst, src, sb, xdraw.Over, nil)
}

// StrokeRect outlines r with a line of the given width drawn inside r.
// Parts outside the surface are clipped.
func (s *Surface) StrokeRect(r image.Rectangle, c color.Color, width int) {
	r = r.Canon()
	if r.Empty() || width <= 0 {
		return
	}
	width = min(width, (min(r.Dx(), r.Dy())+1)/2)
	u := &image.Uniform{c}
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width), // top
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y), // bottom
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y), // left
		image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y), // right
	}
	for _, e := range edges {
		draw.Draw(s.img, e, u, image.Point{}, draw.Src)
	}
}

// Extract copies the pixels under r into a new image anchored at (0, 0).
// Pixels of r outside the surface are transparent.
func (s *Surface) Extract(r image.Rectangle) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), s.img, r.Min, draw.Src)
	return out
}

// Put writes pixels onto the surface with their origin at (x, y), replacing what was there.
func (s *Surface) Put(pixels image.Image, x, y int) {
	pb := pixels.Bounds()
	draw.Draw(s.img, image.Rect(x, y, x+pb.Dx(), y+pb.Dy()), pixels, pb.Min, draw.Src)
}

// Encode writes the surface in the given format.
func (s *Surface) Encode(w io.Writer, format Format, quality int) error {
	var err error
	switch format {
	case FormatPNG:
		err = png.Encode(w, s.img)
	case FormatJPEG:
		err = jpeg.Encode(w, s.img, &jpeg.Options{Quality: quality})
	default:
		return fmt.Errorf("%w: unsupported format: %s", ErrRender, format)
	}
	if err != nil {
		return fmt.Errorf("%w: encoding image: %w", ErrRender, err)
	}
	return nil
}

// EncodeDataURL serialises the surface as a base64 data URL.
func (s *Surface) EncodeDataURL(format Format, quality int) (string, error) {
	if s.Width() <= 0 || s.Height() <= 0 {
		return "", fmt.Errorf("%w: empty surface", ErrRender)
	}
	var buf bytes.Buffer
	if err := s.Encode(&buf, format, quality); err != nil {
		return "", err
	}
	return "data:" + format.ContentType() + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeDataURL reverses EncodeDataURL, returning the MIME type and the raw bytes.
func DecodeDataURL(dataURL string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URL")
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("data URL is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decoding data URL: %w", err)
	}
	return mime, data, nil
}
