package facecrop

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dixieflatline76/facecrop/config"
	"github.com/dixieflatline76/facecrop/pkg/detect"
	"github.com/dixieflatline76/facecrop/pkg/geometry"
	"github.com/dixieflatline76/facecrop/pkg/render"
	"github.com/dixieflatline76/facecrop/util/log"
	"github.com/google/uuid"
	"github.com/muesli/smartcrop"

	_ "image/gif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxPixels bounds the decoded image area.
const MaxPixels = 100_000_000

// Options configures a Pipeline and the Controller that runs it.
type Options struct {
	Params        geometry.Params
	Render        render.Options
	Debug         bool // Also render the overlay preview
	SmartFallback bool // Crop by image saliency when no face is found

	ModelLoadTimeout time.Duration
	DetectTimeout    time.Duration
}

// DefaultOptions returns the default geometry, PNG output and 30s/20s timeouts.
func DefaultOptions() Options {
	return Options{
		Params:           geometry.DefaultParams(),
		Render:           render.DefaultOptions(),
		ModelLoadTimeout: 30 * time.Second,
		DetectTimeout:    20 * time.Second,
	}
}

// OptionsFromConfig converts the user's config into pipeline options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	opts := DefaultOptions()

	policy, err := geometry.ParseEdgePolicy(strings.ToLower(cfg.EdgePolicy))
	if err != nil {
		return opts, err
	}
	format, err := render.ParseFormat(cfg.OutputFormat)
	if err != nil {
		return opts, err
	}
	bg, err := config.ParseColor(cfg.Background)
	if err != nil {
		return opts, err
	}

	opts.Params = geometry.Params{
		TargetFacePercent: cfg.TargetFacePercent,
		PaddingPercent:    cfg.PaddingPercent,
		Policy:            policy,
	}
	if err := opts.Params.Validate(); err != nil {
		return opts, err
	}
	opts.Render.Background = bg
	opts.Render.Format = format
	opts.Render.OutputSize = cfg.OutputSize
	opts.Render.Quality = cfg.Tuning.EncodingQuality
	opts.Debug = cfg.Debug
	opts.SmartFallback = cfg.SmartFallback
	if cfg.ModelLoadTimeout.Duration > 0 {
		opts.ModelLoadTimeout = cfg.ModelLoadTimeout.Duration
	}
	if cfg.DetectTimeout.Duration > 0 {
		opts.DetectTimeout = cfg.DetectTimeout.Duration
	}
	return opts, nil
}

// Result is the outcome of one run.
type Result struct {
	RunID     string                  `json:"run_id"`
	Status    Status                  `json:"status"`
	Message   string                  `json:"message"`
	Image     string                  `json:"image,omitempty"`   // Crop as a data URL
	Preview   string                  `json:"preview,omitempty"` // Overlay preview as a data URL, debug only
	Source    geometry.ImageDimensions `json:"source"`
	Face      *geometry.BoundingBox   `json:"face,omitempty"`
	Crop      *geometry.CropRectangle `json:"crop,omitempty"`
	Fallback  bool                    `json:"fallback,omitempty"`
	ElapsedMS int64                   `json:"elapsed_ms"`
}

// Pipeline turns image bytes into a square face crop.
type Pipeline struct {
	opts     Options
	renderer *render.Renderer
}

// NewPipeline creates a pipeline.
func NewPipeline(opts Options) *Pipeline {
	return &Pipeline{opts: opts, renderer: NewRenderer(opts)}
}

// NewRenderer creates the renderer configured by opts.
func NewRenderer(opts Options) *render.Renderer {
	return render.NewRenderer(opts.Render)
}

// Options returns the pipeline's options.
func (p *Pipeline) Options() Options {
	return p.opts
}

// Process decodes data, finds the first face with model and renders its crop.
// A missing face is reported as ErrNoFace and an unusable one as ErrDegenerateGeometry,
// both with the partial result.
func (p *Pipeline) Process(ctx context.Context, model detect.Model, data []byte) (res Result, err error) {
	start := time.Now()
	res = Result{RunID: uuid.NewString()}
	defer func() { res.ElapsedMS = time.Since(start).Milliseconds() }()

	img, err := Decode(ctx, data)
	if err != nil {
		return res, err
	}

	dims := geometry.DimensionsOf(img)
	res.Source = dims

	box, found, err := detect.NewAdapter(model).Detect(ctx, img)
	if err != nil {
		return res, err
	}
	if !found {
		if p.opts.SmartFallback {
			return p.fallback(ctx, img, res)
		}
		return res, ErrNoFace
	}

	frame := geometry.ComputeFrame(box, dims, p.opts.Params)
	res.Face = &frame.Face
	res.Crop = &frame.Crop
	log.Debugf("run %s: face %v in %dx%d, crop %v", res.RunID, frame.Face, dims.Width, dims.Height, frame.Crop)

	surface, err := p.renderer.Crop(ctx, img, frame.Crop)
	if err != nil {
		return res, err
	}
	if res.Image, err = p.renderer.Encode(surface); err != nil {
		return res, err
	}
	if p.opts.Debug {
		if res.Preview, err = p.renderer.Encode(p.renderer.Preview(img, frame)); err != nil {
			return res, err
		}
	}

	res.Status = StatusSuccess
	res.Message = StatusSuccess.Message()
	return res, nil
}

// fallback picks the most salient square when detection finds nothing.
func (p *Pipeline) fallback(ctx context.Context, img image.Image, res Result) (Result, error) {
	b := img.Bounds()
	side := min(b.Dx(), b.Dy())

	analyzer := smartcrop.NewAnalyzer(&resizer{resampler: p.renderer.Options().Resampler})

	// Use a goroutine and channel to make FindBestCrop context-aware.
	type cropResult struct {
		crop image.Rectangle
		err  error
	}
	resultChan := make(chan cropResult, 1)
	go func() {
		topCrop, err := analyzer.FindBestCrop(img, side, side)
		resultChan <- cropResult{crop: topCrop, err: err}
	}()

	var found cropResult
	select {
	case <-ctx.Done():
		return res, ctx.Err()
	case found = <-resultChan:
	}
	if found.err != nil {
		return res, fmt.Errorf("%w: finding best crop: %w", ErrNoFace, found.err)
	}

	surface, err := p.renderer.CropImage(ctx, img, found.crop)
	if err != nil {
		return res, err
	}
	if res.Image, err = p.renderer.Encode(surface); err != nil {
		return res, err
	}
	res.Crop = &geometry.CropRectangle{
		X:    float64(found.crop.Min.X - b.Min.X),
		Y:    float64(found.crop.Min.Y - b.Min.Y),
		Side: float64(min(found.crop.Dx(), found.crop.Dy())),
	}
	res.Fallback = true
	res.Status = StatusSuccess
	res.Message = "No face detected, cropped the most detailed region instead."
	log.Debugf("run %s: no face, smart crop %v", res.RunID, found.crop)
	return res, nil
}

// Decode reads an image in any registered format, applying its EXIF orientation.
func Decode(ctx context.Context, data []byte) (image.Image, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrDecode)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: reading image header: %w", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > MaxPixels {
		return nil, fmt.Errorf("%w: unsupported dimensions %dx%d", ErrDecode, cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding image: %w", ErrDecode, err)
	}

	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	return img, nil
}

// resizer implements the smartcrop.Resizer interface with imaging.
type resizer struct {
	resampler imaging.ResampleFilter
}

func (r *resizer) Resize(img image.Image, width, height uint) image.Image {
	return imaging.Resize(img, int(width), int(height), r.resampler)
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
