package detect

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"os"
	"sort"

	"github.com/dixieflatline76/facecrop/config"
	"github.com/dixieflatline76/facecrop/util/log"
	pigo "github.com/esimov/pigo/core"
)

// classifier is the part of *pigo.Pigo the model uses.
type classifier interface {
	RunCascade(cp pigo.CascadeParams, angle float64) []pigo.Detection
	ClusterDetections(detections []pigo.Detection, iouThreshold float64) []pigo.Detection
}

// PigoLoader loads a pigo cascade ("facefinder") from disk.
type PigoLoader struct {
	ModelPath string
	Tuning    config.TuningConfig
}

// NewPigoLoader creates a loader for the cascade at path.
func NewPigoLoader(path string, tuning config.TuningConfig) *PigoLoader {
	return &PigoLoader{ModelPath: path, Tuning: tuning}
}

// Load reads and unpacks the cascade file.
func (l *PigoLoader) Load(ctx context.Context) (Model, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if l.ModelPath == "" {
		return nil, fmt.Errorf("%w: no model path configured", ErrModelLoad)
	}

	modelData, err := os.ReadFile(l.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrModelLoad, l.ModelPath, err)
	}

	model, err := NewPigoModel(modelData, l.Tuning)
	if err != nil {
		return nil, err
	}
	log.Printf("Face detection model loaded from %s (%d bytes)", l.ModelPath, len(modelData))
	return model, nil
}

// PigoModel runs a pigo cascade over images.
type PigoModel struct {
	classifier classifier
	tuning     config.TuningConfig
}

// NewPigoModel unpacks cascade data into a ready model.
func NewPigoModel(cascade []byte, tuning config.TuningConfig) (*PigoModel, error) {
	if len(cascade) == 0 {
		return nil, fmt.Errorf("%w: empty cascade", ErrModelLoad)
	}
	p := pigo.NewPigo()
	// pigo panics instead of erroring on some truncated cascades.
	unpacked, err := safeUnpack(p, cascade)
	if err != nil {
		return nil, fmt.Errorf("%w: unpacking cascade: %w", ErrModelLoad, err)
	}
	return &PigoModel{classifier: unpacked, tuning: tuning}, nil
}

func safeUnpack(p *pigo.Pigo, cascade []byte) (model *pigo.Pigo, err error) {
	defer func() {
		if r := recover(); r != nil {
			model = nil
			err = fmt.Errorf("malformed cascade: %v", r)
		}
	}()
	return p.Unpack(cascade)
}

// EstimateFaces returns the faces above the confidence threshold, best score first.
func (m *PigoModel) EstimateFaces(ctx context.Context, img image.Image) ([]Prediction, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("empty image")
	}
	nrgba := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)

	cols, rows := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()
	cParams := pigo.CascadeParams{
		MinSize:     m.tuning.MinFaceSize(cols, rows),
		MaxSize:     m.tuning.MaxFaceSize(cols, rows),
		ShiftFactor: m.tuning.FaceDetectShift,
		ScaleFactor: m.tuning.FaceScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(nrgba),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	// The cascade cannot be interrupted, so run it aside and stop waiting on cancel.
	resultChan := make(chan []pigo.Detection, 1)
	go func() {
		dets := m.classifier.RunCascade(cParams, m.tuning.FaceDetectAngle)
		resultChan <- m.classifier.ClusterDetections(dets, m.tuning.FaceIoUThreshold)
	}()

	var dets []pigo.Detection
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case dets = <-resultChan:
	}

	sort.SliceStable(dets, func(i, j int) bool { return dets[i].Q > dets[j].Q })

	predictions := make([]Prediction, 0, len(dets))
	for _, d := range dets {
		if float64(d.Q) < m.tuning.FaceDetectConfidence {
			continue
		}
		// Coordinates stay relative to bounds.Min, the same space geometry clamps in.
		predictions = append(predictions, FromCenter(d.Row, d.Col, d.Scale, d.Q))
	}
	log.Debugf("pigo: %d raw clusters, %d above Q %.1f", len(dets), len(predictions), m.tuning.FaceDetectConfidence)
	return predictions, nil
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
