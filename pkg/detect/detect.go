// Package detect wraps a pretrained face detector and normalises its output into
// geometry.BoundingBox values.
package detect

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/dixieflatline76/facecrop/pkg/geometry"
)

var (
	// ErrModelLoad is returned when the detector model cannot be loaded.
	ErrModelLoad = errors.New("face model failed to load")
	// ErrDetection is returned when the detector fails while estimating faces.
	ErrDetection = errors.New("face detection failed")
	// ErrInvalidPrediction is returned when a prediction has non-finite coordinates.
	ErrInvalidPrediction = errors.New("invalid face prediction")
)

// Prediction is one face reported by a model, as plain corner coordinates.
type Prediction struct {
	TopLeft     [2]float64 `json:"topLeft"`
	BottomRight [2]float64 `json:"bottomRight"`
	Probability float64    `json:"probability"`
}

// FromCenter builds a Prediction from a centre/scale detection (row, column and side
// length), the shape produced by cascade detectors such as pigo.
func FromCenter(row, col, scale int, q float32) Prediction {
	half := float64(scale) / 2
	return Prediction{
		TopLeft:     [2]float64{float64(col) - half, float64(row) - half},
		BottomRight: [2]float64{float64(col) + half, float64(row) + half},
		Probability: float64(q),
	}
}

// Normalize converts a prediction into a BoundingBox with ordered corners.
func Normalize(p Prediction) (geometry.BoundingBox, error) {
	for _, v := range []float64{p.TopLeft[0], p.TopLeft[1], p.BottomRight[0], p.BottomRight[1]} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return geometry.BoundingBox{}, fmt.Errorf("%w: %v", ErrInvalidPrediction, p)
		}
	}
	return geometry.BoundingBox{
		TopLeft: geometry.Point{
			X: math.Min(p.TopLeft[0], p.BottomRight[0]),
			Y: math.Min(p.TopLeft[1], p.BottomRight[1]),
		},
		BottomRight: geometry.Point{
			X: math.Max(p.TopLeft[0], p.BottomRight[0]),
			Y: math.Max(p.TopLeft[1], p.BottomRight[1]),
		},
	}, nil
}

// Model estimates faces in a decoded image.
type Model interface {
	EstimateFaces(ctx context.Context, img image.Image) ([]Prediction, error)
}

// Loader produces a ready Model. Loading may be slow and may fail.
type Loader interface {
	Load(ctx context.Context) (Model, error)
}

// Adapter picks the face the rest of the pipeline works with.
type Adapter struct {
	model Model
}

// NewAdapter creates an adapter around an already loaded model.
func NewAdapter(model Model) *Adapter {
	return &Adapter{model: model}
}

// Detect returns the first face the model reports. The bool is false when the model
// found no face, which is a normal outcome and not an error.
func (a *Adapter) Detect(ctx context.Context, img image.Image) (geometry.BoundingBox, bool, error) {
	if a.model == nil {
		return geometry.BoundingBox{}, false, fmt.Errorf("%w: no model", ErrDetection)
	}

	predictions, err := a.model.EstimateFaces(ctx, img)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return geometry.BoundingBox{}, false, err
		}
		return geometry.BoundingBox{}, false, fmt.Errorf("%w: %w", ErrDetection, err)
	}
	if len(predictions) == 0 {
		return geometry.BoundingBox{}, false, nil
	}

	box, err := Normalize(predictions[0])
	if err != nil {
		return geometry.BoundingBox{}, false, fmt.Errorf("%w: %w", ErrDetection, err)
	}
	return box, true, nil
}
