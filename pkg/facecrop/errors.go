package facecrop

import (
	"errors"

	"github.com/dixieflatline76/facecrop/pkg/detect"
	"github.com/dixieflatline76/facecrop/pkg/render"
)

// Errors returned by the pipeline and controller. Match them with errors.Is.
var (
	ErrModelLoad          = detect.ErrModelLoad
	ErrDetection          = detect.ErrDetection
	ErrDegenerateGeometry = render.ErrDegenerateGeometry
	ErrRender             = render.ErrRender

	ErrNoFace        = errors.New("no face detected")
	ErrDecode        = errors.New("cannot decode image")
	ErrSuperseded    = errors.New("superseded by a newer image")
	ErrModelNotReady = errors.New("face model not ready")
	ErrTimeout       = errors.New("detection timed out")
)
