// Package facecrop sequences decode, face detection, crop geometry and rendering,
// and tracks the processing status shown to the user.
package facecrop

import "fmt"

// Status is the processing state shown to the user.
type Status int

// Processing states. NoFaceFound, Success and Error end a run.
const (
	StatusIdle Status = iota
	StatusModelLoading
	StatusModelReady
	StatusDetecting
	StatusNoFaceFound
	StatusSuccess
	StatusError
)

var statusNames = map[Status]string{
	StatusIdle:         "idle",
	StatusModelLoading: "model_loading",
	StatusModelReady:   "model_ready",
	StatusDetecting:    "detecting",
	StatusNoFaceFound:  "no_face_found",
	StatusSuccess:      "success",
	StatusError:        "error",
}

// User-facing texts for the no-face outcomes.
const (
	MessageNoFace       = "No face detected. Please upload another image."
	MessageNoUsableFace = "No usable face found."
)

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Message returns the default status text.
func (s Status) Message() string {
	switch s {
	case StatusIdle:
		return "Waiting for the face model."
	case StatusModelLoading:
		return "Loading face model..."
	case StatusModelReady:
		return "Ready. Choose an image with a face."
	case StatusDetecting:
		return "Detecting face..."
	case StatusNoFaceFound:
		return MessageNoFace
	case StatusSuccess:
		return "Face cropped."
	case StatusError:
		return "Something went wrong."
	default:
		return ""
	}
}

// Terminal reports whether s ends a run.
func (s Status) Terminal() bool {
	return s == StatusNoFaceFound || s == StatusSuccess || s == StatusError
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	for k, v := range statusNames {
		if v == string(text) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}
