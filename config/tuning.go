package config

// TuningConfig holds the internal magic numbers for face detection.
// These are currently static but centralized here so a config file can override them.
type TuningConfig struct {
	FaceScaleFactor      float64 `json:"face_scale_factor"`        // Default: 1.1 (pigo internal)
	FaceDetectShift      float64 `json:"face_detect_shift"`        // Default: 0.1 (Stride)
	FaceDetectMinSizePct int     `json:"face_detect_min_size_pct"` // Default: 1 (1% of min dim)
	FaceDetectMinSize    int     `json:"face_detect_min_size"`     // Default: 20 (floor in pixels)
	FaceDetectMaxSize    int     `json:"face_detect_max_size"`     // Default: 2000
	FaceDetectConfidence float64 `json:"face_detect_confidence"`   // Default: 10.0 (Base filter)
	FaceIoUThreshold     float64 `json:"face_iou_threshold"`       // Default: 0.2 (Clustering)
	FaceDetectAngle      float64 `json:"face_detect_angle"`        // Default: 0.0 (upright faces)

	// Encoding
	EncodingQuality int `json:"encoding_quality"` // Default: 95
}

// DefaultTuningConfig returns the standard values.
func DefaultTuningConfig() TuningConfig {
	return TuningConfig{
		FaceScaleFactor:      1.1,
		FaceDetectShift:      0.1,
		FaceDetectMinSizePct: 1,
		FaceDetectMinSize:    20,
		FaceDetectMaxSize:    2000,
		FaceDetectConfidence: 10.0,
		FaceIoUThreshold:     0.2,
		FaceDetectAngle:      0.0,
		EncodingQuality:      95,
	}
}

// MinFaceSize returns the smallest face side to search for in a cols x rows image.
func (t TuningConfig) MinFaceSize(cols, rows int) int {
	short := min(cols, rows)
	size := short * t.FaceDetectMinSizePct / 100
	return max(size, t.FaceDetectMinSize)
}

// MaxFaceSize returns the largest face side to search for in a cols x rows image.
func (t TuningConfig) MaxFaceSize(cols, rows int) int {
	long := max(cols, rows)
	if t.FaceDetectMaxSize <= 0 {
		return long
	}
	return min(t.FaceDetectMaxSize, long)
}
