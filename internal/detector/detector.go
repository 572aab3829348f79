// Package detector provides face detection interfaces and backends.
package detector

import (
	"errors"

	"gocv.io/x/gocv"

	"github.com/ayusman/parallax/internal/signal"
)

// ErrModelNotFound is returned when a detector model file is missing.
var ErrModelNotFound = errors.New("detector model not found")

// Detection is one detected face in frame-pixel coordinates.
type Detection struct {
	Box        signal.BoundingBox `json:"box"`
	Confidence float64            `json:"confidence"`
}

// Detector defines the interface for face detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected faces.
	// Returns an empty slice if no faces are detected.
	Detect(frame *gocv.Mat) ([]Detection, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for face detection.
type Config struct {
	// ModelPath is the YuNet ONNX model.
	ModelPath string

	// CascadePath is the Haar cascade XML used when YuNet is unavailable.
	CascadePath string

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// NMSThreshold is the YuNet non-maximum suppression threshold.
	NMSThreshold float64

	// InputWidth and InputHeight are the initial YuNet input size; it is
	// resized to each frame.
	InputWidth  int
	InputHeight int
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ModelPath:     "models/face_detection_yunet.onnx",
		CascadePath:   "models/haarcascade_frontalface_default.xml",
		MinConfidence: 0.6,
		NMSThreshold:  0.3,
		InputWidth:    320,
		InputHeight:   320,
	}
}

// SelectPrimary picks the face the camera should follow.
//
// The largest box wins (nearest subject). Ties go to the higher confidence,
// then to the earlier detection, so identical input always yields the same
// choice. Degenerate boxes are never selected. Returns nil when nothing is
// usable.
func SelectPrimary(dets []Detection) *Detection {
	var best *Detection
	for i := range dets {
		d := &dets[i]
		if d.Box.Degenerate() {
			continue
		}
		if best == nil {
			best = d
			continue
		}
		a, b := d.Box.Area(), best.Box.Area()
		if a > b || (a == b && d.Confidence > best.Confidence) {
			best = d
		}
	}
	return best
}
