package detector

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/parallax/internal/signal"
)

// CascadeDetector finds faces with a Haar cascade. It has no confidence
// output, so every detection reports 1.0.
type CascadeDetector struct {
	classifier gocv.CascadeClassifier
	mu         sync.Mutex
}

// NewCascade loads the cascade at cfg.CascadePath.
func NewCascade(cfg Config) (*CascadeDetector, error) {
	if _, err := os.Stat(cfg.CascadePath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.CascadePath)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cfg.CascadePath) {
		classifier.Close()
		return nil, fmt.Errorf("load cascade %s", cfg.CascadePath)
	}

	return &CascadeDetector{classifier: classifier}, nil
}

// Detect finds faces in the frame.
func (d *CascadeDetector) Detect(frame *gocv.Mat) ([]Detection, error) {
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	rects := d.classifier.DetectMultiScale(*frame)
	detections := make([]Detection, 0, len(rects))
	for _, r := range rects {
		detections = append(detections, Detection{
			Box:        boxFromRect(r),
			Confidence: 1.0,
		})
	}
	return detections, nil
}

// Close releases the classifier.
func (d *CascadeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.Close()
}

// New returns the best available detector: YuNet, then the Haar cascade.
func New(cfg Config) (Detector, error) {
	yunet, yerr := NewYuNet(cfg)
	if yerr == nil {
		return yunet, nil
	}
	cascade, cerr := NewCascade(cfg)
	if cerr == nil {
		return cascade, nil
	}
	return nil, fmt.Errorf("no face detector available: yunet: %v; cascade: %w", yerr, cerr)
}

func boxFromRect(r image.Rectangle) signal.BoundingBox {
	return signal.BoundingBox{
		X:      float64(r.Min.X),
		Y:      float64(r.Min.Y),
		Width:  float64(r.Dx()),
		Height: float64(r.Dy()),
	}
}

func boxFromFloats(x, y, w, h float32) signal.BoundingBox {
	return signal.BoundingBox{
		X:      float64(x),
		Y:      float64(y),
		Width:  float64(w),
		Height: float64(h),
	}
}
