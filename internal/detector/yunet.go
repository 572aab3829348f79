package detector

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// YuNetDetector uses OpenCV's FaceDetectorYN for face detection.
type YuNetDetector struct {
	detector gocv.FaceDetectorYN
	config   Config
	inSize   image.Point
	mu       sync.Mutex // Protects inference
}

// NewYuNet creates a YuNet detector from cfg.ModelPath.
func NewYuNet(cfg Config) (*YuNetDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}

	size := image.Pt(cfg.InputWidth, cfg.InputHeight)
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"", // No config file needed for ONNX
		size,
		float32(cfg.MinConfidence),
		float32(cfg.NMSThreshold),
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNetDetector{
		detector: detector,
		config:   cfg,
		inSize:   size,
	}, nil
}

// Detect finds faces in the frame. Boxes are returned in frame pixels.
func (d *YuNetDetector) Detect(frame *gocv.Mat) ([]Detection, error) {
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	size := image.Pt(frame.Cols(), frame.Rows())
	if size != d.inSize {
		d.detector.SetInputSize(size)
		d.inSize = size
	}

	faces := gocv.NewMat()
	defer faces.Close()

	d.detector.Detect(*frame, &faces)

	// YuNet rows: 0-3 box (x, y, w, h), 4-13 landmarks, 14 score
	detections := make([]Detection, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		detections = append(detections, Detection{
			Box: boxFromFloats(
				faces.GetFloatAt(r, 0),
				faces.GetFloatAt(r, 1),
				faces.GetFloatAt(r, 2),
				faces.GetFloatAt(r, 3),
			),
			Confidence: float64(faces.GetFloatAt(r, 14)),
		})
	}

	return detections, nil
}

// Close releases the detector resources.
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}
