package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Motion gate constants
const (
	// GaussianBlurSize is the kernel size used to suppress sensor noise.
	GaussianBlurSize = 21
	// DiffThreshold is the per-pixel intensity change that counts as motion.
	DiffThreshold = 25
	// gateWidth is the width frames are downscaled to before differencing.
	gateWidth = 160
)

// MotionGate reports whether a frame differs enough from the last one to be
// worth running face detection on. A still scene keeps its previous face
// estimate, so skipping detection there costs nothing.
type MotionGate struct {
	mu        sync.Mutex
	threshold float64
	prev      gocv.Mat
	prevSize  image.Point
	primed    bool
}

// NewMotionGate creates a gate that opens when more than threshold percent
// of pixels changed. A threshold of 0 or less opens the gate on every frame.
func NewMotionGate(threshold float64) *MotionGate {
	return &MotionGate{
		threshold: threshold,
		prev:      gocv.NewMat(),
	}
}

// Check compares frame against the previous one. The first frame, and the
// first frame after a resolution change, always opens the gate.
func (m *MotionGate) Check(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}
	if m.threshold <= 0 {
		return true, 100
	}

	size := image.Point{X: frame.Cols(), Y: frame.Rows()}
	if m.primed && size != m.prevSize {
		m.resetLocked()
	}

	small := downscale(frame)
	defer small.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	if small.Channels() > 1 {
		gocv.CvtColor(small, &gray, gocv.ColorBGRToGray)
	} else {
		small.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: GaussianBlurSize, Y: GaussianBlurSize}, 0, 0, gocv.BorderDefault)

	if !m.primed {
		blurred.CopyTo(&m.prev)
		m.prevSize = size
		m.primed = true
		return true, 100
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prev, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, DiffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0
	blurred.CopyTo(&m.prev)

	return changed > m.threshold, changed
}

// downscale shrinks wide frames to gateWidth, keeping the aspect ratio.
func downscale(frame *gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	if frame.Cols() <= gateWidth {
		frame.CopyTo(&out)
		return out
	}
	h := frame.Rows() * gateWidth / frame.Cols()
	if h < 1 {
		h = 1
	}
	gocv.Resize(*frame, &out, image.Point{X: gateWidth, Y: h}, 0, 0, gocv.InterpolationArea)
	return out
}

// Reset drops the baseline so the next frame opens the gate.
func (m *MotionGate) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *MotionGate) resetLocked() {
	if !m.prev.Empty() {
		m.prev.Close()
		m.prev = gocv.NewMat()
	}
	m.prevSize = image.Point{}
	m.primed = false
}

// Close releases the baseline frame.
func (m *MotionGate) Close() {
	m.Reset()
}

// SetThreshold changes the gate threshold. Negative values are ignored.
func (m *MotionGate) SetThreshold(threshold float64) {
	if threshold < 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = threshold
}

// Threshold returns the current gate threshold.
func (m *MotionGate) Threshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threshold
}
