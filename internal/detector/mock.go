package detector

import (
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/parallax/internal/signal"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results and latency.
type MockDetector struct {
	mu     sync.Mutex
	faces  []Detection
	script [][]Detection
	err    error
	delay  time.Duration

	calls     atomic.Int64
	inFlight  atomic.Int64
	maxFlight atomic.Int64
	closed    atomic.Bool
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetFaces sets the faces returned by every Detect call once any script is exhausted.
func (m *MockDetector) SetFaces(faces []Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces = faces
}

// SetScript queues per-call results; each Detect consumes one entry.
func (m *MockDetector) SetScript(script [][]Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = script
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetDelay makes each Detect call block for d.
func (m *MockDetector) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Detect returns the pre-configured faces or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]Detection, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxFlight.Load()
		if n <= cur || m.maxFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	m.calls.Add(1)

	m.mu.Lock()
	delay := m.delay
	err := m.err
	faces := m.faces
	if len(m.script) > 0 {
		faces = m.script[0]
		m.script = m.script[1:]
	}
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	out := make([]Detection, len(faces))
	copy(out, faces)
	return out, nil
}

// Calls returns how many times Detect was called.
func (m *MockDetector) Calls() int {
	return int(m.calls.Load())
}

// MaxConcurrent returns the highest number of overlapping Detect calls seen.
func (m *MockDetector) MaxConcurrent() int {
	return int(m.maxFlight.Load())
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	return m.closed.Load()
}

// Close marks the mock closed.
func (m *MockDetector) Close() error {
	m.closed.Store(true)
	return nil
}

// FaceAt returns a square detection of side size centred at (cx, cy).
func FaceAt(cx, cy, size, confidence float64) Detection {
	return Detection{
		Box: signal.BoundingBox{
			X:      cx - size/2,
			Y:      cy - size/2,
			Width:  size,
			Height: size,
		},
		Confidence: confidence,
	}
}
