package render

import (
	"sync"

	"github.com/ayusman/parallax/internal/smoother"
)

// Recorder is a Renderer that keeps every applied pose. It backs tests and
// headless runs.
type Recorder struct {
	mu       sync.Mutex
	states   []smoother.CameraState
	frames   int
	disposed int
	err      error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) ApplyCamera(state smoother.CameraState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *Recorder) RenderFrame() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames++
	return r.err
}

func (r *Recorder) Dispose() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposed++
	return nil
}

// SetError makes RenderFrame fail with err.
func (r *Recorder) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// States returns a copy of every applied pose.
func (r *Recorder) States() []smoother.CameraState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]smoother.CameraState, len(r.states))
	copy(out, r.states)
	return out
}

// Frames returns how many frames were rendered.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Disposed returns how many times Dispose was called.
func (r *Recorder) Disposed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disposed
}
