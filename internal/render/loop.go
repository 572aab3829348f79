// Package render drives the display-cadence loop that eases the camera
// toward the latest face signal and hands each pose to a Renderer.
package render

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ayusman/parallax/internal/log"
	"github.com/ayusman/parallax/internal/signal"
	"github.com/ayusman/parallax/internal/smoother"
)

// DefaultRefreshRate is the render cadence in ticks per second.
const DefaultRefreshRate = 60

// ErrLoopClosed is returned when starting a loop that has been stopped.
var ErrLoopClosed = errors.New("render loop closed")

// Renderer consumes camera poses and draws frames.
type Renderer interface {
	// ApplyCamera sets the pose used for the next frame.
	ApplyCamera(state smoother.CameraState)
	// RenderFrame draws a frame with the current pose.
	RenderFrame() error
	// Dispose releases renderer resources. It is called once, on Stop.
	Dispose() error
}

// Loop advances the smoother once per tick and pushes the resulting pose
// into the renderer. It never waits for detections: each tick takes
// whatever the mailbox holds, which is usually nothing.
type Loop struct {
	smoother *smoother.Smoother
	signals  *signal.Latest
	renderer Renderer
	interval time.Duration
	warn     *rate.Limiter

	mu      sync.Mutex
	running bool
	closed  bool
	stopCh  chan struct{}
	done    chan struct{}

	frames   uint64
	failures uint64
}

// NewLoop creates a loop ticking refreshRate times per second.
func NewLoop(s *smoother.Smoother, signals *signal.Latest, r Renderer, refreshRate int) *Loop {
	if refreshRate <= 0 {
		refreshRate = DefaultRefreshRate
	}
	return &Loop{
		smoother: s,
		signals:  signals,
		renderer: r,
		interval: time.Second / time.Duration(refreshRate),
		warn:     rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

// Interval returns the tick period.
func (l *Loop) Interval() time.Duration {
	return l.interval
}

// Start begins ticking. Starting a running loop does nothing.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLoopClosed
	}
	if l.running {
		return nil
	}

	l.running = true
	l.stopCh = make(chan struct{})
	l.done = make(chan struct{})
	go l.run(l.stopCh, l.done)

	log.Debug(log.Fields{"component": "render", "interval": l.interval.String()}, "[render.Start] loop started")
	return nil
}

// Stop halts the loop, waits for the current tick to finish and disposes
// the renderer. No tick runs after Stop returns. Later calls return nil.
func (l *Loop) Stop() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	running := l.running
	l.running = false
	stopCh, done := l.stopCh, l.done
	l.mu.Unlock()

	if running {
		close(stopCh)
		<-done
	}

	err := l.renderer.Dispose()
	log.Debug(log.Fields{"component": "render", "frames": l.Frames()}, "[render.Stop] loop stopped")
	return err
}

func (l *Loop) run(stopCh, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			l.Step()
		}
	}
}

// Step runs a single tick: take the latest sample, advance the smoother,
// apply the new pose and render. It is exported for deterministic tests;
// only the loop goroutine calls it in production.
func (l *Loop) Step() smoother.CameraState {
	state := l.smoother.Advance(l.signals.Take())
	l.renderer.ApplyCamera(state)

	err := l.renderer.RenderFrame()

	l.mu.Lock()
	l.frames++
	if err != nil {
		l.failures++
	}
	l.mu.Unlock()

	if err != nil && l.warn.Allow() {
		log.Warn(log.Fields{"component": "render", "error": err.Error()}, "[render.Step] frame failed")
	}
	return state
}

// Frames returns how many ticks have run.
func (l *Loop) Frames() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames
}

// Failures returns how many frames the renderer failed to draw.
func (l *Loop) Failures() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failures
}

// Running reports whether the loop is ticking.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
