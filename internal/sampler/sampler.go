// Package sampler runs face detection at a fixed period on the latest camera
// frame and publishes the normalized result for the render loop.
package sampler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/time/rate"

	"github.com/ayusman/parallax/internal/capture"
	"github.com/ayusman/parallax/internal/detector"
	"github.com/ayusman/parallax/internal/log"
	"github.com/ayusman/parallax/internal/signal"
)

// Sampler timing defaults.
const (
	DefaultInterval      = 100 * time.Millisecond
	DefaultDetectTimeout = 500 * time.Millisecond
	DefaultDrainTimeout  = 2 * time.Second
)

var (
	// ErrRunning is returned by Start when the sampler is already running.
	ErrRunning = errors.New("sampler already running")
	// ErrDetectorStalled is returned by Stop when a detector call is still
	// running after DrainTimeout. The call is abandoned and the detector
	// must not be closed.
	ErrDetectorStalled = errors.New("detector call still running")
)

// FrameSource supplies frames to sample. The caller of ReadFrame owns the
// returned Mat.
type FrameSource interface {
	ReadFrame() (*gocv.Mat, error)
}

var _ FrameSource = capture.Camera(nil)

// Config controls sampling.
type Config struct {
	// Interval is the detection period.
	Interval time.Duration
	// DetectTimeout abandons a detection that runs longer than this.
	DetectTimeout time.Duration
	// DrainTimeout bounds how long Stop waits for an in-flight detection.
	DrainTimeout time.Duration
	// MotionThreshold, when positive, skips detection on frames where fewer
	// than this percent of pixels changed.
	MotionThreshold float64
	// Mirrored selects the mirrored sign convention for the control signal.
	Mirrored bool
	// Annotate draws detection boxes onto the preview frame.
	Annotate bool
}

// DefaultConfig returns the default sampling configuration.
func DefaultConfig() Config {
	return Config{
		Interval:      DefaultInterval,
		DetectTimeout: DefaultDetectTimeout,
		DrainTimeout:  DefaultDrainTimeout,
		Mirrored:      true,
		Annotate:      true,
	}
}

// Outcome describes what a single tick did.
type Outcome int

const (
	// OutcomeSkipped means no frame was ready or sampling is paused.
	OutcomeSkipped Outcome = iota
	// OutcomeBusy means the previous detection was still running.
	OutcomeBusy
	// OutcomeStill means the motion gate judged the frame unchanged.
	OutcomeStill
	// OutcomeDetected means a control signal was published.
	OutcomeDetected
	// OutcomeAbsent means an absent sample was published.
	OutcomeAbsent
	// OutcomeTimeout means the detection was abandoned and absent published.
	OutcomeTimeout
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeBusy:
		return "busy"
	case OutcomeStill:
		return "still"
	case OutcomeDetected:
		return "detected"
	case OutcomeAbsent:
		return "absent"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Stats are cumulative sampler counters.
type Stats struct {
	Samples    uint64 `json:"samples"`
	Detections uint64 `json:"detections"`
	Misses     uint64 `json:"misses"`
	Timeouts   uint64 `json:"timeouts"`
	Skipped    uint64 `json:"skipped"`
	Busy       uint64 `json:"busy"`
}

type result struct {
	dets []detector.Detection
	err  error
}

// Sampler periodically detects the primary face and writes the resulting
// control signal, or an absent sample, into a signal.Latest mailbox.
//
// At most one detector call is in flight at any time.
type Sampler struct {
	config     Config
	source     FrameSource
	detector   detector.Detector
	normalizer signal.Normalizer
	out        *signal.Latest
	gate       *capture.MotionGate
	warn       *rate.Limiter

	inFlight atomic.Bool
	paused   atomic.Bool
	workers  sync.WaitGroup

	samples    atomic.Uint64
	detections atomic.Uint64
	misses     atomic.Uint64
	timeouts   atomic.Uint64
	skipped    atomic.Uint64
	busy       atomic.Uint64

	previewMu  sync.RWMutex
	preview    []byte
	previewSeq uint64

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
}

// New creates a sampler reading from source and publishing into out.
func New(config Config, source FrameSource, d detector.Detector, out *signal.Latest) *Sampler {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.DetectTimeout <= 0 {
		config.DetectTimeout = DefaultDetectTimeout
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = DefaultDrainTimeout
	}

	s := &Sampler{
		config:     config,
		source:     source,
		detector:   d,
		normalizer: signal.NewNormalizer(!config.Mirrored),
		out:        out,
		warn:       rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
	if config.MotionThreshold > 0 {
		s.gate = capture.NewMotionGate(config.MotionThreshold)
	}
	return s
}

// Start runs the sampling loop in a goroutine until Stop or ctx is done.
func (s *Sampler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopCh != nil {
		return ErrRunning
	}
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(ctx, s.stopCh, s.done)

	log.Info(log.Fields{"component": "sampler", "interval": s.config.Interval.String()}, "[sampler.Start] sampling started")
	return nil
}

// Stop halts the loop and waits up to DrainTimeout for any in-flight
// detection. A nil return means the detector is idle and can be closed;
// ErrDetectorStalled means the call was abandoned and is still running.
func (s *Sampler) Stop() error {
	s.mu.Lock()
	stopCh, done := s.stopCh, s.done
	s.stopCh, s.done = nil, nil
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-done
	}

	drained := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(drained)
	}()

	timer := time.NewTimer(s.config.DrainTimeout)
	defer timer.Stop()

	select {
	case <-drained:
	case <-timer.C:
		log.Warn(log.Fields{"component": "sampler", "timeout": s.config.DrainTimeout.String()}, "[sampler.Stop] abandoning stalled detection")
		return ErrDetectorStalled
	}

	if stopCh == nil {
		return nil
	}
	if s.gate != nil {
		s.gate.Reset()
	}
	log.Info(log.Fields{"component": "sampler"}, "[sampler.Stop] sampling stopped")
	return nil
}

// Close stops the sampler and releases the motion gate.
func (s *Sampler) Close() error {
	err := s.Stop()
	if s.gate != nil {
		s.gate.Close()
	}
	return err
}

func (s *Sampler) run(ctx context.Context, stopCh, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Pause stops publishing samples until Resume. The render loop keeps
// easing toward whatever target it already holds.
func (s *Sampler) Pause() {
	s.paused.Store(true)
}

// Resume restarts sampling after Pause.
func (s *Sampler) Resume() {
	s.paused.Store(false)
}

// Paused reports whether sampling is paused.
func (s *Sampler) Paused() bool {
	return s.paused.Load()
}

// Tick runs one sampling step.
func (s *Sampler) Tick(ctx context.Context) Outcome {
	if s.paused.Load() {
		s.skipped.Add(1)
		return OutcomeSkipped
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.busy.Add(1)
		return OutcomeBusy
	}

	frame, err := s.source.ReadFrame()
	if err != nil || frame == nil || frame.Empty() {
		if frame != nil {
			frame.Close()
		}
		s.inFlight.Store(false)
		s.skipped.Add(1)
		return OutcomeSkipped
	}

	if s.gate != nil {
		if moved, _ := s.gate.Check(frame); !moved {
			frame.Close()
			s.inFlight.Store(false)
			return OutcomeStill
		}
	}

	s.samples.Add(1)
	size := signal.FrameSize{Width: frame.Cols(), Height: frame.Rows()}

	ch := make(chan result, 1)
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		defer s.inFlight.Store(false)
		defer frame.Close()

		dets, err := s.detector.Detect(frame)
		s.updatePreview(frame, dets)
		ch <- result{dets: dets, err: err}
	}()

	timer := time.NewTimer(s.config.DetectTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return s.publish(res, size)
	case <-timer.C:
		s.timeouts.Add(1)
		s.misses.Add(1)
		s.out.Put(nil)
		s.warnf(log.Fields{"timeout": s.config.DetectTimeout.String()}, "[sampler.Tick] detection timed out")
		return OutcomeTimeout
	case <-ctx.Done():
		return OutcomeSkipped
	}
}

func (s *Sampler) publish(res result, size signal.FrameSize) Outcome {
	if res.err != nil {
		s.misses.Add(1)
		s.out.Put(nil)
		s.warnf(log.Fields{"error": res.err.Error()}, "[sampler.Tick] detection failed")
		return OutcomeAbsent
	}

	primary := detector.SelectPrimary(res.dets)
	if primary == nil {
		s.misses.Add(1)
		s.out.Put(nil)
		return OutcomeAbsent
	}

	sig, ok := s.normalizer.Normalize(primary.Box, size)
	if !ok {
		s.misses.Add(1)
		s.out.Put(nil)
		return OutcomeAbsent
	}

	s.detections.Add(1)
	s.out.Put(&sig)
	return OutcomeDetected
}

func (s *Sampler) warnf(fields log.Fields, msg string) {
	if !s.warn.Allow() {
		return
	}
	fields["component"] = "sampler"
	log.Warn(fields, msg)
}

// Stats returns a snapshot of the sampler counters.
func (s *Sampler) Stats() Stats {
	return Stats{
		Samples:    s.samples.Load(),
		Detections: s.detections.Load(),
		Misses:     s.misses.Load(),
		Timeouts:   s.timeouts.Load(),
		Skipped:    s.skipped.Load(),
		Busy:       s.busy.Load(),
	}
}

// InFlight reports whether a detector call is currently running.
func (s *Sampler) InFlight() bool {
	return s.inFlight.Load()
}
