package render

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ayusman/parallax/internal/signal"
	"github.com/ayusman/parallax/internal/smoother"
)

func newTestLoop(t *testing.T, hz int) (*Loop, *smoother.Smoother, *signal.Latest, *Recorder) {
	t.Helper()
	s, err := smoother.New(smoother.DefaultConfig())
	if err != nil {
		t.Fatalf("smoother.New() error = %v", err)
	}
	signals := &signal.Latest{}
	rec := NewRecorder()
	return NewLoop(s, signals, rec, hz), s, signals, rec
}

func TestLoop_StepAdvancesAndRenders(t *testing.T) {
	l, s, signals, rec := newTestLoop(t, 60)
	initial := s.State()

	// Before any signal the pose is held at the seed.
	l.Step()
	if got := s.State(); got != initial {
		t.Errorf("State() moved without a signal: %+v", got)
	}

	signals.Put(&signal.ControlSignal{DX: -0.25, DY: 0, Size: 0.2})
	first := l.Step()
	if first == initial {
		t.Fatal("Step() with a signal did not move the camera")
	}

	// The signal is consumed once; later ticks keep easing toward it.
	second := l.Step()
	if second == first {
		t.Error("Step() after the signal was taken stopped easing")
	}
	goal, ok := s.Goal()
	if !ok {
		t.Fatal("Goal() not set after a signal")
	}
	d1 := math.Abs(first.Position.X - goal.Position.X)
	d2 := math.Abs(second.Position.X - goal.Position.X)
	if d2 >= d1 {
		t.Errorf("distance to goal grew: %f -> %f", d1, d2)
	}

	states := rec.States()
	if len(states) != 3 || rec.Frames() != 3 {
		t.Fatalf("recorder saw %d poses / %d frames, want 3", len(states), rec.Frames())
	}
	if states[2] != second {
		t.Errorf("renderer got %+v, want %+v", states[2], second)
	}
	if l.Frames() != 3 {
		t.Errorf("Frames() = %d, want 3", l.Frames())
	}
}

func TestLoop_RenderErrorsDoNotStop(t *testing.T) {
	l, _, _, rec := newTestLoop(t, 200)
	rec.SetError(errors.New("context lost"))

	if err := l.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if l.Frames() < 2 {
		t.Errorf("Frames() = %d, loop stopped after a render error", l.Frames())
	}
	if l.Failures() != l.Frames() {
		t.Errorf("Failures() = %d, want %d", l.Failures(), l.Frames())
	}
}

func TestLoop_StartIsIdempotent(t *testing.T) {
	l, _, _, _ := newTestLoop(t, 100)

	if err := l.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := l.Start(); err != nil {
		t.Errorf("second Start() error = %v", err)
	}
	if !l.Running() {
		t.Error("Running() = false after Start")
	}
	l.Stop()
}

func TestLoop_StopDisposesOnceAndHalts(t *testing.T) {
	l, _, _, rec := newTestLoop(t, 200)

	if err := l.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(40 * time.Millisecond)

	if err := l.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	frames := rec.Frames()
	if frames == 0 {
		t.Fatal("no frames rendered while running")
	}

	time.Sleep(40 * time.Millisecond)
	if got := rec.Frames(); got != frames {
		t.Errorf("frames rendered after Stop: %d -> %d", frames, got)
	}

	if err := l.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
	if rec.Disposed() != 1 {
		t.Errorf("Disposed() = %d, want 1", rec.Disposed())
	}
	if err := l.Start(); !errors.Is(err, ErrLoopClosed) {
		t.Errorf("Start() after Stop error = %v, want ErrLoopClosed", err)
	}
	if l.Running() {
		t.Error("Running() = true after Stop")
	}
}

func TestLoop_StopWithoutStart(t *testing.T) {
	l, _, _, rec := newTestLoop(t, 60)

	if err := l.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if rec.Disposed() != 1 {
		t.Errorf("Disposed() = %d, want 1", rec.Disposed())
	}
}

func TestNewLoop_Interval(t *testing.T) {
	tests := []struct {
		hz   int
		want time.Duration
	}{
		{hz: 60, want: time.Second / 60},
		{hz: 120, want: time.Second / 120},
		{hz: 0, want: time.Second / DefaultRefreshRate},
		{hz: -5, want: time.Second / DefaultRefreshRate},
	}
	for _, tt := range tests {
		l, _, _, _ := newTestLoop(t, tt.hz)
		if got := l.Interval(); got != tt.want {
			t.Errorf("NewLoop(%d).Interval() = %v, want %v", tt.hz, got, tt.want)
		}
	}
}
