package smoother

import (
	"math"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/ayusman/parallax/internal/signal"
)

// CameraState is the camera transform handed to the renderer.
// FOV is the vertical field of view in degrees.
type CameraState struct {
	Position r3.Vector `json:"position"`
	Target   r3.Vector `json:"target"`
	FOV      float64   `json:"fov"`
}

// Pose is the camera transform implied by a control signal.
type Pose = CameraState

// Map returns the pose implied by sig. It is a pure, continuous function of
// the signal: depth shrinks linearly with |DX| and FOV is clamped, neither of
// which introduces a jump.
func (c Config) Map(sig signal.ControlSignal) Pose {
	return Pose{
		Position: r3.Vector{
			X: c.GainX * sig.DX,
			Y: c.BaseY + c.GainY*sig.DY,
			Z: c.BaseDepth - c.DepthFalloff*math.Abs(sig.DX),
		},
		Target: r3.Vector{
			X: c.LookAt.X + c.LookGainX*sig.DX,
			Y: c.LookAt.Y + c.LookGainY*sig.DY,
			Z: c.LookAt.Z,
		},
		FOV: clamp(c.BaseFOV+c.SizeGain*sig.Size, c.FOVMin, c.FOVMax),
	}
}

// Smoother owns the authoritative CameraState. Advance is its only mutator
// and is meant to be called once per render tick; state reads always return
// copies.
type Smoother struct {
	cfg Config

	mu      sync.RWMutex
	state   CameraState
	last    signal.ControlSignal
	hasLast bool
	goal    Pose
	settled bool
	ticks   uint64
}

// New creates a Smoother seeded with cfg.Initial.
func New(cfg Config) (*Smoother, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Smoother{
		cfg:   cfg,
		state: cfg.Initial,
	}, nil
}

// Advance moves the camera one tick toward the goal and returns the new state.
//
// A non-nil sig replaces the goal. A nil sig means no detection arrived since
// the last tick: the previous goal is held and blending continues toward it.
// A signal with a non-finite component is treated the same as nil.
// Before the first signal the seeded pose is returned unchanged.
func (s *Smoother) Advance(sig *signal.ControlSignal) CameraState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticks++

	if sig != nil && sig.Finite() {
		s.last = *sig
		s.hasLast = true
		s.goal = s.cfg.Map(*sig)
		s.settled = false
	}

	if !s.hasLast || s.settled {
		return s.state
	}

	if s.withinTolerance() {
		s.settled = true
		return s.state
	}

	s.state.Position = lerp(s.state.Position, s.goal.Position, s.cfg.PositionAlpha)
	s.state.Target = lerp(s.state.Target, s.goal.Target, s.cfg.TargetAlpha)
	s.state.FOV = s.state.FOV*(1-s.cfg.FOVAlpha) + s.goal.FOV*s.cfg.FOVAlpha
	s.state.FOV = clamp(s.state.FOV, s.cfg.FOVMin, s.cfg.FOVMax)

	return s.state
}

func (s *Smoother) withinTolerance() bool {
	tol := s.cfg.SettleTolerance
	return s.state.Position.Distance(s.goal.Position) <= tol &&
		s.state.Target.Distance(s.goal.Target) <= tol &&
		math.Abs(s.state.FOV-s.goal.FOV) <= tol
}

// State returns a copy of the current camera state.
func (s *Smoother) State() CameraState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Goal returns the pose the camera is heading to, and false before the first
// signal.
func (s *Smoother) Goal() (Pose, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.goal, s.hasLast
}

// LastSignal returns the most recent control signal, and false before the
// first signal.
func (s *Smoother) LastSignal() (signal.ControlSignal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.hasLast
}

// Settled returns true once the camera is within tolerance of its goal.
func (s *Smoother) Settled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settled
}

// Ticks returns how many times Advance has been called.
func (s *Smoother) Ticks() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticks
}

// Config returns the configuration the smoother was built with.
func (s *Smoother) Config() Config {
	return s.cfg
}

func lerp(from, to r3.Vector, alpha float64) r3.Vector {
	return from.Add(to.Sub(from).Mul(alpha))
}

// clamp limits a value to a range
func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
