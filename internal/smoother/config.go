// Package smoother owns the viewer camera state and blends it toward the pose
// implied by the latest face control signal.
package smoother

import (
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang/geo/r3"
)

// Config holds all tunable parameters for camera smoothing.
// It is fixed once a Smoother is built.
type Config struct {
	// Blend factors (fraction of remaining distance covered per render tick)
	PositionAlpha float64 `validate:"gt=0,lte=1"`
	TargetAlpha   float64 `validate:"gt=0,lte=1"`
	FOVAlpha      float64 `validate:"gt=0,lte=1"`

	// Field of view in degrees
	FOVMin   float64 `validate:"gt=0,ltefield=FOVMax"`
	FOVMax   float64 `validate:"lt=180"`
	BaseFOV  float64 `validate:"gt=0"`
	SizeGain float64 // Degrees added per unit of face size (negative zooms in)

	// Position mapping
	GainX        float64 // World units per unit DX
	GainY        float64 // World units per unit DY
	BaseY        float64 // Camera height at DY=0
	BaseDepth    float64 // Camera Z at DX=0
	DepthFalloff float64 `validate:"gte=0"` // Z pulled in per unit |DX|

	// Look-at mapping
	LookAt    r3.Vector
	LookGainX float64
	LookGainY float64

	// Seeded pose before the first detection
	Initial CameraState

	// Stop writing once every channel is within this distance of the goal
	SettleTolerance float64 `validate:"gte=0"`
}

// DefaultConfig returns position-only smoothing:
// the camera slides 5% of the way toward the face-implied position every
// frame and always looks at the origin.
func DefaultConfig() Config {
	return Config{
		PositionAlpha: 0.05,
		TargetAlpha:   0.05,
		FOVAlpha:      0.05,

		FOVMin:   30,
		FOVMax:   60,
		BaseFOV:  40,
		SizeGain: 0,

		GainX:        4,
		GainY:        4,
		BaseY:        0,
		BaseDepth:    2,
		DepthFalloff: 0,

		LookAt: r3.Vector{},

		Initial: CameraState{
			Position: r3.Vector{X: 0, Y: 2, Z: 3},
			Target:   r3.Vector{},
			FOV:      40,
		},

		SettleTolerance: 1e-4,
	}
}

// SmoothConfig returns slower blending with face-size zoom.
func SmoothConfig() Config {
	cfg := DefaultConfig()
	cfg.PositionAlpha = 0.03
	cfg.FOVAlpha = 0.02
	cfg.FOVMax = 55
	cfg.SizeGain = -40 // Closer face narrows the view
	return cfg
}

// ResponsiveConfig returns fast blending with zoom and look-at drift.
func ResponsiveConfig() Config {
	cfg := DefaultConfig()
	cfg.PositionAlpha = 0.12
	cfg.TargetAlpha = 0.08
	cfg.FOVAlpha = 0.06
	cfg.SizeGain = -40
	cfg.DepthFalloff = 1.0
	cfg.LookGainX = 0.5
	cfg.LookGainY = 0.5
	return cfg
}

// Preset returns the named configuration.
func Preset(name string) (Config, error) {
	switch name {
	case "", "default":
		return DefaultConfig(), nil
	case "smooth":
		return SmoothConfig(), nil
	case "responsive":
		return ResponsiveConfig(), nil
	default:
		return Config{}, fmt.Errorf("unknown smoothing preset %q", name)
	}
}

// WithSettleTime returns a copy of cfg whose blend factors settle to within
// 1% of a new goal in roughly settle, when advanced every tick.
func (c Config) WithSettleTime(settle, tick time.Duration) Config {
	a := BlendFactor(settle, tick, 0.01)
	c.PositionAlpha = a
	c.TargetAlpha = a
	c.FOVAlpha = a
	return c
}

// BlendFactor returns the per-tick alpha that leaves residual of the starting
// distance after settle has elapsed at one blend per tick.
func BlendFactor(settle, tick time.Duration, residual float64) float64 {
	if settle <= 0 || tick <= 0 || settle <= tick {
		return 1
	}
	if residual <= 0 || residual >= 1 {
		residual = 0.01
	}
	return 1 - math.Pow(residual, float64(tick)/float64(settle))
}

var validate = validator.New()

// Validate checks the configuration for values the smoother cannot use.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid smoothing config: %w", err)
	}
	if c.Initial.FOV < c.FOVMin || c.Initial.FOV > c.FOVMax {
		return fmt.Errorf("invalid smoothing config: initial fov %v outside [%v, %v]", c.Initial.FOV, c.FOVMin, c.FOVMax)
	}
	return nil
}
