// Package config loads parallax settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/ayusman/parallax/internal/detector"
	"github.com/ayusman/parallax/internal/log"
	"github.com/ayusman/parallax/internal/sampler"
	"github.com/ayusman/parallax/internal/smoother"
)

// Environment variable names.
const (
	EnvAddr            = "PARALLAX_ADDR"
	EnvDataDir         = "PARALLAX_DATA_DIR"
	EnvStaticDir       = "PARALLAX_STATIC_DIR"
	EnvModelPath       = "PARALLAX_MODEL_PATH"
	EnvCascadePath     = "PARALLAX_CASCADE_PATH"
	EnvSampleInterval  = "PARALLAX_SAMPLE_INTERVAL"
	EnvRefreshHz       = "PARALLAX_REFRESH_HZ"
	EnvDetectTimeout   = "PARALLAX_DETECT_TIMEOUT"
	EnvPreset          = "PARALLAX_PRESET"
	EnvSettle          = "PARALLAX_SETTLE"
	EnvMirror          = "PARALLAX_MIRROR"
	EnvMotionThreshold = "PARALLAX_MOTION_THRESHOLD"
	EnvDevice          = "PARALLAX_DEVICE"
	EnvTray            = "PARALLAX_TRAY"
	EnvLogLevel        = "PARALLAX_LOG_LEVEL"
	EnvLogFile         = "PARALLAX_LOG_FILE"
)

// Config is the process configuration.
type Config struct {
	Addr      string `validate:"required"`
	DataDir   string `validate:"required"`
	StaticDir string

	ModelPath   string
	CascadePath string

	SampleInterval  time.Duration `validate:"gt=0"`
	RefreshHz       int           `validate:"gte=1,lte=240"`
	DetectTimeout   time.Duration `validate:"gt=0"`
	Preset          string        `validate:"oneof=default smooth responsive"`
	Settle          time.Duration `validate:"gte=0"`
	Mirror          bool
	MotionThreshold float64 `validate:"gte=0,lte=100"`
	Device          string

	Tray     bool
	LogLevel string `validate:"oneof=trace debug info warn warning error"`
	LogFile  string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	det := detector.DefaultConfig()
	return Config{
		Addr:           ":8080",
		DataDir:        defaultDataDir(),
		ModelPath:      det.ModelPath,
		CascadePath:    det.CascadePath,
		SampleInterval: sampler.DefaultInterval,
		RefreshHz:      60,
		DetectTimeout:  sampler.DefaultDetectTimeout,
		Preset:         "default",
		Mirror:         true,
		LogLevel:       "info",
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".parallax"
	}
	return filepath.Join(home, ".parallax")
}

// Load reads the given .env files (default ".env"), then the environment,
// and validates the result. Missing .env files are not an error.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Default()
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str(EnvAddr, &cfg.Addr)
	str(EnvDataDir, &cfg.DataDir)
	str(EnvStaticDir, &cfg.StaticDir)
	str(EnvModelPath, &cfg.ModelPath)
	str(EnvCascadePath, &cfg.CascadePath)
	dur(EnvSampleInterval, &cfg.SampleInterval)
	dur(EnvDetectTimeout, &cfg.DetectTimeout)
	dur(EnvSettle, &cfg.Settle)
	str(EnvPreset, &cfg.Preset)
	boolean(EnvMirror, &cfg.Mirror)
	str(EnvDevice, &cfg.Device)
	boolean(EnvTray, &cfg.Tray)
	str(EnvLogLevel, &cfg.LogLevel)
	str(EnvLogFile, &cfg.LogFile)

	if v, ok := os.LookupEnv(EnvRefreshHz); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvRefreshHz, err))
		} else {
			cfg.RefreshHz = n
		}
	}
	if v, ok := os.LookupEnv(EnvMotionThreshold); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvMotionThreshold, err))
		} else {
			cfg.MotionThreshold = f
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("invalid environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field ranges.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Smoothing returns the smoother configuration for the chosen preset,
// with blend factors derived from Settle when it is set.
func (c Config) Smoothing() (smoother.Config, error) {
	cfg, err := smoother.Preset(c.Preset)
	if err != nil {
		return smoother.Config{}, err
	}
	if c.Settle > 0 {
		cfg = cfg.WithSettleTime(c.Settle, c.RenderInterval())
	}
	return cfg, nil
}

// RenderInterval is the render tick period.
func (c Config) RenderInterval() time.Duration {
	if c.RefreshHz <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(c.RefreshHz)
}

// Sampling returns the sampler configuration.
func (c Config) Sampling() sampler.Config {
	cfg := sampler.DefaultConfig()
	cfg.Interval = c.SampleInterval
	cfg.DetectTimeout = c.DetectTimeout
	cfg.MotionThreshold = c.MotionThreshold
	cfg.Mirrored = c.Mirror
	return cfg
}

// Detector returns the detector configuration.
func (c Config) Detector() detector.Config {
	cfg := detector.DefaultConfig()
	cfg.ModelPath = c.ModelPath
	cfg.CascadePath = c.CascadePath
	return cfg
}

// Log returns the logger options.
func (c Config) Log() log.Options {
	return log.Options{Level: c.LogLevel, File: c.LogFile}
}

// DBPath is the sqlite database location.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "parallax.db")
}
