// Package viewer wires capture, sampling, smoothing and rendering into one
// mountable face-driven camera.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/parallax/internal/capture"
	"github.com/ayusman/parallax/internal/detector"
	"github.com/ayusman/parallax/internal/log"
	"github.com/ayusman/parallax/internal/render"
	"github.com/ayusman/parallax/internal/sampler"
	"github.com/ayusman/parallax/internal/signal"
	"github.com/ayusman/parallax/internal/smoother"
	"github.com/ayusman/parallax/internal/store"
)

var (
	// ErrUnmounted is returned when mounting a viewer that was already torn down.
	ErrUnmounted = errors.New("viewer unmounted")
	// ErrNoDevices is returned when no capture device can be found.
	ErrNoDevices = errors.New("no capture devices")
)

// Config holds configuration options for the viewer.
type Config struct {
	Store    *store.Store
	Backend  capture.Backend
	Detector detector.Detector
	Renderer render.Renderer

	Smoothing   smoother.Config
	Sampling    sampler.Config
	RefreshRate int
	MaxProbe    int

	// Device is the preferred device ID. It wins over the stored selection.
	Device string
	// Preset names the smoothing preset, for the session log.
	Preset string
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Session   string        `json:"session"`
	Device    string        `json:"device"`
	State     string        `json:"state"`
	Sampler   sampler.Stats `json:"sampler"`
	Frames    uint64        `json:"frames"`
	Settled   bool          `json:"settled"`
	Following bool          `json:"following"`
}

// Viewer owns one camera pipeline. Device switches and capture failures
// never touch the camera state; the render loop keeps easing toward the
// last known target.
type Viewer struct {
	config   Config
	source   *capture.Source
	smoother *smoother.Smoother
	signals  *signal.Latest
	sampler  *sampler.Sampler
	loop     *render.Loop
	detector detector.Detector

	mu        sync.RWMutex
	mounted   bool
	unmounted bool
	following bool
	session   string
	lastErr   error
	handlers  []func(error)
	onDevice  []func(string)
	onFollow  []func(bool)
}

// New creates an unmounted viewer.
func New(config Config) (*Viewer, error) {
	if config.Detector == nil {
		return nil, errors.New("viewer: detector is required")
	}
	if config.Renderer == nil {
		return nil, errors.New("viewer: renderer is required")
	}
	if config.Backend == nil {
		config.Backend = capture.NewBackend(capture.DefaultWidth, capture.DefaultHeight)
	}
	if config.Preset == "" {
		config.Preset = "default"
	}

	sm, err := smoother.New(config.Smoothing)
	if err != nil {
		return nil, fmt.Errorf("viewer: %w", err)
	}

	signals := &signal.Latest{}
	source := capture.NewSource(config.Backend, config.MaxProbe)

	v := &Viewer{
		config:    config,
		source:    source,
		smoother:  sm,
		signals:   signals,
		sampler:   sampler.New(config.Sampling, source, config.Detector, signals),
		loop:      render.NewLoop(sm, signals, config.Renderer, config.RefreshRate),
		detector:  config.Detector,
		following: true,
	}

	source.OnError(v.report)
	source.OnResolution(func(size signal.FrameSize) {
		log.Info(log.Fields{"component": "viewer", "width": size.Width, "height": size.Height}, "[viewer] stream resolution")
	})

	return v, nil
}

// Mount starts the pipeline: picks a device, starts sampling and starts the
// render loop. Capture failures are reported, not returned; the camera
// renders at its seeded pose until a device works.
func (v *Viewer) Mount(ctx context.Context) error {
	v.mu.Lock()
	if v.unmounted {
		v.mu.Unlock()
		return ErrUnmounted
	}
	if v.mounted {
		v.mu.Unlock()
		return nil
	}
	v.mounted = true
	v.session = uuid.New().String()
	v.mu.Unlock()

	v.startSession()

	following := true
	if st := v.config.Store; st != nil {
		f, err := st.Settings().GetBool(store.SettingFollowing, true)
		if err != nil {
			log.Warn(log.Fields{"component": "viewer", "error": err.Error()}, "[viewer.Mount] failed to read follow setting")
		}
		following = f
	}
	v.applyFollowing(following)

	if id, err := v.initialDevice(); err != nil {
		v.report(err)
	} else if err := v.switchTo(id, false); err != nil {
		log.Warn(log.Fields{"component": "viewer", "device": id, "error": err.Error()}, "[viewer.Mount] initial device failed")
	}

	if err := v.sampler.Start(ctx); err != nil {
		return err
	}
	if err := v.loop.Start(); err != nil {
		v.sampler.Stop()
		return err
	}

	log.Info(log.Fields{"component": "viewer", "session": v.SessionID()}, "[viewer.Mount] viewer mounted")
	return nil
}

// initialDevice picks the configured device, then the stored selection, then
// the first enumerated device.
func (v *Viewer) initialDevice() (string, error) {
	devices := v.source.ListDevices()

	candidates := []string{v.config.Device}
	if st := v.config.Store; st != nil {
		if id, err := st.Settings().Get(store.SettingDevice); err == nil {
			candidates = append(candidates, id)
		}
	}
	for _, id := range candidates {
		if id != "" && hasDevice(devices, id) {
			return id, nil
		}
	}
	if len(devices) == 0 {
		return "", ErrNoDevices
	}
	return devices[0].ID, nil
}

func hasDevice(devices []capture.Device, id string) bool {
	for _, d := range devices {
		if d.ID == id {
			return true
		}
	}
	return false
}

// Unmount stops the sampler and render loop, disposes the renderer, closes
// the capture stream and detector and ends the session. The viewer cannot
// be mounted again. A detector call that outlives the sampler's drain
// timeout is abandoned, the detector is left open and the returned error
// wraps sampler.ErrDetectorStalled.
func (v *Viewer) Unmount() error {
	v.mu.Lock()
	if v.unmounted {
		v.mu.Unlock()
		return nil
	}
	v.unmounted = true
	mounted := v.mounted
	v.mounted = false
	v.mu.Unlock()

	var stalled bool
	var g errgroup.Group
	g.Go(func() error {
		if err := v.sampler.Close(); err != nil {
			stalled = errors.Is(err, sampler.ErrDetectorStalled)
			return err
		}
		return nil
	})
	g.Go(func() error {
		return v.loop.Stop()
	})
	err := g.Wait()

	if cerr := v.source.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if stalled {
		// Closing it would free models under the running call.
		log.Warn(log.Fields{"component": "viewer"}, "[viewer.Unmount] detector still busy, leaving it open")
	} else if derr := v.detector.Close(); derr != nil && err == nil {
		err = derr
	}

	if mounted {
		v.finishSession()
	}

	log.Info(log.Fields{"component": "viewer", "frames": v.loop.Frames()}, "[viewer.Unmount] viewer unmounted")
	return err
}

// Mounted reports whether the pipeline is running.
func (v *Viewer) Mounted() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.mounted
}

// Devices lists capture devices and the currently selected ID.
func (v *Viewer) Devices() ([]capture.Device, string) {
	devices := v.source.ListDevices()
	selected := ""
	if d, ok := v.source.Device(); ok {
		selected = d.ID
	}
	return devices, selected
}

// SelectDevice switches capture to id and remembers the choice. The
// current stream is released before the new one is requested. Camera
// state is left untouched.
func (v *Viewer) SelectDevice(id string) error {
	if !hasDevice(v.source.ListDevices(), id) {
		return fmt.Errorf("%w: %q", capture.ErrDeviceNotFound, id)
	}
	return v.switchTo(id, true)
}

// NextDevice cycles to the device after the current one.
func (v *Viewer) NextDevice() error {
	devices, selected := v.Devices()
	if len(devices) == 0 {
		return ErrNoDevices
	}
	next := 0
	for i, d := range devices {
		if d.ID == selected {
			next = (i + 1) % len(devices)
			break
		}
	}
	return v.SelectDevice(devices[next].ID)
}

func (v *Viewer) switchTo(id string, persist bool) error {
	if err := v.source.Switch(id); err != nil {
		return err
	}

	if st := v.config.Store; st != nil {
		if persist {
			if serr := st.Settings().Set(store.SettingDevice, id); serr != nil {
				log.Warn(log.Fields{"component": "viewer", "error": serr.Error()}, "[viewer.SelectDevice] failed to save device")
			}
		}
		if session := v.SessionID(); session != "" {
			if serr := st.Sessions().SetDevice(session, id); serr != nil {
				log.Debug(log.Fields{"component": "viewer", "error": serr.Error()}, "[viewer.SelectDevice] failed to record session device")
			}
			if serr := st.Sessions().AddEvent(session, store.EventDevice, id); serr != nil {
				log.Debug(log.Fields{"component": "viewer", "error": serr.Error()}, "[viewer.SelectDevice] failed to record device event")
			}
		}
	}
	log.Info(log.Fields{"component": "viewer", "device": id}, "[viewer.SelectDevice] device selected")

	v.mu.RLock()
	onDevice := append([]func(string){}, v.onDevice...)
	v.mu.RUnlock()
	for _, fn := range onDevice {
		fn(id)
	}
	return nil
}

// OnDeviceChange registers a handler called after each successful switch.
func (v *Viewer) OnDeviceChange(fn func(id string)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onDevice = append(v.onDevice, fn)
}

// Camera returns a copy of the current camera state.
func (v *Viewer) Camera() smoother.CameraState {
	return v.smoother.State()
}

// Settled reports whether the camera has converged on its target.
func (v *Viewer) Settled() bool {
	return v.smoother.Settled()
}

// SetFollowing turns face following on or off and remembers the choice.
// While off the camera eases to and holds the last target.
func (v *Viewer) SetFollowing(enabled bool) {
	v.applyFollowing(enabled)
	if st := v.config.Store; st != nil {
		if err := st.Settings().SetBool(store.SettingFollowing, enabled); err != nil {
			log.Warn(log.Fields{"component": "viewer", "error": err.Error()}, "[viewer.SetFollowing] failed to save setting")
		}
	}

	v.mu.RLock()
	onFollow := append([]func(bool){}, v.onFollow...)
	v.mu.RUnlock()
	for _, fn := range onFollow {
		fn(enabled)
	}
}

// OnFollowingChange registers a handler called after SetFollowing.
func (v *Viewer) OnFollowingChange(fn func(enabled bool)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onFollow = append(v.onFollow, fn)
}

func (v *Viewer) applyFollowing(enabled bool) {
	v.mu.Lock()
	v.following = enabled
	v.mu.Unlock()

	if enabled {
		v.sampler.Resume()
	} else {
		v.sampler.Pause()
	}
}

// Following reports whether face following is on.
func (v *Viewer) Following() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.following
}

// OnError registers a handler for capture errors.
func (v *Viewer) OnError(fn func(error)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.handlers = append(v.handlers, fn)
}

// LastError returns the most recent capture error, if any.
func (v *Viewer) LastError() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastErr
}

func (v *Viewer) report(err error) {
	v.mu.Lock()
	v.lastErr = err
	session := v.session
	handlers := append([]func(error){}, v.handlers...)
	v.mu.Unlock()

	log.Warn(log.Fields{"component": "viewer", "error": err.Error()}, "[viewer] capture error")

	if st := v.config.Store; st != nil && session != "" {
		if serr := st.Sessions().AddEvent(session, store.EventError, err.Error()); serr != nil {
			log.Debug(log.Fields{"component": "viewer", "error": serr.Error()}, "[viewer] failed to record error event")
		}
	}
	for _, fn := range handlers {
		fn(err)
	}
}

// Preview returns the latest annotated JPEG preview and its sequence number.
func (v *Viewer) Preview() ([]byte, uint64) {
	return v.sampler.Preview()
}

// SessionID returns the current session ID, or "" before Mount.
func (v *Viewer) SessionID() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.session
}

// Stats returns a snapshot of pipeline counters.
func (v *Viewer) Stats() Stats {
	device := ""
	if d, ok := v.source.Device(); ok {
		device = d.ID
	}
	return Stats{
		Session:   v.SessionID(),
		Device:    device,
		State:     v.source.State().String(),
		Sampler:   v.sampler.Stats(),
		Frames:    v.loop.Frames(),
		Settled:   v.smoother.Settled(),
		Following: v.Following(),
	}
}

func (v *Viewer) startSession() {
	st := v.config.Store
	if st == nil {
		return
	}
	sess := &store.Session{ID: v.SessionID(), Preset: v.config.Preset}
	if err := st.Sessions().Create(sess); err != nil {
		log.Warn(log.Fields{"component": "viewer", "error": err.Error()}, "[viewer.Mount] failed to create session")
	}
}

func (v *Viewer) finishSession() {
	st := v.config.Store
	if st == nil {
		return
	}
	s := v.sampler.Stats()
	totals := store.SessionTotals{
		Samples:    int64(s.Samples),
		Detections: int64(s.Detections),
		Misses:     int64(s.Misses),
		Timeouts:   int64(s.Timeouts),
		Frames:     int64(v.loop.Frames()),
	}
	if err := st.Sessions().Finish(v.SessionID(), totals); err != nil {
		log.Warn(log.Fields{"component": "viewer", "error": err.Error()}, "[viewer.Unmount] failed to finish session")
	}
}
