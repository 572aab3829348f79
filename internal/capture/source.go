package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/parallax/internal/signal"
)

// State is the capture source lifecycle state.
type State int

const (
	StateUnbound State = iota
	StateEnumerating
	StateBound
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateEnumerating:
		return "enumerating"
	case StateBound:
		return "bound"
	case StateStreaming:
		return "streaming"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// maxReadFailures is how many consecutive failed reads mark a device lost.
const maxReadFailures = 3

// Source adapts a Backend into the viewer's capture lifecycle:
// Unbound -> Enumerating -> Bound -> Streaming -> Unbound.
//
// Failures are returned and also reported through the OnError callback;
// none of them are fatal, the source simply stops producing frames.
type Source struct {
	backend  Backend
	maxProbe int

	mu       sync.Mutex
	state    State
	device   Device
	stream   Stream
	size     signal.FrameSize
	failures int

	onResolution func(signal.FrameSize)
	onError      func(error)
}

// NewSource creates an unbound source. maxProbe bounds device enumeration.
func NewSource(backend Backend, maxProbe int) *Source {
	if maxProbe <= 0 {
		maxProbe = DefaultMaxProbe
	}
	return &Source{
		backend:  backend,
		maxProbe: maxProbe,
		state:    StateUnbound,
	}
}

// OnResolution sets the callback fired when a stream's native size is known.
func (s *Source) OnResolution(fn func(signal.FrameSize)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResolution = fn
}

// OnError sets the callback fired for open failures and lost devices.
func (s *Source) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// ListDevices probes the backend for video inputs. The bound device is
// always listed, even if the backend cannot probe it while it is open.
func (s *Source) ListDevices() []Device {
	s.mu.Lock()
	restore := s.state
	if s.state == StateUnbound {
		s.state = StateEnumerating
	}
	bound, hasBound := s.device, s.state == StateBound || s.state == StateStreaming
	s.mu.Unlock()

	devices := make([]Device, 0, s.maxProbe)
	for i := 0; i < s.maxProbe; i++ {
		if (hasBound && bound.Index == i) || s.backend.Probe(i) {
			devices = append(devices, Device{
				ID:    DeviceID(i),
				Label: s.backend.Label(i),
				Index: i,
			})
		}
	}

	s.mu.Lock()
	if s.state == StateEnumerating {
		s.state = restore
	}
	s.mu.Unlock()

	return devices
}

// Bind selects the device to stream from. A running stream is torn down
// first, releasing the camera.
func (s *Source) Bind(id string) error {
	idx, err := ParseDeviceID(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked()
	s.device = Device{ID: id, Label: s.backend.Label(idx), Index: idx}
	s.state = StateBound
	return nil
}

// Open starts streaming from the bound device and fires OnResolution.
func (s *Source) Open() error {
	s.mu.Lock()
	switch s.state {
	case StateStreaming:
		s.mu.Unlock()
		return nil
	case StateBound:
	default:
		s.mu.Unlock()
		return ErrNotBound
	}

	stream, err := s.backend.Open(s.device.Index)
	if err != nil {
		id := s.device.ID
		onError := s.onError
		s.mu.Unlock()
		err = fmt.Errorf("open %s: %w", id, err)
		if onError != nil {
			onError(err)
		}
		return err
	}

	s.stream = stream
	s.size = stream.Size()
	s.failures = 0
	s.state = StateStreaming
	size := s.size
	onResolution := s.onResolution
	s.mu.Unlock()

	if onResolution != nil && !size.Empty() {
		onResolution(size)
	}
	return nil
}

// Switch tears down any running stream and starts streaming from id.
func (s *Source) Switch(id string) error {
	if err := s.Bind(id); err != nil {
		return err
	}
	return s.Open()
}

// ReadFrame reads a single frame from the stream.
// The caller is responsible for closing the returned Mat.
func (s *Source) ReadFrame() (*gocv.Mat, error) {
	s.mu.Lock()

	if s.state != StateStreaming || s.stream == nil {
		s.mu.Unlock()
		return nil, ErrNotStreaming
	}

	mat := gocv.NewMat()
	if ok := s.stream.Read(&mat); ok && !mat.Empty() {
		s.failures = 0
		if s.size.Empty() {
			s.size = signal.FrameSize{Width: mat.Cols(), Height: mat.Rows()}
		}
		s.mu.Unlock()
		return &mat, nil
	}
	mat.Close()

	s.failures++
	if s.failures < maxReadFailures {
		s.mu.Unlock()
		return nil, errors.New("failed to read frame from camera")
	}

	id := s.device.ID
	s.teardownLocked()
	s.state = StateUnbound
	onError := s.onError
	s.mu.Unlock()

	err := fmt.Errorf("%w: %s", ErrDeviceLost, id)
	if onError != nil {
		onError(err)
	}
	return nil, err
}

// Close stops the stream, releases the camera and unbinds the device.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.teardownLocked()
	s.device = Device{}
	s.state = StateUnbound
	return err
}

func (s *Source) teardownLocked() error {
	var err error
	if s.stream != nil {
		err = s.stream.Close()
		s.stream = nil
	}
	s.size = signal.FrameSize{}
	s.failures = 0
	if s.state == StateStreaming {
		s.state = StateBound
	}
	return err
}

// State returns the current lifecycle state.
func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Device returns the bound device, if any.
func (s *Source) Device() (Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device, s.state == StateBound || s.state == StateStreaming
}

// Size returns the native size of the active stream, or an empty size.
func (s *Source) Size() signal.FrameSize {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// IsOpen returns true if the source is streaming.
func (s *Source) IsOpen() bool {
	return s.State() == StateStreaming
}
