package capture

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/parallax/internal/signal"
)

// MockBackend simulates a set of cameras for testing. Each device produces
// blank frames of its configured size.
type MockBackend struct {
	mu      sync.Mutex
	devices map[int]*mockDevice
	opens   int
	closes  int
}

type mockDevice struct {
	size    signal.FrameSize
	denied  bool
	lost    bool
	streams int
}

// NewMockBackend creates a backend with no devices.
func NewMockBackend() *MockBackend {
	return &MockBackend{devices: make(map[int]*mockDevice)}
}

// AddDevice plugs in a camera at index delivering frames of the given size.
func (b *MockBackend) AddDevice(index, width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices[index] = &mockDevice{size: signal.FrameSize{Width: width, Height: height}}
}

// Deny makes opening the device at index fail with ErrPermissionDenied.
func (b *MockBackend) Deny(index int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.devices[index]; ok {
		d.denied = true
	}
}

// Unplug makes the device disappear; open streams stop delivering frames.
func (b *MockBackend) Unplug(index int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.devices[index]; ok {
		d.lost = true
	}
}

// OpenStreams returns how many streams on index are still open.
func (b *MockBackend) OpenStreams(index int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.devices[index]; ok {
		return d.streams
	}
	return 0
}

// Counts returns the total number of opens and closes.
func (b *MockBackend) Counts() (opens, closes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens, b.closes
}

func (b *MockBackend) Probe(index int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.devices[index]
	return ok && !d.lost
}

func (b *MockBackend) Label(index int) string {
	return fmt.Sprintf("Mock Camera %d", index)
}

func (b *MockBackend) Open(index int) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, ok := b.devices[index]
	if !ok || d.lost {
		return nil, fmt.Errorf("%w: index %d", ErrDeviceNotFound, index)
	}
	if d.denied {
		return nil, ErrPermissionDenied
	}

	d.streams++
	b.opens++
	return &mockStream{backend: b, device: d}, nil
}

type mockStream struct {
	backend *MockBackend
	device  *mockDevice
	closed  bool
}

func (s *mockStream) Read(dst *gocv.Mat) bool {
	s.backend.mu.Lock()
	lost := s.device.lost
	size := s.device.size
	s.backend.mu.Unlock()

	if lost || s.closed {
		return false
	}

	frame := gocv.NewMatWithSize(size.Height, size.Width, gocv.MatTypeCV8UC3)
	defer frame.Close()
	frame.CopyTo(dst)
	return true
}

func (s *mockStream) Size() signal.FrameSize {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	return s.device.size
}

func (s *mockStream) Close() error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.device.streams--
	s.backend.closes++
	return nil
}
