package capture

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ayusman/parallax/internal/signal"
)

func newTestSource(t *testing.T) (*Source, *MockBackend) {
	t.Helper()
	b := NewMockBackend()
	b.AddDevice(0, 640, 480)
	b.AddDevice(1, 1280, 720)
	s := NewSource(b, 4)
	t.Cleanup(func() { s.Close() })
	return s, b
}

func TestSource_Lifecycle(t *testing.T) {
	s, _ := newTestSource(t)

	if got := s.State(); got != StateUnbound {
		t.Fatalf("initial State() = %v, want unbound", got)
	}
	if _, err := s.ReadFrame(); !errors.Is(err, ErrNotStreaming) {
		t.Errorf("ReadFrame() before open error = %v, want ErrNotStreaming", err)
	}
	if err := s.Open(); !errors.Is(err, ErrNotBound) {
		t.Errorf("Open() unbound error = %v, want ErrNotBound", err)
	}

	if err := s.Bind("cam:0"); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if got := s.State(); got != StateBound {
		t.Errorf("State() after Bind = %v, want bound", got)
	}

	if err := s.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !s.IsOpen() {
		t.Error("IsOpen() = false after Open")
	}
	if err := s.Open(); err != nil {
		t.Errorf("second Open() error = %v, want nil", err)
	}

	frame, err := s.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	frame.Close()

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if got := s.State(); got != StateUnbound {
		t.Errorf("State() after Close = %v, want unbound", got)
	}
	if _, ok := s.Device(); ok {
		t.Error("Device() should report unbound after Close")
	}
}

func TestSource_ListDevices(t *testing.T) {
	s, b := newTestSource(t)

	devices := s.ListDevices()
	if len(devices) != 2 {
		t.Fatalf("len(ListDevices()) = %d, want 2", len(devices))
	}
	if devices[0].ID != "cam:0" || devices[1].ID != "cam:1" {
		t.Errorf("device IDs = %q, %q", devices[0].ID, devices[1].ID)
	}
	if got := s.State(); got != StateUnbound {
		t.Errorf("State() after enumeration = %v, want unbound", got)
	}

	if err := s.Switch("cam:1"); err != nil {
		t.Fatalf("Switch() error = %v", err)
	}
	b.Unplug(1)
	devices = s.ListDevices()
	found := false
	for _, d := range devices {
		if d.ID == "cam:1" {
			found = true
		}
	}
	if !found {
		t.Error("bound device should always be listed")
	}
	if got := s.State(); got != StateStreaming {
		t.Errorf("State() after enumeration = %v, want streaming", got)
	}
}

func TestSource_SwitchReleasesPrevious(t *testing.T) {
	s, b := newTestSource(t)

	var mu sync.Mutex
	var sizes []signal.FrameSize
	s.OnResolution(func(size signal.FrameSize) {
		mu.Lock()
		sizes = append(sizes, size)
		mu.Unlock()
	})

	if err := s.Switch("cam:0"); err != nil {
		t.Fatalf("Switch(cam:0) error = %v", err)
	}
	if err := s.Switch("cam:1"); err != nil {
		t.Fatalf("Switch(cam:1) error = %v", err)
	}

	if n := b.OpenStreams(0); n != 0 {
		t.Errorf("OpenStreams(0) = %d after switch, want 0", n)
	}
	if n := b.OpenStreams(1); n != 1 {
		t.Errorf("OpenStreams(1) = %d, want 1", n)
	}

	frame, err := s.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	defer frame.Close()
	if frame.Cols() != 1280 || frame.Rows() != 720 {
		t.Errorf("frame = %dx%d, want 1280x720", frame.Cols(), frame.Rows())
	}

	mu.Lock()
	defer mu.Unlock()
	want := []signal.FrameSize{{Width: 640, Height: 480}, {Width: 1280, Height: 720}}
	if len(sizes) != len(want) {
		t.Fatalf("OnResolution fired %d times, want %d", len(sizes), len(want))
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("resolution %d = %+v, want %+v", i, sizes[i], want[i])
		}
	}
	if got := s.Size(); got != want[1] {
		t.Errorf("Size() = %+v, want %+v", got, want[1])
	}
}

func TestSource_PermissionDenied(t *testing.T) {
	s, b := newTestSource(t)
	b.Deny(0)

	var reported error
	s.OnError(func(err error) { reported = err })

	err := s.Switch("cam:0")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Switch() error = %v, want ErrPermissionDenied", err)
	}
	if !errors.Is(reported, ErrPermissionDenied) {
		t.Errorf("OnError got %v, want ErrPermissionDenied", reported)
	}
	if got := s.State(); got != StateBound {
		t.Errorf("State() = %v, want bound", got)
	}
	if _, err := s.ReadFrame(); !errors.Is(err, ErrNotStreaming) {
		t.Errorf("ReadFrame() error = %v, want ErrNotStreaming", err)
	}
}

func TestSource_OpenFailureDuringConcurrentSwitches(t *testing.T) {
	s, b := newTestSource(t)
	b.Deny(1)

	var mu sync.Mutex
	var reported []error
	s.OnError(func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for _, id := range []string{"cam:0", "cam:1"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.Switch(id)
			}
		}(id)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(reported) == 0 {
		t.Fatal("no open failures reported")
	}
	for _, err := range reported {
		if !errors.Is(err, ErrPermissionDenied) || !strings.Contains(err.Error(), "open cam:1") {
			t.Errorf("reported %v, want a permission error naming cam:1", err)
		}
	}
	if n := b.OpenStreams(0); n > 1 {
		t.Errorf("cam:0 has %d open streams, want at most 1", n)
	}
}

func TestSource_DeviceLost(t *testing.T) {
	s, b := newTestSource(t)

	var reported error
	s.OnError(func(err error) { reported = err })

	if err := s.Switch("cam:0"); err != nil {
		t.Fatalf("Switch() error = %v", err)
	}
	b.Unplug(0)

	var err error
	for i := 0; i < maxReadFailures; i++ {
		_, err = s.ReadFrame()
		if err == nil {
			t.Fatalf("read %d succeeded on an unplugged device", i)
		}
	}
	if !errors.Is(err, ErrDeviceLost) {
		t.Errorf("final ReadFrame() error = %v, want ErrDeviceLost", err)
	}
	if !errors.Is(reported, ErrDeviceLost) {
		t.Errorf("OnError got %v, want ErrDeviceLost", reported)
	}
	if got := s.State(); got != StateUnbound {
		t.Errorf("State() = %v, want unbound", got)
	}
	if n := b.OpenStreams(0); n != 0 {
		t.Errorf("OpenStreams(0) = %d, want 0", n)
	}
}

func TestSource_BindUnknownID(t *testing.T) {
	s, _ := newTestSource(t)

	if err := s.Bind("webcam"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Bind() error = %v, want ErrDeviceNotFound", err)
	}
	if err := s.Switch("cam:3"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Switch(cam:3) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateUnbound:     "unbound",
		StateEnumerating: "enumerating",
		StateBound:       "bound",
		StateStreaming:   "streaming",
		State(9):         "state(9)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
