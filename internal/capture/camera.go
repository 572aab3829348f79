// Package capture provides camera capture functionality using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gocv.io/x/gocv"

	"github.com/ayusman/parallax/internal/signal"
)

// Default camera settings
const (
	DefaultWidth    = 640
	DefaultHeight   = 480
	DefaultMaxProbe = 4
)

var (
	// ErrNotStreaming is returned when reading from a source with no open stream.
	ErrNotStreaming = errors.New("capture source is not streaming")
	// ErrNotBound is returned when opening a source with no device selected.
	ErrNotBound = errors.New("capture source has no device bound")
	// ErrDeviceNotFound is returned for unknown device IDs.
	ErrDeviceNotFound = errors.New("capture device not found")
	// ErrPermissionDenied is returned when the OS refuses camera access.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrDeviceLost is returned when an open device stops delivering frames.
	ErrDeviceLost = errors.New("capture device lost")
)

// Device describes a video input.
type Device struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Index int    `json:"-"`
}

// DeviceID returns the identifier used for the device at index.
func DeviceID(index int) string {
	return "cam:" + strconv.Itoa(index)
}

// ParseDeviceID returns the backend index for id.
func ParseDeviceID(id string) (int, error) {
	idx, err := strconv.Atoi(strings.TrimPrefix(id, "cam:"))
	if err != nil || idx < 0 || !strings.HasPrefix(id, "cam:") {
		return 0, fmt.Errorf("%w: %q", ErrDeviceNotFound, id)
	}
	return idx, nil
}

// Stream is an open video stream.
type Stream interface {
	// Read fills dst with the next frame, returning false on failure.
	Read(dst *gocv.Mat) bool
	// Size returns the native resolution of the stream.
	Size() signal.FrameSize
	Close() error
}

// Backend enumerates and opens video devices.
type Backend interface {
	// Probe reports whether a device exists at index.
	Probe(index int) bool
	// Label returns a human-readable name for the device at index.
	Label(index int) string
	// Open starts streaming from the device at index.
	Open(index int) (Stream, error)
}

// gocvBackend opens cameras through gocv.VideoCapture.
type gocvBackend struct {
	width  int
	height int
}

// NewBackend returns the OpenCV camera backend. Capture is requested at
// width x height; the stream reports whatever the device actually delivers.
func NewBackend(width, height int) Backend {
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	return &gocvBackend{width: width, height: height}
}

func (b *gocvBackend) Probe(index int) bool {
	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return false
	}
	defer vc.Close()
	return vc.IsOpened()
}

func (b *gocvBackend) Label(index int) string {
	return fmt.Sprintf("Camera %d", index)
}

func (b *gocvBackend) Open(index int) (Stream, error) {
	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, classifyOpenError(err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: index %d", ErrDeviceNotFound, index)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(b.width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(b.height))

	return &gocvStream{
		capture: vc,
		size: signal.FrameSize{
			Width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
			Height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
		},
	}, nil
}

// classifyOpenError maps OpenCV open failures onto capture errors. OpenCV
// only reports strings, so permission problems are recognised by message.
func classifyOpenError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "not authorized") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
}

type gocvStream struct {
	capture *gocv.VideoCapture
	size    signal.FrameSize
}

func (s *gocvStream) Read(dst *gocv.Mat) bool {
	return s.capture.Read(dst)
}

func (s *gocvStream) Size() signal.FrameSize {
	return s.size
}

func (s *gocvStream) Close() error {
	return s.capture.Close()
}

// Camera is the frame-reading side of a capture source.
type Camera interface {
	ReadFrame() (*gocv.Mat, error)
	Size() signal.FrameSize
}

var _ Camera = (*Source)(nil)
