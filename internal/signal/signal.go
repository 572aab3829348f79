// Package signal turns face bounding boxes into resolution-independent control signals.
package signal

import "math"

// Sign conventions for Normalizer.Sign.
const (
	// Mirrored moves the scene opposite to the face, so leaning left reveals
	// the right side of the model. This is the default.
	Mirrored = -1.0
	// Direct moves the scene with the face.
	Direct = 1.0
)

// BoundingBox is an axis-aligned face rectangle in source-frame pixels.
// X and Y are the top-left corner.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the centre point of the box.
func (b BoundingBox) Center() (x, y float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Area returns the area of the box, or 0 for degenerate boxes.
func (b BoundingBox) Area() float64 {
	if b.Degenerate() {
		return 0
	}
	return b.Width * b.Height
}

// Degenerate reports whether the box has no usable extent or a non-finite
// coordinate.
func (b BoundingBox) Degenerate() bool {
	if !(b.Width > 0 && b.Height > 0) {
		return true
	}
	return !finite(b.X) || !finite(b.Y) || !finite(b.Width) || !finite(b.Height)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Finite reports whether every component of the signal is a real number.
func (s ControlSignal) Finite() bool {
	return finite(s.DX) && finite(s.DY) && finite(s.Size)
}

// FrameSize is the pixel size of the active capture stream.
type FrameSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the size is not yet known.
func (f FrameSize) Empty() bool {
	return f.Width <= 0 || f.Height <= 0
}

// ControlSignal is the normalized face position that drives the camera.
// DX and DY are offsets from frame centre (roughly -0.5..0.5), Size is the
// apparent face size relative to frame width (0..1).
type ControlSignal struct {
	DX   float64 `json:"dx"`
	DY   float64 `json:"dy"`
	Size float64 `json:"size"`
}

// Normalizer maps bounding boxes to control signals.
//
// Sign must be Mirrored or Direct and applies to both DX and DY. Flipping it
// inverts all perceived motion, so it is fixed per deployment.
type Normalizer struct {
	Sign float64
}

// NewNormalizer returns a Normalizer using the mirrored convention unless
// direct is set.
func NewNormalizer(direct bool) Normalizer {
	if direct {
		return Normalizer{Sign: Direct}
	}
	return Normalizer{Sign: Mirrored}
}

// Normalize converts box into a control signal for a frame of the given size.
// It returns false, never a zero signal, when there is nothing usable: an
// unknown frame size, a degenerate or non-finite box, or a box centred
// outside the frame.
func (n Normalizer) Normalize(box BoundingBox, frame FrameSize) (ControlSignal, bool) {
	if frame.Empty() || box.Degenerate() {
		return ControlSignal{}, false
	}

	w := float64(frame.Width)
	h := float64(frame.Height)

	cx, cy := box.Center()
	if cx < 0 || cx > w || cy < 0 || cy > h {
		return ControlSignal{}, false
	}

	sign := n.Sign
	if sign == 0 {
		sign = Mirrored
	}

	return ControlSignal{
		DX:   sign * (cx/w - 0.5),
		DY:   sign * (cy/h - 0.5),
		Size: math.Min(box.Width, box.Height) / w,
	}, true
}
