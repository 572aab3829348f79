package signal

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNormalize(t *testing.T) {
	frame := FrameSize{Width: 640, Height: 480}

	tests := []struct {
		name     string
		sign     float64
		box      BoundingBox
		wantDX   float64
		wantDY   float64
		wantSize float64
	}{
		{
			name:     "centered face is zero offset",
			sign:     Mirrored,
			box:      BoundingBox{X: 270, Y: 190, Width: 100, Height: 100},
			wantDX:   0,
			wantDY:   0,
			wantSize: 100.0 / 640.0,
		},
		{
			name:     "face on the right, mirrored",
			sign:     Mirrored,
			box:      BoundingBox{X: 430, Y: 190, Width: 100, Height: 100},
			wantDX:   -0.25,
			wantDY:   0,
			wantSize: 100.0 / 640.0,
		},
		{
			name:     "face on the right, direct",
			sign:     Direct,
			box:      BoundingBox{X: 430, Y: 190, Width: 100, Height: 100},
			wantDX:   0.25,
			wantDY:   0,
			wantSize: 100.0 / 640.0,
		},
		{
			name:     "face at the top uses frame height",
			sign:     Direct,
			box:      BoundingBox{X: 270, Y: 0, Width: 100, Height: 120},
			wantDX:   0,
			wantDY:   -0.375,
			wantSize: 100.0 / 640.0,
		},
		{
			name:     "size uses the smaller side",
			sign:     Mirrored,
			box:      BoundingBox{X: 220, Y: 140, Width: 200, Height: 160},
			wantDX:   0,
			wantDY:   0,
			wantSize: 160.0 / 640.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, ok := Normalizer{Sign: tt.sign}.Normalize(tt.box, frame)
			if !ok {
				t.Fatal("Normalize() returned absent for a valid box")
			}
			if !almostEqual(sig.DX, tt.wantDX) {
				t.Errorf("DX = %v, want %v", sig.DX, tt.wantDX)
			}
			if !almostEqual(sig.DY, tt.wantDY) {
				t.Errorf("DY = %v, want %v", sig.DY, tt.wantDY)
			}
			if !almostEqual(sig.Size, tt.wantSize) {
				t.Errorf("Size = %v, want %v", sig.Size, tt.wantSize)
			}
		})
	}
}

func TestNormalize_Absent(t *testing.T) {
	n := NewNormalizer(false)

	tests := []struct {
		name  string
		box   BoundingBox
		frame FrameSize
	}{
		{"zero width box", BoundingBox{X: 10, Y: 10, Width: 0, Height: 50}, FrameSize{640, 480}},
		{"zero height box", BoundingBox{X: 10, Y: 10, Width: 50, Height: 0}, FrameSize{640, 480}},
		{"negative size box", BoundingBox{X: 10, Y: 10, Width: -5, Height: 50}, FrameSize{640, 480}},
		{"unknown frame size", BoundingBox{X: 10, Y: 10, Width: 50, Height: 50}, FrameSize{}},
		{"centre left of frame", BoundingBox{X: -100, Y: 10, Width: 50, Height: 50}, FrameSize{640, 480}},
		{"centre below frame", BoundingBox{X: 10, Y: 500, Width: 50, Height: 50}, FrameSize{640, 480}},
		{"NaN x", BoundingBox{X: math.NaN(), Y: 100, Width: 50, Height: 50}, FrameSize{640, 480}},
		{"NaN y", BoundingBox{X: 100, Y: math.NaN(), Width: 50, Height: 50}, FrameSize{640, 480}},
		{"+Inf x", BoundingBox{X: math.Inf(1), Y: 100, Width: 50, Height: 50}, FrameSize{640, 480}},
		{"-Inf y", BoundingBox{X: 100, Y: math.Inf(-1), Width: 50, Height: 50}, FrameSize{640, 480}},
		{"NaN width", BoundingBox{X: 100, Y: 100, Width: math.NaN(), Height: 50}, FrameSize{640, 480}},
		{"+Inf height", BoundingBox{X: 100, Y: 100, Width: 50, Height: math.Inf(1)}, FrameSize{640, 480}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if sig, ok := n.Normalize(tt.box, tt.frame); ok {
				t.Errorf("Normalize() = %+v, want absent", sig)
			}
		})
	}
}

func TestNormalize_ResolutionIndependent(t *testing.T) {
	n := NewNormalizer(false)

	small, ok := n.Normalize(BoundingBox{X: 100, Y: 60, Width: 40, Height: 40}, FrameSize{320, 240})
	if !ok {
		t.Fatal("small frame: absent")
	}
	large, ok := n.Normalize(BoundingBox{X: 400, Y: 240, Width: 160, Height: 160}, FrameSize{1280, 960})
	if !ok {
		t.Fatal("large frame: absent")
	}

	if !almostEqual(small.DX, large.DX) || !almostEqual(small.DY, large.DY) || !almostEqual(small.Size, large.Size) {
		t.Errorf("signals differ across resolutions: %+v vs %+v", small, large)
	}
}

func TestLatest_TakeOnce(t *testing.T) {
	var l Latest

	if got := l.Take(); got != nil {
		t.Fatalf("Take() on empty mailbox = %+v, want nil", got)
	}

	l.Put(&ControlSignal{DX: 0.1, DY: 0.2, Size: 0.3})
	got := l.Take()
	if got == nil || got.DX != 0.1 {
		t.Fatalf("Take() = %+v, want DX=0.1", got)
	}

	if again := l.Take(); again != nil {
		t.Errorf("second Take() = %+v, want nil", again)
	}
}

func TestLatest_OverwriteAndAbsent(t *testing.T) {
	var l Latest

	l.Put(&ControlSignal{DX: 0.1})
	l.Put(&ControlSignal{DX: 0.2})
	if got := l.Take(); got == nil || got.DX != 0.2 {
		t.Errorf("Take() = %+v, want latest DX=0.2", got)
	}

	l.Put(&ControlSignal{DX: 0.3})
	l.Put(nil)
	if got := l.Take(); got != nil {
		t.Errorf("Take() after absent = %+v, want nil", got)
	}

	puts, absent := l.Counts()
	if puts != 4 || absent != 1 {
		t.Errorf("Counts() = (%d, %d), want (4, 1)", puts, absent)
	}
}

func TestLatest_TakeReturnsCopy(t *testing.T) {
	var l Latest
	sig := ControlSignal{DX: 0.1}
	l.Put(&sig)
	sig.DX = 0.4

	if got := l.Take(); got.DX != 0.1 {
		t.Errorf("Take().DX = %v, want 0.1 (mailbox must copy)", got.DX)
	}
}
