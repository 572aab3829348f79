package sampler

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/parallax/internal/detector"
	"github.com/ayusman/parallax/internal/log"
)

var (
	primaryColor   = color.RGBA{R: 0, G: 220, B: 90, A: 0}
	secondaryColor = color.RGBA{R: 200, G: 200, B: 200, A: 0}
)

// updatePreview encodes the sampled frame as JPEG, with detection boxes drawn
// when annotation is enabled. The primary face gets the highlight colour.
func (s *Sampler) updatePreview(frame *gocv.Mat, dets []detector.Detection) {
	img := frame
	if s.config.Annotate && len(dets) > 0 {
		annotated := frame.Clone()
		defer annotated.Close()
		drawDetections(&annotated, dets)
		img = &annotated
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *img)
	if err != nil {
		log.Debug(log.Fields{"component": "sampler", "error": err.Error()}, "[sampler.updatePreview] encode failed")
		return
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	s.previewMu.Lock()
	s.preview = data
	s.previewSeq++
	s.previewMu.Unlock()
}

func drawDetections(img *gocv.Mat, dets []detector.Detection) {
	primary := detector.SelectPrimary(dets)
	for i := range dets {
		d := &dets[i]
		if d.Box.Degenerate() {
			continue
		}
		rect := image.Rect(
			int(d.Box.X),
			int(d.Box.Y),
			int(d.Box.X+d.Box.Width),
			int(d.Box.Y+d.Box.Height),
		)
		c, thickness := secondaryColor, 1
		if d == primary {
			c, thickness = primaryColor, 2
		}
		gocv.Rectangle(img, rect, c, thickness)
	}
}

// Preview returns the latest JPEG preview and its sequence number. The
// sequence increases on every update, so callers can skip repeats.
func (s *Sampler) Preview() ([]byte, uint64) {
	s.previewMu.RLock()
	defer s.previewMu.RUnlock()
	return s.preview, s.previewSeq
}
