// Package e2e exercises the full viewer stack. This file builds synthetic
// detector scripts and frames for the tests.
package e2e

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/parallax/internal/detector"
)

// Frame returns a mid-grey frame of the given size with a bright ellipse
// drawn at each face box. The caller must close it.
func Frame(width, height int, faces ...detector.Detection) gocv.Mat {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(96, 96, 96, 0), height, width, gocv.MatTypeCV8UC3)
	for _, f := range faces {
		cx, cy := f.Box.Center()
		gocv.Ellipse(&mat,
			image.Pt(int(cx), int(cy)),
			image.Pt(int(f.Box.Width/2), int(f.Box.Height/2)),
			0, 0, 360,
			color.RGBA{R: 230, G: 200, B: 180, A: 0}, -1)
	}
	return mat
}

// Centered returns a face centred in a width x height frame whose box is
// sizeFrac of the frame width.
func Centered(width, height int, sizeFrac float64) detector.Detection {
	return detector.FaceAt(float64(width)/2, float64(height)/2, sizeFrac*float64(width), 0.9)
}

// Blinking returns a detector script of rounds repetitions of one face
// followed by gap empty results. Faces are used in turn.
func Blinking(faces []detector.Detection, gap, rounds int) [][]detector.Detection {
	var script [][]detector.Detection
	for i := 0; i < rounds; i++ {
		script = append(script, []detector.Detection{faces[i%len(faces)]})
		for j := 0; j < gap; j++ {
			script = append(script, nil)
		}
	}
	return script
}

// Sweep returns a script moving a face of the given size from (x0, y0) to
// (x1, y1) in steps detections.
func Sweep(x0, y0, x1, y1, size float64, steps int) [][]detector.Detection {
	script := make([][]detector.Detection, 0, steps)
	for i := 0; i < steps; i++ {
		t := 0.0
		if steps > 1 {
			t = float64(i) / float64(steps-1)
		}
		script = append(script, []detector.Detection{
			detector.FaceAt(x0+(x1-x0)*t, y0+(y1-y0)*t, size, 0.9),
		})
	}
	return script
}
