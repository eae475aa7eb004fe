package annotate

import (
	"math"
	"testing"
)

func TestPixelCanvasRoundTrip(t *testing.T) {
	cases := []ViewportTransform{
		{ImageW: 512, ImageH: 512, CanvasW: 800, CanvasH: 600, Zoom: 1},
		{ImageW: 512, ImageH: 512, CanvasW: 800, CanvasH: 600, Zoom: 2.5, Pan: Point{X: 30, Y: -15}},
		{ImageW: 256, ImageH: 256, CanvasW: 400, CanvasH: 400, Zoom: 0.5, RotationDeg: 45},
		{ImageW: 256, ImageH: 256, CanvasW: 400, CanvasH: 400, Zoom: 1, FlipH: true, FlipV: true, RotationDeg: 90},
	}
	points := []PixelPoint{{X: 0, Y: 0}, {X: 100, Y: 200}, {X: 255, Y: 255}}

	for _, tr := range cases {
		for _, p := range points {
			canvas := tr.PixelToCanvas(p)
			back := tr.CanvasToPixel(canvas)
			if abs(back.X-p.X) > 1 || abs(back.Y-p.Y) > 1 {
				t.Errorf("round trip mismatch for %+v, point %+v: got %+v", tr, p, back)
			}
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func TestPixelToCanvas_ImageCenterMapsToCanvasCenter(t *testing.T) {
	tr := ViewportTransform{ImageW: 100, ImageH: 100, CanvasW: 100, CanvasH: 100, Zoom: 1}
	center := tr.PixelToCanvas(PixelPoint{X: 50, Y: 50})
	if math.Abs(center.X-50) > 1e-9 || math.Abs(center.Y-50) > 1e-9 {
		t.Errorf("image center should map to canvas center, got %+v", center)
	}
}
