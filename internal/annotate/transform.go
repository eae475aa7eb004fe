// Package annotate implements the annotation coordinate/measurement core
// of spec.md §4.9 and the annotation store of §4.10.
package annotate

import "math"

// Point is a continuous 2D coordinate in canvas space.
type Point struct {
	X, Y float64
}

// PixelPoint is a stored annotation coordinate in image pixel space.
// spec.md §3 requires annotation points to be integer pixel coordinates.
type PixelPoint struct {
	X, Y int
}

// Point widens a PixelPoint to the continuous Point used by the
// transform pipeline.
func (p PixelPoint) Point() Point {
	return Point{X: float64(p.X), Y: float64(p.Y)}
}

// ViewportTransform is the pixel<->canvas mapping of spec.md §4.9.
type ViewportTransform struct {
	ImageW, ImageH   float64
	CanvasW, CanvasH float64
	Zoom             float64
	Pan              Point
	RotationDeg      float64
	FlipH, FlipV     bool
}

// baseScale is the uniform fit scale before zoom: min(canvasW/imageW,
// canvasH/imageH).
func (t ViewportTransform) baseScale() float64 {
	sx := t.CanvasW / t.ImageW
	sy := t.CanvasH / t.ImageH
	if sx < sy {
		return sx
	}
	return sy
}

// finalScale is baseScale * zoom.
func (t ViewportTransform) finalScale() float64 {
	return t.baseScale() * t.Zoom
}

// PixelToCanvas applies the forward transform of spec.md §4.9.
func (t ViewportTransform) PixelToCanvas(p PixelPoint) Point {
	x := float64(p.X) - t.ImageW/2
	y := float64(p.Y) - t.ImageH/2
	if t.FlipH {
		x = -x
	}
	if t.FlipV {
		y = -y
	}
	scale := t.finalScale()
	x *= scale
	y *= scale

	rad := t.RotationDeg * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	// Clockwise on screen: standard rotation matrix with y already in
	// screen-down orientation achieves clockwise rotation directly.
	rx := x*cos - y*sin
	ry := x*sin + y*cos

	return Point{
		X: rx + t.CanvasW/2 + t.Pan.X,
		Y: ry + t.CanvasH/2 + t.Pan.Y,
	}
}

// CanvasToPixel applies the inverse transform: the inverse operations in
// reverse order. Stored pixel coordinates are integers; this rounds to
// nearest.
func (t ViewportTransform) CanvasToPixel(p Point) PixelPoint {
	x := p.X - t.CanvasW/2 - t.Pan.X
	y := p.Y - t.CanvasH/2 - t.Pan.Y

	rad := -t.RotationDeg * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	rx := x*cos - y*sin
	ry := x*sin + y*cos

	scale := t.finalScale()
	if scale != 0 {
		rx /= scale
		ry /= scale
	}

	if t.FlipH {
		rx = -rx
	}
	if t.FlipV {
		ry = -ry
	}

	return PixelPoint{
		X: int(math.Round(rx + t.ImageW/2)),
		Y: int(math.Round(ry + t.ImageH/2)),
	}
}
