package annotate

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/dcmcore/engine/internal/dicom"
)

// Unit is an internal calibrated unit code.
type Unit string

const (
	UnitCM     Unit = "cm"
	UnitCM2    Unit = "cm²"
	UnitMM     Unit = "mm"
	UnitS      Unit = "s"
	UnitCMPerS Unit = "cm/s"
	UnitPixel  Unit = "px"
)

// mapRegionUnit applies spec.md §4.9's ultrasound-region unit mapping:
// cm<->cm, s<->s, cm/s<->cm/s. Codes outside that set pass through
// unchanged; the calibration layer (internal/dicom) already normalizes
// the numeric region unit codes to these strings.
func mapRegionUnit(code string) Unit {
	switch code {
	case "cm":
		return UnitCM
	case "s":
		return UnitS
	case "cm/s":
		return UnitCMPerS
	default:
		return Unit(code)
	}
}

// Calibration is the per-axis physical scale a measurement uses to
// convert pixel distances into real-world units.
type Calibration struct {
	DeltaX, DeltaY float64 // physical units per pixel, along x/y
	UnitX, UnitY   Unit
}

// CalibrationFromDICOM adapts internal/dicom's CalibrationData (derived
// from PixelSpacing or an ultrasound region, per spec.md §4.1) into the
// measurement core's own Calibration, applying §4.9's unit mapping.
func CalibrationFromDICOM(c dicom.CalibrationData) Calibration {
	return Calibration{
		DeltaX: c.DeltaX,
		DeltaY: c.DeltaY,
		UnitX:  mapRegionUnit(c.UnitX),
		UnitY:  mapRegionUnit(c.UnitY),
	}
}

// Distance computes the Euclidean distance between two pixel points in
// calibrated units, per spec.md §4.9: cm preferred, sub-1cm values
// reported in mm.
func Distance(a, b PixelPoint, calib Calibration, hasCalib bool) (value float64, unit Unit) {
	if !hasCalib {
		dx, dy := float64(b.X-a.X), float64(b.Y-a.Y)
		return math.Hypot(dx, dy), UnitPixel
	}
	dx := float64(b.X-a.X) * calib.DeltaX
	dy := float64(b.Y-a.Y) * calib.DeltaY
	d := math.Hypot(dx, dy)
	if d < 1.0 {
		return d * 10, UnitMM
	}
	return d, UnitCM
}

// MModeDistance uses only the vertical component, per spec.md §4.9.
func MModeDistance(a, b PixelPoint, calib Calibration, hasCalib bool) (value float64, unit Unit) {
	if !hasCalib {
		return math.Abs(float64(b.Y - a.Y)), UnitPixel
	}
	dy := math.Abs(float64(b.Y-a.Y)) * calib.DeltaY
	if dy < 1.0 {
		return dy * 10, UnitMM
	}
	return dy, UnitCM
}

// DModeVelocityDelta computes a velocity difference relative to a
// baseline value, for D-mode (Doppler) measurements per spec.md §4.9.
func DModeVelocityDelta(a, b PixelPoint, calib Calibration, baselineRow float64) float64 {
	return (float64(b.Y)-baselineRow-(float64(a.Y)-baselineRow)) * calib.DeltaY
}

// Angle computes the angle at vertex v formed by points a and b, per
// spec.md §4.9: acos((v1.v2)/(|v1||v2|)) clamped to [-1,1], degenerate
// zero-length vectors yield 0, reported in degrees with one decimal.
func Angle(a, vertex, b PixelPoint) float64 {
	v1 := []float64{float64(a.X - vertex.X), float64(a.Y - vertex.Y)}
	v2 := []float64{float64(b.X - vertex.X), float64(b.Y - vertex.Y)}

	n1 := floats.Norm(v1, 2)
	n2 := floats.Norm(v2, 2)
	if n1 == 0 || n2 == 0 {
		return 0
	}
	dot := floats.Dot(v1, v2)
	cos := dot / (n1 * n2)
	if cos > 1 {
		cos = 1
	}
	if cos < -1 {
		cos = -1
	}
	deg := math.Acos(cos) * 180 / math.Pi
	return math.Round(deg*10) / 10
}

// PolygonArea computes a closed polygon's area via the shoelace formula
// in pixel units squared. With calibration the result is multiplied by
// deltaX*deltaY and reported in cm^2, per spec.md §4.9.
func PolygonArea(points []PixelPoint, calib Calibration, hasCalib bool) (value float64, unit Unit) {
	if len(points) < 3 {
		return 0, UnitPixel
	}
	sum := 0.0
	n := len(points)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += float64(points[i].X)*float64(points[j].Y) - float64(points[j].X)*float64(points[i].Y)
	}
	pixelArea := math.Abs(sum) / 2
	if !hasCalib {
		return pixelArea, UnitPixel
	}
	return pixelArea * calib.DeltaX * calib.DeltaY, UnitCM2
}
