package annotate

import (
	"math"
	"testing"
)

func TestDistance_Uncalibrated(t *testing.T) {
	d, unit := Distance(PixelPoint{0, 0}, PixelPoint{3, 4}, Calibration{}, false)
	if d != 5 || unit != UnitPixel {
		t.Fatalf("got (%v, %v), want (5, px)", d, unit)
	}
}

func TestDistance_CalibratedSubCentimeterReportsMM(t *testing.T) {
	calib := Calibration{DeltaX: 0.05, DeltaY: 0.05, UnitX: UnitCM, UnitY: UnitCM}
	// 3-4-5 triangle scaled by 0.05 cm/px => distance 0.25cm, under 1cm.
	d, unit := Distance(PixelPoint{0, 0}, PixelPoint{3, 4}, calib, true)
	if unit != UnitMM {
		t.Fatalf("expected mm for sub-centimeter distance, got %v", unit)
	}
	if math.Abs(d-2.5) > 1e-9 {
		t.Fatalf("distance = %v mm, want 2.5", d)
	}
}

func TestAngle_RightAngle(t *testing.T) {
	deg := Angle(PixelPoint{1, 0}, PixelPoint{0, 0}, PixelPoint{0, 1})
	if math.Abs(deg-90) > 0.05 {
		t.Fatalf("angle = %v, want 90", deg)
	}
}

func TestAngle_DegenerateVectorYieldsZero(t *testing.T) {
	deg := Angle(PixelPoint{0, 0}, PixelPoint{0, 0}, PixelPoint{1, 1})
	if deg != 0 {
		t.Fatalf("angle = %v, want 0 for degenerate vector", deg)
	}
}

func TestPolygonArea_UnitSquare(t *testing.T) {
	pts := []PixelPoint{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	area, unit := PolygonArea(pts, Calibration{}, false)
	if area != 100 || unit != UnitPixel {
		t.Fatalf("got (%v, %v), want (100, px)", area, unit)
	}
}

func TestPolygonArea_Calibrated(t *testing.T) {
	pts := []PixelPoint{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	calib := Calibration{DeltaX: 0.1, DeltaY: 0.1}
	area, unit := PolygonArea(pts, calib, true)
	if unit != UnitCM2 {
		t.Fatalf("unit = %v, want cm2", unit)
	}
	if math.Abs(area-1.0) > 1e-9 {
		t.Fatalf("area = %v cm^2, want 1.0", area)
	}
}

func TestMModeDistance_VerticalOnly(t *testing.T) {
	d, unit := MModeDistance(PixelPoint{0, 0}, PixelPoint{50, 10}, Calibration{}, false)
	if d != 10 || unit != UnitPixel {
		t.Fatalf("got (%v, %v), want (10, px), horizontal component must be ignored", d, unit)
	}
}
