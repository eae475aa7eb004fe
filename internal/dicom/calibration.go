package dicom

// CalibrationData is the physical-unit calibration derived from
// ImageInfo, used by the annotation/measurement core (spec.md §3/§4.9).
type CalibrationData struct {
	// DeltaX/DeltaY are the physical size of one pixel along each axis,
	// in the unit named by UnitX/UnitY.
	DeltaX, DeltaY float64
	UnitX, UnitY   string

	HasBaseline bool
	BaselineRow int32
}

// DeriveCalibration computes CalibrationData from ImageInfo per
// spec.md §3: PixelSpacing (mm) is converted to cm by dividing by 10;
// otherwise an ultrasound region's physical deltas and unit codes are
// used as given, with an empty unit code replaced by "cm". Returns ok=false when neither source of calibration is
// present.
func DeriveCalibration(info ImageInfo) (CalibrationData, bool) {
	if info.PixelSpacing != nil {
		return CalibrationData{
			DeltaX: info.PixelSpacing.Column / 10,
			DeltaY: info.PixelSpacing.Row / 10,
			UnitX:  "cm",
			UnitY:  "cm",
		}, true
	}
	if info.USRegion != nil {
		r := info.USRegion
		return CalibrationData{
			DeltaX:      r.PhysicalDeltaX,
			DeltaY:      r.PhysicalDeltaY,
			UnitX:       orDefaultUnit(r.UnitsX),
			UnitY:       orDefaultUnit(r.UnitsY),
			HasBaseline: r.HasBaseline,
			BaselineRow: r.BaselineRow,
		}, true
	}
	return CalibrationData{}, false
}

func orDefaultUnit(u string) string {
	if u == "" {
		return "cm"
	}
	return u
}
