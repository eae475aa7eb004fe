package dicom

import (
	"math"

	"github.com/dcmcore/engine/internal/dcmerr"
	"github.com/dcmcore/engine/internal/dcmio"
)

// PixelSpacing is the physical row/column pixel pitch in millimetres, as
// recorded by the PixelSpacing element.
type PixelSpacing struct {
	Row    float64
	Column float64
}

// USRegion carries the per-axis physical-delta calibration of a single
// ultrasound region, as found in the Sequence of Ultrasound Regions
// (0018,6011). Unlike the rest of the parser this is not derived from a
// full sequence/item walk (spec.md §4.1 treats sequence content as out of
// the byte-reader's required scope); it is populated best-effort by
// scanning the region sequence's raw bytes for the handful of explicit-VR
// elements measurement calibration actually needs.
type USRegion struct {
	PhysicalDeltaX float64
	PhysicalDeltaY float64
	UnitsX         string
	UnitsY         string
	// BaselineRow is present for Doppler regions (velocity baseline).
	BaselineRow  int32
	HasBaseline  bool
}

// ImageInfo is the per-series image geometry and calibration metadata
// extracted from a Dataset, per spec.md §3.
type ImageInfo struct {
	Rows                      uint16
	Columns                   uint16
	BitsAllocated             uint16
	BitsStored                uint16
	HighBit                   uint16
	PixelRepresentation       uint16
	PhotometricInterpretation string
	SamplesPerPixel           uint16

	PixelSpacing *PixelSpacing
	USRegion     *USRegion
}

// BytesPerSample returns BitsAllocated/8.
func (i ImageInfo) BytesPerSample() int { return int(i.BitsAllocated) / 8 }

// FrameStride returns the byte length of one native frame:
// rows*columns*samplesPerPixel*(bitsAllocated/8).
func (i ImageInfo) FrameStride() int {
	return int(i.Rows) * int(i.Columns) * int(i.SamplesPerPixel) * i.BytesPerSample()
}

// IsMonochrome1 reports whether the photometric interpretation is
// MONOCHROME1 (inverted grayscale).
func (i ImageInfo) IsMonochrome1() bool { return i.PhotometricInterpretation == "MONOCHROME1" }

// IsMonochrome reports whether the image is single-sample grayscale
// (MONOCHROME1 or MONOCHROME2).
func (i ImageInfo) IsMonochrome() bool {
	return i.PhotometricInterpretation == "MONOCHROME1" || i.PhotometricInterpretation == "MONOCHROME2"
}

// ExtractImageInfo reads ImageInfo out of a parsed Dataset, validating
// spec.md §3's invariants.
func ExtractImageInfo(ds *Dataset) (ImageInfo, error) {
	rows, ok := ds.UInt16(TagRows)
	if !ok {
		return ImageInfo{}, dcmerr.New(dcmerr.ParseTruncated, "missing or unreadable Rows")
	}
	cols, ok := ds.UInt16(TagColumns)
	if !ok {
		return ImageInfo{}, dcmerr.New(dcmerr.ParseTruncated, "missing or unreadable Columns")
	}
	bitsAllocated, ok := ds.UInt16(TagBitsAllocated)
	if !ok {
		return ImageInfo{}, dcmerr.New(dcmerr.ParseTruncated, "missing or unreadable BitsAllocated")
	}
	bitsStored, ok := ds.UInt16(TagBitsStored)
	if !ok {
		bitsStored = bitsAllocated
	}
	highBit, ok := ds.UInt16(TagHighBit)
	if !ok {
		highBit = bitsStored - 1
	}
	pixelRep, _ := ds.UInt16(TagPixelRepresentation)
	samplesPerPixel, ok := ds.UInt16(TagSamplesPerPixel)
	if !ok {
		samplesPerPixel = 1
	}
	photometric := ds.String(TagPhotometricInterp)

	info := ImageInfo{
		Rows:                      rows,
		Columns:                   cols,
		BitsAllocated:             bitsAllocated,
		BitsStored:                bitsStored,
		HighBit:                   highBit,
		PixelRepresentation:       pixelRep,
		PhotometricInterpretation: photometric,
		SamplesPerPixel:           samplesPerPixel,
	}

	if rows == 0 || cols == 0 {
		return ImageInfo{}, dcmerr.New(dcmerr.ParseTruncated, "rows and columns must be positive")
	}
	if bitsStored > bitsAllocated {
		return ImageInfo{}, dcmerr.New(dcmerr.ParseTruncated, "bitsStored must not exceed bitsAllocated")
	}
	if highBit >= bitsAllocated {
		return ImageInfo{}, dcmerr.New(dcmerr.ParseTruncated, "highBit must be less than bitsAllocated")
	}

	if el, ok := ds.Get(TagPixelSpacing); ok {
		if sp, ok := parseDecimalStringPair(ds.Bytes(el)); ok {
			info.PixelSpacing = &PixelSpacing{Row: sp[0], Column: sp[1]}
		}
	}
	if el, ok := ds.Get(TagUSRegionSequence); ok {
		if region, ok := bestEffortUSRegion(ds.Bytes(el)); ok {
			info.USRegion = &region
		}
	}

	return info, nil
}

// parseDecimalStringPair parses a DICOM DS-VR value of the form
// "a\\b" into two float64s.
func parseDecimalStringPair(b []byte) ([2]float64, bool) {
	s := trimASCII(b)
	sep := -1
	for i, c := range s {
		if c == '\\' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return [2]float64{}, false
	}
	a, ok1 := parseFloat(s[:sep])
	c, ok2 := parseFloat(s[sep+1:])
	if !ok1 || !ok2 {
		return [2]float64{}, false
	}
	return [2]float64{a, c}, true
}

func parseFloat(s string) (float64, bool) {
	neg := false
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}
	var intPart, fracPart float64
	fracDiv := 1.0
	seenDigit := false
	seenDot := false
	for ; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
			if seenDot {
				fracDiv *= 10
				fracPart = fracPart*10 + float64(c-'0')
			} else {
				intPart = intPart*10 + float64(c-'0')
			}
		case c == '.' && !seenDot:
			seenDot = true
		default:
			return 0, false
		}
	}
	if !seenDigit {
		return 0, false
	}
	v := intPart + fracPart/fracDiv
	if neg {
		v = -v
	}
	return v, true
}

// bestEffortUSRegion scans a Sequence-of-Ultrasound-Regions element's raw
// bytes for explicit-VR elements (PhysicalDeltaX/Y as FD, unit codes as
// US) without a general item/sequence walk. See USRegion's doc comment.
func bestEffortUSRegion(buf []byte) (USRegion, bool) {
	var region USRegion
	found := false
	r := dcmio.NewReader(buf)
	for r.Remaining() >= 8 {
		group, err := r.U16()
		if err != nil {
			break
		}
		element, err := r.U16()
		if err != nil {
			break
		}
		vrBytes, err := r.Bytes(2)
		if err != nil {
			break
		}
		vr := string(vrBytes)

		var length uint32
		if isLongFormVR(vr) {
			if err := r.Skip(2); err != nil {
				break
			}
			l, err := r.U32()
			if err != nil {
				break
			}
			length = l
		} else {
			l, err := r.U16()
			if err != nil {
				break
			}
			length = uint32(l)
		}
		if length == undefinedLength || r.Remaining() < int(length) {
			break
		}
		valBytes, err := r.Bytes(int(length))
		if err != nil {
			break
		}

		tag := Tag{Group: group, Element: element}
		switch tag {
		case (Tag{0x0018, 0x602C}): // PhysicalDeltaX, VR FD (8-byte double).
			if v, ok := readFD(valBytes); ok {
				region.PhysicalDeltaX = v
				found = true
			}
		case (Tag{0x0018, 0x602E}): // PhysicalDeltaY, VR FD.
			if v, ok := readFD(valBytes); ok {
				region.PhysicalDeltaY = v
				found = true
			}
		case (Tag{0x0018, 0x6024}): // PhysicalUnitsXDirection, VR US (enum).
			if v, ok := readUnitCode(valBytes); ok {
				region.UnitsX = v
			}
		case (Tag{0x0018, 0x6026}): // PhysicalUnitsYDirection, VR US.
			if v, ok := readUnitCode(valBytes); ok {
				region.UnitsY = v
			}
		case (Tag{0x0018, 0x7056}): // ReferencePixelY0 used as Doppler baseline.
			if len(valBytes) >= 4 {
				v := uint32(valBytes[0]) | uint32(valBytes[1])<<8 | uint32(valBytes[2])<<16 | uint32(valBytes[3])<<24
				region.BaselineRow = int32(v)
				region.HasBaseline = true
			}
		}
	}
	return region, found
}

func readFD(b []byte) (float64, bool) {
	if len(b) < 8 {
		return 0, false
	}
	bits := uint64(0)
	for i := 7; i >= 0; i-- {
		bits = bits<<8 | uint64(b[i])
	}
	return math.Float64frombits(bits), true
}

// usRegionUnitCodes maps the DICOM-defined enumerated unit codes to
// internal unit strings, per spec.md §4.9's unit mapping table.
var usRegionUnitCodes = map[uint16]string{
	3:  "cm",
	4:  "s",
	7:  "cm/s",
	12: "cm",
}

func readUnitCode(b []byte) (string, bool) {
	if len(b) < 2 {
		return "", false
	}
	code := uint16(b[0]) | uint16(b[1])<<8
	u, ok := usRegionUnitCodes[code]
	return u, ok
}
