// Package dicom implements the DICOM Part-10 parser and pixel-data
// extractor of spec.md §4.1/§4.2: it builds a tag-indexed element table
// over a source buffer without copying sample data, and splits pixel
// data (native or encapsulated) into per-frame byte views.
package dicom

import "fmt"

// Tag is a DICOM (group, element) pair. Its string form is the 8-hex-digit
// uppercase concatenation used as the Dataset map key.
type Tag struct {
	Group   uint16
	Element uint16
}

// String returns the 8-hex-digit uppercase form, e.g. "7FE00010".
func (t Tag) String() string {
	return fmt.Sprintf("%04X%04X", t.Group, t.Element)
}

// Well-known tags the parser and extractor special-case.
var (
	TagPixelData          = Tag{0x7FE0, 0x0010}
	TagTransferSyntaxUID  = Tag{0x0002, 0x0010}
	TagItem                = Tag{0xFFFE, 0xE000} // BOT or per-frame fragment item.
	TagSequenceDelimiter  = Tag{0xFFFE, 0xE0DD}
	TagNumberOfFrames     = Tag{0x0028, 0x0008}
	TagRows               = Tag{0x0028, 0x0010}
	TagColumns            = Tag{0x0028, 0x0011}
	TagBitsAllocated      = Tag{0x0028, 0x0100}
	TagBitsStored         = Tag{0x0028, 0x0101}
	TagHighBit            = Tag{0x0028, 0x0102}
	TagPixelRepresentation = Tag{0x0028, 0x0103}
	TagSamplesPerPixel    = Tag{0x0028, 0x0002}
	TagPhotometricInterp  = Tag{0x0028, 0x0004}
	TagPixelSpacing       = Tag{0x0028, 0x0030}
	TagUSRegionSequence   = Tag{0x0018, 0x6011}
)

// longFormVRs is the set of VRs that use a 2-byte reserved field plus a
// 4-byte length, per spec.md §4.1/§6.
var longFormVRs = map[string]bool{
	"OB": true, "OD": true, "OF": true, "OL": true,
	"OW": true, "SQ": true, "UC": true, "UN": true,
	"UR": true, "UT": true,
}

// isLongFormVR reports whether vr uses the 6-byte length form.
func isLongFormVR(vr string) bool { return longFormVRs[vr] }
