package dicom

import "github.com/dcmcore/engine/internal/dcmio"

// undefinedLength marks a sequence/undefined-length value (0xFFFFFFFF);
// encountering it outside pixel data halts parsing per spec.md §4.1.
const undefinedLength = 0xFFFFFFFF

// Element is one parsed DICOM data element. Values are never eagerly
// materialized: Offset/Length describe where the value lives in the
// source buffer, and callers slice on demand through Dataset.Bytes.
type Element struct {
	Tag    Tag
	VR     string
	Length uint32
	Offset int
}

// Dataset is the tag-indexed element table produced by Parse. It never
// copies sample data: its lifetime is bound to the lifetime of the
// source buffer it was parsed from.
type Dataset struct {
	elements         map[string]Element
	source           []byte
	transferSyntax   string
	pixelDataOffset  int
	hasPixelData     bool
}

// Get returns the element stored under tag, if any.
func (d *Dataset) Get(t Tag) (Element, bool) {
	e, ok := d.elements[t.String()]
	return e, ok
}

// Bytes returns a zero-copy view of el's value within the source buffer.
func (d *Dataset) Bytes(el Element) []byte {
	return d.source[el.Offset : el.Offset+int(el.Length)]
}

// Source returns the full source buffer the dataset was parsed from.
func (d *Dataset) Source() []byte { return d.source }

// TransferSyntaxUID returns the trimmed transfer syntax UID recorded
// during parsing, or "" if (0002,0010) was absent.
func (d *Dataset) TransferSyntaxUID() string { return d.transferSyntax }

// PixelDataOffset returns the byte offset of the (7FE0,0010) element's
// value (i.e. just past its tag/VR/length header), and whether pixel
// data was found at all.
func (d *Dataset) PixelDataOffset() (int, bool) { return d.pixelDataOffset, d.hasPixelData }

// String reads tag's value as a trimmed ASCII string, or "" if absent.
func (d *Dataset) String(t Tag) string {
	el, ok := d.Get(t)
	if !ok {
		return ""
	}
	return trimASCII(d.Bytes(el))
}

// UInt16 reads tag's value as a little-endian uint16, or (0, false) if
// absent or too short.
func (d *Dataset) UInt16(t Tag) (uint16, bool) {
	el, ok := d.Get(t)
	if !ok || el.Length < 2 {
		return 0, false
	}
	r := dcmio.NewReader(d.Bytes(el))
	v, err := r.U16()
	if err != nil {
		return 0, false
	}
	return v, true
}

func trimASCII(b []byte) string {
	i := len(b)
	for i > 0 && (b[i-1] == 0 || b[i-1] == ' ') {
		i--
	}
	j := 0
	for j < i && b[j] == ' ' {
		j++
	}
	return string(b[j:i])
}
