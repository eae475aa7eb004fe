package dicom

import (
	"encoding/binary"
	"testing"

	"github.com/dcmcore/engine/internal/dcmerr"
)

// element is a small builder used by the tests below to assemble a
// minimal explicit-VR little-endian DICOM buffer, the way
// codec/jpeg's extract_test.go builds RTP packets inline rather than
// checking in binary fixtures.
type element struct {
	tag   Tag
	vr    string
	value []byte
}

func buildDataset(elements []element) []byte {
	buf := make([]byte, dataStart)
	copy(buf[preambleLen:], "DICM")

	for _, e := range elements {
		var hdr [8]byte
		binary.LittleEndian.PutUint16(hdr[0:2], e.tag.Group)
		binary.LittleEndian.PutUint16(hdr[2:4], e.tag.Element)
		copy(hdr[4:6], e.vr)

		if isLongFormVR(e.vr) {
			rest := make([]byte, 12)
			copy(rest[0:6], hdr[0:6]) // group, element, VR
			// rest[6:8] is the 2-byte reserved field, left zero.
			binary.LittleEndian.PutUint32(rest[8:12], uint32(len(e.value)))
			buf = append(buf, rest...)
		} else {
			binary.LittleEndian.PutUint16(hdr[6:8], uint16(len(e.value)))
			buf = append(buf, hdr[:]...)
		}
		buf = append(buf, e.value...)
	}
	return buf
}

func asciiString(s string) []byte {
	if len(s)%2 == 1 {
		s += " "
	}
	return []byte(s)
}

func TestParse_NotDICOM(t *testing.T) {
	_, err := Parse([]byte("too short"))
	if dcmerr.KindOf(err) != dcmerr.NotDICOM {
		t.Fatalf("got %v, want not-dicom", err)
	}

	buf := make([]byte, dataStart)
	copy(buf[preambleLen:], "XXXX")
	_, err = Parse(buf)
	if dcmerr.KindOf(err) != dcmerr.NotDICOM {
		t.Fatalf("got %v, want not-dicom", err)
	}
}

func TestParse_TransferSyntaxAndPixelData(t *testing.T) {
	buf := buildDataset([]element{
		{TagTransferSyntaxUID, "UI", asciiString("1.2.840.10008.1.2.1")},
		{TagRows, "US", []byte{4, 0}},
		{TagPixelData, "OW", make([]byte, 32)},
	})

	ds, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := ds.TransferSyntaxUID(); got != "1.2.840.10008.1.2.1" {
		t.Fatalf("transfer syntax = %q", got)
	}
	if off, ok := ds.PixelDataOffset(); !ok || off <= 0 {
		t.Fatalf("pixel data offset not recorded: %v %v", off, ok)
	}
	if IsEncapsulated(ds.TransferSyntaxUID()) {
		t.Fatalf("1.2.840.10008.1.2.1 must classify as native")
	}
}

func TestIsEncapsulated(t *testing.T) {
	cases := map[string]bool{
		"1.2.840.10008.1.2":        false,
		"1.2.840.10008.1.2.1":      false,
		"1.2.840.10008.1.2.1.99":   false,
		"1.2.840.10008.1.2.2":      false,
		"1.2.840.10008.1.2.4.50":   true,
		"1.2.840.10008.1.2.4.70":   true,
		"1.2.840.10008.1.2.4.90":   true,
		"1.2.840.10008.1.2.5":      true,
	}
	for uid, want := range cases {
		if got := IsEncapsulated(uid); got != want {
			t.Errorf("IsEncapsulated(%q) = %v, want %v", uid, got, want)
		}
	}
}
