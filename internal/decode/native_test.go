package decode

import (
	"testing"

	"github.com/dcmcore/engine/internal/dicom"
)

// TestDecodeNative_Mono8 reproduces spec.md §8 scenario 1: 8x8
// MONOCHROME2, one frame of 64 bytes 0..63; (0,0) should be gray 0 and
// (7,7) gray 63 before window/level.
func TestDecodeNative_Mono8(t *testing.T) {
	frame := make([]byte, 64)
	for i := range frame {
		frame[i] = byte(i)
	}
	info := dicom.ImageInfo{
		Rows: 8, Columns: 8, BitsAllocated: 8, BitsStored: 8, HighBit: 7,
		SamplesPerPixel: 1, PhotometricInterpretation: "MONOCHROME2",
	}

	r, err := decodeNative(frame, info)
	if err != nil {
		t.Fatalf("decodeNative: %v", err)
	}
	if v := r.Image.RGBAAt(0, 0).R; v != 0 {
		t.Errorf("(0,0) = %d, want 0", v)
	}
	if v := r.Image.RGBAAt(7, 7).R; v != 63 {
		t.Errorf("(7,7) = %d, want 63", v)
	}
}

func TestDecodeNative_Mono1Inverts(t *testing.T) {
	frame := []byte{0, 255}
	info := dicom.ImageInfo{
		Rows: 1, Columns: 2, BitsAllocated: 8, BitsStored: 8, HighBit: 7,
		SamplesPerPixel: 1, PhotometricInterpretation: "MONOCHROME1",
	}
	r, err := decodeNative(frame, info)
	if err != nil {
		t.Fatalf("decodeNative: %v", err)
	}
	if v := r.Image.RGBAAt(0, 0).R; v != 255 {
		t.Errorf("inverted (0,0) = %d, want 255", v)
	}
	if v := r.Image.RGBAAt(1, 0).R; v != 0 {
		t.Errorf("inverted (1,0) = %d, want 0", v)
	}
}
