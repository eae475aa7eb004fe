package decode

import (
	"image"

	"github.com/dcmcore/engine/internal/dcmerr"
	"github.com/dcmcore/engine/internal/dicom"
)

// decodeNative expands one native (uncompressed) frame into an RGBA
// raster per spec.md §4.3. It never needs hardware/fallback decode
// primitives or Close, since no external resource is allocated.
func decodeNative(frame []byte, info dicom.ImageInfo) (*Raster, error) {
	w, h := int(info.Columns), int(info.Rows)
	if w <= 0 || h <= 0 {
		return nil, dcmerr.New(dcmerr.DecodeFailed, "invalid image dimensions")
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))

	switch {
	case info.IsMonochrome() && info.BitsAllocated == 8:
		if err := expandMono8(img, frame, w, h, info.IsMonochrome1()); err != nil {
			return nil, err
		}
	case info.IsMonochrome() && info.BitsAllocated == 16:
		if err := expandMono16(img, frame, w, h, info.BitsStored, info.IsMonochrome1()); err != nil {
			return nil, err
		}
	case info.SamplesPerPixel == 3:
		if err := expandTriplet(img, frame, w, h); err != nil {
			return nil, err
		}
	default:
		return nil, dcmerr.New(dcmerr.DecodeFailed, "unsupported native sample layout")
	}

	return &Raster{Image: img, Width: w, Height: h, NeedsClose: false}, nil
}

func expandMono8(img *image.RGBA, frame []byte, w, h int, invert bool) error {
	if len(frame) < w*h {
		return dcmerr.New(dcmerr.DecodeFailed, "frame shorter than rows*columns")
	}
	for i := 0; i < w*h; i++ {
		v := frame[i]
		if invert {
			v = 255 - v
		}
		o := i * 4
		img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = v, v, v, 255
	}
	return nil
}

func expandMono16(img *image.RGBA, frame []byte, w, h int, bitsStored uint16, invert bool) error {
	if len(frame) < w*h*2 {
		return dcmerr.New(dcmerr.DecodeFailed, "frame shorter than rows*columns*2")
	}
	maxVal := float64((uint32(1) << bitsStored) - 1)
	if maxVal <= 0 {
		maxVal = 1
	}
	for i := 0; i < w*h; i++ {
		sample := uint16(frame[i*2]) | uint16(frame[i*2+1])<<8
		scaled := float64(sample) / maxVal * 255
		if scaled > 255 {
			scaled = 255
		}
		v := uint8(scaled)
		if invert {
			v = 255 - v
		}
		o := i * 4
		img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = v, v, v, 255
	}
	return nil
}

// expandTriplet handles RGB and YBR_FULL native frames by copying the
// three sample-plane channels straight into R,G,B, per spec.md §4.3
// ("For RGB or YBR_FULL, copy sample-plane channels into R,G,B").
func expandTriplet(img *image.RGBA, frame []byte, w, h int) error {
	if len(frame) < w*h*3 {
		return dcmerr.New(dcmerr.DecodeFailed, "frame shorter than rows*columns*3")
	}
	for i := 0; i < w*h; i++ {
		o := i * 4
		s := i * 3
		img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = frame[s], frame[s+1], frame[s+2], 255
	}
	return nil
}
