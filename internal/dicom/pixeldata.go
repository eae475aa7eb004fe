package dicom

import (
	"strconv"

	"github.com/dcmcore/engine/internal/dcmerr"
	"github.com/dcmcore/engine/internal/dcmio"
)

// PixelDataInfo is the extracted, per-frame view of a dataset's pixel
// data, per spec.md §3/§4.2. Frames are zero-copy views into the source
// buffer.
type PixelDataInfo struct {
	IsEncapsulated bool
	Frames         [][]byte
}

// FrameCount returns len(Frames).
func (p PixelDataInfo) FrameCount() int { return len(p.Frames) }

// ExtractPixelData splits ds's pixel data into per-frame byte views.
// Native data is split using the frame stride derived from info; the
// "Number of Frames" element (a decimal ASCII string) selects frame
// count, defaulting to 1. Encapsulated data is split by walking fragment
// items, skipping the Basic Offset Table unconditionally.
func ExtractPixelData(ds *Dataset, info ImageInfo) (PixelDataInfo, error) {
	offset, ok := ds.PixelDataOffset()
	if !ok {
		return PixelDataInfo{}, dcmerr.New(dcmerr.PixelDataMissing, "dataset lacks (7FE0,0010)")
	}
	el, _ := ds.Get(TagPixelData)
	encapsulated := IsEncapsulated(ds.TransferSyntaxUID())

	if !encapsulated {
		return extractNative(ds, el, offset, info)
	}
	return extractEncapsulated(ds.Source(), offset)
}

func extractNative(ds *Dataset, el Element, offset int, info ImageInfo) (PixelDataInfo, error) {
	src := ds.Source()

	// The PixelData element's length for native data is the declared
	// element length (short or long form per its VR); for explicit VR
	// this is already captured in el.Length by the parser.
	length := int(el.Length)
	if offset+length > len(src) {
		return PixelDataInfo{}, dcmerr.New(dcmerr.ParseTruncated, "pixel data exceeds buffer length")
	}
	payload := src[offset : offset+length]

	frameCount := 1
	if n := ds.String(TagNumberOfFrames); n != "" {
		if v, err := strconv.Atoi(n); err == nil && v > 1 {
			frameCount = v
		}
	}

	stride := info.FrameStride()
	if stride <= 0 {
		return PixelDataInfo{}, dcmerr.New(dcmerr.ParseTruncated, "invalid frame stride")
	}

	frames := make([][]byte, 0, frameCount)
	for i := 0; i < frameCount; i++ {
		start := i * stride
		end := start + stride
		if end > len(payload) {
			return PixelDataInfo{}, dcmerr.New(dcmerr.ParseTruncated, "pixel data shorter than frameCount*frameStride")
		}
		frames = append(frames, payload[start:end])
	}

	return PixelDataInfo{IsEncapsulated: false, Frames: frames}, nil
}

// extractEncapsulated walks the fragment-item grammar of spec.md §6
// starting at byte offset off in src:
//
//	pixel-data := VR reserved length=0xFFFFFFFF bot-item item* sd-item
//	bot-item   := tag(FFFE,E000) length(4) length-bytes   (always skipped)
//	item       := tag(FFFE,E000) length(4) frame-bytes(length)
//	sd-item    := tag(FFFE,E0DD) length(4)=0
//
// off is expected to point just past the pixel-data element's own
// header (i.e. at the first fragment item's tag), matching
// Dataset.PixelDataOffset.
func extractEncapsulated(src []byte, off int) (PixelDataInfo, error) {
	r := dcmio.NewReader(src)
	r.Seek(off)

	frames := make([][]byte, 0)
	first := true
	for r.Remaining() >= 8 {
		group, err := r.U16()
		if err != nil {
			return PixelDataInfo{}, dcmerr.New(dcmerr.ParseTruncated, "truncated fragment item tag")
		}
		element, err := r.U16()
		if err != nil {
			return PixelDataInfo{}, dcmerr.New(dcmerr.ParseTruncated, "truncated fragment item tag")
		}
		length, err := r.U32()
		if err != nil {
			return PixelDataInfo{}, dcmerr.New(dcmerr.ParseTruncated, "truncated fragment item length")
		}

		tag := Tag{Group: group, Element: element}
		if tag == TagSequenceDelimiter {
			break
		}
		if tag != TagItem {
			return PixelDataInfo{}, dcmerr.New(dcmerr.ParseTruncated, "expected fragment item tag")
		}

		data, err := r.Bytes(int(length))
		if err != nil {
			return PixelDataInfo{}, dcmerr.New(dcmerr.ParseTruncated, "fragment item exceeds buffer length")
		}

		if first {
			// The first item is always the Basic Offset Table and is
			// skipped regardless of its length or content, per spec.md
			// §4.2/§9's open question: offset/fragment mismatches are
			// not validated here, they surface later as decode-failed.
			first = false
			continue
		}
		frames = append(frames, data)
	}

	return PixelDataInfo{IsEncapsulated: true, Frames: frames}, nil
}
