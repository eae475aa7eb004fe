// Package decode implements the frame decoder of spec.md §4.3: it turns
// one encoded frame (encapsulated JPEG/JPEG-LS/JPEG2000 fragment, or a
// native uncompressed sample buffer) into an RGBA Raster, dispatching to
// a caller-supplied hardware decode primitive with a software fallback.
//
// The hardware primitive is modeled as an interface because there is no
// portable Go API for GPU-accelerated image decode; callers wire a real
// implementation (e.g. a cgo binding, or a WebGPU/Vulkan compute path) the
// same way device.AVDevice in the teacher pipeline is a thin interface a
// platform-specific implementation satisfies.
package decode

import (
	"image"

	"github.com/pkg/errors"
	xdraw "golang.org/x/image/draw"

	"github.com/dcmcore/engine/internal/dcmctx"
	"github.com/dcmcore/engine/internal/dcmerr"
	"github.com/dcmcore/engine/internal/dcmlog"
	"github.com/dcmcore/engine/internal/dicom"
)

// PixelLayout describes the planar layout a HardwareFrame was produced
// in, mirroring the handful of layouts a browser-style hardware image
// decoder commonly emits.
type PixelLayout int

const (
	LayoutRGBA PixelLayout = iota
	LayoutI420
	LayoutI422
	LayoutNV12
	LayoutNV21
)

// Planar reports whether the layout needs a blit to RGBA before it can
// be uploaded to a texture layer.
func (l PixelLayout) Planar() bool { return l != LayoutRGBA }

// HardwareFrame is a single decoded frame returned by a HardwareDecoder.
// Close must be called exactly once; it releases whatever GPU-adjacent
// resource the platform decoder allocated.
type HardwareFrame interface {
	Layout() PixelLayout
	Width() int
	Height() int
	// Planes returns the raw sample planes for a planar Layout, in
	// plane order (e.g. Y, U, V for I420/I422; Y, UV for NV12/NV21).
	Planes() [][]byte
	// RGBA returns the already-RGBA bitmap for LayoutRGBA; nil
	// otherwise.
	RGBA() *image.RGBA
	Close() error
}

// HardwareDecoder is the caller-supplied hardware-accelerated image
// decode primitive, analogous to a browser's ImageDecoder.
type HardwareDecoder interface {
	// Ready blocks until the decoder is initialized for mimeType,
	// mirroring "await decoder-ready" in spec.md §4.3.
	Ready(ctx dcmctx.Token, mimeType string) error
	Decode(ctx dcmctx.Token, mimeType string, data []byte) (HardwareFrame, error)
}

// BitmapPrimitive is the generic software fallback, analogous to
// createImageBitmap(blob).
type BitmapPrimitive interface {
	CreateBitmap(ctx dcmctx.Token, data []byte) (*image.RGBA, error)
}

// Raster is a single decoded frame ready for texture upload. NeedsClose
// marks whether Close must be called to release an underlying
// GPU-adjacent resource; callers must call Close exactly once regardless
// of its value (Close is a no-op when NeedsClose is false).
type Raster struct {
	Image      *image.RGBA
	Width      int
	Height     int
	NeedsClose bool

	closer func() error
}

// Close releases the raster's underlying resource, if any. Safe to call
// even when NeedsClose is false.
func (r *Raster) Close() error {
	if r.closer == nil {
		return nil
	}
	c := r.closer
	r.closer = nil
	return c()
}

// mimeForTransferSyntax maps the encapsulated transfer syntax families
// spec.md §6 consumes to the mime type a hardware decoder expects.
func mimeForTransferSyntax(uid string) string {
	switch {
	case uid == "1.2.840.10008.1.2.5":
		return "image/x-dicom-rle"
	case len(uid) >= len("1.2.840.10008.1.2.4.90") && uid[:len("1.2.840.10008.1.2.4.9")] == "1.2.840.10008.1.2.4.9":
		return "image/jp2" // JPEG2000 lossless/lossy (.90, .91).
	case len(uid) >= len("1.2.840.10008.1.2.4.20") && (uid[len(uid)-3:] >= "201" && uid[len(uid)-3:] <= "203"):
		return "image/jp2"
	default:
		return "image/jpeg" // Baseline/extended/JPEG-LS families.
	}
}

// Decoder dispatches encoded frame bytes to raster frames per spec.md
// §4.3, owning decoded-frame lifetime accounting via Raster.Close.
type Decoder struct {
	hw     HardwareDecoder
	bitmap BitmapPrimitive
	log    dcmlog.Logger
}

// New builds a Decoder. hw and bitmap may be nil; when hw is nil, or
// when it fails, decode falls through to bitmap; when both are nil,
// encapsulated frames cannot be decoded and Decode returns
// dcmerr.DecodeFailed.
func New(hw HardwareDecoder, bitmap BitmapPrimitive, log dcmlog.Logger) *Decoder {
	if log == nil {
		log = dcmlog.Discard
	}
	return &Decoder{hw: hw, bitmap: bitmap, log: log}
}

// Decode converts one frame's encoded bytes into a Raster. info and
// isEncapsulated describe the source frame's format (from ImageInfo and
// the dataset's transfer syntax); transferSyntaxUID selects the mime
// type for the hardware/fallback path.
func (d *Decoder) Decode(ctx dcmctx.Token, frame []byte, isEncapsulated bool, transferSyntaxUID string, info dicom.ImageInfo) (*Raster, error) {
	if ctx.Cancelled() {
		return nil, dcmerr.New(dcmerr.Cancelled, "decode cancelled")
	}
	if isEncapsulated {
		return d.decodeEncapsulated(ctx, frame, transferSyntaxUID)
	}
	return decodeNative(frame, info)
}

func (d *Decoder) decodeEncapsulated(ctx dcmctx.Token, frame []byte, transferSyntaxUID string) (*Raster, error) {
	mime := mimeForTransferSyntax(transferSyntaxUID)

	if d.hw != nil {
		if err := d.hw.Ready(ctx, mime); err == nil {
			hf, err := d.hw.Decode(ctx, mime, frame)
			if err == nil {
				return d.finishHardwareFrame(hf)
			}
			d.log.Log(int8(dcmlog.Warn), "hardware decode failed, falling back", "error", err)
		} else {
			d.log.Log(int8(dcmlog.Warn), "hardware decoder not ready, falling back", "error", err)
		}
	}

	if d.bitmap != nil {
		img, err := d.bitmap.CreateBitmap(ctx, frame)
		if err != nil {
			return nil, dcmerr.Wrap(dcmerr.DecodeFailed, err, "software fallback decode failed")
		}
		return &Raster{Image: img, Width: img.Bounds().Dx(), Height: img.Bounds().Dy(), NeedsClose: false}, nil
	}

	return nil, dcmerr.New(dcmerr.DecodeFailed, "no hardware or fallback decoder available")
}

func (d *Decoder) finishHardwareFrame(hf HardwareFrame) (*Raster, error) {
	if !hf.Layout().Planar() {
		return &Raster{
			Image:      hf.RGBA(),
			Width:      hf.Width(),
			Height:     hf.Height(),
			NeedsClose: true,
			closer:     hf.Close,
		}, nil
	}

	rgba, err := blitPlanarToRGBA(hf)
	if closeErr := hf.Close(); closeErr != nil {
		d.log.Log(int8(dcmlog.Warn), "failed to close hardware frame after blit", "error", closeErr)
	}
	if err != nil {
		return nil, dcmerr.Wrap(dcmerr.DecodeFailed, err, "planar-to-RGBA blit failed")
	}
	return &Raster{Image: rgba, Width: hf.Width(), Height: hf.Height(), NeedsClose: false}, nil
}

// blitPlanarToRGBA converts a planar luma/chroma frame (I420/I422/NV
// family) to an RGBA bitmap via a platform blit, per spec.md §4.3.
// golang.org/x/image/draw provides the scaling/compositing primitive the
// conversion is expressed through; the chroma upsample itself is a
// simple nearest-neighbor expansion consistent with a "platform blit"
// rather than a full BT.601/BT.709 colorimetric transform, which is out
// of scope for the core per spec.md §1 (no software codecs beyond the
// baseline subsets already handled by the hardware/fallback paths).
func blitPlanarToRGBA(hf HardwareFrame) (*image.RGBA, error) {
	planes := hf.Planes()
	if len(planes) < 2 {
		return nil, errors.New("planar frame must have at least 2 planes")
	}
	w, h := hf.Width(), hf.Height()
	y := planes[0]
	if len(y) < w*h {
		return nil, errors.New("luma plane shorter than width*height")
	}

	var cw, ch int
	switch hf.Layout() {
	case LayoutI420, LayoutNV12, LayoutNV21:
		cw, ch = (w+1)/2, (h+1)/2
	case LayoutI422:
		cw, ch = (w+1)/2, h
	default:
		return nil, errors.Errorf("unsupported planar layout %v", hf.Layout())
	}

	chromaAt := func(cx, cy int) (u, v uint8) {
		switch hf.Layout() {
		case LayoutI420, LayoutI422:
			uPlane, vPlane := planes[1], planes[2]
			idx := cy*cw + cx
			return uPlane[idx], vPlane[idx]
		case LayoutNV12:
			uv := planes[1]
			idx := (cy*cw + cx) * 2
			return uv[idx], uv[idx+1]
		case LayoutNV21:
			uv := planes[1]
			idx := (cy*cw + cx) * 2
			return uv[idx+1], uv[idx]
		}
		return 128, 128
	}

	ycbcr := image.NewYCbCr(image.Rect(0, 0, w, h), subsampleRatio(hf.Layout()))
	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			ycbcr.Y[ycbcr.YOffset(px, py)] = y[py*w+px]
			cx, cy := px*cw/w, py*ch/h
			u, v := chromaAt(cx, cy)
			ci := ycbcr.COffset(px, py)
			ycbcr.Cb[ci] = u
			ycbcr.Cr[ci] = v
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(dst, dst.Bounds(), ycbcr, image.Point{}, xdraw.Src)
	return dst, nil
}

func subsampleRatio(l PixelLayout) image.YCbCrSubsampleRatio {
	switch l {
	case LayoutI422:
		return image.YCbCrSubsampleRatio422
	default:
		return image.YCbCrSubsampleRatio420
	}
}
