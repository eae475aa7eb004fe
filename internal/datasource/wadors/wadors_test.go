package wadors

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dcmcore/engine/config"
	"github.com/dcmcore/engine/internal/datasource"
	"github.com/dcmcore/engine/internal/dcmctx"
	"github.com/dcmcore/engine/internal/dcmerr"
	"github.com/dcmcore/engine/internal/dicom"
)

const sampleMetadataJSON = `[{
	"00280010": {"vr": "US", "Value": [4]},
	"00280011": {"vr": "US", "Value": [4]},
	"00280100": {"vr": "US", "Value": [8]},
	"00280101": {"vr": "US", "Value": [8]},
	"00280102": {"vr": "US", "Value": [7]},
	"00280103": {"vr": "US", "Value": [0]},
	"00280002": {"vr": "US", "Value": [1]},
	"00280004": {"vr": "CS", "Value": ["MONOCHROME2"]},
	"00020010": {"vr": "UI", "Value": ["1.2.840.10008.1.2.1"]}
}]`

// sampleUltrasoundMetadataJSON is the same instance but missing
// PixelSpacing and carrying Modality "US", the combination that should
// trigger the Part-10 calibration fallback.
const sampleUltrasoundMetadataJSON = `[{
	"00280010": {"vr": "US", "Value": [4]},
	"00280011": {"vr": "US", "Value": [4]},
	"00280100": {"vr": "US", "Value": [8]},
	"00280101": {"vr": "US", "Value": [8]},
	"00280102": {"vr": "US", "Value": [7]},
	"00280103": {"vr": "US", "Value": [0]},
	"00280002": {"vr": "US", "Value": [1]},
	"00280004": {"vr": "CS", "Value": ["MONOCHROME2"]},
	"00020010": {"vr": "UI", "Value": ["1.2.840.10008.1.2.1"]},
	"00080060": {"vr": "CS", "Value": ["US"]}
}]`

// buildPart10WithPixelSpacing builds a minimal 4x4 MONOCHROME2 Part-10
// buffer carrying a PixelSpacing element, for the fallback fetch to
// recover calibration from.
func buildPart10WithPixelSpacing(t *testing.T) []byte {
	t.Helper()
	var buf []byte
	buf = append(buf, make([]byte, 128)...)
	buf = append(buf, 'D', 'I', 'C', 'M')

	putShort := func(tagGroup, tagElem uint16, vr string, value []byte) {
		b := make([]byte, 8+len(value))
		b[0], b[1] = byte(tagGroup), byte(tagGroup>>8)
		b[2], b[3] = byte(tagElem), byte(tagElem>>8)
		b[4], b[5] = vr[0], vr[1]
		b[6], b[7] = byte(len(value)), byte(len(value)>>8)
		copy(b[8:], value)
		buf = append(buf, b...)
	}
	putUS := func(tagGroup, tagElem uint16, v uint16) {
		putShort(tagGroup, tagElem, "US", []byte{byte(v), byte(v >> 8)})
	}
	ts := "1.2.840.10008.1.2.1\x00"
	putShort(0x0002, 0x0010, "UI", []byte(ts))
	putUS(0x0028, 0x0010, 4) // Rows
	putUS(0x0028, 0x0011, 4) // Columns
	putUS(0x0028, 0x0100, 8) // BitsAllocated
	putUS(0x0028, 0x0101, 8) // BitsStored
	putUS(0x0028, 0x0102, 7) // HighBit
	putUS(0x0028, 0x0103, 0) // PixelRepresentation
	putShort(0x0028, 0x0004, "CS", []byte("MONOCHROME2\x00"))
	putUS(0x0028, 0x0002, 1) // SamplesPerPixel
	putShort(0x0028, 0x0030, "DS", []byte("1.0\\1.0\x00"))

	pixels := make([]byte, 16)
	hdr := make([]byte, 12)
	hdr[0], hdr[1] = 0xE0, 0x7F
	hdr[2], hdr[3] = 0x10, 0x00
	hdr[4], hdr[5] = 'O', 'W'
	hdr[8] = byte(len(pixels))
	hdr[9] = byte(len(pixels) >> 8)
	hdr[10] = byte(len(pixels) >> 16)
	hdr[11] = byte(len(pixels) >> 24)
	buf = append(buf, hdr...)
	buf = append(buf, pixels...)
	return buf
}

func newTestSource(t *testing.T, handler http.HandlerFunc) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.DefaultWadoConfig(srv.URL)
	cfg.Retry = config.RetryPolicy{Initial: time.Millisecond, MaxRetries: 2}
	src, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return src
}

func TestLoadMetadata_ParsesJSON(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleMetadataJSON))
	})

	meta, err := src.LoadMetadata("study1/series1/inst1", datasource.Options{Token: dcmctx.Background()})
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	want := dicom.ImageInfo{
		Rows:                      4,
		Columns:                   4,
		BitsAllocated:             8,
		BitsStored:                8,
		HighBit:                   7,
		PixelRepresentation:       0,
		PhotometricInterpretation: "MONOCHROME2",
		SamplesPerPixel:           1,
	}
	if diff := cmp.Diff(want, meta.ImageInfo); diff != "" {
		t.Fatalf("ImageInfo mismatch (-want +got):\n%s", diff)
	}
	if meta.IsEncapsulated {
		t.Fatalf("expected non-encapsulated transfer syntax")
	}
}

func TestLoadMetadata_RejectsMalformedInstanceID(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("should not reach the network for a malformed instanceId")
	})
	_, err := src.LoadMetadata("not-enough-parts", datasource.Options{Token: dcmctx.Background()})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestFetch_RetriesOnServerError(t *testing.T) {
	var attempts int32
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(sampleMetadataJSON))
	})

	_, err := src.LoadMetadata("s/r/i", datasource.Options{Token: dcmctx.Background()})
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("attempts = %d, want 3 (initial + 2 retries)", got)
	}
}

func TestFetch_FailsFastOnNotFound(t *testing.T) {
	var attempts int32
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := src.LoadMetadata("s/r/i", datasource.Options{Token: dcmctx.Background()})
	if dcmerr.KindOf(err) != dcmerr.NetworkFailed {
		t.Fatalf("got %v, want NetworkFailed", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("attempts = %d, want 1 (no retry on 404)", got)
	}
}

func TestLoadMetadata_FallsBackOnUltrasoundMissingCalibration(t *testing.T) {
	var requests []string
	part10 := buildPart10WithPixelSpacing(t)
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.RawQuery)
		if r.URL.RawQuery == "fallback=part10" {
			w.Write(part10)
			return
		}
		w.Write([]byte(sampleUltrasoundMetadataJSON))
	})

	meta, err := src.LoadMetadata("s/r/i", datasource.Options{Token: dcmctx.Background()})
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	if !meta.HasCalibration {
		t.Fatalf("expected calibration recovered via Part-10 fallback")
	}
	if len(requests) != 2 {
		t.Fatalf("requests = %v, want 2 (metadata + fallback)", requests)
	}
}

func TestLoadMetadata_SkipsFallbackForNonUltrasound(t *testing.T) {
	var requests int32
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		if r.URL.RawQuery == "fallback=part10" {
			t.Fatalf("fallback fetch should not fire for a non-ultrasound instance")
		}
		w.Write([]byte(sampleMetadataJSON))
	})

	meta, err := src.LoadMetadata("s/r/i", datasource.Options{Token: dcmctx.Background()})
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	if meta.HasCalibration {
		t.Fatalf("expected no calibration without PixelSpacing or a fallback")
	}
	if got := atomic.LoadInt32(&requests); got != 1 {
		t.Fatalf("requests = %d, want 1", got)
	}
}

func TestLoadFrame_CachesResult(t *testing.T) {
	var attempts int32
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Write([]byte{1, 2, 3, 4})
	})

	for i := 0; i < 2; i++ {
		b, err := src.LoadFrame("s/r/i", 1, datasource.Options{Token: dcmctx.Background()})
		if err != nil {
			t.Fatalf("LoadFrame: %v", err)
		}
		if len(b) != 4 {
			t.Fatalf("frame length = %d, want 4", len(b))
		}
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("attempts = %d, want 1 (second call should hit cache)", got)
	}
}
