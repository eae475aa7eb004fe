// Package wadors implements the network data source of spec.md §4.8:
// fetching studies/series/instances/frames over HTTP, retrying retryable
// failures with exponential backoff, and coalescing concurrent identical
// requests the way rtmpSender's dial loop in the teacher retries a single
// destination rather than a per-frame resource.
package wadors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/dcmcore/engine/config"
	"github.com/dcmcore/engine/internal/datasource"
	"github.com/dcmcore/engine/internal/dcmerr"
	"github.com/dcmcore/engine/internal/dcmlog"
	"github.com/dcmcore/engine/internal/dicom"
)

// InstanceRef identifies a DICOM instance by its WADO-RS path components.
type InstanceRef struct {
	StudyUID    string
	SeriesUID   string
	InstanceUID string
}

// String renders the instanceId form consumed by DataSource methods:
// "study/series/instance".
func (r InstanceRef) String() string {
	return r.StudyUID + "/" + r.SeriesUID + "/" + r.InstanceUID
}

// ParseInstanceRef splits a "study/series/instance" instanceId back into
// its components.
func ParseInstanceRef(instanceID string) (InstanceRef, error) {
	parts := strings.SplitN(instanceID, "/", 3)
	if len(parts) != 3 {
		return InstanceRef{}, dcmerr.New(dcmerr.NotDICOM, fmt.Sprintf("malformed instanceId %q, want study/series/instance", instanceID))
	}
	return InstanceRef{StudyUID: parts[0], SeriesUID: parts[1], InstanceUID: parts[2]}, nil
}

// metaCacheEntry is the cached LoadMetadata result, including any
// calibration recovered via the Part-10 fallback fetch.
type metaCacheEntry struct {
	meta datasource.Metadata
}

// Source is the WADO-RS collaborator.
type Source struct {
	cfg    config.WadoConfig
	client *http.Client
	log    dcmlog.Logger

	metaCache  *lru.Cache[string, metaCacheEntry]
	frameCache *lru.Cache[string, []byte]

	group singleflight.Group
}

// New builds a Source against cfg.BaseURL.
func New(cfg config.WadoConfig, log dcmlog.Logger) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = dcmlog.Discard
	}
	metaCache, err := lru.New[string, metaCacheEntry](cfg.MetadataCacheSize)
	if err != nil {
		return nil, err
	}
	frameCache, err := lru.New[string, []byte](cfg.FrameCacheSize)
	if err != nil {
		return nil, err
	}
	return &Source{
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.Timeout},
		log:        log,
		metaCache:  metaCache,
		frameCache: frameCache,
	}, nil
}

func (s *Source) url(ref InstanceRef, frameNumber int) string {
	base := fmt.Sprintf("%s/studies/%s/series/%s/instances/%s", strings.TrimRight(s.cfg.BaseURL, "/"), ref.StudyUID, ref.SeriesUID, ref.InstanceUID)
	if frameNumber > 0 {
		return fmt.Sprintf("%s/frames/%d", base, frameNumber)
	}
	return base
}

// fetch performs one HTTP GET with retry/backoff, coalescing concurrent
// identical requests through singleflight so only one network round trip
// happens per URL at a time.
func (s *Source) fetch(ctx context.Context, url string, accept string) ([]byte, error) {
	v, err, _ := s.group.Do(url, func() (interface{}, error) {
		return s.fetchWithRetry(ctx, url, accept)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (s *Source) fetchWithRetry(ctx context.Context, url, accept string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.Retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := s.cfg.Retry.Delay(attempt - 1)
			s.log.Log(dcmlog.Info, "retrying WADO-RS request", "url", url, "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, dcmerr.New(dcmerr.Cancelled, "request cancelled during backoff")
			}
		}

		body, err := s.doRequest(ctx, url, accept)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !dcmerr.Retryable(err) {
			return nil, err
		}
	}
	return nil, dcmerr.Wrap(dcmerr.NetworkFailed, lastErr, "exhausted retries")
}

func (s *Source) doRequest(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, dcmerr.Wrap(dcmerr.NetworkFailed, err, "building request")
	}
	req.Header.Set("Accept", accept)
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}
	if s.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.AuthToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, dcmerr.NewRetryable("network error", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, dcmerr.NewRetryable("reading response body", err)
		}
		return b, nil
	}

	retryableStatus := resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode >= 500
	statusErr := dcmerr.New(dcmerr.NetworkFailed, fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, url))
	if retryableStatus {
		return nil, dcmerr.NewRetryable("retryable http status", statusErr)
	}
	return nil, statusErr
}

// LoadMetadata implements datasource.DataSource.
func (s *Source) LoadMetadata(instanceID string, opts datasource.Options) (datasource.Metadata, error) {
	if !opts.BypassCache {
		if m, ok := s.metaCache.Get(instanceID); ok {
			return m.meta, nil
		}
	}
	ref, err := ParseInstanceRef(instanceID)
	if err != nil {
		return datasource.Metadata{}, err
	}

	body, err := s.fetch(opts.Token.Context, s.url(ref, 0), "application/dicom+json")
	if err != nil {
		return datasource.Metadata{}, err
	}
	meta, modality, err := parseMetadataJSON(body)
	if err != nil {
		return datasource.Metadata{}, err
	}

	// Only ultrasound instances calibrate via a sequence this metadata
	// parse doesn't walk; a non-ultrasound instance missing PixelSpacing
	// has no calibration to recover, so the fallback fetch would just be
	// wasted network traffic.
	if !meta.HasCalibration && modality == modalityUltrasound {
		if full, ferr := s.fetch(opts.Token.Context, s.url(ref, 0)+"?fallback=part10", "application/dicom"); ferr == nil {
			if ds, perr := dicom.Parse(full); perr == nil {
				if info, ierr := dicom.ExtractImageInfo(ds); ierr == nil {
					if calib, ok := dicom.DeriveCalibration(info); ok {
						meta.Calibration = calib
						meta.HasCalibration = true
					}
				}
			}
		}
	}

	s.metaCache.Add(instanceID, metaCacheEntry{meta: meta})
	return meta, nil
}

// LoadFrame implements datasource.DataSource. frameNumber is 1-based.
func (s *Source) LoadFrame(instanceID string, frameNumber int, opts datasource.Options) ([]byte, error) {
	cacheKey := instanceID + ":" + strconv.Itoa(frameNumber)
	if !opts.BypassCache {
		if b, ok := s.frameCache.Get(cacheKey); ok {
			return b, nil
		}
	}
	ref, err := ParseInstanceRef(instanceID)
	if err != nil {
		return nil, err
	}
	body, err := s.fetch(opts.Token.Context, s.url(ref, frameNumber), "multipart/related; type=\"application/octet-stream\"")
	if err != nil {
		return nil, err
	}
	s.frameCache.Add(cacheKey, body)
	return body, nil
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
