// Package engine wires every internal collaborator into the single
// object an embedder constructs once per viewer instance, the way
// revid.NewRevID assembles a capture pipeline from its sender/input/
// filter/encoder pieces in the teacher.
package engine

import (
	"sync"
	"time"

	"github.com/dcmcore/engine/config"
	"github.com/dcmcore/engine/internal/annotate"
	"github.com/dcmcore/engine/internal/datasource"
	"github.com/dcmcore/engine/internal/datasource/local"
	"github.com/dcmcore/engine/internal/datasource/wadors"
	"github.com/dcmcore/engine/internal/dcmctx"
	"github.com/dcmcore/engine/internal/dcmerr"
	"github.com/dcmcore/engine/internal/dcmlog"
	"github.com/dcmcore/engine/internal/decode"
	"github.com/dcmcore/engine/internal/gputex"
	"github.com/dcmcore/engine/internal/scheduler"
	framesync "github.com/dcmcore/engine/internal/sync"
	"github.com/dcmcore/engine/internal/viewport"
)

// Config assembles an Engine. The GPU-, decode- and draw-facing
// collaborators are interfaces the embedder implements against its own
// platform (WebGPU/Vulkan/GL, a hardware JPEG/JPEG2000 decoder, a Canvas
// or equivalent draw surface); engine only owns the bookkeeping that sits
// above them.
type Config struct {
	SurfaceW, SurfaceH int
	Layout             config.Layout
	Perf               config.PerfOptions
	Telemetry          config.TelemetryOptions
	RefreshInterval    time.Duration

	GPUSurface      gputex.Surface
	DrawSurface     scheduler.DrawSurface
	HardwareDecoder decode.HardwareDecoder
	BitmapPrimitive decode.BitmapPrimitive

	Render        scheduler.RenderCallback
	OnFrameUpdate scheduler.FrameUpdateCallback

	// Local and Wado are optional; at least one should be set for the
	// engine to have anything to load series from. Both may be set.
	Local *config.LocalConfig
	Wado  *config.WadoConfig

	AnnotationCaps     annotate.Caps
	OnAnnotationChange annotate.ChangeCallback

	Logger dcmlog.Logger
}

// Engine is the assembled runtime: a viewport manager, a frame-sync
// engine, a GPU texture cache, a frame decoder, zero or more data
// sources, an annotation store, and the render scheduler driving them
// all from a single refresh signal.
type Engine struct {
	log dcmlog.Logger

	Viewports   *viewport.Manager
	Sync        *framesync.Engine
	Textures    *gputex.Cache
	Annotations *annotate.Store
	Scheduler   *scheduler.Scheduler

	decoder *decode.Decoder
	local   *local.Source
	wado    *wadors.Source

	mu         sync.Mutex
	calibCache map[string]annotate.Calibration
}

// New validates cfg and assembles an Engine. It returns an error rather
// than panicking on any collaborator's own validation failure, per the
// error-handling stance internal/dcmerr establishes for the rest of the
// engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = dcmlog.Discard
	}
	if err := cfg.Layout.Validate(); err != nil {
		return nil, err
	}
	if cfg.DrawSurface == nil {
		return nil, dcmerr.New(dcmerr.DecodeFailed, "engine.Config.DrawSurface must not be nil")
	}
	if cfg.Render == nil {
		return nil, dcmerr.New(dcmerr.DecodeFailed, "engine.Config.Render must not be nil")
	}

	vm := viewport.NewManager(cfg.SurfaceW, cfg.SurfaceH)
	if err := vm.SetLayout(cfg.Layout); err != nil {
		return nil, err
	}

	se := framesync.NewEngine()

	perf := cfg.Perf
	if perf.MaxVRAMBytes == 0 {
		perf = config.DefaultPerfOptions()
	}
	textures := gputex.New(cfg.GPUSurface, perf.MaxVRAMBytes, cfg.Logger)

	decoder := decode.New(cfg.HardwareDecoder, cfg.BitmapPrimitive, cfg.Logger)

	e := &Engine{
		log:         cfg.Logger,
		Viewports:   vm,
		Sync:        se,
		Textures:    textures,
		Annotations: annotate.NewStore(cfg.AnnotationCaps, cfg.OnAnnotationChange),
		decoder:     decoder,
		calibCache:  make(map[string]annotate.Calibration),
	}

	if cfg.Local != nil {
		src, err := local.New(*cfg.Local)
		if err != nil {
			return nil, err
		}
		e.local = src
	}
	if cfg.Wado != nil {
		src, err := wadors.New(*cfg.Wado, cfg.Logger)
		if err != nil {
			return nil, err
		}
		e.wado = src
	}

	e.Scheduler = scheduler.New(scheduler.Options{
		Manager:         vm,
		SyncEngine:      se,
		Surface:         cfg.DrawSurface,
		Render:          cfg.Render,
		OnFrameUpdate:   cfg.OnFrameUpdate,
		VRAMReporter:    func() int64 { return textures.LiveBytes() },
		Logger:          cfg.Logger,
		Telemetry:       cfg.Telemetry,
		RefreshInterval: cfg.RefreshInterval,
	})

	return e, nil
}

// LocalSource returns the configured local data source, or nil if none
// was configured.
func (e *Engine) LocalSource() *local.Source { return e.local }

// WadoSource returns the configured WADO-RS data source, or nil if none
// was configured.
func (e *Engine) WadoSource() *wadors.Source { return e.wado }

// Calibration returns the physical-unit calibration recorded for
// instanceID by the most recent BindSeries call, if any.
func (e *Engine) Calibration(instanceID string) (annotate.Calibration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.calibCache[instanceID]
	return c, ok
}

// BindSeries loads every frame of instanceID from src, decodes each into
// a raster, uploads them into the series' layered GPU texture, and binds
// the series onto viewportID, per spec.md §4.1/§4.4's load pipeline: one
// immutable array texture per series, built once from LoadAllFrames
// rather than frame-at-a-time, since the local/WADO-RS sources both
// already batch-fetch and cache at that granularity.
func (e *Engine) BindSeries(ctx dcmctx.Token, viewportID, instanceID string, src datasource.DataSource, opts datasource.Options) error {
	if _, ok := e.Viewports.Get(viewportID); !ok {
		return dcmerr.New(dcmerr.FrameOutOfRange, "unknown viewport "+viewportID)
	}

	meta, frames, err := src.LoadAllFrames(instanceID, opts)
	if err != nil {
		return err
	}

	if _, err := e.Textures.Admit(instanceID, int(meta.ImageInfo.Columns), int(meta.ImageInfo.Rows), meta.FrameCount); err != nil {
		return err
	}

	for i, raw := range frames {
		raster, err := e.decoder.Decode(ctx, raw, meta.IsEncapsulated, meta.TransferSyntax, meta.ImageInfo)
		if err != nil {
			return err
		}
		uploadErr := e.Textures.UploadLayer(instanceID, i, raster.Image)
		closeErr := raster.Close()
		if uploadErr != nil {
			return uploadErr
		}
		if closeErr != nil {
			e.log.Log(int8(dcmlog.Warn), "raster close failed", "instance", instanceID, "frame", i, "error", closeErr)
		}
	}

	if meta.HasCalibration {
		e.mu.Lock()
		e.calibCache[instanceID] = annotate.CalibrationFromDICOM(meta.Calibration)
		e.mu.Unlock()
	}

	e.Viewports.SetViewportSeries(viewportID, instanceID, meta.FrameCount)
	return nil
}

// UnbindSeries evicts instanceID's texture from the GPU cache. The
// viewport itself keeps its SeriesID/FrameCount until rebound; callers
// that also want the viewport cleared should call
// Viewports.SetViewportSeries with a zero frame count.
func (e *Engine) UnbindSeries(instanceID string) {
	e.Textures.Evict(instanceID)
	e.mu.Lock()
	delete(e.calibCache, instanceID)
	e.mu.Unlock()
}
