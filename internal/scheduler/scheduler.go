// Package scheduler implements the render scheduler of spec.md §4.7: a
// single refresh-driven loop that owns the entire draw surface, advancing
// per-viewport playback clocks, clipping to viewport rectangles, and
// invoking a caller-supplied draw callback once per tick per active
// viewport.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/dcmcore/engine/config"
	"github.com/dcmcore/engine/internal/dcmlog"
	framesync "github.com/dcmcore/engine/internal/sync"
	"github.com/dcmcore/engine/internal/viewport"
)

// DrawSurface is the GPU-adjacent capability the scheduler drives per
// tick: clearing, scissoring, and per-viewport coordinate setup. The
// actual pixel work happens in RenderCallback; DrawSurface only owns the
// shared, per-draw mutable state spec.md §5 calls out (scissor, viewport
// rectangle).
type DrawSurface interface {
	Clear()
	EnableScissor()
	DisableScissor()
	SetScissorAndViewport(bounds viewport.Rect)
	// ClearRegion paints bounds with the "no series bound" dim
	// background, per spec.md §4.7 step 2.
	ClearRegion(bounds viewport.Rect)
}

// RenderCallback samples the series' array texture at layer=frameIndex
// and applies the viewport's window/level on the fragment side. It must
// not suspend, per spec.md §5.
type RenderCallback func(viewportID string, frameIndex int, bounds viewport.Rect)

// FrameUpdateCallback fires whenever a viewport's current frame changes,
// in the same order as the draws that produced the change (spec.md §5).
type FrameUpdateCallback func(viewportID string, frameIndex int)

// VRAMReporter supplies the live texture-cache byte accounting for
// telemetry; satisfied by *gputex.Cache without scheduler depending on
// it directly.
type VRAMReporter func() int64

// Clock abstracts wall-clock time so ticks are deterministically
// testable.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Scheduler drives one animation tick per display refresh.
type Scheduler struct {
	vm      *viewport.Manager
	se      *framesync.Engine
	surface DrawSurface
	render  RenderCallback
	onFrame FrameUpdateCallback
	vram    VRAMReporter
	clock   Clock
	log     dcmlog.Logger

	telemetry   *Aggregator
	frameBudget time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// Options configures New.
type Options struct {
	Manager         *viewport.Manager
	SyncEngine      *framesync.Engine
	Surface         DrawSurface
	Render          RenderCallback
	OnFrameUpdate   FrameUpdateCallback
	VRAMReporter    VRAMReporter
	Clock           Clock
	Logger          dcmlog.Logger
	Telemetry       config.TelemetryOptions
	RefreshInterval time.Duration // e.g. 1000/60 ms for a 60 Hz signal.
}

// New builds a Scheduler.
func New(opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = dcmlog.Discard
	}
	if opts.Telemetry.Window <= 0 {
		opts.Telemetry = config.DefaultTelemetryOptions()
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = time.Second / 60
	}
	return &Scheduler{
		vm:          opts.Manager,
		se:          opts.SyncEngine,
		surface:     opts.Surface,
		render:      opts.Render,
		onFrame:     opts.OnFrameUpdate,
		vram:        opts.VRAMReporter,
		clock:       opts.Clock,
		log:         opts.Logger,
		telemetry:   NewAggregator(opts.Telemetry.Window),
		frameBudget: opts.RefreshInterval,
	}
}

// Start begins the refresh-driven loop. Idempotent: calling Start while
// already running is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	go func() {
		ticker := time.NewTicker(s.frameBudget)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick()
			}
		}
	}()
}

// Stop cancels the pending tick immediately and idempotently. Any
// outstanding render callback completes before the next tick would have
// been cancelled (Tick runs synchronously on the scheduler goroutine, so
// this is automatic). Per-viewport LastTick is zeroed so a subsequent
// Play resumes cleanly without a jump.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	s.running = false
	for _, vp := range s.vm.Viewports() {
		vp.LastTick = 0
	}
}

// Running reports whether the refresh-driven loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RenderSingleFrame draws the current state once without advancing any
// playback clock, for paused draws (e.g. after a scrub).
func (s *Scheduler) RenderSingleFrame() Telemetry {
	return s.tick(false)
}

// Tick runs one scheduled frame, advancing playback clocks.
func (s *Scheduler) Tick() Telemetry {
	return s.tick(true)
}

func (s *Scheduler) tick(advance bool) Telemetry {
	start := s.clock.Now()

	s.surface.Clear()
	s.surface.EnableScissor()

	rendered := 0
	for _, vp := range s.vm.Viewports() {
		if !vp.Active {
			continue
		}
		if !vp.HasSeries {
			s.surface.SetScissorAndViewport(vp.Bounds)
			s.surface.ClearRegion(vp.Bounds)
			continue
		}

		advanced := false
		if advance && vp.Playing {
			advanced = s.advancePlayback(vp, start)
		}

		if advanced {
			if _, ok := s.se.IsMaster(vp.ID); ok {
				updates := s.se.SyncFromMaster(vp.ID, vp.CurrentFrame, 0, s.frameCountOf)
				s.applySlaveUpdates(vp, updates)
			} else if s.onFrame != nil {
				s.onFrame(vp.ID, vp.CurrentFrame)
			}
		}

		s.surface.SetScissorAndViewport(vp.Bounds)
		s.render(vp.ID, vp.CurrentFrame, vp.Bounds)
		rendered++
	}

	s.surface.DisableScissor()

	elapsed := s.clock.Now().Sub(start)
	s.telemetry.RecordTick(start, elapsed, s.frameBudget)
	if s.vram != nil {
		s.telemetry.SetVRAMBytes(s.vram())
	}
	return s.telemetry.Snapshot(rendered)
}

// applySlaveUpdates writes each slave's new frame into the viewport
// manager and fires frame-update callbacks for the master and every
// mutated slave, in that order, per spec.md §5's ordering guarantee.
// updates is a map, whose iteration order Go randomizes per call, so
// slaves are walked in s.vm.Viewports()'s order instead — the same
// order tick's draw loop uses — rather than ranged over directly.
func (s *Scheduler) applySlaveUpdates(master *viewport.Viewport, updates map[string]int) {
	if s.onFrame != nil {
		s.onFrame(master.ID, master.CurrentFrame)
	}
	for _, vp := range s.vm.Viewports() {
		idx, ok := updates[vp.ID]
		if !ok {
			continue
		}
		if s.vm.SetViewportFrame(vp.ID, idx) && s.onFrame != nil {
			s.onFrame(vp.ID, idx)
		}
	}
}

func (s *Scheduler) frameCountOf(viewportID string) (int, bool) {
	vp, ok := s.vm.Get(viewportID)
	if !ok || !vp.HasSeries {
		return 0, false
	}
	return vp.FrameCount, true
}

// advancePlayback advances vp.CurrentFrame by one whenever
// now-LastTick >= 1000/fps, resetting LastTick to resist drift, per
// spec.md §4.7 step 2. Returns whether an advancement occurred.
func (s *Scheduler) advancePlayback(vp *viewport.Viewport, now time.Time) bool {
	nowMillis := now.UnixMilli()
	if vp.LastTick == 0 {
		vp.LastTick = nowMillis
		return false
	}
	interval := int64(1000 / vp.FPS)
	if interval <= 0 {
		interval = 1
	}
	delta := nowMillis - vp.LastTick
	if delta < interval {
		return false
	}
	vp.CurrentFrame = (vp.CurrentFrame + 1) % vp.FrameCount
	vp.LastTick = nowMillis - (delta % interval)
	return true
}
