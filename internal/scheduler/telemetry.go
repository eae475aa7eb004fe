package scheduler

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// Telemetry is the throughput surface of spec.md §6, sampled at ≥ 2 Hz.
type Telemetry struct {
	FPS               float64
	FrameTime         time.Duration
	RenderedViewports int
	TotalFrames       uint64
	DroppedFrames     uint64
	VRAMBytes         int64
}

// sample is one tick's recorded frame time, timestamped for window
// eviction.
type sample struct {
	at time.Time
	dt time.Duration
}

// Aggregator maintains the rolling window of tick frame times that
// spec.md §4.7 step 3 describes ("rolling 1-second frames-per-second"),
// generalized (per SPEC_FULL.md §5) into a configurable window. Mean
// frame time over the window is computed with gonum/stat, the way
// cmd/rv/probe.go in the teacher uses gonum/stat for its turbidity
// signal rather than hand-rolling a mean/variance loop.
type Aggregator struct {
	window        time.Duration
	samples       []sample
	totalFrames   uint64
	droppedFrames uint64
	vramBytes     int64
}

// NewAggregator builds an Aggregator with the given rolling window.
func NewAggregator(window time.Duration) *Aggregator {
	if window <= 0 {
		window = time.Second
	}
	return &Aggregator{window: window}
}

// RecordTick appends one tick's measurements, evicting samples older
// than the rolling window.
func (a *Aggregator) RecordTick(at time.Time, frameTime, budget time.Duration) {
	a.samples = append(a.samples, sample{at: at, dt: frameTime})
	a.totalFrames++
	if frameTime > budget {
		a.droppedFrames++
	}

	cutoff := at.Add(-a.window)
	i := 0
	for i < len(a.samples) && a.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		a.samples = append(a.samples[:0], a.samples[i:]...)
	}
}

// SetVRAMBytes records the live texture cache byte accounting for the
// next Snapshot.
func (a *Aggregator) SetVRAMBytes(n int64) { a.vramBytes = n }

// Snapshot computes the current Telemetry surface: fps is len(window
// samples) divided by the time between the first and last sample (the
// window duration when that span is zero); frameTime is the mean of the
// window's samples.
func (a *Aggregator) Snapshot(renderedViewports int) Telemetry {
	t := Telemetry{
		RenderedViewports: renderedViewports,
		TotalFrames:       a.totalFrames,
		DroppedFrames:     a.droppedFrames,
		VRAMBytes:         a.vramBytes,
	}
	if len(a.samples) == 0 {
		return t
	}

	durs := make([]float64, len(a.samples))
	for i, s := range a.samples {
		durs[i] = float64(s.dt)
	}
	meanNanos := stat.Mean(durs, nil)
	t.FrameTime = time.Duration(meanNanos)

	span := a.samples[len(a.samples)-1].at.Sub(a.samples[0].at)
	if span <= 0 {
		span = a.window
	}
	t.FPS = float64(len(a.samples)) / span.Seconds()
	return t
}
