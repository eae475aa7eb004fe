// Package sync implements the frame synchronization engine of spec.md
// §4.6: groups of viewports that align their playback either by frame
// ratio, wall-clock time, or not at all (manual).
//
// Named "sync" per spec.md's own terminology; imported as framesync by
// callers that also need the standard library sync package.
package sync

import (
	"sync"

	"github.com/dcmcore/engine/config"
	"github.com/dcmcore/engine/internal/dcmerr"
)

// Group is a master viewport and its aligned slaves, per spec.md §3.
type Group struct {
	MasterID string
	SlaveIDs []string
	Mode     config.SyncMode
	Active   bool

	// timeModeFPS is the group-level target fps used only in SyncTime
	// mode, copied from SyncOptions.FPS at creation time.
	timeModeFPS int
}

// Engine owns the set of sync groups. A viewport belongs to at most one
// group (spec.md §3's invariant).
type Engine struct {
	mu          sync.Mutex
	groups      map[string]*Group // keyed by masterID
	memberOf    map[string]string // viewportID -> masterID, covers both master and slave membership
}

// NewEngine builds an empty Engine.
func NewEngine() *Engine {
	return &Engine{groups: make(map[string]*Group), memberOf: make(map[string]string)}
}

// CreateSyncGroup registers a new group. Fails if master ≠ any slave is
// violated, or if any viewport (master or slave) already participates in
// another group.
func (e *Engine) CreateSyncGroup(opts config.SyncOptions) (*Group, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, s := range opts.SlaveIDs {
		if s == opts.MasterID {
			return nil, dcmerr.New(dcmerr.FrameOutOfRange, "master must not equal a slave")
		}
	}
	if _, ok := e.memberOf[opts.MasterID]; ok {
		return nil, dcmerr.New(dcmerr.FrameOutOfRange, "viewport already participates in a sync group")
	}
	for _, s := range opts.SlaveIDs {
		if _, ok := e.memberOf[s]; ok {
			return nil, dcmerr.New(dcmerr.FrameOutOfRange, "viewport already participates in a sync group")
		}
	}

	g := &Group{MasterID: opts.MasterID, SlaveIDs: append([]string(nil), opts.SlaveIDs...), Mode: opts.Mode, Active: true, timeModeFPS: opts.FPS}
	e.groups[opts.MasterID] = g
	e.memberOf[opts.MasterID] = opts.MasterID
	for _, s := range opts.SlaveIDs {
		e.memberOf[s] = opts.MasterID
	}
	return g, nil
}

// ClearAllGroups removes every sync group.
func (e *Engine) ClearAllGroups() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.groups = make(map[string]*Group)
	e.memberOf = make(map[string]string)
}

// GroupFor returns the group viewportID belongs to (as master or slave),
// if any.
func (e *Engine) GroupFor(viewportID string) (*Group, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	masterID, ok := e.memberOf[viewportID]
	if !ok {
		return nil, false
	}
	g, ok := e.groups[masterID]
	return g, ok
}

// IsMaster reports whether viewportID is the master of an active group.
func (e *Engine) IsMaster(viewportID string) (*Group, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.groups[viewportID]
	if !ok || !g.Active {
		return nil, false
	}
	return g, true
}

// FrameRatioIndex computes the slave frame index for a master at index m
// (out of masterCount frames) with slaveCount frames, per spec.md §4.6:
//
//	slaveIndex = clamp(floor(m * slaveCount / masterCount), 0, slaveCount-1)
//
// with the tie-breaks: Ns==Nm is the identity map, and Nm==0 pins the
// slave at 0.
func FrameRatioIndex(m, masterCount, slaveCount int) int {
	if slaveCount <= 0 {
		return 0
	}
	if masterCount == 0 {
		return 0
	}
	if slaveCount == masterCount {
		return m
	}
	idx := (m * slaveCount) / masterCount
	if idx < 0 {
		idx = 0
	}
	if idx > slaveCount-1 {
		idx = slaveCount - 1
	}
	return idx
}

// TimeIndex computes a viewport's frame index in time mode:
// floor(elapsedSeconds * fps) mod frameCount, per spec.md §4.6.
func TimeIndex(elapsedSeconds float64, fps int, frameCount int) int {
	if frameCount <= 0 {
		return 0
	}
	n := int(elapsedSeconds * float64(fps))
	n %= frameCount
	if n < 0 {
		n += frameCount
	}
	return n
}

// FrameCounts supplies each viewport's total frame count, used by
// SyncFromMaster to compute slave indices without the sync engine
// needing to know about the viewport manager directly.
type FrameCounts func(viewportID string) (count int, ok bool)

// SyncFromMaster computes, but does not apply, each slave's new frame
// index given the master's new index. The scheduler is responsible for
// writing the results back into the viewport manager, per spec.md §4.6's
// "computation only" note. In manual mode it returns an empty map.
func (e *Engine) SyncFromMaster(masterID string, masterIndex int, elapsedSeconds float64, counts FrameCounts) map[string]int {
	g, ok := e.IsMaster(masterID)
	if !ok || g.Mode == config.SyncManual {
		return nil
	}

	masterCount, ok := counts(masterID)
	if !ok {
		return nil
	}

	out := make(map[string]int, len(g.SlaveIDs))
	for _, slaveID := range g.SlaveIDs {
		slaveCount, ok := counts(slaveID)
		if !ok {
			continue
		}
		switch g.Mode {
		case config.SyncFrameRatio:
			out[slaveID] = FrameRatioIndex(masterIndex, masterCount, slaveCount)
		case config.SyncTime:
			out[slaveID] = TimeIndex(elapsedSeconds, fpsFor(g), slaveCount)
		}
	}
	return out
}

// fpsFor is a placeholder extraction point: time-mode fps is a
// group-level configuration value, not derived from the master
// viewport's own fps, per spec.md §4.6.
func fpsFor(g *Group) int {
	if g.timeModeFPS > 0 {
		return g.timeModeFPS
	}
	return 30
}
