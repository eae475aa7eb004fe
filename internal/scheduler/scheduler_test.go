package scheduler

import (
	"testing"
	"time"

	"github.com/dcmcore/engine/config"
	"github.com/dcmcore/engine/internal/viewport"
	framesync "github.com/dcmcore/engine/internal/sync"
)

type fakeSurface struct {
	cleared     int
	scissorOn   int
	scissorOff  int
	viewportSet []viewport.Rect
}

func (f *fakeSurface) Clear()          { f.cleared++ }
func (f *fakeSurface) EnableScissor()  { f.scissorOn++ }
func (f *fakeSurface) DisableScissor() { f.scissorOff++ }
func (f *fakeSurface) SetScissorAndViewport(b viewport.Rect) {
	f.viewportSet = append(f.viewportSet, b)
}
func (f *fakeSurface) ClearRegion(viewport.Rect) {}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestScheduler(t *testing.T) (*Scheduler, *viewport.Manager, *fakeSurface, *fakeClock, []string) {
	t.Helper()
	vm := viewport.NewManager(800, 600)
	if err := vm.SetLayout(config.GridLayout(1)); err != nil {
		t.Fatalf("SetLayout: %v", err)
	}
	vp := vm.Viewports()[0]
	vm.SetViewportSeries(vp.ID, "series-1", 10)
	vm.SetViewportFps(vp.ID, 10) // 100ms interval.
	vm.SetViewportPlaying(vp.ID, true)
	vm.SetViewportActive(vp.ID, true)

	se := framesync.NewEngine()
	surface := &fakeSurface{}
	clock := &fakeClock{now: time.Unix(1000, 0)} // non-zero: LastTick 0 means "not primed".

	var rendered []string
	sched := New(Options{
		Manager: vm,
		SyncEngine: se,
		Surface:    surface,
		Render: func(id string, frame int, bounds viewport.Rect) {
			rendered = append(rendered, id)
		},
		Clock:           clock,
		RefreshInterval: 16 * time.Millisecond,
	})
	return sched, vm, surface, clock, rendered
}

func TestTick_AdvancesPlaybackAfterInterval(t *testing.T) {
	sched, vm, _, clock, _ := newTestScheduler(t)
	vp := vm.Viewports()[0]

	sched.Tick() // primes LastTick, no advance yet.
	if got, _ := vm.Get(vp.ID); got.CurrentFrame != 0 {
		t.Fatalf("frame advanced on priming tick: %d", got.CurrentFrame)
	}

	clock.now = clock.now.Add(150 * time.Millisecond)
	sched.Tick()
	if got, _ := vm.Get(vp.ID); got.CurrentFrame != 1 {
		t.Fatalf("frame = %d, want 1 after one fps interval", got.CurrentFrame)
	}
}

func TestTick_WrapsAtFrameCount(t *testing.T) {
	sched, vm, _, clock, _ := newTestScheduler(t)
	vp := vm.Viewports()[0]
	vm.SetViewportFrame(vp.ID, 9)

	sched.Tick()
	clock.now = clock.now.Add(150 * time.Millisecond)
	sched.Tick()

	if got, _ := vm.Get(vp.ID); got.CurrentFrame != 0 {
		t.Fatalf("frame = %d, want wrap to 0", got.CurrentFrame)
	}
}

func TestTick_SyncsSlaveFromMaster(t *testing.T) {
	vm := viewport.NewManager(800, 600)
	if err := vm.SetLayout(config.CustomLayout(1, 2)); err != nil {
		t.Fatalf("SetLayout: %v", err)
	}
	vps := vm.Viewports()
	master, slave := vps[0], vps[1]
	vm.SetViewportSeries(master.ID, "m", 47)
	vm.SetViewportSeries(slave.ID, "s", 94)
	vm.SetViewportFps(master.ID, 10)
	vm.SetViewportPlaying(master.ID, true)
	vm.SetViewportActive(master.ID, true)
	vm.SetViewportActive(slave.ID, true)
	vm.SetViewportFrame(master.ID, 9)

	se := framesync.NewEngine()
	if _, err := se.CreateSyncGroup(config.SyncOptions{
		MasterID: master.ID, SlaveIDs: []string{slave.ID}, Mode: config.SyncFrameRatio,
	}); err != nil {
		t.Fatalf("CreateSyncGroup: %v", err)
	}

	clock := &fakeClock{now: time.Unix(1000, 0)} // non-zero: LastTick 0 means "not primed".
	sched := New(Options{
		Manager:         vm,
		SyncEngine:      se,
		Surface:         &fakeSurface{},
		Render:          func(string, int, viewport.Rect) {},
		Clock:           clock,
		RefreshInterval: 16 * time.Millisecond,
	})

	sched.Tick()
	clock.now = clock.now.Add(150 * time.Millisecond)
	sched.Tick()

	gotMaster, _ := vm.Get(master.ID)
	gotSlave, _ := vm.Get(slave.ID)
	if gotMaster.CurrentFrame != 10 {
		t.Fatalf("master frame = %d, want 10", gotMaster.CurrentFrame)
	}
	if gotSlave.CurrentFrame != 20 {
		t.Fatalf("slave frame = %d, want 20 (FrameRatioIndex(10,47,94))", gotSlave.CurrentFrame)
	}
}

func TestTick_SlaveCallbacksFireInViewportOrder(t *testing.T) {
	vm := viewport.NewManager(800, 600)
	if err := vm.SetLayout(config.CustomLayout(1, 3)); err != nil {
		t.Fatalf("SetLayout: %v", err)
	}
	vps := vm.Viewports()
	master, slaveA, slaveB := vps[0], vps[1], vps[2]
	vm.SetViewportSeries(master.ID, "m", 47)
	vm.SetViewportSeries(slaveA.ID, "a", 94)
	vm.SetViewportSeries(slaveB.ID, "b", 94)
	vm.SetViewportFps(master.ID, 10)
	vm.SetViewportPlaying(master.ID, true)
	vm.SetViewportActive(master.ID, true)
	vm.SetViewportActive(slaveA.ID, true)
	vm.SetViewportActive(slaveB.ID, true)
	vm.SetViewportFrame(master.ID, 9)

	se := framesync.NewEngine()
	if _, err := se.CreateSyncGroup(config.SyncOptions{
		MasterID: master.ID, SlaveIDs: []string{slaveA.ID, slaveB.ID}, Mode: config.SyncFrameRatio,
	}); err != nil {
		t.Fatalf("CreateSyncGroup: %v", err)
	}

	var order []string
	clock := &fakeClock{now: time.Unix(1000, 0)} // non-zero: LastTick 0 means "not primed".
	sched := New(Options{
		Manager:       vm,
		SyncEngine:    se,
		Surface:       &fakeSurface{},
		Render:        func(string, int, viewport.Rect) {},
		OnFrameUpdate: func(id string, frame int) { order = append(order, id) },
		Clock:         clock,
		RefreshInterval: 16 * time.Millisecond,
	})

	sched.Tick()
	clock.now = clock.now.Add(150 * time.Millisecond)
	sched.Tick()

	want := []string{master.ID, slaveA.ID, slaveB.ID}
	if len(order) != len(want) {
		t.Fatalf("callback order = %v, want %v", order, want)
	}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("callback order = %v, want %v", order, want)
		}
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	sched, _, _, _, _ := newTestScheduler(t)
	sched.Start()
	sched.Start() // no-op, must not deadlock or panic.
	if !sched.Running() {
		t.Fatalf("expected running after Start")
	}
	sched.Stop()
	sched.Stop() // no-op.
	if sched.Running() {
		t.Fatalf("expected not running after Stop")
	}
}

func TestRenderSingleFrame_DoesNotAdvance(t *testing.T) {
	sched, vm, _, clock, _ := newTestScheduler(t)
	vp := vm.Viewports()[0]

	clock.now = clock.now.Add(500 * time.Millisecond)
	sched.RenderSingleFrame()

	if got, _ := vm.Get(vp.ID); got.CurrentFrame != 0 {
		t.Fatalf("RenderSingleFrame advanced playback: frame = %d", got.CurrentFrame)
	}
}
