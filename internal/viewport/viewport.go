// Package viewport implements the viewport manager of spec.md §4.5: grid
// layout, per-viewport bounds, series binding, playback state,
// window/level, and transform.
package viewport

import (
	"sync"

	"github.com/dcmcore/engine/config"
)

// Rect is an integer pixel rectangle in the drawing surface.
type Rect struct {
	X, Y, W, H int
}

// Contains reports whether (x, y) falls within the rectangle.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

// Transform is a viewport's pan/zoom/rotate/flip state, per spec.md §3.
type Transform struct {
	PanX, PanY float64
	Zoom       float64
	Rotation   float64
	FlipH      bool
	FlipV      bool
}

// WindowLevel is a normalized window/level pair, both in [0,1].
type WindowLevel struct {
	Center float64
	Width  float64
}

const (
	minZoom = 0.1
	maxZoom = 10.0
	minFPS  = 1
	maxFPS  = 60
)

// Viewport is one independently clipped sub-region of the drawing
// surface, per spec.md §3.
type Viewport struct {
	ID     string
	Bounds Rect

	SeriesID   string
	HasSeries  bool
	FrameCount int

	CurrentFrame int
	Playing      bool
	FPS          int
	LastTick     int64 // Unix millis; scheduler-owned.

	WindowLevel    WindowLevel
	HasWindowLevel bool
	Transform      Transform

	TextureUnit int
	Active      bool
}

// clamp restricts v to [lo, hi].
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Manager owns the set of Viewports and the current grid layout, per
// spec.md §4.5.
type Manager struct {
	mu sync.Mutex

	surfaceW, surfaceH int
	layout             config.Layout

	// order is the row-major creation order; UpdateCanvasSize keeps it
	// and only recomputes bounds.
	order []string
	vps   map[string]*Viewport

	nextTextureUnit int
}

// NewManager builds a Manager for a drawing surface of the given size.
func NewManager(surfaceW, surfaceH int) *Manager {
	return &Manager{surfaceW: surfaceW, surfaceH: surfaceH, vps: make(map[string]*Viewport)}
}

// SetLayout clears all existing viewports and recreates them in
// row-major order per spec.md §4.5's bounds formula.
func (m *Manager) SetLayout(layout config.Layout) error {
	if err := layout.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.layout = layout
	m.vps = make(map[string]*Viewport)
	m.order = nil
	m.nextTextureUnit = 0
	m.recreateLocked()
	return nil
}

// UpdateCanvasSize reapplies the current layout in place, preserving
// viewport identity (and their series/playback/transform state) by
// reindexing bounds rather than clearing.
func (m *Manager) UpdateCanvasSize(w, h int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.surfaceW, m.surfaceH = w, h
	m.reboundsLocked()
}

func (m *Manager) recreateLocked() {
	rows, cols := m.layout.Rows, m.layout.Cols
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			id := gridID(r, c)
			vp := &Viewport{
				ID:          id,
				FPS:         30,
				Transform:   Transform{Zoom: 1},
				TextureUnit: m.nextTextureUnit,
			}
			m.nextTextureUnit++
			m.vps[id] = vp
			m.order = append(m.order, id)
		}
	}
	m.reboundsLocked()
}

func (m *Manager) reboundsLocked() {
	rows, cols, gap := m.layout.Rows, m.layout.Cols, m.layout.Gap
	if rows == 0 || cols == 0 {
		return
	}
	cellW := (m.surfaceW - gap*(cols-1)) / cols
	cellH := (m.surfaceH - gap*(rows-1)) / rows
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			id := gridID(r, c)
			vp, ok := m.vps[id]
			if !ok {
				continue
			}
			// Y inversion: the drawing surface uses bottom-left origin.
			vp.Bounds = Rect{
				X: c * (cellW + gap),
				Y: (rows - 1 - r) * (cellH + gap),
				W: cellW,
				H: cellH,
			}
		}
	}
}

func gridID(r, c int) string {
	// Stable, order-preserving id independent of row/col count changes
	// within a single SetLayout call.
	return string(rune('A'+r)) + "-" + string(rune('a'+c))
}

// Get returns the viewport with the given id.
func (m *Manager) Get(id string) (*Viewport, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vp, ok := m.vps[id]
	return vp, ok
}

// Viewports returns all viewports in manager (row-major creation) order.
func (m *Manager) Viewports() []*Viewport {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Viewport, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.vps[id])
	}
	return out
}

// HitTest returns the first viewport (in manager order) whose bounds
// contain (x, y).
func (m *Manager) HitTest(x, y int) (*Viewport, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		vp := m.vps[id]
		if vp.Bounds.Contains(x, y) {
			return vp, true
		}
	}
	return nil, false
}

// SetViewportSeries binds a series to a viewport, resetting its current
// frame to 0 per spec.md §4.5. A zero frameCount leaves the viewport
// with no series (HasSeries false), so it is neither drawn nor played.
func (m *Manager) SetViewportSeries(id, seriesID string, frameCount int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	vp, ok := m.vps[id]
	if !ok {
		return false
	}
	vp.SeriesID = seriesID
	vp.HasSeries = frameCount > 0
	vp.FrameCount = frameCount
	vp.CurrentFrame = 0
	return true
}

// SetViewportWindowLevel sets a viewport's window/level.
func (m *Manager) SetViewportWindowLevel(id string, center, width float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	vp, ok := m.vps[id]
	if !ok {
		return false
	}
	vp.WindowLevel = WindowLevel{Center: clampFloat(center, 0, 1), Width: clampFloat(width, 0, 1)}
	vp.HasWindowLevel = true
	return true
}

// SetViewportFrame sets the current frame, clamped to [0, frameCount).
func (m *Manager) SetViewportFrame(id string, frame int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	vp, ok := m.vps[id]
	if !ok || vp.FrameCount == 0 {
		return false
	}
	vp.CurrentFrame = clamp(frame, 0, vp.FrameCount-1)
	return true
}

// SetViewportPlaying sets the playing flag.
func (m *Manager) SetViewportPlaying(id string, playing bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	vp, ok := m.vps[id]
	if !ok {
		return false
	}
	vp.Playing = playing
	return true
}

// SetViewportFps sets the target fps, clamped to [1, 60].
func (m *Manager) SetViewportFps(id string, fps int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	vp, ok := m.vps[id]
	if !ok {
		return false
	}
	vp.FPS = clamp(fps, minFPS, maxFPS)
	return true
}

// SetViewportActive sets the active flag.
func (m *Manager) SetViewportActive(id string, active bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	vp, ok := m.vps[id]
	if !ok {
		return false
	}
	vp.Active = active
	return true
}

// SetViewportTransform updates pan/zoom/rotation/flip, clamping zoom to
// [minZoom, maxZoom].
func (m *Manager) SetViewportTransform(id string, t Transform) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	vp, ok := m.vps[id]
	if !ok {
		return false
	}
	t.Zoom = clampFloat(t.Zoom, minZoom, maxZoom)
	vp.Transform = t
	return true
}
