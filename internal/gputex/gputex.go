// Package gputex implements the layered-texture cache of spec.md §4.4: one
// immutable array texture per Series, uploaded one layer at a time, under
// a single global LRU bounded by a configurable VRAM byte budget.
//
// The actual GPU object is opaque to this package: callers implement
// Surface against their real driver (WebGPU, Vulkan, GL), the way
// device.AVDevice in the teacher pipeline is a thin interface a
// platform-specific capture backend implements. gputex owns only the
// admission/eviction bookkeeping and the byte accounting.
package gputex

import (
	"image"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/dcmcore/engine/internal/dcmerr"
	"github.com/dcmcore/engine/internal/dcmlog"
)

// bytesPerPixel is fixed by spec.md §4.4's "8-bit RGBA internal format".
const bytesPerPixel = 4

// Handle is an opaque GPU texture handle, owned by whatever Surface
// implementation allocated it.
type Handle interface{}

// Surface is the GPU capability the cache drives. One allocation call
// per Series (immutable storage); subsequent writes target individual
// layers.
type Surface interface {
	// AllocateArrayTexture allocates one immutable layered RGBA8
	// texture of the given dimensions. Called exactly once per entry.
	AllocateArrayTexture(width, height, layerCount int) (Handle, error)
	// UploadLayer sub-uploads img into layer of handle's texture.
	UploadLayer(handle Handle, layer int, img *image.RGBA) error
	// SetFilter fixes min/mag filter to linear, wrap to clamp-to-edge,
	// per spec.md §4.4's secondary per-texture filtering policy.
	SetFilter(handle Handle) error
	// ReleaseTexture frees a texture allocated by AllocateArrayTexture.
	ReleaseTexture(handle Handle) error
}

// Entry is the cache value for one Series' array texture.
type Entry struct {
	Handle      Handle
	Width       int
	Height      int
	LayerCount  int
	uploaded    map[int]bool
}

// ByteCost returns width*height*layerCount*4, per spec.md §3/§4.4.
func (e *Entry) ByteCost() int64 {
	return int64(e.Width) * int64(e.Height) * int64(e.LayerCount) * bytesPerPixel
}

// LayerUploaded reports whether layer has already received a sub-image
// upload, i.e. whether a partially populated texture can be sampled for
// that frame (spec.md §5).
func (e *Entry) LayerUploaded(layer int) bool { return e.uploaded[layer] }

// Cache is the single global LRU of array-texture entries.
type Cache struct {
	surface   Surface
	maxBytes  int64
	liveBytes int64
	log       dcmlog.Logger

	mu  sync.Mutex
	lru *lru.LRU[string, *Entry]
}

// New builds a Cache bounded by maxBytes (use math.MaxInt64 for the
// spec.md default of "unbounded").
func New(surface Surface, maxBytes int64, log dcmlog.Logger) *Cache {
	if log == nil {
		log = dcmlog.Discard
	}
	c := &Cache{surface: surface, maxBytes: maxBytes, log: log}
	// Capacity is unbounded from simplelru's point of view; eviction is
	// driven entirely by the byte budget in evictUntilFits, not by
	// entry count.
	l, _ := lru.NewLRU[string, *Entry](1<<31-1, c.onEvicted)
	c.lru = l
	return c
}

func (c *Cache) onEvicted(key string, entry *Entry) {
	c.liveBytes -= entry.ByteCost()
	if err := c.surface.ReleaseTexture(entry.Handle); err != nil {
		c.log.Log(int8(dcmlog.Warn), "failed to release evicted texture", "series", key, "error", err)
	}
}

// LiveBytes returns the cache's current byte accounting.
func (c *Cache) LiveBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveBytes
}

// Get returns the entry for seriesID and touches its LRU position, the
// way a sample-bind does per spec.md §4.4.
func (c *Cache) Get(seriesID string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(seriesID)
}

// Admit allocates (or returns, if already resident) the array texture
// for seriesID sized (width, height, layerCount), evicting
// least-recently-used entries until the budget fits. Fails with
// dcmerr.TextureTooLarge without evicting anything if the candidate
// alone exceeds the budget.
func (c *Cache) Admit(seriesID string, width, height, layerCount int) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.lru.Get(seriesID); ok {
		return e, nil
	}

	cost := int64(width) * int64(height) * int64(layerCount) * bytesPerPixel
	if cost > c.maxBytes {
		return nil, dcmerr.New(dcmerr.TextureTooLarge, "texture byte size exceeds configured VRAM budget")
	}

	for c.liveBytes+cost > c.maxBytes && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}

	handle, err := c.surface.AllocateArrayTexture(width, height, layerCount)
	if err != nil {
		return nil, dcmerr.Wrap(dcmerr.DecodeFailed, err, "array texture allocation failed")
	}
	if err := c.surface.SetFilter(handle); err != nil {
		c.log.Log(int8(dcmlog.Warn), "failed to set texture filter", "series", seriesID, "error", err)
	}

	entry := &Entry{Handle: handle, Width: width, Height: height, LayerCount: layerCount, uploaded: make(map[int]bool)}
	c.lru.Add(seriesID, entry)
	c.liveBytes += cost
	return entry, nil
}

// UploadLayer uploads img into layer of seriesID's texture and touches
// its LRU position. Admit must have been called for seriesID first.
func (c *Cache) UploadLayer(seriesID string, layer int, img *image.RGBA) error {
	c.mu.Lock()
	entry, ok := c.lru.Get(seriesID)
	c.mu.Unlock()
	if !ok {
		return dcmerr.New(dcmerr.DecodeFailed, "upload to unregistered series texture")
	}
	if layer < 0 || layer >= entry.LayerCount {
		return dcmerr.New(dcmerr.FrameOutOfRange, "layer index out of range")
	}
	if err := c.surface.UploadLayer(entry.Handle, layer, img); err != nil {
		return dcmerr.Wrap(dcmerr.DecodeFailed, err, "layer upload failed")
	}
	entry.uploaded[layer] = true
	return nil
}

// Evict removes seriesID's texture immediately, releasing its GPU
// resource. Used when a Series is explicitly unbound rather than
// naturally aged out.
func (c *Cache) Evict(seriesID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(seriesID)
}

// Len returns the number of resident series textures.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
