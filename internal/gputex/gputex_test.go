package gputex

import (
	"image"
	"testing"
)

type fakeHandle struct{ id string }

type fakeSurface struct {
	released []string
}

func (s *fakeSurface) AllocateArrayTexture(width, height, layerCount int) (Handle, error) {
	return &fakeHandle{}, nil
}
func (s *fakeSurface) UploadLayer(Handle, int, *image.RGBA) error { return nil }
func (s *fakeSurface) SetFilter(Handle) error                     { return nil }
func (s *fakeSurface) ReleaseTexture(h Handle) error {
	s.released = append(s.released, h.(*fakeHandle).id)
	return nil
}

// mbDims returns width/height/layers that cost exactly mb megabytes at 4
// bytes/pixel: width*height*layers*4 = mb*1<<20.
func mbDims(mb int) (int, int, int) {
	return 1024, 256, mb // 1024*256*4 = 1MiB per layer.
}

// TestAdmit_LRUEviction reproduces spec.md §8 scenario 5.
func TestAdmit_LRUEviction(t *testing.T) {
	surface := &fakeSurface{}
	c := New(surface, 256*1<<20, nil)

	w, h, layers := mbDims(100)
	aID, bID, cID := "A", "B", "C"

	if _, err := c.Admit(aID, w, h, layers); err != nil {
		t.Fatalf("admit A: %v", err)
	}
	if _, err := c.Admit(bID, w, h, layers); err != nil {
		t.Fatalf("admit B: %v", err)
	}
	// Touch A so B becomes the least-recently-used entry.
	if _, ok := c.Get(aID); !ok {
		t.Fatalf("expected A resident")
	}
	if _, err := c.Admit(cID, w, h, layers); err != nil {
		t.Fatalf("admit C: %v", err)
	}

	if got := len(surface.released); got != 1 {
		t.Fatalf("evicted %d entries, want 1", got)
	}
	if _, ok := c.Get(bID); ok {
		t.Fatalf("B should have been evicted")
	}
	if _, ok := c.Get(aID); !ok {
		t.Fatalf("A should remain resident")
	}
	if _, ok := c.Get(cID); !ok {
		t.Fatalf("C should remain resident")
	}
	if got, want := c.LiveBytes(), int64(200)*1<<20; got != want {
		t.Fatalf("liveBytes = %d, want %d", got, want)
	}
}

func TestAdmit_TextureTooLarge(t *testing.T) {
	surface := &fakeSurface{}
	c := New(surface, 256*1<<20, nil)
	w, h, layers := mbDims(300)

	_, err := c.Admit("huge", w, h, layers)
	if err == nil {
		t.Fatal("expected texture-too-large error")
	}
	if c.Len() != 0 {
		t.Fatalf("admission should not have evicted or admitted anything")
	}
}
