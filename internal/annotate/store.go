package annotate

import (
	"fmt"
	"sync"
	"time"

	"github.com/dcmcore/engine/internal/dcmerr"
)

// DicomMode is the ultrasound acquisition mode an annotation was made
// against (B-mode, M-mode, D-mode/Doppler, ...), per spec.md §3. The set
// is open-ended, so this is a string type rather than a closed enum.
type DicomMode string

const (
	ModeB DicomMode = "B"
	ModeM DicomMode = "M"
	ModeD DicomMode = "D"
)

// Annotation is one measurement or marker attached to an image, per
// spec.md §3/§4.10.
type Annotation struct {
	ID         string
	ImageID    string
	FrameIndex int
	Tool       string
	DicomMode  DicomMode
	Source     Source
	Points     []PixelPoint

	Label         string
	Value         float64
	Unit          Unit
	DisplayString string

	LabelPoint PixelPoint
	Color      string
	Hidden     bool

	// Deletable and Editable snapshot the permission table at creation
	// time and are kept in sync by Store.SetPermission, so a caller can
	// read an annotation's rights without consulting the table itself.
	Deletable bool
	Editable  bool

	CreatedAt time.Time
	UpdatedAt time.Time

	CustomFields map[string]interface{}
}

// Caps bounds the number of countable annotations a Store accepts.
// Per-tool and per-source caps are optional (zero means unbounded);
// PerImage is always enforced.
type Caps struct {
	PerImage  int
	PerTool   map[string]int
	PerSource map[Source]int
}

// ChangeCallback fires after each mutation with the full, current
// annotation list for the affected image, per spec.md §4.10.
type ChangeCallback func(imageID string, annotations []*Annotation)

// Store is the imageId -> annotationId -> Annotation map of spec.md
// §4.10, mirroring the mutex-guarded registry-by-ID pattern
// internal/viewport and internal/gputex also use.
type Store struct {
	mu       sync.Mutex
	byImage  map[string]map[string]*Annotation
	perms    map[Source]Permission
	caps     Caps
	onChange ChangeCallback
	nextID   uint64
}

// NewStore builds a Store with the default permission table and the
// given caps. With zero-valued Caps the per-image cap is 0, so PerImage
// must be set by the caller to allow any countable annotations;
// non-countable sources are not capped.
func NewStore(caps Caps, onChange ChangeCallback) *Store {
	return &Store{
		byImage:  make(map[string]map[string]*Annotation),
		perms:    defaultPermissions(),
		caps:     caps,
		onChange: onChange,
	}
}

// SetPermission overrides the permission record for a source, and
// restamps Deletable/Editable on every existing annotation from that
// source so stored rights never drift from the table.
func (s *Store) SetPermission(src Source, p Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perms[src] = p
	for _, m := range s.byImage {
		for _, a := range m {
			if a.Source == src {
				a.Deletable = p.Deletable
				a.Editable = p.Editable
			}
		}
	}
}

func (s *Store) nextIDLocked() string {
	s.nextID++
	return fmt.Sprintf("ann-%d", s.nextID)
}

// countLocked returns how many countable annotations already exist in
// imageID, optionally filtered by tool and/or source.
func (s *Store) countLocked(imageID, tool string, src Source, filterTool, filterSource bool) int {
	n := 0
	for _, a := range s.byImage[imageID] {
		if !s.perms[a.Source].Countable {
			continue
		}
		if filterTool && a.Tool != tool {
			continue
		}
		if filterSource && a.Source != src {
			continue
		}
		n++
	}
	return n
}

// Create adds a new annotation, enforcing the permission table's
// countable flag and the configured caps. The store assigns the ID.
func (s *Store) Create(a Annotation) (*Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	perm, ok := s.perms[a.Source]
	if !ok {
		return nil, dcmerr.New(dcmerr.PermissionDenied, fmt.Sprintf("unknown annotation source %q", a.Source))
	}

	if perm.Countable {
		if s.countLocked(a.ImageID, "", "", false, false) >= s.caps.PerImage {
			return nil, dcmerr.New(dcmerr.CapExceeded, "per-image annotation cap reached")
		}
		if limit, ok := s.caps.PerTool[a.Tool]; ok && limit > 0 && s.countLocked(a.ImageID, a.Tool, "", true, false) >= limit {
			return nil, dcmerr.New(dcmerr.CapExceeded, fmt.Sprintf("per-tool annotation cap reached for tool %q", a.Tool))
		}
		if limit, ok := s.caps.PerSource[a.Source]; ok && limit > 0 && s.countLocked(a.ImageID, "", a.Source, false, true) >= limit {
			return nil, dcmerr.New(dcmerr.CapExceeded, fmt.Sprintf("per-source annotation cap reached for source %q", a.Source))
		}
	}

	a.ID = s.nextIDLocked()
	a.Deletable = perm.Deletable
	a.Editable = perm.Editable
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	s.addLocked(&a)
	s.fireLocked(a.ImageID)
	return &a, nil
}

// Update mutates an existing annotation in place via mutate, enforcing
// the editable permission. mutate may freely set FrameIndex/DicomMode
// along with any other field; the store restores ID/ImageID afterward
// and stamps UpdatedAt.
func (s *Store) Update(imageID, id string, mutate func(*Annotation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.getLocked(imageID, id)
	if err != nil {
		return err
	}
	if !s.perms[a.Source].Editable {
		return dcmerr.New(dcmerr.PermissionDenied, fmt.Sprintf("annotation %q is not editable", id))
	}
	mutate(a)
	a.ID = id
	a.ImageID = imageID
	a.UpdatedAt = time.Now()
	s.fireLocked(imageID)
	return nil
}

// Delete removes an annotation, enforcing the deletable permission.
func (s *Store) Delete(imageID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.getLocked(imageID, id)
	if err != nil {
		return err
	}
	if !s.perms[a.Source].Deletable {
		return dcmerr.New(dcmerr.PermissionDenied, fmt.Sprintf("annotation %q is not deletable", id))
	}
	delete(s.byImage[imageID], id)
	s.fireLocked(imageID)
	return nil
}

// ForceWrite inserts or replaces an annotation bypassing caps and
// permissions, reserved for history replay per spec.md §4.10.
func (s *Store) ForceWrite(a Annotation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = s.nextIDLocked()
	}
	s.addLocked(&a)
	s.fireLocked(a.ImageID)
}

// ForceDelete removes an annotation bypassing permissions, reserved for
// history replay.
func (s *Store) ForceDelete(imageID, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.byImage[imageID]; ok {
		delete(m, id)
	}
	s.fireLocked(imageID)
}

// List returns every annotation for imageID.
func (s *Store) List(imageID string) []*Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(imageID)
}

func (s *Store) addLocked(a *Annotation) {
	m, ok := s.byImage[a.ImageID]
	if !ok {
		m = make(map[string]*Annotation)
		s.byImage[a.ImageID] = m
	}
	m[a.ID] = a
}

// getLocked reports a missing annotation as permission-denied: §7's error
// taxonomy has no dedicated not-found kind, and "cannot mutate something
// that isn't there" is the closest existing classification.
func (s *Store) getLocked(imageID, id string) (*Annotation, error) {
	m, ok := s.byImage[imageID]
	if !ok {
		return nil, dcmerr.New(dcmerr.PermissionDenied, fmt.Sprintf("no annotations for image %q", imageID))
	}
	a, ok := m[id]
	if !ok {
		return nil, dcmerr.New(dcmerr.PermissionDenied, fmt.Sprintf("no annotation %q for image %q", id, imageID))
	}
	return a, nil
}

func (s *Store) listLocked(imageID string) []*Annotation {
	m := s.byImage[imageID]
	out := make([]*Annotation, 0, len(m))
	for _, a := range m {
		out = append(out, a)
	}
	return out
}

func (s *Store) fireLocked(imageID string) {
	if s.onChange != nil {
		s.onChange(imageID, s.listLocked(imageID))
	}
}
