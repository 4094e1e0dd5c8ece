// Package pageset holds the editable page working set: descriptors, the
// ordered store, the bounded edit history and the mutation operations.
package pageset

import (
	"fmt"

	"github.com/google/uuid"
)

// PageDescriptor is one page's position and edit state in the working set.
// Every field is a value type, so copying a descriptor slice is a deep copy.
type PageDescriptor struct {
	ID          string `json:"id"`
	SourceIndex int    `json:"source_index"`
	Rotation    int    `json:"rotation"`
	Deleted     bool   `json:"deleted"`
	Thumbnail   string `json:"thumbnail,omitempty"`
}

// Active reports whether the descriptor takes part in compilation.
func (d PageDescriptor) Active() bool { return !d.Deleted }

// IDFunc generates descriptor ids.
type IDFunc func() string

// Store is the ordered sequence of descriptors. Order is display and output order.
type Store struct {
	entries     []PageDescriptor
	sourceCount int
	newID       IDFunc
}

// NewStore returns an empty store. A nil newID falls back to uuid.NewString.
func NewStore(newID IDFunc) *Store {
	if newID == nil {
		newID = uuid.NewString
	}
	return &Store{newID: newID}
}

// Initialize discards any previous state and creates one descriptor per source page.
func (s *Store) Initialize(pageCount int) error {
	if pageCount < 0 {
		return fmt.Errorf("initialize: negative page count %d", pageCount)
	}
	entries := make([]PageDescriptor, pageCount)
	for i := range entries {
		entries[i] = PageDescriptor{ID: s.newID(), SourceIndex: i}
	}
	s.entries = entries
	s.sourceCount = pageCount
	return nil
}

// Len returns the number of descriptors, deleted ones included.
func (s *Store) Len() int { return len(s.entries) }

// SourceCount returns the page count of the bound source document.
func (s *Store) SourceCount() int { return s.sourceCount }

// Get returns the descriptor at position.
func (s *Store) Get(position int) (PageDescriptor, error) {
	if position < 0 || position >= len(s.entries) {
		return PageDescriptor{}, &OutOfRangeError{Position: position, Len: len(s.entries)}
	}
	return s.entries[position], nil
}

// Lookup returns the descriptor with the given id.
func (s *Store) Lookup(id string) (PageDescriptor, error) {
	pos, err := s.Position(id)
	if err != nil {
		return PageDescriptor{}, err
	}
	return s.entries[pos], nil
}

// Position returns the store position of id.
func (s *Store) Position(id string) (int, error) {
	for i := range s.entries {
		if s.entries[i].ID == id {
			return i, nil
		}
	}
	return -1, &NotFoundError{ID: id}
}

// Entries returns a copy of all descriptors in store order.
func (s *Store) Entries() []PageDescriptor { return s.clone() }

// ActiveEntries returns the non-deleted descriptors in store order.
func (s *Store) ActiveEntries() []PageDescriptor {
	return s.filter(func(d PageDescriptor) bool { return !d.Deleted })
}

// DeletedEntries returns the soft-deleted descriptors in store order.
func (s *Store) DeletedEntries() []PageDescriptor {
	return s.filter(func(d PageDescriptor) bool { return d.Deleted })
}

// SetThumbnail attaches a preview handle. It is not an edit and is never recorded in history.
func (s *Store) SetThumbnail(id, handle string) error {
	pos, err := s.Position(id)
	if err != nil {
		return err
	}
	s.entries[pos].Thumbnail = handle
	return nil
}

func (s *Store) filter(keep func(PageDescriptor) bool) []PageDescriptor {
	out := make([]PageDescriptor, 0, len(s.entries))
	for _, d := range s.entries {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

func (s *Store) clone() []PageDescriptor {
	out := make([]PageDescriptor, len(s.entries))
	copy(out, s.entries)
	return out
}

// replace swaps in a snapshot. Thumbnails are carried over from the live
// entries so that undo never resurrects a stale preview handle.
func (s *Store) replace(snapshot []PageDescriptor) {
	thumbs := make(map[string]string, len(s.entries))
	for _, d := range s.entries {
		if d.Thumbnail != "" {
			thumbs[d.ID] = d.Thumbnail
		}
	}
	restored := make([]PageDescriptor, len(snapshot))
	copy(restored, snapshot)
	for i := range restored {
		if t, ok := thumbs[restored[i].ID]; ok {
			restored[i].Thumbnail = t
		}
	}
	s.entries = restored
}

func normalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}
