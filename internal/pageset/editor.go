package pageset

import (
	"fmt"
)

// Direction is a quarter-turn rotation direction.
type Direction int

const (
	Clockwise Direction = iota
	CounterClockwise
)

// ParseDirection accepts "cw"/"clockwise" and "ccw"/"counterclockwise".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "cw", "clockwise", "right":
		return Clockwise, nil
	case "ccw", "counterclockwise", "left":
		return CounterClockwise, nil
	}
	return 0, fmt.Errorf("unknown rotation direction %q", s)
}

func (d Direction) degrees() int {
	if d == CounterClockwise {
		return -90
	}
	return 90
}

// Editor applies mutations to a Store and records history before each one.
// It is not safe for concurrent use.
type Editor struct {
	store   *Store
	history *History
	// preDrag is the store state before the first uncommitted reorder frame.
	preDrag []PageDescriptor
}

// NewEditor wraps store and history.
func NewEditor(store *Store, history *History) *Editor {
	if history == nil {
		history = NewHistory()
	}
	return &Editor{store: store, history: history}
}

// Store returns the live store.
func (e *Editor) Store() *Store { return e.store }

// History returns the edit history.
func (e *Editor) History() *History { return e.history }

// Initialize resets the store for a new source and clears history.
func (e *Editor) Initialize(pageCount int) error {
	if err := e.store.Initialize(pageCount); err != nil {
		return err
	}
	e.history.Clear()
	e.preDrag = nil
	return nil
}

// snapshot records the current state, flushing a pending drag first so the
// drag stays its own undo step.
func (e *Editor) snapshot() {
	e.flushDrag()
	e.history.push(e.store.entries)
}

func (e *Editor) flushDrag() {
	if e.preDrag != nil {
		e.history.push(e.preDrag)
		e.preDrag = nil
	}
}

// Rotate turns the page a quarter in direction.
func (e *Editor) Rotate(id string, dir Direction) error {
	pos, err := e.store.Position(id)
	if err != nil {
		return err
	}
	e.snapshot()
	d := &e.store.entries[pos]
	d.Rotation = normalizeRotation(d.Rotation + dir.degrees())
	return nil
}

// RotateAll turns every active page a quarter in direction as one undo step.
func (e *Editor) RotateAll(dir Direction) error {
	if len(e.store.ActiveEntries()) == 0 {
		return nil
	}
	e.snapshot()
	for i := range e.store.entries {
		if e.store.entries[i].Deleted {
			continue
		}
		e.store.entries[i].Rotation = normalizeRotation(e.store.entries[i].Rotation + dir.degrees())
	}
	return nil
}

// Delete soft-deletes the page. Nothing is removed or renumbered.
func (e *Editor) Delete(id string) error {
	return e.setDeleted(id, true)
}

// Restore clears the soft-delete flag.
func (e *Editor) Restore(id string) error {
	return e.setDeleted(id, false)
}

func (e *Editor) setDeleted(id string, deleted bool) error {
	pos, err := e.store.Position(id)
	if err != nil {
		return err
	}
	e.snapshot()
	e.store.entries[pos].Deleted = deleted
	return nil
}

// Duplicate inserts a copy of the page right after it. The copy keeps the
// source index and rotation and gets a fresh id.
func (e *Editor) Duplicate(id string) (PageDescriptor, error) {
	pos, err := e.store.Position(id)
	if err != nil {
		return PageDescriptor{}, err
	}
	e.snapshot()
	dup := e.store.entries[pos]
	dup.ID = e.store.newID()
	dup.Deleted = false

	entries := make([]PageDescriptor, 0, len(e.store.entries)+1)
	entries = append(entries, e.store.entries[:pos+1]...)
	entries = append(entries, dup)
	entries = append(entries, e.store.entries[pos+1:]...)
	e.store.entries = entries
	return dup, nil
}

// Reorder applies order, a permutation of the active ids, to the active
// subsequence. Deleted entries keep their positions. Intermediate drag frames
// (commit=false) only remember the pre-drag state; the committing call records
// it as a single history entry.
func (e *Editor) Reorder(order []string, commit bool) error {
	next, err := e.permute(order)
	if err != nil {
		return err
	}
	if e.preDrag == nil {
		e.preDrag = e.store.clone()
	}
	e.store.entries = next
	if commit {
		pre := e.preDrag
		e.preDrag = nil
		e.history.push(pre)
	}
	return nil
}

// CancelDrag reverts uncommitted reorder frames.
func (e *Editor) CancelDrag() {
	if e.preDrag != nil {
		e.store.entries = e.preDrag
		e.preDrag = nil
	}
}

// Dragging reports whether uncommitted reorder frames are pending.
func (e *Editor) Dragging() bool { return e.preDrag != nil }

// Move places id at toActive within the active subsequence and commits.
func (e *Editor) Move(id string, toActive int) error {
	active := e.store.ActiveEntries()
	from := -1
	for i, d := range active {
		if d.ID == id {
			from = i
			break
		}
	}
	if from < 0 {
		if _, err := e.store.Position(id); err != nil {
			return err
		}
		return fmt.Errorf("move %q: %w: page is deleted", id, ErrInvalidPermutation)
	}
	if toActive < 0 || toActive >= len(active) {
		return &OutOfRangeError{Position: toActive, Len: len(active)}
	}
	ids := make([]string, 0, len(active))
	for _, d := range active {
		ids = append(ids, d.ID)
	}
	moved := ids[from]
	ids = append(ids[:from], ids[from+1:]...)
	ids = append(ids[:toActive], append([]string{moved}, ids[toActive:]...)...)
	return e.Reorder(ids, true)
}

func (e *Editor) permute(order []string) ([]PageDescriptor, error) {
	byID := make(map[string]PageDescriptor, len(e.store.entries))
	activeCount := 0
	for _, d := range e.store.entries {
		if !d.Deleted {
			byID[d.ID] = d
			activeCount++
		}
	}
	if len(order) != activeCount {
		return nil, fmt.Errorf("%w: got %d ids for %d active pages", ErrInvalidPermutation, len(order), activeCount)
	}
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		if _, ok := byID[id]; !ok {
			if _, err := e.store.Position(id); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %q is deleted", ErrInvalidPermutation, id)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: %q repeated", ErrInvalidPermutation, id)
		}
		seen[id] = true
	}

	next := e.store.clone()
	k := 0
	for i := range next {
		if next[i].Deleted {
			continue
		}
		next[i] = byID[order[k]]
		k++
	}
	return next, nil
}

// Undo restores the most recent snapshot.
func (e *Editor) Undo() error {
	if e.preDrag != nil {
		e.CancelDrag()
		return nil
	}
	snap, ok := e.history.popUndo(e.store.entries)
	if !ok {
		return ErrNothingToUndo
	}
	e.store.replace(snap)
	return nil
}

// Redo reapplies the most recently undone state when redo is enabled.
// Pending drag frames are dropped first.
func (e *Editor) Redo() error {
	e.CancelDrag()
	snap, ok := e.history.popRedo(e.store.entries)
	if !ok {
		return ErrNothingToRedo
	}
	e.store.replace(snap)
	return nil
}
