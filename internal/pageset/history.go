package pageset

// DefaultHistoryCapacity bounds the undo stack.
const DefaultHistoryCapacity = 50

// History is a bounded log of full store snapshots. When the undo stack is
// full the oldest snapshot is evicted. The redo stack is only kept when enabled.
type History struct {
	capacity int
	redo     bool
	undos    [][]PageDescriptor
	redos    [][]PageDescriptor
}

// HistoryOption configures a History.
type HistoryOption func(*History)

// WithCapacity overrides the snapshot cap. Non-positive values are ignored.
func WithCapacity(n int) HistoryOption {
	return func(h *History) {
		if n > 0 {
			h.capacity = n
		}
	}
}

// WithRedo enables the second stack that makes Undo reversible.
func WithRedo(enabled bool) HistoryOption {
	return func(h *History) { h.redo = enabled }
}

// NewHistory returns an empty history.
func NewHistory(opts ...HistoryOption) *History {
	h := &History{capacity: DefaultHistoryCapacity}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Capacity returns the snapshot cap.
func (h *History) Capacity() int { return h.capacity }

// Depth returns the number of undoable snapshots.
func (h *History) Depth() int { return len(h.undos) }

// RedoDepth returns the number of redoable snapshots.
func (h *History) RedoDepth() int { return len(h.redos) }

// RedoEnabled reports whether Undo records redo states.
func (h *History) RedoEnabled() bool { return h.redo }

// push records a copy of entries and invalidates redo.
func (h *History) push(entries []PageDescriptor) {
	h.undos = pushBounded(h.undos, copyEntries(entries), h.capacity)
	h.redos = nil
}

func (h *History) popUndo(current []PageDescriptor) ([]PageDescriptor, bool) {
	if len(h.undos) == 0 {
		return nil, false
	}
	last := h.undos[len(h.undos)-1]
	h.undos[len(h.undos)-1] = nil
	h.undos = h.undos[:len(h.undos)-1]
	if h.redo {
		h.redos = pushBounded(h.redos, copyEntries(current), h.capacity)
	}
	return last, true
}

func (h *History) popRedo(current []PageDescriptor) ([]PageDescriptor, bool) {
	if !h.redo || len(h.redos) == 0 {
		return nil, false
	}
	last := h.redos[len(h.redos)-1]
	h.redos[len(h.redos)-1] = nil
	h.redos = h.redos[:len(h.redos)-1]
	h.undos = pushBounded(h.undos, copyEntries(current), h.capacity)
	return last, true
}

// Clear drops every snapshot.
func (h *History) Clear() {
	h.undos = nil
	h.redos = nil
}

func pushBounded(stack [][]PageDescriptor, snap []PageDescriptor, capacity int) [][]PageDescriptor {
	stack = append(stack, snap)
	if over := len(stack) - capacity; over > 0 {
		for i := 0; i < over; i++ {
			stack[i] = nil
		}
		stack = append(stack[:0:0], stack[over:]...)
	}
	return stack
}

func copyEntries(entries []PageDescriptor) []PageDescriptor {
	out := make([]PageDescriptor, len(entries))
	copy(out, entries)
	return out
}
