package pageset

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned for a store position outside current bounds.
	ErrOutOfRange = errors.New("position out of range")
	// ErrNotFound is returned when a descriptor id is not in the store.
	ErrNotFound = errors.New("descriptor not found")
	// ErrInvalidPermutation is returned when a reorder does not name every active id exactly once.
	ErrInvalidPermutation = errors.New("invalid reorder permutation")
	ErrNothingToUndo      = errors.New("nothing to undo")
	ErrNothingToRedo      = errors.New("nothing to redo")
)

// OutOfRangeError carries the offending position and the store length.
type OutOfRangeError struct {
	Position int
	Len      int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("position %d out of range [0,%d)", e.Position, e.Len)
}

func (e *OutOfRangeError) Is(target error) bool { return target == ErrOutOfRange }

// NotFoundError carries the unknown descriptor id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("descriptor %q not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// IsProgrammerError reports whether err signals an engine/UI desync rather than
// a user-facing condition.
func IsProgrammerError(err error) bool {
	return errors.Is(err, ErrOutOfRange) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidPermutation)
}
