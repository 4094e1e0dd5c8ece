// Package compiler turns the edited page set into an output document. It
// walks the pages to emit, resolves overlay geometry and drives a Serializer.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pageset/internal/geometry"
	"github.com/local/pageset/internal/pageset"
)

var (
	// ErrEmptySelection blocks a compile that would emit zero pages.
	ErrEmptySelection = errors.New("nothing selected: refusing to compile an empty document")
	// ErrCompilationFailed matches every *CompilationError.
	ErrCompilationFailed = errors.New("compilation failed")
	// ErrInvalidOverlay is returned for malformed overlay specs.
	ErrInvalidOverlay = errors.New("invalid overlay")
	// ErrSourceIndex marks a page reference the source document does not contain.
	ErrSourceIndex = errors.New("source index not in document")
)

// CompilationError wraps a failure at one compile stage.
type CompilationError struct {
	Stage string
	Err   error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("compilation failed at %s: %v", e.Stage, e.Err)
}

func (e *CompilationError) Unwrap() error { return e.Err }

func (e *CompilationError) Is(target error) bool { return target == ErrCompilationFailed }

// PageRef is one output page: which source page to copy and the rotation to add.
type PageRef struct {
	ID          string `json:"id,omitempty"`
	SourceIndex int    `json:"source_index"`
	Rotation    int    `json:"rotation"`
}

// Layout reports what the bound source document contains.
type Layout interface {
	PageCount() int
	PageSize(sourceIndex int) (geometry.Size, error)
}

// Measurer sizes text the way the serializer will draw it.
type Measurer interface {
	MeasureText(text string, fontSize float64) geometry.Size
}

// Document is a serializer-owned output under construction.
type Document interface{}

// Serializer writes output documents.
type Serializer interface {
	Measurer
	CopyPages(ctx context.Context, source []byte, pages []PageRef) (Document, error)
	DrawOverlay(ctx context.Context, doc Document, in DrawInstruction) error
	Finalize(ctx context.Context, doc Document) ([]byte, error)
}

// FromStore emits the active descriptors in store order with their rotations.
func FromStore(entries []pageset.PageDescriptor) []PageRef {
	out := make([]PageRef, 0, len(entries))
	for _, d := range entries {
		if d.Deleted {
			continue
		}
		out = append(out, PageRef{ID: d.ID, SourceIndex: d.SourceIndex, Rotation: d.Rotation})
	}
	return out
}

// FromSelection emits selected source indices in ascending order. lookup, when
// set, supplies the descriptor for an index so its id (and rotation, when
// carryRotation) travel with the page.
func FromSelection(indices []int, lookup func(int) (pageset.PageDescriptor, bool), carryRotation bool) []PageRef {
	out := make([]PageRef, 0, len(indices))
	for _, i := range indices {
		ref := PageRef{SourceIndex: i}
		if lookup != nil {
			if d, ok := lookup(i); ok {
				ref.ID = d.ID
				ref.SourceIndex = d.SourceIndex
				if carryRotation {
					ref.Rotation = d.Rotation
				}
			}
		}
		out = append(out, ref)
	}
	return out
}

// Plan is everything needed to build an output, resolved ahead of any I/O.
type Plan struct {
	Pages []PageRef         `json:"pages"`
	Draws []DrawInstruction `json:"draws,omitempty"`
}

// BuildPlan validates pages against layout and resolves every overlay to
// document-space draw instructions. Overlay geometry uses the displayed page
// size, so a page rotated a quarter turn swaps width and height.
func BuildPlan(pages []PageRef, overlays []Overlay, layout Layout, m Measurer) (Plan, error) {
	if len(pages) == 0 {
		return Plan{}, ErrEmptySelection
	}
	count := layout.PageCount()
	for _, p := range pages {
		if p.SourceIndex < 0 || p.SourceIndex >= count {
			return Plan{}, &CompilationError{Stage: "plan", Err: fmt.Errorf("%w: %d of %d", ErrSourceIndex, p.SourceIndex, count)}
		}
	}
	for i, o := range overlays {
		if err := o.Validate(); err != nil {
			return Plan{}, fmt.Errorf("overlay %d: %w", i, err)
		}
	}

	plan := Plan{Pages: append([]PageRef(nil), pages...)}
	total := len(pages)
	for oi, o := range overlays {
		matched := false
		for pos, p := range pages {
			if !o.Target.All && o.Target.PageID != p.ID {
				continue
			}
			matched = true
			native, err := layout.PageSize(p.SourceIndex)
			if err != nil {
				return Plan{}, &CompilationError{Stage: "plan", Err: err}
			}
			size := native.Rotated(p.Rotation)
			content := o.Content.forPage(pos+1, total)
			box := placeBox(o, content, size, m)
			plan.Draws = append(plan.Draws, DrawInstruction{
				Page:    pos,
				Rect:    geometry.ToDocumentSpace(box, size),
				Content: content,
			})
		}
		if !matched {
			return Plan{}, fmt.Errorf("overlay %d: %w: page %q is not in the output", oi, ErrInvalidOverlay, o.Target.PageID)
		}
	}
	return plan, nil
}

func placeBox(o Overlay, c Content, page geometry.Size, m Measurer) geometry.Box {
	if o.Box != nil {
		return *o.Box
	}
	var size geometry.Size
	if o.Anchor.Size != nil {
		size = *o.Anchor.Size
	} else {
		size = m.MeasureText(c.Text, c.FontSize)
	}
	return geometry.AnchorBox(o.Anchor.Anchor, size, o.Anchor.Margin, page)
}

// Compile runs plan through s. On any failure no bytes are returned.
func Compile(ctx context.Context, s Serializer, source []byte, plan Plan) ([]byte, error) {
	if len(plan.Pages) == 0 {
		return nil, ErrEmptySelection
	}
	start := time.Now()

	doc, err := s.CopyPages(ctx, source, plan.Pages)
	if err != nil {
		return nil, &CompilationError{Stage: "copy", Err: err}
	}
	for _, d := range plan.Draws {
		if err := s.DrawOverlay(ctx, doc, d); err != nil {
			return nil, &CompilationError{Stage: "overlay", Err: fmt.Errorf("page %d: %w", d.Page+1, err)}
		}
	}
	out, err := s.Finalize(ctx, doc)
	if err != nil {
		return nil, &CompilationError{Stage: "finalize", Err: err}
	}

	log.Debug().
		Int("pages", len(plan.Pages)).
		Int("draws", len(plan.Draws)).
		Int("bytes", len(out)).
		Dur("took", time.Since(start)).
		Msg("compiled document")
	return out, nil
}
