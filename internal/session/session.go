// Package session binds one immutable source document to the page-set
// editor, a selection and the compiler, and exposes them per tool.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/local/pageset/internal/compiler"
	"github.com/local/pageset/internal/metrics"
	"github.com/local/pageset/internal/pageset"
	"github.com/local/pageset/internal/selection"
)

// Options configures a session.
type Options struct {
	Tool       Tool
	HistoryCap int
	Redo       bool
	// Strict returns programmer errors to the caller. Otherwise they are
	// logged and the call degrades to a no-op.
	Strict bool
	// Mode is the initial selection mode; defaults to pick.
	Mode  selection.Mode
	NewID pageset.IDFunc
}

// Output is one compiled document.
type Output struct {
	Data  []byte
	Pages []compiler.PageRef
	// Label is the 1-based range expression of the emitted source pages.
	Label string
}

// Session is not safe for concurrent use; callers serialize access.
type Session struct {
	id         string
	tool       Tool
	strict     bool
	source     []byte
	layout     compiler.Layout
	serializer compiler.Serializer
	editor     *pageset.Editor
	selector   *selection.Selector
	created    time.Time
	logger     zerolog.Logger
}

// New binds source to a fresh page set with one descriptor per source page.
func New(id string, source []byte, layout compiler.Layout, s compiler.Serializer, opts Options) (*Session, error) {
	if opts.Tool == "" {
		opts.Tool = ToolOrganize
	}
	tool, err := ParseTool(string(opts.Tool))
	if err != nil {
		return nil, err
	}
	opts.Tool = tool
	if opts.Mode == "" {
		opts.Mode = selection.ModePick
	}
	hist := pageset.NewHistory(pageset.WithCapacity(opts.HistoryCap), pageset.WithRedo(opts.Redo))
	sess := &Session{
		id:         id,
		tool:       opts.Tool,
		strict:     opts.Strict,
		source:     source,
		layout:     layout,
		serializer: s,
		editor:     pageset.NewEditor(pageset.NewStore(opts.NewID), hist),
		selector:   selection.NewSelector(opts.Mode),
		created:    time.Now().UTC(),
		logger:     log.With().Str("session_id", id).Str("tool", string(opts.Tool)).Logger(),
	}
	if err := sess.Initialize(); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Tool() Tool { return s.tool }

func (s *Session) Created() time.Time { return s.created }

// PageCount returns the source page count.
func (s *Session) PageCount() int { return s.layout.PageCount() }

// Store exposes the live store for thumbnail bookkeeping.
func (s *Session) Store() *pageset.Store { return s.editor.Store() }

// Entries returns every descriptor in display order, deleted ones included.
func (s *Session) Entries() []pageset.PageDescriptor { return s.editor.Store().Entries() }

// HistoryDepth returns the undo and redo depths.
func (s *Session) HistoryDepth() (undo, redo int) {
	h := s.editor.History()
	return h.Depth(), h.RedoDepth()
}

// HistoryLimits returns the undo capacity and whether redo is kept.
func (s *Session) HistoryLimits() (capacity int, redo bool) {
	h := s.editor.History()
	return h.Capacity(), h.RedoEnabled()
}

// Initialize discards all edits and the selection.
func (s *Session) Initialize() error {
	if err := s.editor.Initialize(s.layout.PageCount()); err != nil {
		return err
	}
	s.selector.Reset(s.selector.Mode())
	s.logger.Info().Int("pages", s.layout.PageCount()).Msg("initialized page set")
	return nil
}

// settle applies the propagation policy: programmer errors are always logged,
// and outside strict mode they become no-ops.
func (s *Session) settle(op Op, err error) error {
	switch {
	case err == nil:
		metrics.IncMutation(string(op), "ok")
		return nil
	case pageset.IsProgrammerError(err):
		s.logger.Error().Err(err).Str("op", string(op)).Bool("strict", s.strict).Msg("engine desync")
		if s.strict {
			metrics.IncMutation(string(op), "rejected")
			return err
		}
		metrics.IncMutation(string(op), "noop")
		return nil
	default:
		metrics.IncMutation(string(op), "rejected")
		return err
	}
}

func (s *Session) mutate(op Op, fn func() error) error {
	if err := s.tool.require(op); err != nil {
		return err
	}
	return s.settle(op, fn())
}

// Rotate turns one page a quarter turn.
func (s *Session) Rotate(id string, dir pageset.Direction) error {
	return s.mutate(OpRotate, func() error { return s.editor.Rotate(id, dir) })
}

// RotateAll turns every active page a quarter turn as one undo step.
func (s *Session) RotateAll(dir pageset.Direction) error {
	return s.mutate(OpRotateAll, func() error { return s.editor.RotateAll(dir) })
}

func (s *Session) Delete(id string) error {
	return s.mutate(OpDelete, func() error { return s.editor.Delete(id) })
}

func (s *Session) Restore(id string) error {
	return s.mutate(OpRestore, func() error { return s.editor.Restore(id) })
}

// Duplicate returns the inserted copy. A degraded no-op returns a zero descriptor.
func (s *Session) Duplicate(id string) (pageset.PageDescriptor, error) {
	var dup pageset.PageDescriptor
	err := s.mutate(OpDuplicate, func() error {
		var err error
		dup, err = s.editor.Duplicate(id)
		return err
	})
	return dup, err
}

// Reorder applies a permutation of the active ids. Only a committing call
// records history.
func (s *Session) Reorder(order []string, commit bool) error {
	return s.mutate(OpReorder, func() error { return s.editor.Reorder(order, commit) })
}

// Move places id at an active position and commits.
func (s *Session) Move(id string, toActive int) error {
	return s.mutate(OpMove, func() error { return s.editor.Move(id, toActive) })
}

// CancelDrag drops uncommitted reorder frames.
func (s *Session) CancelDrag() error {
	if err := s.tool.require(OpReorder); err != nil {
		return err
	}
	s.editor.CancelDrag()
	return nil
}

// Dragging reports whether a reorder drag is in progress.
func (s *Session) Dragging() bool { return s.editor.Dragging() }

func (s *Session) Undo() error {
	return s.mutate(OpUndo, s.editor.Undo)
}

func (s *Session) Redo() error {
	return s.mutate(OpRedo, s.editor.Redo)
}

// SelectionMode returns the active selection mode.
func (s *Session) SelectionMode() selection.Mode { return s.selector.Mode() }

// SetSelectionMode switches mode and clears the selection.
func (s *Session) SetSelectionMode(m selection.Mode) error {
	if err := s.tool.require(OpSelect); err != nil {
		return err
	}
	s.selector.Reset(m)
	return nil
}

// Toggle flips a direct pick of a 0-based source page.
func (s *Session) Toggle(sourceIndex int) (bool, error) {
	if err := s.tool.require(OpSelect); err != nil {
		return false, err
	}
	if n := s.layout.PageCount(); sourceIndex < 0 || sourceIndex >= n {
		return false, s.settle(OpSelect, &pageset.OutOfRangeError{Position: sourceIndex, Len: n})
	}
	on, err := s.selector.Toggle(sourceIndex)
	return on, s.settle(OpSelect, err)
}

// SetRange resolves a range expression against the source page count.
func (s *Session) SetRange(expr string) (selection.Result, error) {
	if err := s.tool.require(OpSelect); err != nil {
		return selection.Result{}, err
	}
	res, err := s.selector.SetExpression(expr, s.layout.PageCount())
	if err != nil {
		return res, s.settle(OpSelect, err)
	}
	if len(res.Dropped) > 0 {
		s.logger.Debug().Strs("dropped", res.Dropped).Str("expr", expr).Msg("dropped malformed range tokens")
	}
	metrics.IncMutation(string(OpSelect), "ok")
	return res, nil
}

// ResolveSelection returns the selected 0-based source pages, ascending.
func (s *Session) ResolveSelection() []int { return s.selector.Resolve() }

// SelectionExpression returns the selection as a canonical range expression.
func (s *Session) SelectionExpression() string { return selection.Format(s.selector.Resolve()) }

// lookup maps a source index to its first active descriptor.
func (s *Session) lookup() func(int) (pageset.PageDescriptor, bool) {
	first := map[int]pageset.PageDescriptor{}
	for _, d := range s.editor.Store().ActiveEntries() {
		if _, ok := first[d.SourceIndex]; !ok {
			first[d.SourceIndex] = d
		}
	}
	return func(i int) (pageset.PageDescriptor, bool) {
		d, ok := first[i]
		return d, ok
	}
}

// CompileStructural emits the active pages in display order with their rotations.
func (s *Session) CompileStructural(ctx context.Context, overlays ...compiler.Overlay) (Output, error) {
	if err := s.allow(OpCompileStructural, overlays); err != nil {
		return Output{}, err
	}
	return s.compile(ctx, "structural", compiler.FromStore(s.editor.Store().Entries()), overlays)
}

// CompileSelection emits the selected source pages in ascending order.
func (s *Session) CompileSelection(ctx context.Context, carryRotation bool, overlays ...compiler.Overlay) (Output, error) {
	if err := s.allow(OpCompileSelection, overlays); err != nil {
		return Output{}, err
	}
	pages := compiler.FromSelection(s.selector.Resolve(), s.lookup(), carryRotation)
	return s.compile(ctx, "selection", pages, overlays)
}

// CompileRemoval emits the active pages in display order, leaving out every
// page whose source page is selected.
func (s *Session) CompileRemoval(ctx context.Context) (Output, error) {
	if err := s.tool.require(OpCompileRemoval); err != nil {
		return Output{}, err
	}
	selected := s.selector.Resolve()
	if len(selected) == 0 {
		s.observe("remove", "empty", 0, 0)
		return Output{}, fmt.Errorf("no pages chosen for removal: %w", compiler.ErrEmptySelection)
	}
	drop := make(map[int]bool, len(selected))
	for _, i := range selected {
		drop[i] = true
	}
	var keep []compiler.PageRef
	for _, p := range compiler.FromStore(s.editor.Store().Entries()) {
		if !drop[p.SourceIndex] {
			keep = append(keep, p)
		}
	}
	return s.compile(ctx, "remove", keep, nil)
}

// Split emits one document per contiguous run of selected pages. Either every
// part compiles or none is returned.
func (s *Session) Split(ctx context.Context) ([]Output, error) {
	if err := s.tool.require(OpSplit); err != nil {
		return nil, err
	}
	selected := s.selector.Resolve()
	if len(selected) == 0 {
		s.observe("split", "empty", 0, 0)
		return nil, compiler.ErrEmptySelection
	}
	start := time.Now()
	lookup := s.lookup()
	var outs []Output
	pages := 0
	for _, run := range selection.Runs(selected) {
		indices := make([]int, 0, run[1]-run[0]+1)
		for i := run[0]; i <= run[1]; i++ {
			indices = append(indices, i)
		}
		out, err := s.build(ctx, compiler.FromSelection(indices, lookup, false), nil)
		if err != nil {
			s.observe("split", "error", 0, time.Since(start))
			return nil, err
		}
		pages += len(out.Pages)
		outs = append(outs, out)
	}
	s.observe("split", "ok", pages, time.Since(start))
	s.logger.Info().Int("parts", len(outs)).Str("selection", selection.Format(selected)).Msg("split document")
	return outs, nil
}

func (s *Session) allow(op Op, overlays []compiler.Overlay) error {
	if err := s.tool.require(op); err != nil {
		return err
	}
	if len(overlays) > 0 {
		return s.tool.require(OpOverlay)
	}
	return nil
}

func (s *Session) compile(ctx context.Context, mode string, pages []compiler.PageRef, overlays []compiler.Overlay) (Output, error) {
	start := time.Now()
	out, err := s.build(ctx, pages, overlays)
	switch {
	case errors.Is(err, compiler.ErrEmptySelection):
		s.observe(mode, "empty", 0, time.Since(start))
		return Output{}, err
	case err != nil:
		s.observe(mode, "error", 0, time.Since(start))
		s.logger.Error().Err(err).Str("mode", mode).Msg("compile failed")
		return Output{}, err
	}
	s.observe(mode, "ok", len(out.Pages), time.Since(start))
	s.logger.Info().Str("mode", mode).Int("pages", len(out.Pages)).Int("bytes", len(out.Data)).Msg("compiled document")
	return out, nil
}

func (s *Session) build(ctx context.Context, pages []compiler.PageRef, overlays []compiler.Overlay) (Output, error) {
	plan, err := compiler.BuildPlan(pages, overlays, s.layout, s.serializer)
	if err != nil {
		return Output{}, err
	}
	data, err := compiler.Compile(ctx, s.serializer, s.source, plan)
	if err != nil {
		return Output{}, err
	}
	indices := make([]int, len(plan.Pages))
	for i, p := range plan.Pages {
		indices[i] = p.SourceIndex
	}
	return Output{Data: data, Pages: plan.Pages, Label: label(indices)}, nil
}

// label formats source pages in output order, e.g. "3,1-2".
func label(indices []int) string {
	out := ""
	for i := 0; i < len(indices); {
		j := i
		for j+1 < len(indices) && indices[j+1] == indices[j]+1 {
			j++
		}
		if out != "" {
			out += ","
		}
		out += selection.Format(indices[i : j+1])
		i = j + 1
	}
	return out
}

func (s *Session) observe(mode, result string, pages int, d time.Duration) {
	metrics.ObserveCompile(mode, result, pages, d)
}
