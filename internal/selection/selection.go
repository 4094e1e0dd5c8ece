// Package selection resolves page selections from direct picks or from a
// range expression such as "1-5, 8, 10-12".
package selection

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrInvalidRangeExpression means no token of a range expression could be parsed.
	ErrInvalidRangeExpression = errors.New("invalid range expression: nothing selected")
	// ErrModeMismatch is returned when a selector is used in the mode it was not set to.
	ErrModeMismatch = errors.New("selection mode mismatch")
)

// Mode is the selection mode of a session.
type Mode string

const (
	ModePick  Mode = "pick"
	ModeRange Mode = "range"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePick, ModeRange:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown selection mode %q", s)
}

// Picker is a toggling set of explicitly chosen indices.
type Picker struct {
	set map[int]struct{}
}

// NewPicker returns an empty picker.
func NewPicker() *Picker { return &Picker{set: map[int]struct{}{}} }

// Toggle removes i when present and adds it otherwise. It reports whether i is now selected.
func (p *Picker) Toggle(i int) bool {
	if _, ok := p.set[i]; ok {
		delete(p.set, i)
		return false
	}
	p.set[i] = struct{}{}
	return true
}

func (p *Picker) Len() int { return len(p.set) }

func (p *Picker) Clear() { p.set = map[int]struct{}{} }

// Resolve returns the picked indices ascending, independent of click order.
func (p *Picker) Resolve() []int {
	out := make([]int, 0, len(p.set))
	for i := range p.set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Result is a resolved range expression.
type Result struct {
	// Pages are 0-based, unique and ascending.
	Pages []int `json:"pages"`
	// Dropped lists the tokens that did not parse.
	Dropped []string `json:"dropped,omitempty"`
}

// ParseRanges resolves expr against a document of pageCount pages. Malformed
// tokens are dropped; ranges are clamped to the document; a range whose start
// exceeds its end contributes nothing. When no token parses the result is
// ErrInvalidRangeExpression.
func ParseRanges(expr string, pageCount int) (Result, error) {
	res := Result{Pages: []int{}}
	seen := make(map[int]struct{})
	parsed := 0

	for _, raw := range strings.Split(expr, ",") {
		tok := strings.TrimSpace(raw)
		if tok == "" {
			continue
		}
		start, end, ok := parseToken(tok)
		if !ok {
			res.Dropped = append(res.Dropped, tok)
			continue
		}
		parsed++
		if start < 1 {
			start = 1
		}
		if end > pageCount {
			end = pageCount
		}
		for p := start; p <= end; p++ {
			seen[p-1] = struct{}{}
		}
	}
	if parsed == 0 {
		return res, ErrInvalidRangeExpression
	}
	for i := range seen {
		res.Pages = append(res.Pages, i)
	}
	sort.Ints(res.Pages)
	return res, nil
}

// parseToken returns the inclusive 1-based bounds of a token. A single page
// that is out of range is still a parsed token; it just selects nothing.
func parseToken(tok string) (int, int, bool) {
	if strings.Contains(tok, "-") {
		parts := strings.SplitN(tok, "-", 2)
		start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return 0, 0, false
		}
		end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return 0, 0, false
		}
		return start, end, true
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, 0, false
	}
	if n < 1 {
		// keep it out of the clamp so "0" does not select page 1
		return 1, 0, true
	}
	return n, n, true
}

// Format renders 0-based indices as a canonical 1-based range expression.
func Format(indices []int) string {
	if len(indices) == 0 {
		return ""
	}
	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)
	var parts []string
	for _, run := range Runs(sorted) {
		if run[0] == run[1] {
			parts = append(parts, strconv.Itoa(run[0]+1))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", run[0]+1, run[1]+1))
		}
	}
	return strings.Join(parts, ",")
}

// Runs groups ascending, unique indices into contiguous [first,last] runs.
func Runs(sorted []int) [][2]int {
	var out [][2]int
	for _, i := range sorted {
		n := len(out)
		switch {
		case n > 0 && out[n-1][1] == i:
		case n > 0 && out[n-1][1] == i-1:
			out[n-1][1] = i
		default:
			out = append(out, [2]int{i, i})
		}
	}
	return out
}

// Selector holds one session's selection in exactly one mode.
type Selector struct {
	mode   Mode
	picker *Picker
	expr   string
	result Result
}

// NewSelector returns a selector in mode.
func NewSelector(mode Mode) *Selector {
	return &Selector{mode: mode, picker: NewPicker()}
}

func (s *Selector) Mode() Mode { return s.mode }

// Reset switches mode and clears any previous selection.
func (s *Selector) Reset(mode Mode) {
	s.mode = mode
	s.picker.Clear()
	s.expr = ""
	s.result = Result{}
}

// Toggle flips a pick. Only valid in pick mode.
func (s *Selector) Toggle(i int) (bool, error) {
	if s.mode != ModePick {
		return false, fmt.Errorf("toggle in %s mode: %w", s.mode, ErrModeMismatch)
	}
	return s.picker.Toggle(i), nil
}

// SetExpression parses expr against pageCount. Only valid in range mode. On
// error the previous expression is kept.
func (s *Selector) SetExpression(expr string, pageCount int) (Result, error) {
	if s.mode != ModeRange {
		return Result{}, fmt.Errorf("range expression in %s mode: %w", s.mode, ErrModeMismatch)
	}
	res, err := ParseRanges(expr, pageCount)
	if err != nil {
		return res, err
	}
	s.expr = expr
	s.result = res
	return res, nil
}

// Expression returns the last accepted range expression.
func (s *Selector) Expression() string { return s.expr }

// Resolve returns the current selection ascending.
func (s *Selector) Resolve() []int {
	if s.mode == ModePick {
		return s.picker.Resolve()
	}
	return append([]int(nil), s.result.Pages...)
}
