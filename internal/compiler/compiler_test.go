package compiler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/local/pageset/internal/geometry"
	"github.com/local/pageset/internal/pageset"
)

type fakeLayout struct {
	sizes []geometry.Size
}

func (l fakeLayout) PageCount() int { return len(l.sizes) }

func (l fakeLayout) PageSize(i int) (geometry.Size, error) {
	if i < 0 || i >= len(l.sizes) {
		return geometry.Size{}, fmt.Errorf("no page %d", i)
	}
	return l.sizes[i], nil
}

func letterLayout(n int) fakeLayout {
	l := fakeLayout{}
	for i := 0; i < n; i++ {
		l.sizes = append(l.sizes, geometry.Size{Width: 612, Height: 792})
	}
	return l
}

type fakeDoc struct {
	pages []PageRef
	draws []DrawInstruction
}

type fakeSerializer struct {
	failCopy     error
	failDraw     error
	failFinalize error
	last         *fakeDoc
}

func (s *fakeSerializer) MeasureText(text string, fontSize float64) geometry.Size {
	return geometry.Size{Width: float64(len(text)) * fontSize / 2, Height: fontSize}
}

func (s *fakeSerializer) CopyPages(_ context.Context, _ []byte, pages []PageRef) (Document, error) {
	if s.failCopy != nil {
		return nil, s.failCopy
	}
	s.last = &fakeDoc{pages: append([]PageRef(nil), pages...)}
	return s.last, nil
}

func (s *fakeSerializer) DrawOverlay(_ context.Context, doc Document, in DrawInstruction) error {
	if s.failDraw != nil {
		return s.failDraw
	}
	d := doc.(*fakeDoc)
	d.draws = append(d.draws, in)
	return nil
}

func (s *fakeSerializer) Finalize(_ context.Context, doc Document) ([]byte, error) {
	if s.failFinalize != nil {
		return nil, s.failFinalize
	}
	d := doc.(*fakeDoc)
	var parts []string
	for _, p := range d.pages {
		parts = append(parts, fmt.Sprintf("%d@%d", p.SourceIndex, p.Rotation))
	}
	return []byte(strings.Join(parts, ",")), nil
}

func newEditor(t *testing.T, n int) *pageset.Editor {
	t.Helper()
	k := 0
	e := pageset.NewEditor(pageset.NewStore(func() string { k++; return fmt.Sprintf("p%d", k) }), nil)
	if err := e.Initialize(n); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestCompileExcludesDeleted(t *testing.T) {
	e := newEditor(t, 5)
	d, _ := e.Store().Get(2)
	if err := e.Delete(d.ID); err != nil {
		t.Fatal(err)
	}
	s := &fakeSerializer{}
	plan, err := BuildPlan(FromStore(e.Store().Entries()), nil, letterLayout(5), s)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Compile(context.Background(), s, nil, plan)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "0@0,1@0,3@0,4@0" {
		t.Errorf("output = %q, want 0@0,1@0,3@0,4@0", out)
	}
}

func TestCompileStructuralOrderAndRotation(t *testing.T) {
	e := newEditor(t, 3)
	_ = e.Reorder([]string{"p3", "p1", "p2"}, true)
	_ = e.Rotate("p1", pageset.Clockwise)
	dup, _ := e.Duplicate("p1")
	_ = e.Rotate(dup.ID, pageset.Clockwise)
	s := &fakeSerializer{}
	plan, err := BuildPlan(FromStore(e.Store().Entries()), nil, letterLayout(3), s)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Compile(context.Background(), s, nil, plan)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "2@0,0@90,0@180,1@0" {
		t.Errorf("output = %q", out)
	}
}

func TestFromSelection(t *testing.T) {
	e := newEditor(t, 4)
	_ = e.Rotate("p3", pageset.CounterClockwise)
	lookup := func(i int) (pageset.PageDescriptor, bool) {
		d, err := e.Store().Get(i)
		return d, err == nil
	}
	got := FromSelection([]int{0, 2}, lookup, false)
	want := []PageRef{{ID: "p1", SourceIndex: 0}, {ID: "p3", SourceIndex: 2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FromSelection() = %+v, want %+v", got, want)
	}
	got = FromSelection([]int{2}, lookup, true)
	if got[0].Rotation != 270 {
		t.Errorf("carried rotation = %d, want 270", got[0].Rotation)
	}
	got = FromSelection([]int{1, 3}, nil, true)
	if !reflect.DeepEqual(got, []PageRef{{SourceIndex: 1}, {SourceIndex: 3}}) {
		t.Errorf("FromSelection(nil lookup) = %+v", got)
	}
}

func TestEmptySelection(t *testing.T) {
	s := &fakeSerializer{}
	if _, err := BuildPlan(nil, nil, letterLayout(2), s); !errors.Is(err, ErrEmptySelection) {
		t.Errorf("BuildPlan(nil) error = %v, want ErrEmptySelection", err)
	}
	if _, err := Compile(context.Background(), s, nil, Plan{}); !errors.Is(err, ErrEmptySelection) {
		t.Errorf("Compile(empty) error = %v, want ErrEmptySelection", err)
	}
	if s.last != nil {
		t.Error("serializer called for empty selection")
	}
}

func TestBuildPlanBadSourceIndex(t *testing.T) {
	_, err := BuildPlan([]PageRef{{SourceIndex: 0}, {SourceIndex: 7}}, nil, letterLayout(3), &fakeSerializer{})
	if !errors.Is(err, ErrCompilationFailed) || !errors.Is(err, ErrSourceIndex) {
		t.Errorf("error = %v, want CompilationFailed wrapping ErrSourceIndex", err)
	}
}

func TestCompileFailuresReturnNoBytes(t *testing.T) {
	boom := errors.New("boom")
	plan := Plan{
		Pages: []PageRef{{SourceIndex: 0}},
		Draws: []DrawInstruction{{Page: 0, Content: Content{Kind: KindFill}}},
	}
	tests := []struct {
		name  string
		s     *fakeSerializer
		stage string
	}{
		{"copy", &fakeSerializer{failCopy: boom}, "copy"},
		{"overlay", &fakeSerializer{failDraw: boom}, "overlay"},
		{"finalize", &fakeSerializer{failFinalize: boom}, "finalize"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Compile(context.Background(), tt.s, nil, plan)
			if out != nil {
				t.Errorf("partial output returned: %q", out)
			}
			var ce *CompilationError
			if !errors.As(err, &ce) || ce.Stage != tt.stage {
				t.Fatalf("error = %v, want CompilationError at %s", err, tt.stage)
			}
			if !errors.Is(err, boom) || !errors.Is(err, ErrCompilationFailed) {
				t.Errorf("error %v does not wrap cause", err)
			}
		})
	}
}

func TestOverlayGeometry(t *testing.T) {
	box := geometry.Box{X: 0.25, Y: 0.10, Width: 0.5, Height: 0.2}
	pages := []PageRef{{ID: "a", SourceIndex: 0}, {ID: "b", SourceIndex: 1, Rotation: 90}}
	overlays := []Overlay{{
		Target:  Target{All: true},
		Box:     &box,
		Content: Content{Kind: KindFill},
	}}
	plan, err := BuildPlan(pages, overlays, letterLayout(2), &fakeSerializer{})
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Draws) != 2 {
		t.Fatalf("draws = %d, want 2", len(plan.Draws))
	}
	want0 := geometry.Rect{X: 153, Y: 554.4, Width: 306, Height: 158.4}
	if !rectNear(plan.Draws[0].Rect, want0) {
		t.Errorf("upright page rect = %+v, want %+v", plan.Draws[0].Rect, want0)
	}
	// Rotated a quarter turn the displayed page is 792x612.
	want1 := geometry.Rect{X: 198, Y: 428.4, Width: 396, Height: 122.4}
	if !rectNear(plan.Draws[1].Rect, want1) {
		t.Errorf("rotated page rect = %+v, want %+v", plan.Draws[1].Rect, want1)
	}
}

func TestOverlayTargetByID(t *testing.T) {
	box := geometry.Box{X: 0, Y: 0, Width: 0.1, Height: 0.1}
	pages := []PageRef{{ID: "a", SourceIndex: 0}, {ID: "b", SourceIndex: 1}}
	plan, err := BuildPlan(pages, []Overlay{{
		Target:  Target{PageID: "b"},
		Box:     &box,
		Content: Content{Kind: KindImage, Image: []byte{1}},
	}}, letterLayout(2), &fakeSerializer{})
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Draws) != 1 || plan.Draws[0].Page != 1 {
		t.Errorf("draws = %+v, want one on page 1", plan.Draws)
	}

	_, err = BuildPlan(pages, []Overlay{{
		Target:  Target{PageID: "zz"},
		Box:     &box,
		Content: Content{Kind: KindFill},
	}}, letterLayout(2), &fakeSerializer{})
	if !errors.Is(err, ErrInvalidOverlay) {
		t.Errorf("unknown target error = %v, want ErrInvalidOverlay", err)
	}
}

func TestPageNumberOverlay(t *testing.T) {
	pages := []PageRef{{SourceIndex: 0}, {SourceIndex: 1}, {SourceIndex: 2}}
	s := &fakeSerializer{}
	plan, err := BuildPlan(pages, []Overlay{{
		Target:  Target{All: true},
		Anchor:  &AnchorSpec{Anchor: geometry.BottomCenter, Margin: 20},
		Content: Content{Kind: KindText, Text: "{n}/{total}", FontSize: 10},
	}}, letterLayout(3), s)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Draws) != 3 {
		t.Fatalf("draws = %d, want 3", len(plan.Draws))
	}
	d := plan.Draws[1]
	if d.Content.Text != "2/3" {
		t.Errorf("text = %q, want 2/3", d.Content.Text)
	}
	// fake measurer: 3 chars * 10 / 2 = 15 wide, 10 high
	want := geometry.Rect{X: (612 - 15) / 2.0, Y: 20, Width: 15, Height: 10}
	if !rectNear(d.Rect, want) {
		t.Errorf("rect = %+v, want %+v", d.Rect, want)
	}
	if d.Content.Opacity != 1 {
		t.Errorf("default opacity = %g, want 1", d.Content.Opacity)
	}
}

func TestOverlayValidate(t *testing.T) {
	box := geometry.Box{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.2}
	bad := geometry.Box{X: 0.9, Y: 0.1, Width: 0.2, Height: 0.2}
	tests := []struct {
		name string
		o    Overlay
		ok   bool
	}{
		{"fill box", Overlay{Target: Target{All: true}, Box: &box, Content: Content{Kind: KindFill}}, true},
		{"no target", Overlay{Box: &box, Content: Content{Kind: KindFill}}, false},
		{"no placement", Overlay{Target: Target{All: true}, Content: Content{Kind: KindFill}}, false},
		{"both placements", Overlay{Target: Target{All: true}, Box: &box, Anchor: &AnchorSpec{Anchor: geometry.Center}, Content: Content{Kind: KindText, Text: "x"}}, false},
		{"box out of bounds", Overlay{Target: Target{All: true}, Box: &bad, Content: Content{Kind: KindFill}}, false},
		{"image without data", Overlay{Target: Target{All: true}, Box: &box, Content: Content{Kind: KindImage}}, false},
		{"empty text", Overlay{Target: Target{All: true}, Box: &box, Content: Content{Kind: KindText, Text: " "}}, false},
		{"anchored image without size", Overlay{Target: Target{All: true}, Anchor: &AnchorSpec{Anchor: geometry.Center}, Content: Content{Kind: KindImage, Image: []byte{1}}}, false},
		{"bad opacity", Overlay{Target: Target{All: true}, Box: &box, Content: Content{Kind: KindFill, Opacity: 2}}, false},
		{"unknown kind", Overlay{Target: Target{All: true}, Box: &box, Content: Content{Kind: "blur"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.o.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() error = %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidOverlay) {
				t.Errorf("Validate() error = %v, want ErrInvalidOverlay", err)
			}
		})
	}
}

func rectNear(a, b geometry.Rect) bool {
	const eps = 1e-6
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps &&
		math.Abs(a.Width-b.Width) < eps && math.Abs(a.Height-b.Height) < eps
}
