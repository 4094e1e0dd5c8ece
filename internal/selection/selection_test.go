package selection

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseRanges(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		pages   int
		want    []int
		dropped []string
	}{
		{"ranges and singles", "1-3,5", 10, []int{0, 1, 2, 4}, nil},
		{"reversed range is empty", "5-2", 10, []int{}, nil},
		{"clamped range", "1-100", 10, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, nil},
		{"malformed token dropped", "abc, 3", 10, []int{2}, []string{"abc"}},
		{"whitespace and duplicates", " 2 , 1-3 ,3, ", 5, []int{0, 1, 2}, nil},
		{"single out of range", "12, 4", 10, []int{3}, nil},
		{"zero page", "0", 10, []int{}, nil},
		{"range from zero", "0-2", 10, []int{0, 1}, nil},
		{"mixed ranges and singles", "1-5, 8, 10-12", 12, []int{0, 1, 2, 3, 4, 7, 9, 10, 11}, nil},
		{"spaces inside range", "2 - 4", 10, []int{1, 2, 3}, nil},
		{"double dash dropped", "1-2-3, 9", 10, []int{8}, []string{"1-2-3"}},
		{"negative dropped", "-3, 1", 10, []int{0}, []string{"-3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRanges(tt.expr, tt.pages)
			if err != nil {
				t.Fatalf("ParseRanges(%q) error = %v", tt.expr, err)
			}
			if !reflect.DeepEqual(got.Pages, tt.want) {
				t.Errorf("ParseRanges(%q) = %v, want %v", tt.expr, got.Pages, tt.want)
			}
			if !reflect.DeepEqual(got.Dropped, tt.dropped) {
				t.Errorf("ParseRanges(%q) dropped = %v, want %v", tt.expr, got.Dropped, tt.dropped)
			}
		})
	}
}

func TestParseRangesNothingParsed(t *testing.T) {
	for _, expr := range []string{"", "  ", "abc", "a-b, x", ",,,"} {
		if _, err := ParseRanges(expr, 10); !errors.Is(err, ErrInvalidRangeExpression) {
			t.Errorf("ParseRanges(%q) error = %v, want ErrInvalidRangeExpression", expr, err)
		}
	}
}

func TestPickerDeterminism(t *testing.T) {
	p := NewPicker()
	for _, i := range []int{3, 1, 2} {
		p.Toggle(i)
	}
	if got := p.Resolve(); !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Errorf("Resolve() = %v, want [1 2 3]", got)
	}
	if now := p.Toggle(2); now {
		t.Error("second Toggle(2) reported selected")
	}
	if got := p.Resolve(); !reflect.DeepEqual(got, []int{1, 3}) {
		t.Errorf("Resolve() after untoggle = %v, want [1 3]", got)
	}
}

func TestFormatAndRuns(t *testing.T) {
	tests := []struct {
		in   []int
		want string
	}{
		{nil, ""},
		{[]int{0, 1, 2, 4}, "1-3,5"},
		{[]int{4, 0, 2, 1}, "1-3,5"},
		{[]int{7}, "8"},
		{[]int{0, 0, 1}, "1-2"},
	}
	for _, tt := range tests {
		if got := Format(tt.in); got != tt.want {
			t.Errorf("Format(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := Runs([]int{0, 1, 3, 5, 6}); !reflect.DeepEqual(got, [][2]int{{0, 1}, {3, 3}, {5, 6}}) {
		t.Errorf("Runs() = %v", got)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	in := []int{0, 1, 2, 6, 8, 9}
	res, err := ParseRanges(Format(in), 10)
	if err != nil || !reflect.DeepEqual(res.Pages, in) {
		t.Errorf("round trip = %v, %v; want %v", res.Pages, err, in)
	}
}

func TestSelectorModes(t *testing.T) {
	s := NewSelector(ModePick)
	if _, err := s.SetExpression("1-2", 5); !errors.Is(err, ErrModeMismatch) {
		t.Errorf("SetExpression in pick mode error = %v", err)
	}
	_, _ = s.Toggle(4)
	_, _ = s.Toggle(0)
	if got := s.Resolve(); !reflect.DeepEqual(got, []int{0, 4}) {
		t.Errorf("Resolve() = %v", got)
	}

	s.Reset(ModeRange)
	if len(s.Resolve()) != 0 {
		t.Error("Reset did not clear picks")
	}
	if _, err := s.Toggle(1); !errors.Is(err, ErrModeMismatch) {
		t.Errorf("Toggle in range mode error = %v", err)
	}
	if _, err := s.SetExpression("2-3", 5); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetExpression("nope", 5); err == nil {
		t.Error("SetExpression(nope) error = nil")
	}
	if got := s.Resolve(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Errorf("Resolve() kept = %v, want [1 2]", got)
	}
	if s.Expression() != "2-3" {
		t.Errorf("Expression() = %q", s.Expression())
	}
}
