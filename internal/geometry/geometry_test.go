package geometry

import (
	"errors"
	"math"
	"testing"
)

const tolerance = 1e-9

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func rectNear(a, b Rect) bool {
	return near(a.X, b.X) && near(a.Y, b.Y) && near(a.Width, b.Width) && near(a.Height, b.Height)
}

func TestToDocumentSpace(t *testing.T) {
	letter := Size{Width: 612, Height: 792}
	tests := []struct {
		name string
		box  Box
		page Size
		want Rect
	}{
		{"letter box", Box{X: 0.25, Y: 0.10, Width: 0.5, Height: 0.2}, letter, Rect{X: 153, Y: 554.4, Width: 306, Height: 158.4}},
		{"full page", Box{X: 0, Y: 0, Width: 1, Height: 1}, letter, Rect{X: 0, Y: 0, Width: 612, Height: 792}},
		{"top strip", Box{X: 0, Y: 0, Width: 1, Height: 0.1}, letter, Rect{X: 0, Y: 712.8, Width: 612, Height: 79.2}},
		{"bottom strip", Box{X: 0, Y: 0.9, Width: 1, Height: 0.1}, letter, Rect{X: 0, Y: 0, Width: 612, Height: 79.2}},
		{"a4", Box{X: 0.5, Y: 0.5, Width: 0.1, Height: 0.1}, Size{Width: 595, Height: 842}, Rect{X: 297.5, Y: 336.8, Width: 59.5, Height: 84.2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToDocumentSpace(tt.box, tt.page)
			if !rectNear(got, tt.want) {
				t.Errorf("ToDocumentSpace(%+v) = %+v, want %+v", tt.box, got, tt.want)
			}
		})
	}
}

func TestPreviewRoundTrip(t *testing.T) {
	page := Size{Width: 612, Height: 792}
	in := Box{X: 0.25, Y: 0.10, Width: 0.5, Height: 0.2}
	got := ToPreviewSpace(ToDocumentSpace(in, page), page)
	if math.Abs(got.X-in.X) > tolerance || math.Abs(got.Y-in.Y) > tolerance ||
		math.Abs(got.Width-in.Width) > tolerance || math.Abs(got.Height-in.Height) > tolerance {
		t.Errorf("round trip = %+v, want %+v", got, in)
	}
}

func TestRenderScaleIndependence(t *testing.T) {
	page := Size{Width: 612, Height: 792}
	// The same drawn box on a 1x and a 2.5x preview maps to the same document rect.
	small, err := FromPreviewPixels(153, 79.2, 306, 158.4, 612, 792)
	if err != nil {
		t.Fatal(err)
	}
	large, err := FromPreviewPixels(382.5, 198, 765, 396, 1530, 1980)
	if err != nil {
		t.Fatal(err)
	}
	a, b := ToDocumentSpace(small, page), ToDocumentSpace(large, page)
	if !rectNear(a, b) {
		t.Errorf("scale dependent mapping: %+v vs %+v", a, b)
	}
	if _, err := FromPreviewPixels(0, 0, 1, 1, 0, 10); err == nil {
		t.Error("FromPreviewPixels with zero preview width error = nil")
	}
}

func TestFractions(t *testing.T) {
	got := Box{X: 25, Y: 10, Width: 50, Height: 20}.Fractions(Percent)
	want := Box{X: 0.25, Y: 0.10, Width: 0.5, Height: 0.2}
	if !near(got.X, want.X) || !near(got.Y, want.Y) || !near(got.Width, want.Width) || !near(got.Height, want.Height) {
		t.Errorf("Fractions(Percent) = %+v, want %+v", got, want)
	}
	if b := (Box{X: 0.3}).Fractions(Fraction); b.X != 0.3 {
		t.Errorf("Fractions(Fraction) changed box: %+v", b)
	}
}

func TestValidateAndClamp(t *testing.T) {
	tests := []struct {
		name string
		box  Box
		ok   bool
	}{
		{"inside", Box{X: 0.1, Y: 0.1, Width: 0.5, Height: 0.5}, true},
		{"touching edge", Box{X: 0.5, Y: 0.5, Width: 0.5, Height: 0.5}, true},
		{"negative", Box{X: -0.1, Y: 0, Width: 0.5, Height: 0.5}, false},
		{"overflow", Box{X: 0.8, Y: 0, Width: 0.5, Height: 0.5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.box.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() error = %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrOutOfBounds) {
				t.Errorf("Validate() error = %v, want ErrOutOfBounds", err)
			}
			if err := tt.box.Clamp().Validate(); err != nil {
				t.Errorf("Clamp().Validate() error = %v", err)
			}
		})
	}
}

func TestRotated(t *testing.T) {
	s := Size{Width: 612, Height: 792}
	for deg, want := range map[int]Size{0: s, 90: {792, 612}, 180: s, 270: {792, 612}, -90: {792, 612}} {
		if got := s.Rotated(deg); got != want {
			t.Errorf("Rotated(%d) = %+v, want %+v", deg, got, want)
		}
	}
}

func TestAnchorBox(t *testing.T) {
	page := Size{Width: 612, Height: 792}
	content := Size{Width: 30, Height: 12}
	tests := []struct {
		anchor Anchor
		want   Rect
	}{
		{BottomCenter, Rect{X: 291, Y: 20, Width: 30, Height: 12}},
		{BottomLeft, Rect{X: 20, Y: 20, Width: 30, Height: 12}},
		{BottomRight, Rect{X: 562, Y: 20, Width: 30, Height: 12}},
		{TopLeft, Rect{X: 20, Y: 760, Width: 30, Height: 12}},
		{TopCenter, Rect{X: 291, Y: 760, Width: 30, Height: 12}},
		{TopRight, Rect{X: 562, Y: 760, Width: 30, Height: 12}},
		{Center, Rect{X: 291, Y: 390, Width: 30, Height: 12}},
	}
	for _, tt := range tests {
		t.Run(string(tt.anchor), func(t *testing.T) {
			got := ToDocumentSpace(AnchorBox(tt.anchor, content, 20, page), page)
			if !rectNear(got, tt.want) {
				t.Errorf("anchored %s = %+v, want %+v", tt.anchor, got, tt.want)
			}
		})
	}
}

func TestParseAnchor(t *testing.T) {
	if a, err := ParseAnchor("bottom-center"); err != nil || a != BottomCenter {
		t.Errorf("ParseAnchor() = %v, %v", a, err)
	}
	if _, err := ParseAnchor("middle"); err == nil {
		t.Error("ParseAnchor(middle) error = nil")
	}
}
