package pdfdoc

import (
	"context"
	"strings"
	"testing"

	"github.com/local/pageset/internal/compiler"
	"github.com/local/pageset/internal/geometry"
	"github.com/local/pageset/internal/pdftest"
)

func source() []byte {
	return pdftest.Build(
		pdftest.Letter.WithText("Alpha"),
		pdftest.Letter.WithText("Bravo"),
		pdftest.A4.WithText("Charlie"),
	)
}

func TestParse(t *testing.T) {
	doc, err := NewLoader().Parse(source())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.PageCount() != 3 {
		t.Fatalf("PageCount = %d, want 3", doc.PageCount())
	}
	want := []geometry.Size{{Width: 612, Height: 792}, {Width: 612, Height: 792}, {Width: 595, Height: 842}}
	for i, w := range want {
		got, err := doc.PageSize(i)
		if err != nil {
			t.Fatalf("PageSize(%d): %v", i, err)
		}
		if got != w {
			t.Errorf("PageSize(%d) = %+v, want %+v", i, got, w)
		}
	}
	if _, err := doc.PageSize(3); err == nil {
		t.Error("PageSize(3) succeeded on a 3 page document")
	}
}

func TestParseBlankPages(t *testing.T) {
	tests := []struct {
		name  string
		pages []pdftest.Page
	}{
		{"single", []pdftest.Page{pdftest.Letter}},
		{"two", []pdftest.Page{pdftest.Letter, pdftest.Letter}},
		{"mixed", []pdftest.Page{pdftest.A4, pdftest.Letter.WithText("x")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := NewLoader().Parse(pdftest.Build(tt.pages...))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if doc.PageCount() != len(tt.pages) {
				t.Errorf("PageCount = %d, want %d", doc.PageCount(), len(tt.pages))
			}
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, in := range [][]byte{nil, []byte("not a pdf at all")} {
		if _, err := NewLoader().Parse(in); err == nil {
			t.Errorf("Parse(%q) succeeded", in)
		}
	}
}

func TestCopyPagesOrderDuplicatesRotation(t *testing.T) {
	ctx := context.Background()
	s := NewSerializer()
	pages := []compiler.PageRef{
		{SourceIndex: 2, Rotation: 90},
		{SourceIndex: 0},
		{SourceIndex: 0, Rotation: 180},
	}
	doc, err := s.CopyPages(ctx, source(), pages)
	if err != nil {
		t.Fatalf("CopyPages: %v", err)
	}
	out, err := s.Finalize(ctx, doc)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	info, err := pdftest.Inspect(out)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(info) != 3 {
		t.Fatalf("output has %d pages, want 3", len(info))
	}
	for i, want := range []string{"Charlie", "Alpha", "Alpha"} {
		if !strings.Contains(info[i].Text, want) {
			t.Errorf("page %d text = %q, want %q", i+1, info[i].Text, want)
		}
	}
	if !info[0].Landscape() {
		t.Errorf("page 1 bounds %v, want landscape after a quarter turn", info[0].Bounds)
	}
	if info[1].Landscape() || info[2].Landscape() {
		t.Errorf("pages 2 and 3 should stay portrait: %v %v", info[1].Bounds, info[2].Bounds)
	}
}

func TestCompileWithOverlays(t *testing.T) {
	ctx := context.Background()
	src := source()
	doc, err := NewLoader().Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s := NewSerializer()

	pages := []compiler.PageRef{{ID: "a", SourceIndex: 0}, {ID: "b", SourceIndex: 1}}
	overlays := []compiler.Overlay{
		{
			Target:  compiler.Target{All: true},
			Anchor:  &compiler.AnchorSpec{Anchor: geometry.BottomCenter, Margin: 20},
			Content: compiler.Content{Kind: compiler.KindText, Text: "Page {n} of {total}"},
		},
		{
			Target:  compiler.Target{PageID: "b"},
			Box:     &geometry.Box{X: 0.1, Y: 0.1, Width: 0.3, Height: 0.05},
			Content: compiler.Content{Kind: compiler.KindFill, Color: "#000000"},
		},
	}
	plan, err := compiler.BuildPlan(pages, overlays, doc, s)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	out, err := compiler.Compile(ctx, s, src, plan)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	info, err := pdftest.Inspect(out)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(info) != 2 {
		t.Fatalf("output has %d pages, want 2", len(info))
	}
	for i, want := range []string{"Page 1 of 2", "Page 2 of 2"} {
		if !strings.Contains(info[i].Text, want) {
			t.Errorf("page %d text = %q, want it to contain %q", i+1, info[i].Text, want)
		}
	}
}

func TestDrawOverlayRejectsBadPage(t *testing.T) {
	ctx := context.Background()
	s := NewSerializer()
	doc, err := s.CopyPages(ctx, source(), []compiler.PageRef{{SourceIndex: 0}})
	if err != nil {
		t.Fatalf("CopyPages: %v", err)
	}
	in := compiler.DrawInstruction{
		Page:    1,
		Rect:    geometry.Rect{X: 10, Y: 10, Width: 50, Height: 20},
		Content: compiler.Content{Kind: compiler.KindFill},
	}
	if err := s.DrawOverlay(ctx, doc, in); err == nil {
		t.Fatal("DrawOverlay on page 2 of a 1 page output succeeded")
	}
}

func TestMeasureText(t *testing.T) {
	s := NewSerializer()
	short := s.MeasureText("12", 12)
	long := s.MeasureText("1234", 12)
	if short.Width <= 0 || long.Width <= short.Width {
		t.Errorf("widths %g, %g: want positive and growing with length", short.Width, long.Width)
	}
	if big := s.MeasureText("12", 24); big.Width <= short.Width || big.Height != 24 {
		t.Errorf("MeasureText at 24pt = %+v", big)
	}
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		in      string
		r, g, b uint8
	}{
		{"#ff0000", 255, 0, 0},
		{"00ff80", 0, 255, 128},
		{"", 0, 0, 0},
		{"#zzz", 0, 0, 0},
	}
	for _, tt := range tests {
		c := parseHex(tt.in)
		if c.R != tt.r || c.G != tt.g || c.B != tt.b || c.A != 255 {
			t.Errorf("parseHex(%q) = %+v", tt.in, c)
		}
	}
}

func TestFillImageAspect(t *testing.T) {
	img, px, err := fillImage(geometry.Rect{Width: 100, Height: 25}, "")
	if err != nil {
		t.Fatalf("fillImage: %v", err)
	}
	if px != 200 || len(img) == 0 {
		t.Errorf("fillImage width = %d, len = %d", px, len(img))
	}
	if _, _, err := fillImage(geometry.Rect{}, ""); err == nil {
		t.Error("fillImage accepted an empty rect")
	}
}
