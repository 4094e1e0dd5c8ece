// Package pdftest builds small PDFs for tests and inspects rendered results
// through MuPDF.
package pdftest

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	fitz "github.com/gen2brain/go-fitz"
)

// Letter and A4 are common page sizes in points.
var (
	Letter = Page{Width: 612, Height: 792}
	A4     = Page{Width: 595, Height: 842}
)

// Page describes one generated page. Text is drawn near the lower-left
// corner so extraction can tell pages apart.
type Page struct {
	Width  float64
	Height float64
	Text   string
}

// WithText returns p labelled with text.
func (p Page) WithText(text string) Page {
	p.Text = text
	return p
}

const minSize = 512

// Build writes a minimal, valid PDF with one page per entry.
func Build(pages ...Page) []byte {
	var buf bytes.Buffer
	offsets := []int{}
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	// pdfcpu looks for startxref in the last 512 bytes and fails on
	// anything shorter, so tiny fixtures are padded with a comment.
	fmt.Fprintf(&buf, "%%%s\n", strings.Repeat("-", minSize))

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	for i, p := range pages {
		stream := "q Q"
		if p.Text != "" {
			stream = fmt.Sprintf("BT /F1 18 Tf 36 36 Td (%s) Tj ET", escape(p.Text))
		}
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			p.Width, p.Height, 5+2*i))
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`).Replace(s)
}

// PageInfo is what MuPDF reports for one page.
type PageInfo struct {
	Bounds image.Rectangle
	Text   string
}

// Landscape reports whether the displayed page is wider than tall.
func (p PageInfo) Landscape() bool { return p.Bounds.Dx() > p.Bounds.Dy() }

// Inspect opens data with MuPDF and returns displayed bounds and text per page.
func Inspect(data []byte) ([]PageInfo, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	out := make([]PageInfo, doc.NumPage())
	for i := range out {
		b, err := doc.Bound(i)
		if err != nil {
			return nil, fmt.Errorf("page %d bounds: %w", i+1, err)
		}
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("page %d text: %w", i+1, err)
		}
		out[i] = PageInfo{Bounds: b, Text: strings.TrimSpace(text)}
	}
	return out, nil
}
