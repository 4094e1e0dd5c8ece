// Package pdfdoc adapts pdfcpu to the compiler: it parses a source PDF into
// its page count and page sizes, and it serializes compiled page sets.
package pdfdoc

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"

	"github.com/local/pageset/internal/geometry"
)

// Document is a parsed, immutable source PDF.
type Document struct {
	data  []byte
	sizes []geometry.Size
}

// Bytes returns the source bytes. Callers must not modify them.
func (d *Document) Bytes() []byte { return d.data }

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return len(d.sizes) }

// PageSize returns the displayed size in points of the 0-based page.
func (d *Document) PageSize(i int) (geometry.Size, error) {
	if i < 0 || i >= len(d.sizes) {
		return geometry.Size{}, fmt.Errorf("page %d out of range (document has %d pages)", i+1, len(d.sizes))
	}
	return d.sizes[i], nil
}

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Loader parses source PDFs.
type Loader struct {
	conf *model.Configuration
}

// NewLoader returns a loader with relaxed validation, which real-world uploads need.
func NewLoader() *Loader { return &Loader{conf: newConfig()} }

// Parse reads page count and per-page dimensions.
func (l *Loader) Parse(data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("parse pdf: empty input")
	}
	n, err := api.PageCount(bytes.NewReader(data), l.conf)
	if err != nil {
		return nil, fmt.Errorf("pdf page count failed: %w", err)
	}
	dims, err := api.PageDims(bytes.NewReader(data), l.conf)
	if err != nil {
		return nil, fmt.Errorf("pdf page dims failed: %w", err)
	}
	if len(dims) != n {
		return nil, fmt.Errorf("pdf reports %d pages but %d page sizes", n, len(dims))
	}
	sizes := make([]geometry.Size, n)
	for i, d := range dims {
		sizes[i] = geometry.Size{Width: d.Width, Height: d.Height}
	}
	log.Debug().Int("pages", n).Int("bytes", len(data)).Msg("parsed source pdf")
	return &Document{data: data, sizes: sizes}, nil
}
