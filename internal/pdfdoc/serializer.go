package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"math"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"

	"github.com/local/pageset/internal/compiler"
	"github.com/local/pageset/internal/geometry"
)

// FontName is the standard font used for text overlays and text measurement.
const FontName = "Helvetica"

// fillResolution is pixels per point of generated fill images.
const fillResolution = 2

// Serializer implements compiler.Serializer on top of pdfcpu. Each step
// rewrites the whole in-memory document, which keeps every step atomic.
type Serializer struct {
	conf *model.Configuration
}

// NewSerializer returns a pdfcpu-backed serializer.
func NewSerializer() *Serializer { return &Serializer{conf: newConfig()} }

type output struct {
	buf   []byte
	pages int
}

var _ compiler.Serializer = (*Serializer)(nil)

// MeasureText returns the width of text in FontName at fontSize, and the font size as height.
func (s *Serializer) MeasureText(text string, fontSize float64) geometry.Size {
	w := font.TextWidth(text, FontName, int(math.Round(fontSize)))
	return geometry.Size{Width: w, Height: fontSize}
}

// CopyPages collects the source pages in output order, duplicates included,
// then adds each page's rotation as a page-level property.
func (s *Serializer) CopyPages(ctx context.Context, source []byte, pages []compiler.PageRef) (compiler.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sel := make([]string, len(pages))
	byRotation := map[int][]string{}
	for i, p := range pages {
		sel[i] = strconv.Itoa(p.SourceIndex + 1)
		if p.Rotation%360 != 0 {
			byRotation[p.Rotation] = append(byRotation[p.Rotation], strconv.Itoa(i+1))
		}
	}

	var out bytes.Buffer
	if err := api.Collect(bytes.NewReader(source), &out, sel, s.conf); err != nil {
		return nil, fmt.Errorf("collect pages: %w", err)
	}
	doc := &output{buf: out.Bytes(), pages: len(pages)}

	for _, rot := range []int{90, 180, 270} {
		positions := byRotation[rot]
		if len(positions) == 0 {
			continue
		}
		var w bytes.Buffer
		if err := api.Rotate(bytes.NewReader(doc.buf), &w, rot, positions, s.conf); err != nil {
			return nil, fmt.Errorf("rotate %d: %w", rot, err)
		}
		doc.buf = w.Bytes()
		log.Debug().Int("rotation", rot).Strs("pages", positions).Msg("rotated output pages")
	}
	return doc, nil
}

// DrawOverlay stamps one instruction onto one output page. Every kind is
// positioned by its lower-left corner at the instruction's rect.
func (s *Serializer) DrawOverlay(ctx context.Context, d compiler.Document, in compiler.DrawInstruction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, ok := d.(*output)
	if !ok {
		return fmt.Errorf("foreign document handle %T", d)
	}
	if in.Page < 0 || in.Page >= doc.pages {
		return fmt.Errorf("overlay page %d out of range (output has %d pages)", in.Page+1, doc.pages)
	}

	wm, err := s.watermark(in)
	if err != nil {
		return err
	}
	var w bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(doc.buf), &w, []string{strconv.Itoa(in.Page + 1)}, wm, s.conf); err != nil {
		return fmt.Errorf("stamp %s: %w", in.Content.Kind, err)
	}
	doc.buf = w.Bytes()
	return nil
}

func (s *Serializer) watermark(in compiler.DrawInstruction) (*model.Watermark, error) {
	c := in.Content
	opacity := c.Opacity
	if opacity == 0 {
		opacity = 1
	}
	placement := func(scale float64) string {
		return fmt.Sprintf("position:bl, offset:%.2f %.2f, rotation:%g, opacity:%.2f, scalefactor:%.4f abs",
			in.Rect.X, in.Rect.Y, c.Rotation, opacity, scale)
	}

	switch c.Kind {
	case compiler.KindText:
		size := int(math.Round(c.FontSize))
		if size <= 0 {
			size = compiler.DefaultFontSize
		}
		desc := fmt.Sprintf("fontname:%s, points:%d, fillcolor:%s, %s", FontName, size, rgb(c.Color), placement(1))
		return api.TextWatermark(c.Text, desc, true, false, types.POINTS)

	case compiler.KindImage:
		cfg, _, err := image.DecodeConfig(bytes.NewReader(c.Image))
		if err != nil {
			return nil, fmt.Errorf("decode overlay image: %w", err)
		}
		if cfg.Width == 0 {
			return nil, fmt.Errorf("overlay image has zero width")
		}
		return api.ImageWatermarkForReader(bytes.NewReader(c.Image), placement(in.Rect.Width/float64(cfg.Width)), true, false, types.POINTS)

	case compiler.KindFill:
		img, px, err := fillImage(in.Rect, c.Color)
		if err != nil {
			return nil, err
		}
		return api.ImageWatermarkForReader(bytes.NewReader(img), placement(in.Rect.Width/float64(px)), true, false, types.POINTS)
	}
	return nil, fmt.Errorf("unknown overlay kind %q", c.Kind)
}

// fillImage renders a solid PNG with the rect's aspect ratio and returns it with its pixel width.
func fillImage(r geometry.Rect, hex string) ([]byte, int, error) {
	w := int(math.Ceil(r.Width * fillResolution))
	h := int(math.Ceil(r.Height * fillResolution))
	if w <= 0 || h <= 0 {
		return nil, 0, fmt.Errorf("fill rect %gx%g is empty", r.Width, r.Height)
	}
	fill := parseHex(hex)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, 0, fmt.Errorf("encode fill: %w", err)
	}
	return buf.Bytes(), w, nil
}

// parseHex reads #rrggbb, defaulting to black.
func parseHex(s string) color.RGBA {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.RGBA{A: 255}
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{A: 255}
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}

// rgb renders a hex color as the "r g b" float triple pdfcpu descriptions take.
func rgb(hex string) string {
	c := parseHex(hex)
	return fmt.Sprintf("%.3f %.3f %.3f", float64(c.R)/255, float64(c.G)/255, float64(c.B)/255)
}

// Finalize validates the assembled document and returns its bytes.
func (s *Serializer) Finalize(ctx context.Context, d compiler.Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, ok := d.(*output)
	if !ok {
		return nil, fmt.Errorf("foreign document handle %T", d)
	}
	if err := api.Validate(bytes.NewReader(doc.buf), s.conf); err != nil {
		return nil, fmt.Errorf("validate output: %w", err)
	}
	return doc.buf, nil
}
