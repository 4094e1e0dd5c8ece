package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/local/pageset/internal/geometry"
)

// ContentKind is what an overlay draws.
type ContentKind string

const (
	// KindFill paints an opaque rectangle (redaction box).
	KindFill ContentKind = "fill"
	// KindImage places an image (signature, logo watermark).
	KindImage ContentKind = "image"
	// KindText places text (text watermark, page number).
	KindText ContentKind = "text"
)

// Content describes what to draw. Text may contain {n} and {total}, replaced
// with the 1-based output page number and the output page count.
type Content struct {
	Kind     ContentKind `json:"kind"`
	Text     string      `json:"text,omitempty"`
	FontSize float64     `json:"font_size,omitempty"`
	Color    string      `json:"color,omitempty"`
	Image    []byte      `json:"image,omitempty"`
	Opacity  float64     `json:"opacity,omitempty"`
	Rotation float64     `json:"rotation,omitempty"`
}

// DefaultFontSize is used for text content without a font size.
const DefaultFontSize = 12

func (c Content) validate() error {
	switch c.Kind {
	case KindFill:
	case KindImage:
		if len(c.Image) == 0 {
			return fmt.Errorf("image overlay without image data")
		}
	case KindText:
		if strings.TrimSpace(c.Text) == "" {
			return fmt.Errorf("text overlay without text")
		}
	default:
		return fmt.Errorf("unknown overlay kind %q", c.Kind)
	}
	if c.Opacity < 0 || c.Opacity > 1 {
		return fmt.Errorf("opacity %g outside [0,1]", c.Opacity)
	}
	return nil
}

func (c Content) forPage(n, total int) Content {
	if c.Kind != KindText {
		return c
	}
	if c.FontSize <= 0 {
		c.FontSize = DefaultFontSize
	}
	if c.Opacity == 0 {
		c.Opacity = 1
	}
	c.Text = strings.NewReplacer("{n}", strconv.Itoa(n), "{total}", strconv.Itoa(total)).Replace(c.Text)
	return c
}

// Target selects the output pages an overlay applies to.
type Target struct {
	All    bool   `json:"all,omitempty"`
	PageID string `json:"page_id,omitempty"`
}

// AnchorSpec places content by a fixed margin instead of a drawn box. The box
// is derived from the measured content size.
type AnchorSpec struct {
	Anchor geometry.Anchor `json:"anchor"`
	Margin float64         `json:"margin"`
	// Size overrides the measured size, e.g. for an image anchored by margin.
	Size *geometry.Size `json:"size,omitempty"`
}

// Overlay is one piece of content to draw on the targeted pages. Exactly one
// of Box and Anchor is set. Box is in fractions of the displayed page.
type Overlay struct {
	Target  Target        `json:"target"`
	Box     *geometry.Box `json:"box,omitempty"`
	Anchor  *AnchorSpec   `json:"anchor,omitempty"`
	Content Content       `json:"content"`
}

// Validate checks the overlay before any page is touched.
func (o Overlay) Validate() error {
	if err := o.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOverlay, err)
	}
	return nil
}

func (o Overlay) validate() error {
	if !o.Target.All && o.Target.PageID == "" {
		return fmt.Errorf("overlay without target")
	}
	switch {
	case o.Box != nil && o.Anchor != nil:
		return fmt.Errorf("overlay has both box and anchor")
	case o.Box == nil && o.Anchor == nil:
		return fmt.Errorf("overlay has neither box nor anchor")
	case o.Box != nil:
		if err := o.Box.Validate(); err != nil {
			return err
		}
	case o.Anchor != nil:
		if _, err := geometry.ParseAnchor(string(o.Anchor.Anchor)); err != nil {
			return err
		}
		if o.Anchor.Size == nil && o.Content.Kind != KindText {
			return fmt.Errorf("anchored %s overlay needs an explicit size", o.Content.Kind)
		}
	}
	return o.Content.validate()
}

// DrawInstruction is one overlay resolved onto one output page.
type DrawInstruction struct {
	// Page is the 0-based output position.
	Page    int           `json:"page"`
	Rect    geometry.Rect `json:"rect"`
	Content Content       `json:"content"`
}
