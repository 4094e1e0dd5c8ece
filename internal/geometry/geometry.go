// Package geometry maps overlay placement between the normalized, top-left
// origin preview space and a page's bottom-left origin point space.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrOutOfBounds is returned for a normalized box outside the unit square.
var ErrOutOfBounds = errors.New("normalized box out of bounds")

// Scale is the unit of a normalized box.
type Scale int

const (
	Fraction Scale = iota // 0..1
	Percent               // 0..100
)

// Box is a normalized rectangle in preview space, origin top-left.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Fractions converts a box expressed in scale to fractions of 1.
func (b Box) Fractions(scale Scale) Box {
	if scale == Percent {
		return Box{X: b.X / 100, Y: b.Y / 100, Width: b.Width / 100, Height: b.Height / 100}
	}
	return b
}

// Validate reports boxes with negative components or that leave the unit square.
func (b Box) Validate() error {
	const eps = 1e-9
	if b.X < 0 || b.Y < 0 || b.Width < 0 || b.Height < 0 {
		return fmt.Errorf("%w: negative component in %+v", ErrOutOfBounds, b)
	}
	if b.X+b.Width > 1+eps || b.Y+b.Height > 1+eps {
		return fmt.Errorf("%w: %+v exceeds page", ErrOutOfBounds, b)
	}
	return nil
}

// Clamp pulls the box inside the unit square, shrinking it where it overflows.
func (b Box) Clamp() Box {
	b.X = clamp01(b.X)
	b.Y = clamp01(b.Y)
	b.Width = math.Min(math.Max(b.Width, 0), 1-b.X)
	b.Height = math.Min(math.Max(b.Height, 0), 1-b.Y)
	return b
}

func clamp01(v float64) float64 { return math.Min(math.Max(v, 0), 1) }

// Size is a page's native size in points.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rotated returns the displayed size after rotating by deg (a multiple of 90).
func (s Size) Rotated(deg int) Size {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	if deg == 90 || deg == 270 {
		return Size{Width: s.Height, Height: s.Width}
	}
	return s
}

// Rect is a rectangle in document space: points, origin bottom-left, (X, Y) is the lower-left corner.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ToDocumentSpace maps a normalized box onto a page. The y flip subtracts the
// box's own height because a document-space box is anchored at its bottom edge.
func ToDocumentSpace(b Box, page Size) Rect {
	return Rect{
		X:      b.X * page.Width,
		Y:      page.Height - (b.Y+b.Height)*page.Height,
		Width:  b.Width * page.Width,
		Height: b.Height * page.Height,
	}
}

// ToPreviewSpace is the inverse of ToDocumentSpace.
func ToPreviewSpace(r Rect, page Size) Box {
	if page.Width == 0 || page.Height == 0 {
		return Box{}
	}
	return Box{
		X:      r.X / page.Width,
		Y:      (page.Height - r.Y - r.Height) / page.Height,
		Width:  r.Width / page.Width,
		Height: r.Height / page.Height,
	}
}

// FromPreviewPixels normalizes a box drawn in pixels on a preview of the given size.
func FromPreviewPixels(px, py, pw, ph, previewW, previewH float64) (Box, error) {
	if previewW <= 0 || previewH <= 0 {
		return Box{}, fmt.Errorf("preview size %gx%g must be positive", previewW, previewH)
	}
	return Box{X: px / previewW, Y: py / previewH, Width: pw / previewW, Height: ph / previewH}, nil
}

// Anchor names a fixed placement used for content positioned by margin rather than drawn.
type Anchor string

const (
	TopLeft      Anchor = "top-left"
	TopCenter    Anchor = "top-center"
	TopRight     Anchor = "top-right"
	Center       Anchor = "center"
	BottomLeft   Anchor = "bottom-left"
	BottomCenter Anchor = "bottom-center"
	BottomRight  Anchor = "bottom-right"
)

// ParseAnchor validates an anchor name.
func ParseAnchor(s string) (Anchor, error) {
	switch a := Anchor(s); a {
	case TopLeft, TopCenter, TopRight, Center, BottomLeft, BottomCenter, BottomRight:
		return a, nil
	}
	return "", fmt.Errorf("unknown anchor %q", s)
}

// AnchorBox derives the normalized box of content of the given size placed at
// anchor with margin points from the page edges. Feeding the result to
// ToDocumentSpace places it with the same transform as a drawn box.
func AnchorBox(a Anchor, content Size, margin float64, page Size) Box {
	var x, top float64
	switch a {
	case TopLeft, BottomLeft:
		x = margin
	case TopRight, BottomRight:
		x = page.Width - margin - content.Width
	default:
		x = (page.Width - content.Width) / 2
	}
	switch a {
	case TopLeft, TopCenter, TopRight:
		top = margin
	case BottomLeft, BottomCenter, BottomRight:
		top = page.Height - margin - content.Height
	default:
		top = (page.Height - content.Height) / 2
	}
	if page.Width == 0 || page.Height == 0 {
		return Box{}
	}
	return Box{
		X:      x / page.Width,
		Y:      top / page.Height,
		Width:  content.Width / page.Width,
		Height: content.Height / page.Height,
	}
}
