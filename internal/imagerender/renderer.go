package imagerender

import (
	"bytes"
	"context"
	"fmt"
	"image"
	stddraw "image/draw"
	"image/jpeg"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// ColorMode defines the color mode for rendering
type ColorMode string

const (
	ColorRGB  ColorMode = "rgb"
	ColorGray ColorMode = "gray"
)

// Options controls thumbnail output.
type Options struct {
	// Scale is output pixels per PDF point; 1 renders at 72 DPI.
	Scale float64
	// MaxWidth caps the thumbnail width in pixels; 0 disables the cap.
	MaxWidth int
	Quality  int
	Color    ColorMode
}

// DefaultOptions renders small previews suitable for a page grid.
func DefaultOptions() Options {
	return Options{Scale: 0.5, MaxWidth: 400, Quality: 75, Color: ColorRGB}
}

func (o Options) normalized() Options {
	if o.Scale <= 0 {
		o.Scale = 0.5
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = 75
	}
	if o.Color == "" {
		o.Color = ColorRGB
	}
	return o
}

// Thumbnail is one rendered page.
type Thumbnail struct {
	SourceIndex int
	JPEG        []byte
	Width       int
	Height      int
}

// RenderThumbnail renders one 0-based page of an in-memory PDF as JPEG.
func RenderThumbnail(data []byte, pageIndex int, opts Options) (Thumbnail, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return Thumbnail{}, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()
	return renderPage(doc, pageIndex, opts.normalized())
}

func renderPage(doc *fitz.Document, pageIndex int, opts Options) (Thumbnail, error) {
	if pageIndex < 0 || pageIndex >= doc.NumPage() {
		return Thumbnail{}, fmt.Errorf("page %d out of range (document has %d pages)", pageIndex+1, doc.NumPage())
	}

	img, err := doc.ImageDPI(pageIndex, 72*opts.Scale)
	if err != nil {
		return Thumbnail{}, fmt.Errorf("failed to render page %d: %w", pageIndex+1, err)
	}

	var finalImg image.Image = img
	if opts.MaxWidth > 0 && img.Bounds().Dx() > opts.MaxWidth {
		finalImg = downscale(img, opts.MaxWidth)
	}
	if opts.Color == ColorGray {
		b := finalImg.Bounds()
		gray := image.NewGray(b)
		stddraw.Draw(gray, b, finalImg, b.Min, stddraw.Src)
		finalImg = gray
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, finalImg, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return Thumbnail{}, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	b := finalImg.Bounds()
	log.Debug().
		Int("source_index", pageIndex).
		Int("width", b.Dx()).
		Int("height", b.Dy()).
		Int("jpeg_size", buf.Len()).
		Str("color", string(opts.Color)).
		Msg("rendered thumbnail")

	return Thumbnail{SourceIndex: pageIndex, JPEG: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}

func downscale(src image.Image, maxWidth int) image.Image {
	b := src.Bounds()
	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// RenderAll renders every page with up to workers goroutines, each holding
// its own document handle since a fitz.Document is not safe for concurrent use.
// Failed pages are logged and left out; the first error is returned alongside
// the thumbnails that did render.
func RenderAll(ctx context.Context, data []byte, pageCount int, opts Options, workers int) ([]Thumbnail, error) {
	opts = opts.normalized()
	if workers <= 0 {
		workers = 1
	}
	if workers > pageCount {
		workers = pageCount
	}

	jobs := make(chan int)
	results := make([]*Thumbnail, pageCount)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc, err := fitz.NewFromMemory(data)
			if err != nil {
				fail(fmt.Errorf("failed to open PDF: %w", err))
				for range jobs {
				}
				return
			}
			defer doc.Close()
			for i := range jobs {
				th, err := renderPage(doc, i, opts)
				if err != nil {
					log.Warn().Err(err).Int("source_index", i).Msg("thumbnail render failed")
					fail(err)
					continue
				}
				results[i] = &th
			}
		}()
	}

feed:
	for i := 0; i < pageCount; i++ {
		if err := ctx.Err(); err != nil {
			fail(err)
			break
		}
		select {
		case <-ctx.Done():
			fail(ctx.Err())
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	out := make([]Thumbnail, 0, pageCount)
	for _, th := range results {
		if th != nil {
			out = append(out, *th)
		}
	}
	return out, firstErr
}
