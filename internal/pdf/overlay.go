package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/a3tai/mcp-customs-roi/internal/geometry"
)

// OverlayRegion is one rectangle to draw, in normalized page fractions.
type OverlayRegion struct {
	Rect  geometry.NormalizedRect
	Color string // #RRGGBB
	// Label is printed on a swatch above the rectangle. Only ASCII is
	// drawn.
	Label string
}

// OverlayOptions controls RenderOverlay.
type OverlayOptions struct {
	DPI float64
	// MaxSide shrinks the image so neither side exceeds it; zero keeps
	// the full resolution up to MaxCanvasSide.
	MaxSide int
}

// MaxCanvasSide bounds the longest side of the canvas RenderOverlay
// allocates, whatever the requested resolution.
const MaxCanvasSide = 6000

const (
	borderWidth = 2
	fillOpacity = 0.18
	labelPad    = 3
)

var (
	glyphColor = color.NRGBA{R: 60, G: 60, B: 60, A: 255}
	labelFace  = basicfont.Face7x13
)

// RenderOverlay draws the document's first page layout at opts.DPI: a mark
// for every glyph and each region outlined and tinted in its colour, with
// its label on a filled swatch. The result is PNG encoded.
//
// The canvas never exceeds MaxCanvasSide, nor twice MaxSide when that is
// set; the page is drawn at a lower resolution instead.
func RenderOverlay(doc *Document, regions []OverlayRegion, opts OverlayOptions) ([]byte, error) {
	if opts.DPI <= 0 {
		return nil, fmt.Errorf("overlay resolution must be positive, got %g", opts.DPI)
	}
	box := doc.Box()
	dpi := renderDPI(box, opts)
	w, h := box.PixelSize(dpi)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", geometry.ErrInvalidDimensions, w, h)
	}
	scale := dpi / 72.0

	canvas := imaging.New(w, h, color.White)

	for _, g := range doc.Glyphs() {
		x := int((g.X - box.X0) * scale)
		y := int((g.Y - box.Y0) * scale)
		size := int(g.size() * scale)
		gw := int(g.W * scale)
		if gw < 1 {
			gw = size / 2
		}
		fill(canvas, image.Rect(x, y-size*2/3, x+gw, y), glyphColor)
	}

	for _, r := range regions {
		c, err := parseHexColor(r.Color)
		if err != nil {
			return nil, err
		}
		px := geometry.ToPixels(r.Rect, float64(w), float64(h))
		rect := image.Rect(int(px.X1), int(px.Y1), int(px.X2), int(px.Y2)).Intersect(canvas.Bounds())
		if rect.Empty() {
			continue
		}
		tint := imaging.New(rect.Dx(), rect.Dy(), c)
		canvas = imaging.Overlay(canvas, tint, rect.Min, fillOpacity)
		outline(canvas, rect, c)
		label(canvas, rect, r.Label, c)
	}

	var out image.Image = canvas
	if opts.MaxSide > 0 && (w > opts.MaxSide || h > opts.MaxSide) {
		out = imaging.Fit(canvas, opts.MaxSide, opts.MaxSide, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode overlay: %w", err)
	}
	return buf.Bytes(), nil
}

// renderDPI lowers opts.DPI until the canvas fits the size limits.
func renderDPI(box geometry.PageBox, opts OverlayOptions) float64 {
	longest := math.Max(box.Width(), box.Height())
	if longest <= 0 {
		return opts.DPI
	}
	limit := float64(MaxCanvasSide)
	if opts.MaxSide > 0 {
		limit = math.Min(limit, float64(2*opts.MaxSide))
	}
	return math.Min(opts.DPI, limit*72/longest)
}

// label fills a swatch in c on top of r, or inside it when r touches the
// top edge, and prints text on it in white.
func label(img *image.NRGBA, r image.Rectangle, text string, c color.Color) {
	if text == "" {
		return
	}
	metrics := labelFace.Metrics()
	height := metrics.Height.Ceil() + 2*labelPad
	width := font.MeasureString(labelFace, text).Ceil() + 2*labelPad

	top := r.Min.Y - height
	if top < 0 {
		top = r.Min.Y
	}
	swatch := image.Rect(r.Min.X, top, r.Min.X+width, top+height)
	fill(img, swatch, c)

	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: labelFace,
		Dot:  fixed.P(swatch.Min.X+labelPad, swatch.Min.Y+labelPad+metrics.Ascent.Ceil()),
	}
	d.DrawString(text)
}

func fill(img *image.NRGBA, r image.Rectangle, c color.Color) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
}

func outline(img *image.NRGBA, r image.Rectangle, c color.Color) {
	fill(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+borderWidth), c)
	fill(img, image.Rect(r.Min.X, r.Max.Y-borderWidth, r.Max.X, r.Max.Y), c)
	fill(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+borderWidth, r.Max.Y), c)
	fill(img, image.Rect(r.Max.X-borderWidth, r.Min.Y, r.Max.X, r.Max.Y), c)
}

func parseHexColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
