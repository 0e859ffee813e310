// Package geometry models regions of interest as fractions of a page so
// that a template captured at one resolution applies to any rendering of
// a similarly laid out page.
package geometry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidDimensions is returned when a page width or height is not positive.
var ErrInvalidDimensions = errors.New("page dimensions must be positive")

// PixelRect is a rectangle in the pixel space of a rendered page image.
type PixelRect struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Point is a single clicked position in pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RectFromCorners builds a rectangle from two clicked corners in any order.
func RectFromCorners(a, b Point) PixelRect {
	return PixelRect{X1: a.X, Y1: a.Y, X2: b.X, Y2: b.Y}.Sorted()
}

// Sorted returns the rectangle with X1<=X2 and Y1<=Y2.
func (r PixelRect) Sorted() PixelRect {
	if r.X1 > r.X2 {
		r.X1, r.X2 = r.X2, r.X1
	}
	if r.Y1 > r.Y2 {
		r.Y1, r.Y2 = r.Y2, r.Y1
	}
	return r
}

// NormalizedRect is a rectangle expressed as fractions (0-1) of a page's
// width and height. It serialises as [x1,y1,x2,y2].
type NormalizedRect struct {
	X1, Y1, X2, Y2 float64
}

// ToNormalized divides each coordinate of r by the matching page dimension.
// Corners are sorted first and the result is clamped to [0,1].
func ToNormalized(r PixelRect, widthPx, heightPx float64) (NormalizedRect, error) {
	if widthPx <= 0 || heightPx <= 0 {
		return NormalizedRect{}, fmt.Errorf("%w: %gx%g", ErrInvalidDimensions, widthPx, heightPx)
	}
	r = r.Sorted()
	return NormalizedRect{
		X1: clamp01(r.X1 / widthPx),
		Y1: clamp01(r.Y1 / heightPx),
		X2: clamp01(r.X2 / widthPx),
		Y2: clamp01(r.Y2 / heightPx),
	}, nil
}

// ToPixels scales n back to the pixel space of a target page image.
func ToPixels(n NormalizedRect, widthPx, heightPx float64) PixelRect {
	return PixelRect{
		X1: n.X1 * widthPx,
		Y1: n.Y1 * heightPx,
		X2: n.X2 * widthPx,
		Y2: n.Y2 * heightPx,
	}
}

// Validate reports whether every coordinate lies in [0,1] with x1<=x2, y1<=y2.
func (n NormalizedRect) Validate() error {
	for i, v := range n.array() {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("coordinate %d out of range [0,1]: %v", i, v)
		}
	}
	if n.X1 > n.X2 || n.Y1 > n.Y2 {
		return fmt.Errorf("corners not ordered: [%g %g %g %g]", n.X1, n.Y1, n.X2, n.Y2)
	}
	return nil
}

// IsDegenerate reports a zero-width or zero-height rectangle.
func (n NormalizedRect) IsDegenerate() bool {
	return n.X2-n.X1 <= 0 || n.Y2-n.Y1 <= 0
}

// ToPage maps n onto a page box measured in points.
func (n NormalizedRect) ToPage(box PageBox) PageBox {
	w, h := box.Width(), box.Height()
	return PageBox{
		X0: box.X0 + w*n.X1,
		Y0: box.Y0 + h*n.Y1,
		X1: box.X0 + w*n.X2,
		Y1: box.Y0 + h*n.Y2,
	}
}

func (n NormalizedRect) array() [4]float64 {
	return [4]float64{n.X1, n.Y1, n.X2, n.Y2}
}

// MarshalJSON encodes the rectangle as a four element array.
func (n NormalizedRect) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.array())
}

// UnmarshalJSON decodes a four element array.
func (n *NormalizedRect) UnmarshalJSON(data []byte) error {
	var vals []float64
	if err := json.Unmarshal(data, &vals); err != nil {
		return fmt.Errorf("normalized rect: %w", err)
	}
	if len(vals) != 4 {
		return fmt.Errorf("normalized rect: want 4 coordinates, got %d", len(vals))
	}
	n.X1, n.Y1, n.X2, n.Y2 = vals[0], vals[1], vals[2], vals[3]
	return nil
}

// String renders the rectangle with four decimals, the precision shown to users.
func (n NormalizedRect) String() string {
	return fmt.Sprintf("[%.4f %.4f %.4f %.4f]", n.X1, n.Y1, n.X2, n.Y2)
}

// PageBox is a page-space rectangle in points with a top-left origin,
// the same orientation as a rendered page image.
type PageBox struct {
	X0, Y0, X1, Y1 float64
}

// Width of the box.
func (b PageBox) Width() float64 { return b.X1 - b.X0 }

// Height of the box.
func (b PageBox) Height() float64 { return b.Y1 - b.Y0 }

// Contains reports whether (x,y) lies inside the box, edges included.
func (b PageBox) Contains(x, y float64) bool {
	return x >= b.X0 && x <= b.X1 && y >= b.Y0 && y <= b.Y1
}

// PixelSize returns the image size of the box rendered at dpi.
func (b PageBox) PixelSize(dpi float64) (int, int) {
	scale := dpi / 72.0
	return int(math.Round(b.Width() * scale)), int(math.Round(b.Height() * scale))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
