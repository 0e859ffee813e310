// Package pdf reads the first page of a declaration PDF: its size and the
// positioned text inside a region.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/a3tai/mcp-customs-roi/internal/geometry"
)

// ErrDocumentRead is wrapped by every failure to open or parse a document.
var ErrDocumentRead = errors.New("document unreadable")

// ReadError records which step failed.
type ReadError struct {
	Op  string
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("pdf %s: %v", e.Op, e.Err)
}

func (e *ReadError) Unwrap() []error {
	return []error{ErrDocumentRead, e.Err}
}

// letterBox is used when no MediaBox can be found anywhere in the page tree.
var letterBox = geometry.PageBox{X0: 0, Y0: 0, X1: 612, Y1: 792}

// maxTreeDepth bounds the walk up the page tree for an inherited MediaBox.
const maxTreeDepth = 10

// Glyph is one positioned character, in page space with a top-left origin.
type Glyph struct {
	X, Y     float64 // left edge and baseline
	W        float64
	FontSize float64
	S        string
}

// Document is an opened PDF. Only its first page is ever inspected.
type Document struct {
	reader *pdf.Reader
	pages  int
	box    geometry.PageBox
	glyphs []Glyph
}

// Open parses data and loads the first page. Any parser failure, panics
// included, is reported as ErrDocumentRead.
func Open(data []byte) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = &ReadError{Op: "open", Err: fmt.Errorf("parser panic: %v", r)}
		}
	}()

	if len(data) == 0 {
		return nil, &ReadError{Op: "open", Err: errors.New("empty document")}
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ReadError{Op: "open", Err: err}
	}

	n := reader.NumPage()
	if n < 1 {
		return nil, &ReadError{Op: "open", Err: errors.New("document has no pages")}
	}

	page := reader.Page(1)
	if page.V.IsNull() {
		return nil, &ReadError{Op: "page", Err: errors.New("first page missing")}
	}

	raw := mediaBox(page)
	box := geometry.PageBox{X0: raw.X0, Y0: raw.Y0, X1: raw.X1, Y1: raw.Y1}

	content := page.Content()
	glyphs := make([]Glyph, 0, len(content.Text))
	for _, t := range content.Text {
		if strings.TrimSpace(t.S) == "" && t.S != " " {
			continue
		}
		glyphs = append(glyphs, Glyph{
			X:        t.X,
			Y:        raw.Y0 + (raw.Y1 - t.Y),
			W:        t.W,
			FontSize: t.FontSize,
			S:        t.S,
		})
	}

	return &Document{reader: reader, pages: n, box: box, glyphs: glyphs}, nil
}

// PageCount is the number of pages in the document.
func (d *Document) PageCount() int { return d.pages }

// Box is the first page's MediaBox in top-left-origin page space.
func (d *Document) Box() geometry.PageBox { return d.box }

// Glyphs returns the first page's characters in content-stream order.
func (d *Document) Glyphs() []Glyph { return d.glyphs }

// TextIn returns the text whose glyph centres fall inside box, ordered
// top to bottom then left to right. Glyphs on one line are joined, with a
// space where the horizontal gap exceeds a quarter of the font size;
// lines are separated by newlines.
func (d *Document) TextIn(box geometry.PageBox) string {
	var inside []Glyph
	for _, g := range d.glyphs {
		cx, cy := g.center()
		if box.Contains(cx, cy) {
			inside = append(inside, g)
		}
	}
	if len(inside) == 0 {
		return ""
	}

	var b strings.Builder
	for i, line := range groupLines(inside) {
		if i > 0 {
			b.WriteByte('\n')
		}
		prev := line[0]
		b.WriteString(prev.S)
		for _, g := range line[1:] {
			if g.X-(prev.X+prev.W) > prev.size()/4 {
				b.WriteByte(' ')
			}
			b.WriteString(g.S)
			prev = g
		}
	}
	return b.String()
}

// groupLines sorts glyphs by baseline and splits them into lines, each
// anchored on its topmost glyph, then orders every line left to right.
// Ties keep content-stream order.
func groupLines(glyphs []Glyph) [][]Glyph {
	sort.SliceStable(glyphs, func(i, j int) bool { return glyphs[i].Y < glyphs[j].Y })

	var lines [][]Glyph
	for _, g := range glyphs {
		if n := len(lines); n > 0 && sameLine(lines[n-1][0], g) {
			lines[n-1] = append(lines[n-1], g)
			continue
		}
		lines = append(lines, []Glyph{g})
	}
	for _, line := range lines {
		sort.SliceStable(line, func(i, j int) bool { return line[i].X < line[j].X })
	}
	return lines
}

func (g Glyph) size() float64 {
	if g.FontSize > 0 {
		return g.FontSize
	}
	return 12
}

// center is the middle of the glyph's box, which rises one font size
// above the baseline.
func (g Glyph) center() (float64, float64) {
	return g.X + g.W/2, g.Y - g.size()/2
}

func sameLine(a, b Glyph) bool {
	return math.Abs(a.Y-b.Y) <= math.Min(a.size(), b.size())/2
}

// mediaBox reads the page's MediaBox, inheriting from ancestors and
// falling back to US Letter.
func mediaBox(page pdf.Page) geometry.PageBox {
	if box, err := parseMediaBox(page.V.Key("MediaBox")); err == nil {
		return box
	}

	current := page.V
	for i := 0; i < maxTreeDepth; i++ {
		parent := current.Key("Parent")
		if parent.IsNull() {
			break
		}
		if box, err := parseMediaBox(parent.Key("MediaBox")); err == nil {
			return box
		}
		current = parent
	}
	return letterBox
}

func parseMediaBox(v pdf.Value) (box geometry.PageBox, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed MediaBox: %v", r)
		}
	}()

	if v.IsNull() {
		return box, errors.New("MediaBox is null")
	}
	if v.Kind() != pdf.Array || v.Len() != 4 {
		return box, fmt.Errorf("MediaBox is not a four element array")
	}

	var c [4]float64
	for i := range c {
		switch val := v.Index(i); val.Kind() {
		case pdf.Integer:
			c[i] = float64(val.Int64())
		case pdf.Real:
			c[i] = val.Float64()
		default:
			return box, fmt.Errorf("MediaBox coordinate %d is %v", i, val.Kind())
		}
	}

	llx, lly, urx, ury := c[0], c[1], c[2], c[3]
	if llx > urx {
		llx, urx = urx, llx
	}
	if lly > ury {
		lly, ury = ury, lly
	}
	if urx <= llx || ury <= lly {
		return box, fmt.Errorf("MediaBox has no area: %v", c)
	}
	return geometry.PageBox{X0: llx, Y0: lly, X1: urx, Y1: ury}, nil
}
