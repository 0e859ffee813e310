package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-customs-roi/internal/geometry"
	"github.com/a3tai/mcp-customs-roi/internal/pdf/pdftest"
)

const (
	a4Width  = 595
	a4Height = 842
)

func TestOpen_PageBoxAndCount(t *testing.T) {
	data := pdftest.Doc{Pages: []pdftest.Page{
		{Width: a4Width, Height: a4Height},
		{Width: 612, Height: 792},
	}}.Bytes()

	doc, err := Open(data)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.PageCount())
	assert.Equal(t, geometry.PageBox{X0: 0, Y0: 0, X1: a4Width, Y1: a4Height}, doc.Box())
}

func TestOpen_InheritedMediaBox(t *testing.T) {
	data := pdftest.Doc{
		Pages:           []pdftest.Page{{Width: 400, Height: 300}},
		InheritMediaBox: true,
	}.Bytes()

	doc, err := Open(data)
	require.NoError(t, err)
	assert.Equal(t, 400.0, doc.Box().Width())
	assert.Equal(t, 300.0, doc.Box().Height())
}

func TestOpen_Unreadable(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not a pdf", []byte("hello world")},
		{"truncated", pdftest.SinglePage(a4Width, a4Height)[:40]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Open(tt.data)
			require.Error(t, err)
			assert.Nil(t, doc)
			assert.ErrorIs(t, err, ErrDocumentRead)

			var re *ReadError
			assert.ErrorAs(t, err, &re)
		})
	}
}

func TestDocument_TextIn(t *testing.T) {
	data := pdftest.SinglePage(a4Width, a4Height,
		pdftest.At(100, 110, a4Height, "HDMU1234567"),
		pdftest.At(300, 110, a4Height, "KRPUS"),
		pdftest.At(100, 400, a4Height, "2024-03-05"),
		pdftest.At(100, 430, a4Height, "SECOND LINE"),
	)

	doc, err := Open(data)
	require.NoError(t, err)

	top := geometry.PageBox{X0: 90, Y0: 95, X1: 250, Y1: 115}
	assert.Equal(t, "HDMU1234567", doc.TextIn(top))

	wide := geometry.PageBox{X0: 90, Y0: 95, X1: 500, Y1: 115}
	assert.Equal(t, "HDMU1234567 KRPUS", doc.TextIn(wide))

	block := geometry.PageBox{X0: 90, Y0: 380, X1: 500, Y1: 440}
	assert.Equal(t, "2024-03-05\nSECOND LINE", doc.TextIn(block))

	empty := geometry.PageBox{X0: 0, Y0: 600, X1: 50, Y1: 650}
	assert.Equal(t, "", doc.TextIn(empty))
}

func TestDocument_TextInDriftingBaseline(t *testing.T) {
	a := Glyph{X: 30, Y: 100, W: 10, FontSize: 10, S: "A"}
	b := Glyph{X: 20, Y: 104, W: 10, FontSize: 10, S: "B"}
	c := Glyph{X: 10, Y: 108, W: 10, FontSize: 10, S: "C"}
	d := Glyph{X: 40, Y: 100, W: 10, FontSize: 10, S: "D"}
	box := geometry.PageBox{X0: 0, Y0: 0, X1: 100, Y1: 200}

	tests := []struct {
		name   string
		glyphs []Glyph
	}{
		{name: "content order", glyphs: []Glyph{a, b, c, d}},
		{name: "reversed", glyphs: []Glyph{d, c, b, a}},
		{name: "interleaved", glyphs: []Glyph{c, a, d, b}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &Document{glyphs: tt.glyphs}
			assert.Equal(t, "BAD\nC", doc.TextIn(box))
		})
	}
}

func TestDocument_TextInNormalizedRegion(t *testing.T) {
	data := pdftest.SinglePage(a4Width, a4Height, pdftest.At(297, 421, a4Height, "CENTER"))
	doc, err := Open(data)
	require.NoError(t, err)

	rect := geometry.NormalizedRect{X1: 0.45, Y1: 0.45, X2: 0.6, Y2: 0.55}
	assert.Equal(t, "CENTER", doc.TextIn(rect.ToPage(doc.Box())))
}

func TestParseHexColor(t *testing.T) {
	c, err := parseHexColor("#E74C3C")
	require.NoError(t, err)
	assert.Equal(t, uint8(0xE7), c.R)
	assert.Equal(t, uint8(0x4C), c.G)
	assert.Equal(t, uint8(0x3C), c.B)

	_, err = parseHexColor("red")
	assert.Error(t, err)
	_, err = parseHexColor("#GGGGGG")
	assert.Error(t, err)
}
