// Package pdftest builds small, well-formed PDF documents for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"strings"
)

// Text is a string drawn in Helvetica with its baseline at (X, Y) in PDF
// user space, whose origin is the bottom-left corner of the page.
type Text struct {
	X, Y float64
	Size float64
	S    string
}

// Page is one page of a Doc.
type Page struct {
	Width, Height float64
	Texts         []Text
}

// At places s so that its baseline sits top points below the top edge of
// a page of the given height.
func At(x, top, pageHeight float64, s string) Text {
	return Text{X: x, Y: pageHeight - top, Size: 10, S: s}
}

// Doc describes a document to render.
type Doc struct {
	Pages []Page
	// InheritMediaBox writes the first page's MediaBox on the page tree
	// node instead of on each page.
	InheritMediaBox bool
}

// SinglePage is a one-page document of the given size.
func SinglePage(width, height float64, texts ...Text) []byte {
	return Doc{Pages: []Page{{Width: width, Height: height, Texts: texts}}}.Bytes()
}

// Bytes renders the document with a correct cross-reference table.
func (d Doc) Bytes() []byte {
	var objects []string

	kids := make([]string, len(d.Pages))
	for i := range d.Pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}

	objects = append(objects, "<< /Type /Catalog /Pages 2 0 R >>")

	pagesDict := fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d", strings.Join(kids, " "), len(d.Pages))
	if d.InheritMediaBox && len(d.Pages) > 0 {
		pagesDict += " " + mediaBox(d.Pages[0])
	}
	objects = append(objects, pagesDict+" >>")

	objects = append(objects, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	for i, p := range d.Pages {
		contentRef := 5 + 2*i
		page := "<< /Type /Page /Parent 2 0 R"
		if !d.InheritMediaBox {
			page += " " + mediaBox(p)
		}
		page += fmt.Sprintf(" /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", contentRef)
		objects = append(objects, page)

		stream := contentStream(p.Texts)
		objects = append(objects, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func mediaBox(p Page) string {
	return fmt.Sprintf("/MediaBox [0 0 %s %s]", num(p.Width), num(p.Height))
}

func contentStream(texts []Text) string {
	var b strings.Builder
	for _, t := range texts {
		size := t.Size
		if size == 0 {
			size = 10
		}
		fmt.Fprintf(&b, "BT /F1 %s Tf %s %s Td (%s) Tj ET\n", num(size), num(t.X), num(t.Y), escape(t.S))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

func num(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", f), "0"), ".")
}
