package extraction

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-customs-roi/internal/fields"
	"github.com/a3tai/mcp-customs-roi/internal/geometry"
	"github.com/a3tai/mcp-customs-roi/internal/pdf"
	"github.com/a3tai/mcp-customs-roi/internal/pdf/pdftest"
	"github.com/a3tai/mcp-customs-roi/internal/template"
)

var testBox = geometry.PageBox{X0: 0, Y0: 0, X1: 595, Y1: 842}

// testTemplate stacks one band per field down the page.
func testTemplate() *template.Template {
	regions := make(template.Regions, fields.Count)
	for i, f := range fields.All() {
		y := 0.05 + float64(i)*0.1
		regions[f] = geometry.NormalizedRect{X1: 0.1, Y1: y, X2: 0.9, Y2: y + 0.05}
	}
	return &template.Template{Name: "test", DPI: 144, Regions: regions}
}

type fakePage struct {
	pages int
	texts map[fields.Field]string
	tmpl  *template.Template
}

func (p *fakePage) Box() geometry.PageBox { return testBox }
func (p *fakePage) PageCount() int {
	if p.pages == 0 {
		return 1
	}
	return p.pages
}

func (p *fakePage) TextIn(box geometry.PageBox) string {
	for f, rect := range p.tmpl.Regions {
		if rect.ToPage(testBox) == box {
			return p.texts[f]
		}
	}
	return ""
}

// fakeOpener serves pages keyed by document content.
type fakeOpener map[string]Page

func (o fakeOpener) Open(data []byte) (Page, error) {
	page, ok := o[string(data)]
	if !ok {
		return nil, &pdf.ReadError{Op: "open", Err: errors.New("broken xref")}
	}
	return page, nil
}

func declarationTexts(ref, date string) map[fields.Field]string {
	return map[fields.Field]string{
		fields.ReferenceNumber:   ref,
		fields.ArrivalPort:       "(KRPUS) 부산항",
		fields.DeclarationDate:   date,
		fields.ExchangeRate:      "1,345.6789",
		fields.TaxRate:           "A 관 8",
		fields.VATBase:           "1,234,567원",
		fields.CustomsDuty:       "98,765원",
		fields.VAT:               "123,456원",
		fields.DeclarationNumber: "12345-24-123456M",
	}
}

func newTestPipeline(opener PageOpener, opts ...Option) *Pipeline {
	base := []Option{
		WithOpener(opener),
		WithNormalizer(fields.NewNormalizer(func() time.Time {
			return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		})),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return NewPipeline(append(base, opts...)...)
}

func TestExtractDocument(t *testing.T) {
	tmpl := testTemplate()
	opener := fakeOpener{"%PDF-a": &fakePage{tmpl: tmpl, texts: declarationTexts("HDMU123", "2024-03-05")}}
	p := newTestPipeline(opener)

	rec, issues, err := p.ExtractDocument(Document{Name: "a.pdf", Data: []byte("%PDF-a")}, tmpl)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Empty(t, issues)

	assert.Equal(t, "a.pdf", rec.Document)
	assert.Equal(t, "HDMU123", rec.Get(fields.ReferenceNumber).Text)
	assert.Equal(t, "부산항", rec.Get(fields.ArrivalPort).Text)
	assert.Equal(t, "2024/03/05", rec.Get(fields.DeclarationDate).Text)
	assert.InDelta(t, 1345.6789, rec.Get(fields.ExchangeRate).Float, 1e-9)
	assert.Equal(t, "8", rec.Get(fields.TaxRate).Text)
	assert.Equal(t, int64(1234567), rec.Get(fields.VATBase).Int)
	assert.Equal(t, int64(98765), rec.Get(fields.CustomsDuty).Int)
	assert.Equal(t, int64(123456), rec.Get(fields.VAT).Int)
	assert.Equal(t, "12345-24-123456M", rec.Get(fields.DeclarationNumber).Text)
	assert.Equal(t, "(KRPUS) 부산항", rec.Raw[fields.ArrivalPort])
}

func TestExtractDocument_Warnings(t *testing.T) {
	tmpl := testTemplate()
	tmpl.Regions[fields.TaxRate] = geometry.NormalizedRect{X1: 0.5, Y1: 0.5, X2: 0.5, Y2: 0.6}

	texts := declarationTexts("HDMU123", "미상")
	texts[fields.VAT] = "원"
	delete(texts, fields.ExchangeRate)

	opener := fakeOpener{"%PDF-a": &fakePage{tmpl: tmpl, texts: texts, pages: 3}}
	p := newTestPipeline(opener)

	rec, issues, err := p.ExtractDocument(Document{Name: "a.pdf", Data: []byte("%PDF-a")}, tmpl)
	require.NoError(t, err)
	require.NotNil(t, rec, "warnings never drop the record")
	assert.Equal(t, "2024/00/00", rec.Get(fields.DeclarationDate).Text)

	var flagged []string
	for _, i := range issues {
		assert.Equal(t, SeverityWarning, i.Severity)
		assert.Equal(t, "a.pdf", i.Document)
		flagged = append(flagged, i.Field)
	}
	assert.ElementsMatch(t, []string{
		"",
		fields.TaxRate.Name(),
		fields.DeclarationDate.Name(),
		fields.ExchangeRate.Name(),
		fields.VAT.Name(),
	}, flagged)
}

func TestExtractDocument_IncompleteTemplate(t *testing.T) {
	tmpl := testTemplate()
	delete(tmpl.Regions, fields.VAT)

	p := newTestPipeline(fakeOpener{})
	rec, issues, err := p.ExtractDocument(Document{Name: "a.pdf", Data: []byte("%PDF-a")}, tmpl)
	require.ErrorIs(t, err, template.ErrIncompleteTemplate)
	assert.Nil(t, rec)
	assert.Empty(t, issues)

	_, _, err = p.ExtractDocument(Document{Name: "a.pdf"}, nil)
	require.ErrorIs(t, err, template.ErrIncompleteTemplate)
}

func TestExtractDocument_Unreadable(t *testing.T) {
	tmpl := testTemplate()
	tests := []struct {
		name string
		data []byte
		opts []Option
	}{
		{name: "parser failure", data: []byte("%PDF-broken")},
		{name: "no header", data: []byte("plain text")},
		{name: "empty", data: nil},
		{name: "too large", data: []byte("%PDF-a"), opts: []Option{WithMaxFileSize(3)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opener := fakeOpener{"%PDF-a": &fakePage{tmpl: tmpl, texts: declarationTexts("X", "2024-01-01")}}
			p := newTestPipeline(opener, tt.opts...)

			rec, issues, err := p.ExtractDocument(Document{Name: "bad.pdf", Data: tt.data}, tmpl)
			require.NoError(t, err)
			assert.Nil(t, rec)
			require.Len(t, issues, 1)
			assert.Equal(t, SeverityError, issues[0].Severity)
			assert.Equal(t, "bad.pdf", issues[0].Document)
			assert.Empty(t, issues[0].Field)
		})
	}
}

type panickyOpener struct{}

func (panickyOpener) Open([]byte) (Page, error) { panic("stream exploded") }

func TestExtractDocument_OpenerPanic(t *testing.T) {
	p := newTestPipeline(panickyOpener{})
	rec, issues, err := p.ExtractDocument(Document{Name: "x.pdf", Data: []byte("%PDF-x")}, testTemplate())
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "stream exploded")
}

func TestExtractDocument_RealPDF(t *testing.T) {
	tmpl := testTemplate()
	var texts []pdftest.Text
	for i, line := range []string{
		"HDMU-778899",
		"KRPUS Busan",
		"2024-02-10",
		"1,300.25",
		"8",
		"1,000,000",
		"80,000",
		"108,000",
		"12345-24-000001M",
	} {
		// baseline just inside the lower half of each band
		top := (0.05 + float64(i)*0.1 + 0.04) * testBox.Height()
		texts = append(texts, pdftest.At(100, top, testBox.Height(), line))
	}
	data := pdftest.SinglePage(testBox.Width(), testBox.Height(), texts...)

	p := NewPipeline(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	rec, issues, err := p.ExtractDocument(Document{Name: "real.pdf", Data: data}, tmpl)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Empty(t, issues)

	assert.Equal(t, "HDMU-778899", rec.Get(fields.ReferenceNumber).Text)
	assert.Equal(t, "Busan", rec.Get(fields.ArrivalPort).Text)
	assert.Equal(t, "2024/02/10", rec.Get(fields.DeclarationDate).Text)
	assert.InDelta(t, 1300.25, rec.Get(fields.ExchangeRate).Float, 1e-9)
	assert.Equal(t, int64(1000000), rec.Get(fields.VATBase).Int)
	assert.Equal(t, int64(108000), rec.Get(fields.VAT).Int)
	assert.Equal(t, "12345-24-000001M", rec.Get(fields.DeclarationNumber).Text)
}
