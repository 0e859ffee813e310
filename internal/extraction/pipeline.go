// Package extraction applies a template to declaration PDFs: it clips each
// field's region, normalizes the text and reports validation issues.
package extraction

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/a3tai/mcp-customs-roi/internal/fields"
	"github.com/a3tai/mcp-customs-roi/internal/geometry"
	"github.com/a3tai/mcp-customs-roi/internal/pdf"
	"github.com/a3tai/mcp-customs-roi/internal/template"
)

// Page is the part of an opened document the pipeline reads.
type Page interface {
	Box() geometry.PageBox
	TextIn(box geometry.PageBox) string
	PageCount() int
}

// PageOpener opens document bytes.
type PageOpener interface {
	Open(data []byte) (Page, error)
}

// PDFOpener opens documents with the pdf package.
type PDFOpener struct{}

// Open implements PageOpener.
func (PDFOpener) Open(data []byte) (Page, error) {
	doc, err := pdf.Open(data)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Document is one input file. Err carries a failure to read it from
// disk; such a document is reported as unreadable and the batch goes on.
type Document struct {
	Name string
	Data []byte
	Err  error
}

// Record is the extracted row for one document.
type Record struct {
	Document string
	Values   [fields.Count]fields.Value
	Raw      [fields.Count]string
}

// Get returns the normalized value of f.
func (r *Record) Get(f fields.Field) fields.Value { return r.Values[f] }

var canonicalDate = regexp.MustCompile(`^\d{4}/\d{2}/\d{2}$`)

// checkedNumbers must be present on every record.
var checkedNumbers = []fields.Field{fields.ExchangeRate, fields.VATBase, fields.CustomsDuty, fields.VAT}

// Pipeline extracts records. It keeps no state between documents.
type Pipeline struct {
	opener     PageOpener
	normalizer *fields.Normalizer
	validator  *pdf.Validator
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithOpener replaces the PDF opener.
func WithOpener(o PageOpener) Option { return func(p *Pipeline) { p.opener = o } }

// WithNormalizer replaces the field normalizer, typically to fix its clock.
func WithNormalizer(n *fields.Normalizer) Option { return func(p *Pipeline) { p.normalizer = n } }

// WithMaxFileSize rejects larger documents; zero disables the limit.
func WithMaxFileSize(n int64) Option {
	return func(p *Pipeline) { p.validator = pdf.NewValidator(n) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.logger = l } }

// NewPipeline creates a pipeline reading real PDFs.
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		opener:     PDFOpener{},
		normalizer: fields.NewNormalizer(nil),
		validator:  pdf.NewValidator(0),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ExtractDocument applies tmpl to doc. An incomplete template is a hard
// error. A document that cannot be read yields a nil record and a single
// error issue; otherwise the record is returned with any warnings.
func (p *Pipeline) ExtractDocument(doc Document, tmpl *template.Template) (*Record, []Issue, error) {
	if err := tmpl.CheckComplete(); err != nil {
		return nil, nil, err
	}
	rec, issues := p.extract(doc, tmpl)
	return rec, issues, nil
}

func (p *Pipeline) extract(doc Document, tmpl *template.Template) (*Record, []Issue) {
	page, err := p.open(doc)
	if err != nil {
		p.logger.Warn("document unreadable", "document", doc.Name, "error", err)
		return nil, []Issue{{
			Document: doc.Name,
			Severity: SeverityError,
			Message:  fmt.Sprintf("cannot read document: %v", err),
		}}
	}

	var issues []Issue
	warn := func(f fields.Field, format string, args ...any) {
		issues = append(issues, Issue{
			Document: doc.Name,
			Field:    f.Name(),
			Severity: SeverityWarning,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	if n := page.PageCount(); n > 1 {
		issues = append(issues, Issue{
			Document: doc.Name,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("document has %d pages; only the first is read", n),
		})
	}

	rec := &Record{Document: doc.Name}
	box := page.Box()
	for _, f := range fields.All() {
		rect := tmpl.Regions[f]
		if rect.IsDegenerate() {
			warn(f, "region %s has no area; nothing can be clipped", rect)
		}
		raw := fields.CollapseSpace(page.TextIn(rect.ToPage(box)))
		rec.Raw[f] = raw
		rec.Values[f] = p.normalizer.Normalize(f, raw)
	}

	date := rec.Values[fields.DeclarationDate]
	if _, ok := date.Date(); !ok || !canonicalDate.MatchString(date.Text) {
		warn(fields.DeclarationDate, "declaration date not recognised: %q", date.Text)
	}
	for _, f := range checkedNumbers {
		if rec.Values[f].Empty() {
			warn(f, "value not recognised or malformed")
		}
	}

	p.logger.Debug("document extracted", "document", doc.Name, "warnings", len(issues))
	return rec, issues
}

// open validates and opens the document, converting parser panics from
// custom openers into errors.
func (p *Pipeline) open(doc Document) (page Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			page = nil
			err = &pdf.ReadError{Op: "open", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if doc.Err != nil {
		return nil, &pdf.ReadError{Op: "read", Err: doc.Err}
	}
	if err := p.validator.CheckContent(doc.Name, doc.Data); err != nil {
		return nil, &pdf.ReadError{Op: "validate", Err: err}
	}
	return p.opener.Open(doc.Data)
}
