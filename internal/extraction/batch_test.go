package extraction

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-customs-roi/internal/fields"
	"github.com/a3tai/mcp-customs-roi/internal/template"
)

func batchOpener(tmpl *template.Template, docs map[string][2]string) fakeOpener {
	o := fakeOpener{}
	for data, v := range docs {
		o[data] = &fakePage{tmpl: tmpl, texts: declarationTexts(v[0], v[1])}
	}
	return o
}

func names(table *Table) []string {
	out := make([]string, len(table.Records))
	for i, r := range table.Records {
		out[i] = r.Document
	}
	return out
}

func TestRunBatch_SortsByDateUnparsedLast(t *testing.T) {
	tmpl := testTemplate()
	p := newTestPipeline(batchOpener(tmpl, map[string][2]string{
		"%PDF-1": {"A1", "미상"},
		"%PDF-2": {"A2", "2024-03-05"},
		"%PDF-3": {"A3", "2023-12-31"},
		"%PDF-4": {"A4", "2024-02-30"},
		"%PDF-5": {"A5", "2024-01-15"},
	}))

	docs := []Document{
		{Name: "unparsed.pdf", Data: []byte("%PDF-1")},
		{Name: "march.pdf", Data: []byte("%PDF-2")},
		{Name: "december.pdf", Data: []byte("%PDF-3")},
		{Name: "invalid.pdf", Data: []byte("%PDF-4")},
		{Name: "january.pdf", Data: []byte("%PDF-5")},
	}

	table, log, err := p.RunBatch(docs, tmpl)
	require.NoError(t, err)
	assert.Equal(t, []string{"december.pdf", "january.pdf", "march.pdf", "unparsed.pdf", "invalid.pdf"}, names(table))
	assert.Equal(t, fields.Names(), table.Columns())
	assert.Equal(t, 5, table.Len())

	_, err = uuid.Parse(table.RunID)
	assert.NoError(t, err)

	errs, warns := log.Count()
	assert.Equal(t, 0, errs)
	assert.Equal(t, 2, warns, "one date warning per unparsed document")
}

func TestRunBatch_DuplicateReferences(t *testing.T) {
	tmpl := testTemplate()
	p := newTestPipeline(batchOpener(tmpl, map[string][2]string{
		"%PDF-1": {"DUP1", "2024-01-01"},
		"%PDF-2": {"DUP1", "2024-01-02"},
		"%PDF-3": {"UNIQUE", "2024-01-03"},
		"%PDF-4": {"", "2024-01-04"},
		"%PDF-5": {"", "2024-01-05"},
	}))

	docs := []Document{
		{Name: "1.pdf", Data: []byte("%PDF-1")},
		{Name: "2.pdf", Data: []byte("%PDF-2")},
		{Name: "3.pdf", Data: []byte("%PDF-3")},
		{Name: "4.pdf", Data: []byte("%PDF-4")},
		{Name: "5.pdf", Data: []byte("%PDF-5")},
	}

	table, log, err := p.RunBatch(docs, tmpl)
	require.NoError(t, err)
	assert.Equal(t, 5, table.Len(), "duplicates stay in the table")

	warnings := log.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, fields.ReferenceNumber.Name(), warnings[0].Field)
	assert.Empty(t, warnings[0].Document)
	assert.Equal(t, "duplicate reference numbers: DUP1", warnings[0].Message)
}

func TestRunBatch_FailSoftPerDocument(t *testing.T) {
	tmpl := testTemplate()
	p := newTestPipeline(batchOpener(tmpl, map[string][2]string{
		"%PDF-ok": {"OK1", "2024-01-01"},
	}))

	docs := []Document{
		{Name: "broken.pdf", Data: []byte("%PDF-broken")},
		{Name: "ok.pdf", Data: []byte("%PDF-ok")},
	}

	table, log, err := p.RunBatch(docs, tmpl)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok.pdf"}, names(table))

	errs := log.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "broken.pdf", errs[0].Document)
	assert.Equal(t, "Found 1 error(s) and 0 warning(s)", log.Summary())
}

func TestRunBatch_ReadFailureKeepsGoing(t *testing.T) {
	tmpl := testTemplate()
	p := newTestPipeline(batchOpener(tmpl, map[string][2]string{
		"%PDF-a": {"A1", "2024-01-02"},
		"%PDF-b": {"B1", "2024-01-01"},
	}))

	docs := []Document{
		{Name: "a.pdf", Data: []byte("%PDF-a")},
		{Name: "missing.pdf", Err: fs.ErrNotExist},
		{Name: "b.pdf", Data: []byte("%PDF-b")},
	}

	table, log, err := p.RunBatch(docs, tmpl)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.pdf", "a.pdf"}, names(table))

	errs := log.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "missing.pdf", errs[0].Document)
	assert.Contains(t, errs[0].Message, "file does not exist")
}

func TestRunBatch_AllUnreadable(t *testing.T) {
	tmpl := testTemplate()
	p := newTestPipeline(fakeOpener{})

	docs := []Document{
		{Name: "gone.pdf", Err: fs.ErrNotExist},
		{Name: "locked.pdf", Err: fs.ErrPermission},
	}

	table, log, err := p.RunBatch(docs, tmpl)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyBatch))
	assert.Nil(t, table)
	assert.Len(t, log.Errors(), 2)
}

func TestRunBatch_Empty(t *testing.T) {
	tmpl := testTemplate()
	p := newTestPipeline(fakeOpener{})

	table, log, err := p.RunBatch(nil, tmpl)
	require.ErrorIs(t, err, ErrEmptyBatch)
	assert.Nil(t, table)
	assert.Equal(t, 0, log.Len())

	table, log, err = p.RunBatch([]Document{
		{Name: "a.pdf", Data: []byte("%PDF-a")},
		{Name: "b.pdf", Data: []byte("junk")},
	}, tmpl)
	require.ErrorIs(t, err, ErrEmptyBatch)
	assert.Nil(t, table)
	assert.Len(t, log.Errors(), 2, "issues survive a failed batch")
}

func TestRunBatch_IncompleteTemplate(t *testing.T) {
	tmpl := testTemplate()
	delete(tmpl.Regions, fields.ArrivalPort)

	p := newTestPipeline(fakeOpener{})
	_, _, err := p.RunBatch([]Document{{Name: "a.pdf", Data: []byte("%PDF-a")}}, tmpl)
	require.ErrorIs(t, err, template.ErrIncompleteTemplate)
}

func TestIssueLog(t *testing.T) {
	var log IssueLog
	assert.Equal(t, "No errors or warnings", log.Summary())

	log.Add(
		Issue{Document: "a.pdf", Field: "환율", Severity: SeverityWarning, Message: "value not recognised or malformed"},
		Issue{Document: "b.pdf", Severity: SeverityError, Message: "cannot read document"},
	)
	assert.Equal(t, 2, log.Len())
	assert.Len(t, log.Warnings(), 1)
	assert.Len(t, log.Errors(), 1)
	assert.Equal(t, "[warning] a.pdf (환율): value not recognised or malformed", log.All()[0].String())
	assert.Equal(t, "[error] b.pdf: cannot read document", log.All()[1].String())

	text, err := SeverityError.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "error", string(text))
}
