package extraction

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/a3tai/mcp-customs-roi/internal/fields"
	"github.com/a3tai/mcp-customs-roi/internal/template"
)

// ErrEmptyBatch is returned when no document in a run produced a record.
var ErrEmptyBatch = errors.New("no document produced a record")

// Table is the sorted output of a batch run.
type Table struct {
	RunID   string
	Records []*Record
}

// Columns returns the output column names in catalog order.
func (t *Table) Columns() []string { return fields.Names() }

// Len is the number of rows.
func (t *Table) Len() int { return len(t.Records) }

// RunBatch extracts every document independently, flags duplicated
// reference numbers and sorts the rows by declaration date, unparsed
// dates last. The issue log is returned even when the batch fails.
func (p *Pipeline) RunBatch(docs []Document, tmpl *template.Template) (*Table, *IssueLog, error) {
	log := &IssueLog{}
	if err := tmpl.CheckComplete(); err != nil {
		return nil, log, err
	}

	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)
	logger.Info("batch started", "template", tmpl.Name, "documents", len(docs))
	start := time.Now()

	table := &Table{RunID: runID}
	for _, doc := range docs {
		rec, issues := p.extract(doc, tmpl)
		log.Add(issues...)
		if rec != nil {
			table.Records = append(table.Records, rec)
		}
	}

	if len(table.Records) == 0 {
		logger.Warn("batch produced no records", "issues", log.Len())
		return nil, log, fmt.Errorf("%w: %d document(s) submitted", ErrEmptyBatch, len(docs))
	}

	if dups := duplicateReferences(table.Records); len(dups) > 0 {
		log.Add(Issue{
			Field:    fields.ReferenceNumber.Name(),
			Severity: SeverityWarning,
			Message:  "duplicate reference numbers: " + strings.Join(dups, ", "),
		})
	}

	sortByDate(table.Records)

	errs, warns := log.Count()
	logger.Info("batch finished",
		"records", len(table.Records),
		"errors", errs,
		"warnings", warns,
		"duration", time.Since(start))
	return table, log, nil
}

// duplicateReferences lists, in first-seen order, the non-empty reference
// numbers shared by two or more records.
func duplicateReferences(records []*Record) []string {
	counts := make(map[string]int, len(records))
	var order []string
	for _, r := range records {
		ref := r.Values[fields.ReferenceNumber].Text
		if ref == "" {
			continue
		}
		if counts[ref] == 0 {
			order = append(order, ref)
		}
		counts[ref]++
	}

	var dups []string
	for _, ref := range order {
		if counts[ref] > 1 {
			dups = append(dups, ref)
		}
	}
	return dups
}

func sortByDate(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		di, oki := records[i].Values[fields.DeclarationDate].Date()
		dj, okj := records[j].Values[fields.DeclarationDate].Date()
		switch {
		case !oki:
			return false
		case !okj:
			return true
		}
		return di.Before(dj)
	})
}
