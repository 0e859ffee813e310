package extraction

import (
	"fmt"
	"strings"
)

// Severity of an Issue.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// MarshalText renders the severity as "warning" or "error".
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Issue is a validation finding for one document, or for the whole batch
// when Document is empty. Issues are never persisted.
type Issue struct {
	Document string   `json:"document,omitempty"`
	Field    string   `json:"field,omitempty"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", i.Severity)
	if i.Document != "" {
		fmt.Fprintf(&b, " %s", i.Document)
	}
	if i.Field != "" {
		fmt.Fprintf(&b, " (%s)", i.Field)
	}
	fmt.Fprintf(&b, ": %s", i.Message)
	return b.String()
}

// IssueLog collects the issues of a run in the order they were raised.
type IssueLog struct {
	issues []Issue
}

// Add appends issues.
func (l *IssueLog) Add(issues ...Issue) {
	l.issues = append(l.issues, issues...)
}

// All returns every issue.
func (l *IssueLog) All() []Issue {
	return append([]Issue(nil), l.issues...)
}

// Warnings returns the warning-level issues.
func (l *IssueLog) Warnings() []Issue { return l.filter(SeverityWarning) }

// Errors returns the error-level issues.
func (l *IssueLog) Errors() []Issue { return l.filter(SeverityError) }

func (l *IssueLog) filter(s Severity) []Issue {
	var out []Issue
	for _, i := range l.issues {
		if i.Severity == s {
			out = append(out, i)
		}
	}
	return out
}

// Count returns the number of errors and warnings.
func (l *IssueLog) Count() (errors, warnings int) {
	for _, i := range l.issues {
		if i.Severity == SeverityError {
			errors++
		} else {
			warnings++
		}
	}
	return errors, warnings
}

// Len is the total number of issues.
func (l *IssueLog) Len() int { return len(l.issues) }

// Summary returns a one-line description of the log.
func (l *IssueLog) Summary() string {
	errs, warns := l.Count()
	if errs == 0 && warns == 0 {
		return "No errors or warnings"
	}
	return fmt.Sprintf("Found %d error(s) and %d warning(s)", errs, warns)
}
