package fields

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

var (
	referenceRe = regexp.MustCompile(`[A-Za-z0-9\-]+`)

	parenCodeRe  = regexp.MustCompile(`\([^)]+\)`)
	upperCodeRe  = regexp.MustCompile(`\b[A-Z]{3,}\b`)
	mixedCodeRe  = regexp.MustCompile(`\b[A-Z0-9\-]{3,}\b`)
	portSuffixRe = regexp.MustCompile(`[가-힣]+(?:공항|항만|항구|항)`)
	hangulWordRe = regexp.MustCompile(`[가-힣]{2,}`)

	isoDateRe     = regexp.MustCompile(`(\d{4})[./-](\d{1,2})[./-](\d{1,2})`)
	koreanDateRe  = regexp.MustCompile(`(\d{4})\s*년\s*(\d{1,2})\s*월\s*(\d{1,2})\s*일`)
	monthDayRe    = regexp.MustCompile(`(?:^|\D)(\d{1,2})[./-](\d{1,2})(?:\D|$)`)
	compactDateRe = regexp.MustCompile(`(?:^|\D)(\d{8})(?:\D|$)`)

	exchangeRe   = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	taxMarkerRe  = regexp.MustCompile(`관\s*([0-9.]+)`)
	taxNumberRe  = regexp.MustCompile(`[0-9.]+`)
	amountRe     = regexp.MustCompile(`([0-9]{1,3}(?:,[0-9]{3})+|[0-9]{4,})\s*원?`)
	declNumberRe = regexp.MustCompile(`\b(\d{5}-\d{2}-\d{6}M)\b`)
	decimalRe    = regexp.MustCompile(`\d+\.\d+`)
)

// Normalizer turns raw clipped text into typed values. All of its rules
// are total: the worst case is an empty value or the date sentinel.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer returns a Normalizer reading the current year from now.
// A nil now uses time.Now.
func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

// Normalize applies the rule for f to raw.
func (n *Normalizer) Normalize(f Field, raw string) Value {
	if !f.Valid() {
		return TextValue(CollapseSpace(raw))
	}
	return catalog[f].normalize(n, CollapseSpace(raw))
}

// DateSentinel is the value emitted when no date form matched.
func (n *Normalizer) DateSentinel() string {
	return fmt.Sprintf("%04d/00/00", n.now().Year())
}

// IsDateSentinel reports whether s is a YYYY/00/00 placeholder.
func IsDateSentinel(s string) bool {
	return len(s) == 10 && strings.HasSuffix(s, "/00/00")
}

// CollapseSpace composes Hangul, folds full-width ASCII and collapses
// whitespace runs to single spaces.
func CollapseSpace(s string) string {
	s = width.Fold.String(norm.NFC.String(s))
	return strings.Join(strings.Fields(s), " ")
}

func (n *Normalizer) referenceNumber(text string) Value {
	return TextValue(referenceRe.FindString(text))
}

// arrivalPort drops UN/LOCODE style codes and keeps the Korean place name.
func (n *Normalizer) arrivalPort(text string) Value {
	if text == "" {
		return TextValue("")
	}
	t := parenCodeRe.ReplaceAllString(text, " ")
	t = upperCodeRe.ReplaceAllString(t, " ")
	t = mixedCodeRe.ReplaceAllString(t, " ")

	if m := portSuffixRe.FindString(t); m != "" {
		return TextValue(m)
	}

	if cands := hangulWordRe.FindAllString(t, -1); len(cands) > 0 {
		sort.SliceStable(cands, func(i, j int) bool {
			return len([]rune(cands[i])) > len([]rune(cands[j]))
		})
		return TextValue(cands[0])
	}

	return TextValue(CollapseSpace(t))
}

func (n *Normalizer) declarationDate(text string) Value {
	if text == "" {
		return DateValue(n.DateSentinel())
	}
	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		return DateValue(formatDate(atoi(m[1]), atoi(m[2]), atoi(m[3])))
	}
	if m := koreanDateRe.FindStringSubmatch(text); m != nil {
		return DateValue(formatDate(atoi(m[1]), atoi(m[2]), atoi(m[3])))
	}
	if m := monthDayRe.FindStringSubmatch(text); m != nil {
		return DateValue(formatDate(n.now().Year(), atoi(m[1]), atoi(m[2])))
	}
	if m := compactDateRe.FindStringSubmatch(text); m != nil {
		v := m[1]
		return DateValue(formatDate(atoi(v[:4]), atoi(v[4:6]), atoi(v[6:])))
	}
	return DateValue(n.DateSentinel())
}

func (n *Normalizer) exchangeRate(text string) Value {
	tok := exchangeRe.FindString(text)
	if tok == "" {
		return Absent(KindFloat)
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(tok, ",", ""))
	if err != nil {
		return Absent(KindFloat)
	}
	f, _ := d.Float64()
	return FloatValue(f)
}

// taxRate keeps the raw token; the rate may carry a category suffix.
func (n *Normalizer) taxRate(text string) Value {
	if m := taxMarkerRe.FindStringSubmatch(text); m != nil {
		return TextValue(m[1])
	}
	return TextValue(taxNumberRe.FindString(text))
}

func (n *Normalizer) amount(text string) Value {
	if m := amountRe.FindStringSubmatch(text); m != nil {
		return cleanNumber(m[1])
	}
	return cleanNumber(text)
}

// declarationNumber falls back to the cleaned text when the shape differs.
func (n *Normalizer) declarationNumber(text string) Value {
	if m := declNumberRe.FindStringSubmatch(text); m != nil {
		return TextValue(m[1])
	}
	return TextValue(text)
}

// cleanNumber strips thousands separators and parses an integer, or a
// float when a decimal point is present.
func cleanNumber(s string) Value {
	t := strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if t == "" {
		return Absent(KindNumber)
	}
	if decimalRe.MatchString(t) {
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return Absent(KindNumber)
		}
		return Value{Kind: KindNumber, Float: f, IsFloat: true, Valid: true}
	}
	i, err := strconv.ParseInt(t, 10, 64)
	if err != nil {
		return Absent(KindNumber)
	}
	return IntValue(i)
}

func formatDate(y, m, d int) string {
	return fmt.Sprintf("%04d/%02d/%02d", y, m, d)
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}
