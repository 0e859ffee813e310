package fields

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical declaration date layout, YYYY/MM/DD.
const DateLayout = "2006/01/02"

// Value is a normalized field value. Numeric values with Valid=false are absent.
type Value struct {
	Kind  Kind
	Text  string
	Int   int64
	Float float64
	// IsFloat marks a KindNumber value that carried a decimal point.
	IsFloat bool
	Valid   bool
}

// TextValue wraps a string result; an empty string is still a valid value.
func TextValue(s string) Value { return Value{Kind: KindText, Text: s, Valid: true} }

// DateValue wraps a canonical YYYY/MM/DD string.
func DateValue(s string) Value { return Value{Kind: KindDate, Text: s, Valid: true} }

// FloatValue wraps a float rounded to four decimals.
func FloatValue(f float64) Value {
	r, _ := decimal.NewFromFloat(f).Round(4).Float64()
	return Value{Kind: KindFloat, Float: r, Valid: true}
}

// IntValue wraps a whole amount.
func IntValue(i int64) Value { return Value{Kind: KindNumber, Int: i, Valid: true} }

// Absent is the missing value of kind k.
func Absent(k Kind) Value { return Value{Kind: k} }

// Empty reports a missing number or an empty string.
func (v Value) Empty() bool {
	switch v.Kind {
	case KindText, KindDate:
		return v.Text == ""
	default:
		return !v.Valid
	}
}

// Number returns the numeric value as a float64.
func (v Value) Number() (float64, bool) {
	if !v.Valid {
		return 0, false
	}
	switch v.Kind {
	case KindFloat:
		return v.Float, true
	case KindNumber:
		if v.IsFloat {
			return v.Float, true
		}
		return float64(v.Int), true
	}
	return 0, false
}

// Date parses a KindDate value. Sentinel and out-of-calendar dates report false.
func (v Value) Date() (time.Time, bool) {
	if v.Kind != KindDate {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, v.Text)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// String renders the value for display; absent numbers render empty.
func (v Value) String() string {
	switch v.Kind {
	case KindFloat:
		if !v.Valid {
			return ""
		}
		return strconv.FormatFloat(v.Float, 'f', 4, 64)
	case KindNumber:
		if !v.Valid {
			return ""
		}
		if v.IsFloat {
			return strconv.FormatFloat(v.Float, 'f', -1, 64)
		}
		return strconv.FormatInt(v.Int, 10)
	}
	return v.Text
}

// Any returns the natural Go value: string, int64, float64 or nil when absent.
func (v Value) Any() any {
	switch v.Kind {
	case KindFloat:
		if v.Valid {
			return v.Float
		}
		return nil
	case KindNumber:
		if !v.Valid {
			return nil
		}
		if v.IsFloat {
			return v.Float
		}
		return v.Int
	}
	return v.Text
}
