// Package fields defines the fixed, ordered catalog of attributes read
// from a customs declaration and the rule that cleans each one.
package fields

// Field is one attribute of the catalog. The zero value is the first field.
type Field int

const (
	ReferenceNumber Field = iota
	ArrivalPort
	DeclarationDate
	ExchangeRate
	TaxRate
	VATBase
	CustomsDuty
	VAT
	DeclarationNumber

	fieldCount
)

// Count is the number of fields in the catalog.
const Count = int(fieldCount)

// Kind is the type of a normalized value.
type Kind int

const (
	KindText Kind = iota
	KindDate
	KindFloat
	KindNumber // integer, or float when the source carried a decimal point
)

// ColumnFormat is how a field's column is formatted in the spreadsheet.
type ColumnFormat int

const (
	FormatText ColumnFormat = iota
	FormatDate
	FormatFourDecimals
	FormatGroupedNumber
)

type meta struct {
	name      string
	color     string
	kind      Kind
	format    ColumnFormat
	normalize func(n *Normalizer, text string) Value
}

// catalog is indexed by Field; its length pins every member to an entry.
var catalog = [fieldCount]meta{
	ReferenceNumber: {
		name: "b/l(awb)번호", color: "#E74C3C", kind: KindText, format: FormatText,
		normalize: (*Normalizer).referenceNumber,
	},
	ArrivalPort: {
		name: "국내도착항", color: "#3498DB", kind: KindText, format: FormatText,
		normalize: (*Normalizer).arrivalPort,
	},
	DeclarationDate: {
		name: "신고일", color: "#2ECC71", kind: KindDate, format: FormatDate,
		normalize: (*Normalizer).declarationDate,
	},
	ExchangeRate: {
		name: "환율", color: "#9B59B6", kind: KindFloat, format: FormatFourDecimals,
		normalize: (*Normalizer).exchangeRate,
	},
	TaxRate: {
		name: "세율(구분)", color: "#F1C40F", kind: KindText, format: FormatText,
		normalize: (*Normalizer).taxRate,
	},
	VATBase: {
		name: "부가가치세 과표", color: "#1ABC9C", kind: KindNumber, format: FormatGroupedNumber,
		normalize: (*Normalizer).amount,
	},
	CustomsDuty: {
		name: "관세", color: "#E67E22", kind: KindNumber, format: FormatGroupedNumber,
		normalize: (*Normalizer).amount,
	},
	VAT: {
		name: "부가가치세", color: "#34495E", kind: KindNumber, format: FormatGroupedNumber,
		normalize: (*Normalizer).amount,
	},
	DeclarationNumber: {
		name: "신고번호", color: "#D35400", kind: KindText, format: FormatText,
		normalize: (*Normalizer).declarationNumber,
	},
}

var byName = func() map[string]Field {
	m := make(map[string]Field, Count)
	for f := Field(0); f < fieldCount; f++ {
		m[catalog[f].name] = f
	}
	return m
}()

// All returns the catalog in output order.
func All() []Field {
	out := make([]Field, Count)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

// Names returns the canonical names in catalog order.
func Names() []string {
	out := make([]string, Count)
	for i := range out {
		out[i] = catalog[i].name
	}
	return out
}

// Parse looks a field up by its canonical name.
func Parse(name string) (Field, bool) {
	f, ok := byName[name]
	return f, ok
}

// Valid reports whether f is a member of the catalog.
func (f Field) Valid() bool { return f >= 0 && f < fieldCount }

// Name is the canonical name used in template files and column headers.
func (f Field) Name() string {
	if !f.Valid() {
		return ""
	}
	return catalog[f].name
}

// Color is the overlay colour as a #RRGGBB string.
func (f Field) Color() string {
	if !f.Valid() {
		return "#FF00FF"
	}
	return catalog[f].color
}

func (f Field) Kind() Kind { return catalog[f].kind }

func (f Field) Format() ColumnFormat { return catalog[f].format }

func (f Field) String() string { return f.Name() }

// Monetary reports whether f is one of the three amount fields.
func (f Field) Monetary() bool { return f.Format() == FormatGroupedNumber }
