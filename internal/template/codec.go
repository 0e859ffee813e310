package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/a3tai/mcp-customs-roi/internal/fields"
	"github.com/a3tai/mcp-customs-roi/internal/geometry"
)

// metaKey holds store metadata next to the templates in the file.
const metaKey = "__meta"

// payloadSchema describes one template value, the shape shared by the
// store entries and the import/export payload.
const payloadSchema = `{
  "type": "object",
  "required": ["norm_rects"],
  "properties": {
    "created_at": {"type": "string"},
    "dpi": {"type": "number", "exclusiveMinimum": 0, "maximum": 1200},
    "norm_rects": {
      "type": "object",
      "additionalProperties": {
        "type": "array",
        "minItems": 4,
        "maxItems": 4,
        "items": {"type": "number", "minimum": 0, "maximum": 1}
      }
    }
  }
}`

var compilePayloadSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("template.json", strings.NewReader(payloadSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("template.json")
})

type storeMeta struct {
	LastUsed string `json:"last_used,omitempty"`
}

type payload struct {
	CreatedAt string                             `json:"created_at,omitempty"`
	DPI       float64                            `json:"dpi"`
	NormRects map[string]geometry.NormalizedRect `json:"norm_rects"`
}

// createdAtLayouts covers RFC 3339 and naive ISO timestamps without a zone.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// decodePayload validates raw against the payload schema and converts it.
func decodePayload(raw []byte) (float64, Regions, time.Time, error) {
	schema, err := compilePayloadSchema()
	if err != nil {
		return 0, nil, time.Time{}, fmt.Errorf("compile template schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return 0, nil, time.Time{}, fmt.Errorf("%w: %v", ErrMalformedTemplate, err)
	}
	if err := schema.Validate(doc); err != nil {
		return 0, nil, time.Time{}, fmt.Errorf("%w: %v", ErrMalformedTemplate, err)
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return 0, nil, time.Time{}, fmt.Errorf("%w: %v", ErrMalformedTemplate, err)
	}

	regions := make(Regions, len(p.NormRects))
	for name, rect := range p.NormRects {
		f, ok := fields.Parse(name)
		if !ok {
			return 0, nil, time.Time{}, fmt.Errorf("%w: unknown field %q", ErrMalformedTemplate, name)
		}
		regions[f] = rect
	}
	if err := regions.validate(); err != nil {
		return 0, nil, time.Time{}, err
	}

	dpi := p.DPI
	if dpi == 0 {
		dpi = DefaultDPI
	}

	var created time.Time
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, p.CreatedAt); err == nil {
			created = t
			break
		}
	}
	return dpi, regions, created, nil
}

func encodePayload(t *Template) payload {
	rects := make(map[string]geometry.NormalizedRect, len(t.Regions))
	for f, rect := range t.Regions {
		rects[f.Name()] = rect
	}
	p := payload{DPI: t.DPI, NormRects: rects}
	if !t.CreatedAt.IsZero() {
		p.CreatedAt = t.CreatedAt.Format(time.RFC3339Nano)
	}
	return p
}

// Import parses an externally supplied template payload. It does not
// persist anything and does not require the payload to be complete.
func Import(raw []byte) (float64, Regions, error) {
	dpi, regions, _, err := decodePayload(bytes.TrimSpace(raw))
	if err != nil {
		return 0, nil, err
	}
	return dpi, regions, nil
}

// Export serialises the resolution and regions of t, without its name.
func Export(t *Template) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil template", ErrTemplateNotFound)
	}
	return json.MarshalIndent(encodePayload(t), "", "  ")
}

// encodeStore renders the whole store document.
func encodeStore(templates map[string]*Template, lastUsed string) ([]byte, error) {
	doc := make(map[string]any, len(templates)+1)
	doc[metaKey] = storeMeta{LastUsed: lastUsed}
	for name, t := range templates {
		doc[name] = encodePayload(t)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// decodeStore parses a store document. Entries that fail validation are
// returned by name in skipped rather than failing the whole document.
func decodeStore(raw []byte) (map[string]*Template, string, []string, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, "", nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}

	var meta storeMeta
	if m, ok := doc[metaKey]; ok {
		if err := json.Unmarshal(m, &meta); err != nil {
			return nil, "", nil, fmt.Errorf("%w: %s: %v", ErrCorruptStore, metaKey, err)
		}
	}

	templates := make(map[string]*Template, len(doc))
	var skipped []string
	for name, entry := range doc {
		if name == metaKey {
			continue
		}
		dpi, regions, created, err := decodePayload(entry)
		key := normalizeName(name)
		if err != nil || key == "" {
			skipped = append(skipped, name)
			continue
		}
		templates[key] = &Template{Name: key, DPI: dpi, Regions: regions, CreatedAt: created}
	}
	sort.Strings(skipped)
	return templates, normalizeName(meta.LastUsed), skipped, nil
}
