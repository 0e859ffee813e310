package template

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-customs-roi/internal/fields"
	"github.com/a3tai/mcp-customs-roi/internal/geometry"
)

func TestImport(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		dpi     float64
		count   int
	}{
		{
			name:  "partial payload is accepted",
			raw:   `{"dpi": 200, "norm_rects": {"환율": [0.1, 0.2, 0.3, 0.4], "관세": [0, 0, 1, 1]}}`,
			dpi:   200,
			count: 2,
		},
		{
			name:  "missing dpi defaults",
			raw:   `{"norm_rects": {}}`,
			dpi:   DefaultDPI,
			count: 0,
		},
		{name: "not json", raw: `{"dpi":`, wantErr: true},
		{name: "missing norm_rects", raw: `{"dpi": 144}`, wantErr: true},
		{name: "negative dpi", raw: `{"dpi": -1, "norm_rects": {}}`, wantErr: true},
		{name: "dpi above limit", raw: `{"dpi": 100000, "norm_rects": {}}`, wantErr: true},
		{name: "short rect", raw: `{"norm_rects": {"환율": [0.1, 0.2, 0.3]}}`, wantErr: true},
		{name: "out of range", raw: `{"norm_rects": {"환율": [0.1, 0.2, 0.3, 1.2]}}`, wantErr: true},
		{name: "string coordinate", raw: `{"norm_rects": {"환율": ["0", 0, 1, 1]}}`, wantErr: true},
		{name: "unknown field", raw: `{"norm_rects": {"weight": [0, 0, 1, 1]}}`, wantErr: true},
		{name: "array document", raw: `[]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dpi, regions, err := Import([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedTemplate)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.dpi, dpi)
			assert.Len(t, regions, tt.count)
		})
	}
}

func TestImport_Coordinates(t *testing.T) {
	_, regions, err := Import([]byte(`{"norm_rects": {"신고번호": [0.25, 0.5, 0.75, 0.625]}}`))
	require.NoError(t, err)
	assert.Equal(t, geometry.NormalizedRect{X1: 0.25, Y1: 0.5, X2: 0.75, Y2: 0.625}, regions[fields.DeclarationNumber])
}

func TestExport_RoundTrip(t *testing.T) {
	tmpl := &Template{
		Name:      "A",
		DPI:       144,
		Regions:   fullRegions(),
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	raw, err := Export(tmpl)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"A"`)

	dpi, regions, err := Import(raw)
	require.NoError(t, err)
	assert.Equal(t, tmpl.DPI, dpi)
	assert.Equal(t, tmpl.Regions, regions)

	_, err = Export(nil)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestDecodeStore_NaiveCreatedAt(t *testing.T) {
	raw := []byte(`{"A": {"created_at": "2024-03-05T10:11:12.123456", "dpi": 144, "norm_rects": {}}}`)
	templates, lastUsed, skipped, err := decodeStore(raw)
	require.NoError(t, err)
	assert.Empty(t, lastUsed)
	assert.Empty(t, skipped)
	require.Contains(t, templates, "A")
	assert.Equal(t, 2024, templates["A"].CreatedAt.Year())
	assert.Equal(t, 12, templates["A"].CreatedAt.Second())
}

func TestDecodeStore_Corrupt(t *testing.T) {
	_, _, _, err := decodeStore([]byte(`[1, 2]`))
	assert.ErrorIs(t, err, ErrCorruptStore)

	_, _, _, err = decodeStore([]byte(`{"__meta": "x"}`))
	assert.ErrorIs(t, err, ErrCorruptStore)
}
