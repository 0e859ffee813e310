package pdf

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageSize is a page's dimensions in points.
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Info summarises a document's structure.
type Info struct {
	Version   string     `json:"version"`
	PageCount int        `json:"page_count"`
	Pages     []PageSize `json:"pages"`
	Encrypted bool       `json:"encrypted"`
}

// Inspect reads the document structure with pdfcpu in relaxed validation
// mode. It complements Open, which only looks at the first page.
func Inspect(data []byte) (info *Info, err error) {
	defer func() {
		if r := recover(); r != nil {
			info = nil
			err = &ReadError{Op: "inspect", Err: fmt.Errorf("parser panic: %v", r)}
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, &ReadError{Op: "inspect", Err: fmt.Errorf("failed to read PDF context: %w", err)}
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, &ReadError{Op: "inspect", Err: fmt.Errorf("failed to ensure page count: %w", err)}
	}

	info = &Info{
		PageCount: ctx.PageCount,
		Encrypted: ctx.Encrypt != nil,
	}
	if ctx.HeaderVersion != nil {
		info.Version = ctx.HeaderVersion.String()
	}

	dims, err := ctx.PageDims()
	if err != nil {
		return nil, &ReadError{Op: "inspect", Err: fmt.Errorf("failed to read page sizes: %w", err)}
	}
	for _, d := range dims {
		info.Pages = append(info.Pages, PageSize{Width: d.Width, Height: d.Height})
	}
	return info, nil
}
