package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/afero"

	"github.com/a3tai/mcp-customs-roi/internal/export"
	"github.com/a3tai/mcp-customs-roi/internal/extraction"
	"github.com/a3tai/mcp-customs-roi/internal/fields"
	"github.com/a3tai/mcp-customs-roi/internal/geometry"
	"github.com/a3tai/mcp-customs-roi/internal/pdf"
	"github.com/a3tai/mcp-customs-roi/internal/template"
)

const (
	defaultPreviewSide = 1600
	maxListedIssues    = 20
)

// Template handlers

func (s *Server) handleTemplateList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := s.store.Names()
	if len(names) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No templates saved in %s", s.store.Path())), nil
	}

	lastUsed := s.store.LastUsedName()
	text := fmt.Sprintf("%d template(s) in %s\n\n", len(names), s.store.Path())
	for i, name := range names {
		t, _ := s.store.Get(name)
		text += fmt.Sprintf("%d. %s (%g dpi)", i+1, name, t.DPI)
		if name == lastUsed {
			text += " [last used]"
		}
		if !t.Complete() {
			text += fmt.Sprintf(" INCOMPLETE: %d field(s) missing", len(t.Regions.Missing()))
		}
		text += "\n"
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleTemplateShow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.mu.Lock()
	t, ok := s.store.Get(name)
	s.mu.Unlock()
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("template not found: %s", name)), nil
	}

	data, err := template.Export(t)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Template %s\n\n%s", t.Name, data)), nil
}

func (s *Server) handleTemplateSave(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawRegions, err := request.RequireString("regions")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	dpi := numberArg(args, "dpi", s.config.DPI)
	width := numberArg(args, "width", 0)
	height := numberArg(args, "height", 0)

	regions, err := parseRegions(rawRegions, width, height)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.store.Upsert(name, dpi, regions)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("template not saved: %v", err)), nil
	}
	s.logger.Info("template.saved", "template", t.Name, "dpi", t.DPI)
	s.markLastUsed(t.Name)

	return mcp.NewToolResultText(fmt.Sprintf("Saved template %s (%g dpi, %d regions) to %s",
		t.Name, t.DPI, len(t.Regions), s.store.Path())), nil
}

func (s *Server) handleTemplateImport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	raw := []byte(stringArg(args, "payload"))
	if len(strings.TrimSpace(string(raw))) == 0 {
		path := stringArg(args, "path")
		if path == "" {
			return mcp.NewToolResultError("either payload or path is required"), nil
		}
		if raw, err = afero.ReadFile(s.fs, path); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read %s: %v", path, err)), nil
		}
	}

	dpi, regions, err := template.Import(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("import failed: %v", err)), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.store.Upsert(name, dpi, regions)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("import failed: %v", err)), nil
	}
	s.logger.Info("template.imported", "template", t.Name, "dpi", t.DPI)
	s.markLastUsed(t.Name)

	return mcp.NewToolResultText(fmt.Sprintf("Imported template %s (%g dpi)", t.Name, t.DPI)), nil
}

func (s *Server) handleTemplateExport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.mu.Lock()
	t, ok := s.store.Get(name)
	s.mu.Unlock()
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("template not found: %s", name)), nil
	}

	data, err := template.Export(t)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	path := stringArg(request.GetArguments(), "path")
	if path == "" {
		return mcp.NewToolResultText(string(data)), nil
	}
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to write %s: %v", path, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Exported template %s to %s", name, path)), nil
}

func (s *Server) handleTemplateDelete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(name); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.logger.Info("template.deleted", "template", name)
	return mcp.NewToolResultText(fmt.Sprintf("Deleted template %s", name)), nil
}

func (s *Server) handleTemplateUse(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.SetLastUsed(name); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Template %s will be used by default", name)), nil
}

// Normalization and preview handlers

func (s *Server) handleROINormalize(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fieldName, err := request.RequireString("field")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := request.RequireString("raw")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	f, ok := fields.Parse(fieldName)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown field %q (expected one of: %s)",
			fieldName, strings.Join(fields.Names(), ", "))), nil
	}

	v := s.normalizer.Normalize(f, raw)
	text := fmt.Sprintf("%s: %s", f.Name(), v.String())
	if v.Empty() {
		text += "\n(no value recognised)"
	} else if f == fields.DeclarationDate && fields.IsDateSentinel(v.Text) {
		text += "\n(date not recognised, placeholder used)"
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleTemplatePreview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := request.GetArguments()

	t, err := s.resolveTemplate(stringArg(args, "template"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := s.readPDF(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := pdf.Open(data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// Swatches carry the field's catalog number; the caption maps numbers
	// to names.
	regions := make([]pdf.OverlayRegion, 0, len(t.Regions))
	var legend []string
	for _, f := range fields.All() {
		if rect, ok := t.Regions[f]; ok {
			label := strconv.Itoa(int(f) + 1)
			regions = append(regions, pdf.OverlayRegion{Rect: rect, Color: f.Color(), Label: label})
			legend = append(legend, fmt.Sprintf("%s %s", label, f.Name()))
		}
	}

	maxSide := int(numberArg(args, "max_side", defaultPreviewSide))
	png, err := pdf.RenderOverlay(doc, regions, pdf.OverlayOptions{DPI: t.DPI, MaxSide: maxSide})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	caption := fmt.Sprintf("Template %s over %s (%d regions)\n%s",
		t.Name, filepath.Base(path), len(regions), strings.Join(legend, ", "))
	return mcp.NewToolResultImage(caption, base64.StdEncoding.EncodeToString(png), "image/png"), nil
}

func (s *Server) handlePDFInspect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := s.readPDF(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := pdf.Inspect(data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatInspectResult(path, int64(len(data)), info)), nil
}

// Extraction handler

func (s *Server) handleExtractBatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	s.mu.Lock()
	defer s.mu.Unlock()

	name := stringArg(args, "template")
	t, err := s.lookupTemplate(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	docs, err := s.collectDocuments(stringArg(args, "directory"), splitPaths(stringArg(args, "paths")))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(docs) == 0 {
		return mcp.NewToolResultError("no PDF files to process"), nil
	}

	table, issues, err := s.pipeline.RunBatch(docs, t)
	if err != nil {
		text := fmt.Sprintf("Batch failed: %v\n", err)
		if issues != nil && issues.Len() > 0 {
			text += "\n" + formatIssues(issues)
		}
		return mcp.NewToolResultError(text), nil
	}

	data, err := s.writer.Write(table, issues)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to build workbook: %v", err)), nil
	}
	out := filepath.Join(s.config.OutputDirectory, export.FileName(s.now()))
	if err := s.fs.MkdirAll(s.config.OutputDirectory, 0o750); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create output directory: %v", err)), nil
	}
	if err := afero.WriteFile(s.fs, out, data, 0o644); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to write %s: %v", out, err)), nil
	}

	if name != "" {
		s.markLastUsed(t.Name)
	}

	return mcp.NewToolResultText(s.formatBatchResult(t, len(docs), table, issues, out)), nil
}

// Helpers

// lookupTemplate returns the named template, or the last used one when
// name is empty. Callers hold s.mu.
func (s *Server) lookupTemplate(name string) (*template.Template, error) {
	if name == "" {
		t, ok := s.store.LastUsed()
		if !ok {
			return nil, errors.New("no template given and no last used template")
		}
		return t, nil
	}
	t, ok := s.store.Get(name)
	if !ok {
		return nil, fmt.Errorf("template not found: %s", name)
	}
	return t, nil
}

// markLastUsed points the store at name. The template itself is already
// saved, so a failure here is only logged. Callers hold s.mu.
func (s *Server) markLastUsed(name string) {
	if err := s.store.SetLastUsed(name); err != nil {
		s.logger.Warn("template.last_used.failed", "template", name, "error", err)
	}
}

func (s *Server) resolveTemplate(name string) (*template.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupTemplate(name)
}

// readPDF checks name and size before reading the whole file.
func (s *Server) readPDF(path string) ([]byte, error) {
	if err := s.validator.CheckName(path); err != nil {
		return nil, err
	}
	info, err := s.fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory: %s", path)
	}
	if err := s.validator.CheckSize(path, info.Size()); err != nil {
		return nil, err
	}
	return afero.ReadFile(s.fs, path)
}

// collectDocuments reads the given files, or every PDF in dir when paths
// is empty. Directory entries are taken in name order. A file that cannot
// be read is kept with its error so the batch reports it and moves on.
func (s *Server) collectDocuments(dir string, paths []string) ([]extraction.Document, error) {
	if len(paths) == 0 {
		if dir == "" {
			dir = s.config.PDFDirectory
		}
		entries, err := afero.ReadDir(s.fs, dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || s.validator.CheckName(e.Name()) != nil {
				continue
			}
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}

	docs := make([]extraction.Document, 0, len(paths))
	for _, p := range paths {
		data, err := afero.ReadFile(s.fs, p)
		if err != nil {
			s.logger.Warn("document.read.failed", "path", p, "error", err)
		}
		docs = append(docs, extraction.Document{Name: filepath.Base(p), Data: data, Err: err})
	}
	return docs, nil
}

// parseRegions decodes {field: [x1,y1,x2,y2]}. With a positive width and
// height the values are pixels and are normalized against that size.
func parseRegions(raw string, width, height float64) (template.Regions, error) {
	var in map[string][4]float64
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, fmt.Errorf("regions must be a JSON object of [x1, y1, x2, y2] arrays: %w", err)
	}

	pixels := width > 0 || height > 0
	regions := make(template.Regions, len(in))
	for name, v := range in {
		f, ok := fields.Parse(name)
		if !ok {
			return nil, fmt.Errorf("unknown field %q", name)
		}
		if !pixels {
			regions[f] = geometry.NormalizedRect{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}
			continue
		}
		r := geometry.RectFromCorners(geometry.Point{X: v[0], Y: v[1]}, geometry.Point{X: v[2], Y: v[3]})
		n, err := geometry.ToNormalized(r, width, height)
		if err != nil {
			return nil, err
		}
		regions[f] = n
	}
	return regions, nil
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func numberArg(args map[string]any, key string, def float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func splitPaths(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Formatting methods

func (s *Server) formatInspectResult(path string, size int64, info *pdf.Info) string {
	text := "PDF Structure\n"
	text += fmt.Sprintf("File: %s\n", path)
	text += fmt.Sprintf("Size: %d bytes\n", size)
	if info.Version != "" {
		text += fmt.Sprintf("Version: %s\n", info.Version)
	}
	text += fmt.Sprintf("Pages: %d\n", info.PageCount)
	text += fmt.Sprintf("Encrypted: %t\n", info.Encrypted)
	for i, p := range info.Pages {
		text += fmt.Sprintf("  Page %d: %.1f x %.1f pt\n", i+1, p.Width, p.Height)
	}
	if info.PageCount > 1 {
		text += "\nOnly the first page is used for extraction.\n"
	}
	return text
}

func (s *Server) formatBatchResult(t *template.Template, submitted int, table *extraction.Table,
	issues *extraction.IssueLog, out string,
) string {
	text := fmt.Sprintf("Extracted %d record(s) from %d document(s) with template %s\n",
		table.Len(), submitted, t.Name)
	text += fmt.Sprintf("Run: %s\n", table.RunID)
	text += fmt.Sprintf("Workbook: %s\n", out)
	text += issues.Summary() + "\n"

	text += "\nRecords:\n"
	for i, rec := range table.Records {
		text += fmt.Sprintf("%d. %s  %s  %s  %s\n", i+1, rec.Document,
			rec.Get(fields.DeclarationDate).String(),
			rec.Get(fields.ReferenceNumber).String(),
			rec.Get(fields.DeclarationNumber).String())
	}

	if issues.Len() > 0 {
		text += "\n" + formatIssues(issues)
	}
	return text
}

func formatIssues(issues *extraction.IssueLog) string {
	text := "Issues:\n"
	for i, is := range issues.All() {
		if i >= maxListedIssues {
			text += fmt.Sprintf("  ... and %d more (see the issues sheet)\n", issues.Len()-maxListedIssues)
			break
		}
		text += fmt.Sprintf("  %s\n", is.String())
	}
	return text
}
