// Command roi-batch extracts declaration fields from PDFs with a saved
// template and writes an XLSX workbook, without an MCP client.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/a3tai/mcp-customs-roi/internal/config"
	"github.com/a3tai/mcp-customs-roi/internal/export"
	"github.com/a3tai/mcp-customs-roi/internal/extraction"
	"github.com/a3tai/mcp-customs-roi/internal/fields"
	"github.com/a3tai/mcp-customs-roi/internal/pdf"
	"github.com/a3tai/mcp-customs-roi/internal/template"
)

var version = "dev" // This will be set by build flags

func main() {
	os.Exit(run(os.Args[1:], afero.NewOsFs(), os.Stdout, os.Stderr, time.Now))
}

// run executes one batch. PDFs are the positional arguments, or every PDF
// in --dir when none are given.
func run(args []string, fs afero.Fs, stdout, stderr io.Writer, now func() time.Time) int {
	flags := pflag.NewFlagSet("roi-batch", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	templateName := flags.String("template", "", "Template name (defaults to the last used template)")
	list := flags.Bool("list", false, "List saved templates and exit")

	cfg, err := config.LoadFromFlagSet(flags, args)
	if errors.Is(err, config.ErrVersionRequested) {
		fmt.Fprintf(stdout, "roi-batch %s\n", version)
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	level := slog.LevelWarn
	if cfg.IsDebug() {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	store := template.Load(cfg.TemplatesPath, template.WithFs(fs), template.WithLogger(logger))
	if *list {
		printTemplates(stdout, store)
		return 0
	}

	tmpl, err := pickTemplate(store, *templateName)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	docs, err := readDocuments(fs, pdf.NewValidator(cfg.MaxFileSize), cfg.PDFDirectory, flags.Args())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if len(docs) == 0 {
		fmt.Fprintf(stderr, "Error: no PDF files to process\n")
		return 1
	}

	pipeline := extraction.NewPipeline(
		extraction.WithMaxFileSize(cfg.MaxFileSize),
		extraction.WithLogger(logger),
	)
	table, issues, err := pipeline.RunBatch(docs, tmpl)
	printIssues(stderr, issues)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	data, err := export.NewWriter(logger).Write(table, issues)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	out := filepath.Join(cfg.OutputDirectory, export.FileName(now()))
	if err := afero.WriteFile(fs, out, data, 0o644); err != nil {
		fmt.Fprintf(stderr, "Error: write %s: %v\n", out, err)
		return 1
	}

	if *templateName != "" {
		if err := store.SetLastUsed(tmpl.Name); err != nil {
			logger.Warn("template.last_used.failed", "template", tmpl.Name, "error", err)
		}
	}

	fmt.Fprintf(stdout, "%d record(s) from %d document(s) with template %s\n", table.Len(), len(docs), tmpl.Name)
	for _, rec := range table.Records {
		fmt.Fprintf(stdout, "  %s\t%s\t%s\n", rec.Document,
			rec.Get(fields.DeclarationDate), rec.Get(fields.ReferenceNumber))
	}
	fmt.Fprintf(stdout, "%s\n", issues.Summary())
	fmt.Fprintf(stdout, "Wrote %s\n", out)
	return 0
}

func pickTemplate(store *template.Store, name string) (*template.Template, error) {
	if name == "" {
		t, ok := store.LastUsed()
		if !ok {
			return nil, fmt.Errorf("no --template given and no last used template in %s", store.Path())
		}
		return t, nil
	}
	t, ok := store.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", template.ErrTemplateNotFound, name)
	}
	return t, nil
}

func readDocuments(fs afero.Fs, v *pdf.Validator, dir string, paths []string) ([]extraction.Document, error) {
	if len(paths) == 0 {
		entries, err := afero.ReadDir(fs, dir)
		if err != nil {
			return nil, fmt.Errorf("read directory %s: %w", dir, err)
		}
		for _, e := range entries {
			if !e.IsDir() && v.CheckName(e.Name()) == nil {
				paths = append(paths, filepath.Join(dir, e.Name()))
			}
		}
	}

	docs := make([]extraction.Document, 0, len(paths))
	for _, p := range paths {
		data, err := afero.ReadFile(fs, p)
		docs = append(docs, extraction.Document{Name: filepath.Base(p), Data: data, Err: err})
	}
	return docs, nil
}

func printTemplates(w io.Writer, store *template.Store) {
	names := store.Names()
	if len(names) == 0 {
		fmt.Fprintf(w, "No templates in %s\n", store.Path())
		return
	}
	for _, name := range names {
		marker := " "
		if name == store.LastUsedName() {
			marker = "*"
		}
		t, _ := store.Get(name)
		fmt.Fprintf(w, "%s %s (%g dpi)\n", marker, name, t.DPI)
	}
}

func printIssues(w io.Writer, issues *extraction.IssueLog) {
	if issues == nil {
		return
	}
	for _, is := range issues.All() {
		fmt.Fprintln(w, is.String())
	}
}
