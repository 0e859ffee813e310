package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/afero"

	"github.com/a3tai/mcp-customs-roi/internal/config"
	"github.com/a3tai/mcp-customs-roi/internal/descriptions"
	"github.com/a3tai/mcp-customs-roi/internal/export"
	"github.com/a3tai/mcp-customs-roi/internal/extraction"
	"github.com/a3tai/mcp-customs-roi/internal/fields"
	"github.com/a3tai/mcp-customs-roi/internal/pdf"
	"github.com/a3tai/mcp-customs-roi/internal/template"
)

const shutdownTimeout = 5 * time.Second

// Server represents the MCP server instance
type Server struct {
	config     *config.Config
	store      *template.Store
	pipeline   *extraction.Pipeline
	writer     *export.Writer
	normalizer *fields.Normalizer
	validator  *pdf.Validator
	logger     *slog.Logger
	mcpServer  *server.MCPServer

	// fs holds the documents and exports; the store has its own.
	fs  afero.Fs
	now func() time.Time

	stdin  io.Reader
	stdout io.Writer

	// mu serialises store access; the store itself is not safe for
	// concurrent use and SSE clients may call tools in parallel.
	mu sync.Mutex
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, store *template.Store, pipeline *extraction.Pipeline,
	writer *export.Writer, logger *slog.Logger,
) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("template store cannot be nil")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("extraction pipeline cannot be nil")
	}
	if writer == nil {
		writer = export.NewWriter(logger)
	}
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false), // The tool set is fixed
	)

	s := &Server{
		config:     cfg,
		store:      store,
		pipeline:   pipeline,
		writer:     writer,
		normalizer: fields.NewNormalizer(nil),
		validator:  pdf.NewValidator(cfg.MaxFileSize),
		logger:     logger,
		mcpServer:  mcpServer,
		fs:         afero.NewOsFs(),
		now:        time.Now,
		stdin:      os.Stdin,
		stdout:     os.Stdout,
	}

	s.registerTools()
	s.reportLastUsed()

	return s, nil
}

// reportLastUsed logs the template that will be used by default.
func (s *Server) reportLastUsed() {
	name := s.store.LastUsedName()
	switch t, ok := s.store.LastUsed(); {
	case ok:
		s.logger.Info("template.autoload", "template", t.Name, "dpi", t.DPI, "store", s.store.Path())
	case name != "":
		s.logger.Warn("template.autoload.missing", "template", name, "store", s.store.Path())
	default:
		s.logger.Info("template.autoload.none", "templates", s.store.Len(), "store", s.store.Path())
	}
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	nameParam := func(desc string) mcp.ToolOption {
		return mcp.WithString("name", mcp.Required(), mcp.Description(desc))
	}
	pathParam := mcp.WithString("path",
		mcp.Required(),
		mcp.Description("Full path to the PDF file"),
	)

	s.mcpServer.AddTool(mcp.NewTool("template_list",
		mcp.WithDescription(descriptions.TemplateListDescription),
	), s.handleTemplateList)

	s.mcpServer.AddTool(mcp.NewTool("template_show",
		mcp.WithDescription(descriptions.TemplateShowDescription),
		nameParam("Template name"),
	), s.handleTemplateShow)

	s.mcpServer.AddTool(mcp.NewTool("template_save",
		mcp.WithDescription(descriptions.TemplateSaveDescription),
		nameParam("Template name; an existing template with this name is replaced"),
		mcp.WithString("regions",
			mcp.Required(),
			mcp.Description(`JSON object mapping each field name to [x1, y1, x2, y2]`),
		),
		mcp.WithNumber("dpi", mcp.Description("Resolution the regions were drawn at (defaults to the configured dpi)")),
		mcp.WithNumber("width", mcp.Description("Image width in pixels when regions are pixel coordinates")),
		mcp.WithNumber("height", mcp.Description("Image height in pixels when regions are pixel coordinates")),
	), s.handleTemplateSave)

	s.mcpServer.AddTool(mcp.NewTool("template_import",
		mcp.WithDescription(descriptions.TemplateImportDescription),
		nameParam("Name to save the imported template under"),
		mcp.WithString("payload", mcp.Description("Export payload as JSON text")),
		mcp.WithString("path", mcp.Description("Path to a JSON export file, used when payload is empty")),
	), s.handleTemplateImport)

	s.mcpServer.AddTool(mcp.NewTool("template_export",
		mcp.WithDescription(descriptions.TemplateExportDescription),
		nameParam("Template name"),
		mcp.WithString("path", mcp.Description("Optional file to write the payload to")),
	), s.handleTemplateExport)

	s.mcpServer.AddTool(mcp.NewTool("template_delete",
		mcp.WithDescription(descriptions.TemplateDeleteDescription),
		nameParam("Template name"),
	), s.handleTemplateDelete)

	s.mcpServer.AddTool(mcp.NewTool("template_use",
		mcp.WithDescription(descriptions.TemplateUseDescription),
		nameParam("Template name"),
	), s.handleTemplateUse)

	s.mcpServer.AddTool(mcp.NewTool("roi_normalize",
		mcp.WithDescription(descriptions.ROINormalizeDescription),
		mcp.WithString("field", mcp.Required(), mcp.Description("Field name, e.g. 환율")),
		mcp.WithString("raw", mcp.Required(), mcp.Description("Raw text captured from the region")),
	), s.handleROINormalize)

	s.mcpServer.AddTool(mcp.NewTool("template_preview",
		mcp.WithDescription(descriptions.TemplatePreviewDescription),
		pathParam,
		mcp.WithString("template", mcp.Description("Template name (defaults to the last used template)")),
		mcp.WithNumber("max_side", mcp.Description("Shrink the image so no side exceeds this many pixels")),
	), s.handleTemplatePreview)

	s.mcpServer.AddTool(mcp.NewTool("pdf_inspect",
		mcp.WithDescription(descriptions.PDFInspectDescription),
		pathParam,
	), s.handlePDFInspect)

	s.mcpServer.AddTool(mcp.NewTool("extract_batch",
		mcp.WithDescription(descriptions.ExtractBatchDescription),
		mcp.WithString("directory", mcp.Description("Directory of PDFs (uses default if empty)")),
		mcp.WithString("paths", mcp.Description("Comma-separated PDF paths, used instead of the directory")),
		mcp.WithString("template", mcp.Description("Template name (defaults to the last used template)")),
	), s.handleExtractBatch)
}

// Run starts the MCP server in the configured mode
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsServerMode() {
		return s.runServerMode(ctx)
	}
	return s.runStdioMode(ctx)
}

// runStdioMode serves MCP over standard I/O until stdin closes or ctx ends
func (s *Server) runStdioMode(ctx context.Context) error {
	s.logger.Debug("starting stdio server", "pdf_dir", s.config.PDFDirectory, "store", s.store.Path())

	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	if err := stdio.Listen(ctx, s.stdin, s.stdout); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode serves MCP over HTTP with server-sent events
func (s *Server) runServerMode(ctx context.Context) error {
	addr := s.config.Address()
	sse := server.NewSSEServer(s.mcpServer)

	errCh := make(chan error, 1)
	go func() {
		errCh <- sse.Start(addr)
	}()
	s.logger.Info("sse server listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("sse server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sse.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("sse shutdown: %w", err)
		}
		return nil
	}
}
