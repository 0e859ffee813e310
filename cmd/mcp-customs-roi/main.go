package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/afero"

	"github.com/a3tai/mcp-customs-roi/internal/config"
	"github.com/a3tai/mcp-customs-roi/internal/export"
	"github.com/a3tai/mcp-customs-roi/internal/extraction"
	"github.com/a3tai/mcp-customs-roi/internal/mcp"
	"github.com/a3tai/mcp-customs-roi/internal/template"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// logLevels maps configuration values to slog levels
var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// setupLogging builds the logger for the configured mode. In stdio mode
// stdout carries the MCP protocol, so logs go to stderr and only when
// debug is enabled.
func setupLogging(cfg *config.Config, stderr io.Writer) *slog.Logger {
	level := logLevels[cfg.LogLevel]

	if cfg.IsStdioMode() {
		if !cfg.IsDebug() {
			return slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	}

	// Server mode logs everything at the configured level, with sources
	return slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level, AddSource: true}))
}

// runServerMode handles server mode execution with signal handling
func runServerMode(ctx context.Context, cancel context.CancelFunc, server *mcp.Server, logger *slog.Logger) int {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signalCh)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Run(ctx)
	}()

	select {
	case sig := <-signalCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()

		if err := <-serverErrCh; err != nil {
			logger.Error("server shutdown with error", "error", err)
			return 1
		}

	case err := <-serverErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			return 1
		}
	}

	logger.Info("server stopped")
	return 0
}

// runStdioMode handles stdio mode execution. The parent process controls
// our lifecycle; the session ends when stdin closes.
func runStdioMode(ctx context.Context, server *mcp.Server, logger *slog.Logger) int {
	if err := server.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}

func run() int {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return 0
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	logger := setupLogging(cfg, os.Stderr)
	slog.SetDefault(logger)

	// Set version if it was provided during build
	if version != "dev" {
		cfg.Version = version
	}

	logger.Debug("starting", "config", cfg.String())

	store := template.Load(cfg.TemplatesPath,
		template.WithFs(afero.NewOsFs()),
		template.WithLogger(logger),
	)
	pipeline := extraction.NewPipeline(
		extraction.WithMaxFileSize(cfg.MaxFileSize),
		extraction.WithLogger(logger),
	)

	server, err := mcp.NewServer(cfg, store, pipeline, export.NewWriter(logger), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create MCP server: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.IsServerMode() {
		return runServerMode(ctx, cancel, server, logger)
	}
	return runStdioMode(ctx, server, logger)
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("MCP Customs ROI\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
