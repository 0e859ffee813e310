package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/a3tai/mcp-customs-roi/internal/config"
)

const testVersion = "1.2.3"

// captureStdout runs fn with os.Stdout redirected to a pipe.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	originalStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Failed to create pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = originalStdout }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
		w.Close()
	}()

	var buf bytes.Buffer
	io.Copy(&buf, r)
	<-done
	return buf.String()
}

func TestPrintVersion(t *testing.T) {
	tests := []struct {
		name      string
		version   string
		buildTime string
		gitCommit string
	}{
		{"release build", testVersion, "2024-03-05_10:30:00", "abc123"},
		{"defaults", "dev", "unknown", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldVersion, oldBuildTime, oldGitCommit := version, buildTime, gitCommit
			version, buildTime, gitCommit = tt.version, tt.buildTime, tt.gitCommit
			defer func() { version, buildTime, gitCommit = oldVersion, oldBuildTime, oldGitCommit }()

			output := captureStdout(t, printVersion)

			for _, expected := range []string{
				"MCP Customs ROI",
				"Version: " + tt.version,
				"Build Time: " + tt.buildTime,
				"Git Commit: " + tt.gitCommit,
				"Built with:",
			} {
				if !strings.Contains(output, expected) {
					t.Errorf("printVersion() output missing expected string: %s\nActual output:\n%s", expected, output)
				}
			}
		})
	}
}

func TestSetupLogging(t *testing.T) {
	tests := []struct {
		name      string
		config    *config.Config
		wantLines bool
		wantJSON  bool
	}{
		{
			name:      "stdio mode - debug enabled",
			config:    &config.Config{Mode: "stdio", LogLevel: "debug"},
			wantLines: true,
		},
		{
			name:   "stdio mode - debug disabled",
			config: &config.Config{Mode: "stdio", LogLevel: "info"},
		},
		{
			name:      "server mode",
			config:    &config.Config{Mode: "server", LogLevel: "info"},
			wantLines: true,
			wantJSON:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := setupLogging(tt.config, &buf)
			logger.Info("template.autoload", "template", "busan")

			output := buf.String()
			if tt.wantLines != (output != "") {
				t.Errorf("setupLogging() wrote %q, want output: %v", output, tt.wantLines)
			}
			if tt.wantJSON && !strings.HasPrefix(output, "{") {
				t.Errorf("setupLogging() server mode should log JSON, got %q", output)
			}
		})
	}
}

func TestSetupLogging_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogging(&config.Config{Mode: "server", LogLevel: "warn"}, &buf)

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info record should be filtered at warn level, got %q", buf.String())
	}
	logger.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("warn record missing from output: %q", buf.String())
	}

	if !logger.Enabled(context.Background(), logLevels["error"]) {
		t.Errorf("error level should be enabled")
	}
}
