// Command gemiflow runs the workflow engine: an HTTP server with live
// event streaming, plus local run and validate helpers.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/gemihub/gemiflow/internal/engine"
	"github.com/gemihub/gemiflow/internal/expressions"
	"github.com/gemihub/gemiflow/internal/handlers"
	"github.com/gemihub/gemiflow/internal/logging"
	"github.com/gemihub/gemiflow/internal/services"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "gemiflow",
		Short:         "Workflow execution engine for Gemini workspaces",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newRunCmd(), newValidateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newLogger builds the CLI logger: tint for readable terminal output,
// wrapped so context correlation IDs show up automatically.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
	})
	return slog.New(logging.NewCorrelationHandler(handler))
}

// buildServices wires the external collaborators from config. Without a
// configured gateway the local echo workspace keeps workflows runnable.
func buildServices(cfg Config) *engine.Services {
	var workspace services.Workspace
	if cfg.GeminiBaseURL != "" {
		workspace = services.NewGeminiClient(cfg.GeminiBaseURL, cfg.GeminiToken)
	} else {
		workspace = services.EchoWorkspace{}
	}

	conditions, err := expressions.NewCELEngine()
	if err != nil {
		panic(fmt.Sprintf("cel environment: %v", err))
	}

	return &engine.Services{
		Drive:      services.NewMemoryDrive(),
		Workspace:  workspace,
		MCP:        services.NewMCPManager(cfg.MCPServers),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Conditions: conditions,
		Arithmetic: expressions.NewExprEngine(),
		JQ:         expressions.NewGoJQEngine(),
	}
}

func buildRegistry() *engine.Registry {
	registry := engine.NewRegistry()
	registry.MustRegister(handlers.All()...)
	return registry
}
