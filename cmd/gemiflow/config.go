package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gemihub/gemiflow/internal/services"
)

// Config holds all gemiflow server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr        string                              `json:"listen_addr"`
	DBPath            string                              `json:"db_path"`
	LogLevel          string                              `json:"log_level"`
	GeminiBaseURL     string                              `json:"gemini_base_url"`
	GeminiToken       string                              `json:"gemini_token"`
	MCPServers        map[string]services.MCPServerConfig `json:"mcp_servers"`
	MaxLoopIterations int                                 `json:"max_loop_iterations"`
	MaxWorkflowDepth  int                                 `json:"max_workflow_depth"`
	Scheduler         bool                                `json:"scheduler"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr: ":4200",
		DBPath:     filepath.Join(gemiflowDir(), "gemiflow.db"),
		LogLevel:   "info",
		Scheduler:  true,
	}
}

func gemiflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gemiflow"
	}
	return filepath.Join(home, ".gemiflow")
}

func settingsPath() string {
	return filepath.Join(gemiflowDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("GEMIFLOW_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("GEMIFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("GEMIFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GEMIFLOW_GEMINI_BASE_URL"); v != "" {
		cfg.GeminiBaseURL = v
	}
	if v := os.Getenv("GEMIFLOW_GEMINI_TOKEN"); v != "" {
		cfg.GeminiToken = v
	}
	if v := os.Getenv("GEMIFLOW_MAX_LOOP_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxLoopIterations = n
		}
	}
	if v := os.Getenv("GEMIFLOW_MAX_WORKFLOW_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxWorkflowDepth = n
		}
	}
	if v := os.Getenv("GEMIFLOW_SCHEDULER"); v != "" {
		cfg.Scheduler = v == "true" || v == "1"
	}

	return cfg
}
