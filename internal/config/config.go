// Package config loads evoloop configuration from .evoloop/config.yaml,
// applies defaults and honors environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides.
const (
	EnvIntervalMS = "EVOLOOP_INTERVAL_MS" // scheduler interval override, milliseconds
	EnvReportTool = "EVOLOOP_REPORT_TOOL" // report renderer override
	EnvRuntimeBin = "EVOLOOP_RUNTIME_BIN" // agent runtime binary for the bridge
)

// DataDirName is the per-workspace data root.
const DataDirName = ".evoloop"

// Config holds all evoloop settings.
type Config struct {
	// Strategy is the active preset name; empty means auto-detection
	// from recent mutation history.
	Strategy string `yaml:"strategy"`

	// Agent is the default agent whose sessions are read.
	Agent string `yaml:"agent"`

	// SessionsDir holds the agent's JSONL transcripts.
	SessionsDir string `yaml:"sessions_dir"`

	// SessionWindow is how many recent transcripts a cycle reads.
	SessionWindow int `yaml:"session_window"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
	Solidify  SolidifyConfig  `yaml:"solidify"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Report    ReportConfig    `yaml:"report"`
}

// SchedulerConfig tunes the reflection timer loop.
type SchedulerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// SolidifyConfig tunes the validation step.
type SolidifyConfig struct {
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// BridgeConfig configures the agent-runtime collaborator.
type BridgeConfig struct {
	RuntimeBin      string        `yaml:"runtime_bin"`
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
}

// ReportConfig configures report rendering.
type ReportConfig struct {
	Tool string `yaml:"tool"`
}

// Default returns the configuration used when no file exists.
func Default(workspace string) *Config {
	return &Config{
		SessionWindow: 3,
		SessionsDir:   filepath.Join(workspace, "sessions"),
		Scheduler:     SchedulerConfig{Interval: 3 * time.Hour},
		Solidify:      SolidifyConfig{CommandTimeout: 30 * time.Second},
		Bridge:        BridgeConfig{DispatchTimeout: 10 * time.Minute},
		Report:        ReportConfig{Tool: "builtin"},
	}
}

// DataDir returns the data root for a workspace.
func DataDir(workspace string) string {
	return filepath.Join(workspace, DataDirName)
}

// Load reads the workspace config, falling back to defaults when the file
// is absent, and applies environment overrides last.
func Load(workspace string) (*Config, error) {
	cfg := Default(workspace)

	path := filepath.Join(DataDir(workspace), "config.yaml")
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// defaults stand
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	fillDefaults(cfg, workspace)
	return cfg, nil
}

// Save writes the configuration to the workspace data root.
func Save(workspace string, cfg *Config) error {
	dir := DataDir(workspace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: create %s: %w", dir, err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if ms := os.Getenv(EnvIntervalMS); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 {
			cfg.Scheduler.Interval = time.Duration(v) * time.Millisecond
		}
	}
	if tool := os.Getenv(EnvReportTool); tool != "" {
		cfg.Report.Tool = tool
	}
	if bin := os.Getenv(EnvRuntimeBin); bin != "" {
		cfg.Bridge.RuntimeBin = bin
	}
}

func fillDefaults(cfg *Config, workspace string) {
	def := Default(workspace)
	if cfg.SessionWindow <= 0 {
		cfg.SessionWindow = def.SessionWindow
	}
	if cfg.SessionsDir == "" {
		cfg.SessionsDir = def.SessionsDir
	}
	if cfg.Scheduler.Interval <= 0 {
		cfg.Scheduler.Interval = def.Scheduler.Interval
	}
	if cfg.Solidify.CommandTimeout <= 0 {
		cfg.Solidify.CommandTimeout = def.Solidify.CommandTimeout
	}
	if cfg.Bridge.DispatchTimeout <= 0 {
		cfg.Bridge.DispatchTimeout = def.Bridge.DispatchTimeout
	}
	if cfg.Report.Tool == "" {
		cfg.Report.Tool = def.Report.Tool
	}
}
