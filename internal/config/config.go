// Package config loads and hot-reloads the daemon's YAML configuration
// (§6): workspaces, server binding, command allow/deny lists, approval
// policy, logging, and global deny patterns.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Workspace is one entry of the `workspaces` list.
type Workspace struct {
	Name         string   `yaml:"name"`
	Path         string   `yaml:"path"`
	Tier         string   `yaml:"tier"`
	DenyPatterns []string `yaml:"denyPatterns"`
	AllowVCS     bool     `yaml:"allowVcs"`
}

// Server is the `server` section: listener binding and transport.
type Server struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Transport string `yaml:"transport"`
}

// Commands is the `commands` section feeding cmdguard's user layers.
type Commands struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
}

// Approvals is the `approvals` section.
type Approvals struct {
	RequireWriteApproval bool     `yaml:"requireWriteApproval"`
	RequireExecApproval  bool     `yaml:"requireExecApproval"`
	AutoApprovePatterns  []string `yaml:"autoApprovePatterns"`
	ApprovalTimeoutMs    int      `yaml:"approvalTimeoutMs"`
}

// Logging is the `logging` section.
type Logging struct {
	Level      string `yaml:"level"`
	JSONLogs   bool   `yaml:"jsonLogs"`
	Timestamps bool   `yaml:"timestamps"`
	LogDir     string `yaml:"logDir"`
}

// Config is the top-level YAML document described in §6.
type Config struct {
	Version            int         `yaml:"version"`
	Workspaces         []Workspace `yaml:"workspaces"`
	DefaultWorkspace   string      `yaml:"defaultWorkspace"`
	Server             Server      `yaml:"server"`
	Commands           Commands    `yaml:"commands"`
	Approvals          Approvals   `yaml:"approvals"`
	Logging            Logging     `yaml:"logging"`
	GlobalDenyPatterns []string    `yaml:"globalDenyPatterns"`
}

// DefaultConfig mirrors the teacher's DefaultConfig: a fully populated,
// immediately runnable configuration before any file is read.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Server: Server{
			Host:      "127.0.0.1",
			Port:      3847,
			Transport: "http",
		},
		Approvals: Approvals{
			RequireWriteApproval: true,
			RequireExecApproval:  true,
			ApprovalTimeoutMs:    300_000,
		},
		Logging: Logging{
			Level:      "info",
			Timestamps: true,
		},
	}
}

// DataDir returns warden's data directory, honoring WARDEN_DATA_DIR.
func DataDir() string {
	if dir := os.Getenv("WARDEN_DATA_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".warden")
}

// GlobalConfigPath is the default location of workspaces.yaml.
func GlobalConfigPath() string {
	return filepath.Join(DataDir(), "workspaces.yaml")
}

// LoadGlobal loads the configuration from GlobalConfigPath.
func LoadGlobal() (*Config, error) {
	return LoadGlobalFrom(GlobalConfigPath())
}

// LoadGlobalFrom loads cfg from path, returning DefaultConfig() untouched
// if the file does not exist.
func LoadGlobalFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Version != 1 {
		return nil, fmt.Errorf("%s: unsupported version %d, want 1", path, cfg.Version)
	}
	return cfg, nil
}

// SaveGlobal writes cfg to GlobalConfigPath, creating parent directories.
func SaveGlobal(cfg *Config) error {
	path := GlobalConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Workspace looks up a workspace by name, falling back to
// DefaultWorkspace when name is empty.
func (c *Config) Workspace(name string) (Workspace, bool) {
	if name == "" {
		name = c.DefaultWorkspace
	}
	for _, w := range c.Workspaces {
		if w.Name == name {
			return w, true
		}
	}
	return Workspace{}, false
}
