package server

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config represents the complete server configuration
type Config struct {
	Server *ServerSettings `hcl:"server,block"`
	Arena  *ArenaSettings  `hcl:"arena,block"`
}

// ServerSettings contains listener and logging configuration
type ServerSettings struct {
	Address   string `hcl:"address,optional"`
	Port      int    `hcl:"port,optional"`
	LogLevel  string `hcl:"log_level,optional"`
	StaticDir string `hcl:"static_dir,optional"`
}

// ArenaSettings tunes the bot arena
type ArenaSettings struct {
	TurnTimeoutMs int   `hcl:"turn_timeout_ms,optional"`
	Seed          int64 `hcl:"seed,optional"`
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerSettings{
			Address:  "localhost",
			Port:     3000,
			LogLevel: "info",
		},
		Arena: &ArenaSettings{
			TurnTimeoutMs: 5000,
		},
	}
}

// LoadConfig loads server configuration from an HCL file. A missing file
// yields the defaults.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Server == nil {
		c.Server = defaults.Server
	}
	if c.Arena == nil {
		c.Arena = defaults.Arena
	}
	if c.Server.Address == "" {
		c.Server.Address = defaults.Server.Address
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaults.Server.Port
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = defaults.Server.LogLevel
	}
	if c.Arena.TurnTimeoutMs == 0 {
		c.Arena.TurnTimeoutMs = defaults.Arena.TurnTimeoutMs
	}
}

// Validate validates the server configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Server.LogLevel)
	}
	if c.Arena.TurnTimeoutMs <= 0 {
		return fmt.Errorf("turn timeout must be positive, got %dms", c.Arena.TurnTimeoutMs)
	}
	if c.Server.StaticDir != "" {
		info, err := os.Stat(c.Server.StaticDir)
		if err != nil {
			return fmt.Errorf("static dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("static dir %s is not a directory", c.Server.StaticDir)
		}
	}
	return nil
}

// ListenAddress returns the full server address
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// TurnTimeout returns the arena turn deadline.
func (c *Config) TurnTimeout() time.Duration {
	return time.Duration(c.Arena.TurnTimeoutMs) * time.Millisecond
}
