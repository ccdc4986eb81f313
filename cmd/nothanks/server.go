package main

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/lox/nothanks/internal/server"
)

// ServerCmd runs the game server. Flags and NOTHANKS_* variables override the
// HCL file.
type ServerCmd struct {
	Config      string        `short:"c" default:"nothanks.hcl" env:"NOTHANKS_CONFIG" help:"Path to HCL configuration file"`
	Addr        string        `short:"a" env:"NOTHANKS_ADDR" help:"Address to bind, host:port (overrides config)"`
	LogLevel    string        `short:"l" env:"NOTHANKS_LOG_LEVEL" help:"Log level: debug, info, warn, error (overrides config)"`
	StaticDir   string        `env:"NOTHANKS_STATIC_DIR" help:"Directory of web pages to serve (overrides config)"`
	TurnTimeout time.Duration `env:"NOTHANKS_TURN_TIMEOUT" help:"Bot turn deadline (overrides config)"`
	Seed        *int64        `env:"NOTHANKS_SEED" help:"Deterministic RNG seed (overrides config)"`
}

func (c *ServerCmd) Run() error {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := c.apply(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.Server.LogLevel)
	var seed *int64
	if cfg.Arena.Seed != 0 {
		seed = &cfg.Arena.Seed
	}
	rng := seededRand(logger, seed)

	srv, _ := newServer(logger, cfg, rng)
	logger.Info("Starting No Thanks server",
		"addr", cfg.ListenAddress(),
		"turnTimeout", cfg.TurnTimeout(),
		"static", cfg.Server.StaticDir)

	ctx, cancel := signalContext(logger)
	defer cancel()
	return srv.ListenAndServe(ctx, cfg.ListenAddress())
}

// apply copies the set flags over the file configuration.
func (c *ServerCmd) apply(cfg *server.Config) error {
	if c.Addr != "" {
		host, port, err := net.SplitHostPort(c.Addr)
		if err != nil {
			return fmt.Errorf("invalid address %q: %w", c.Addr, err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", port, err)
		}
		cfg.Server.Address = host
		cfg.Server.Port = p
	}
	if c.LogLevel != "" {
		cfg.Server.LogLevel = c.LogLevel
	}
	if c.StaticDir != "" {
		cfg.Server.StaticDir = c.StaticDir
	}
	if c.TurnTimeout != 0 {
		cfg.Arena.TurnTimeoutMs = int(c.TurnTimeout / time.Millisecond)
	}
	if c.Seed != nil {
		cfg.Arena.Seed = *c.Seed
	}
	return nil
}
