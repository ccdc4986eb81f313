package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/lox/nothanks/internal/arena"
	"github.com/lox/nothanks/internal/randutil"
	"github.com/lox/nothanks/internal/room"
	"github.com/lox/nothanks/internal/server"
	"github.com/lox/nothanks/sdk"
	"github.com/lox/nothanks/sdk/bots/random"
	"github.com/lox/nothanks/sdk/bots/smart"
)

func newLogger(level string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	switch strings.ToLower(level) {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}
	return logger
}

// signalContext is cancelled on interrupt or SIGTERM.
func signalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Received signal, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// seededRand returns a generator for seed, or a time-seeded one when seed is
// nil. The seed in use is logged so a run can be replayed.
func seededRand(logger *log.Logger, seed *int64) *randutil.Rand {
	if seed != nil {
		logger.Info("Using deterministic seed", "seed", *seed)
		return randutil.New(*seed)
	}
	rng, s := randutil.NewFromTime()
	logger.Info("Using random seed", "seed", s)
	return rng
}

// newServer wires the arena and the room directory behind the transport.
func newServer(logger *log.Logger, cfg *server.Config, rng *randutil.Rand) (*server.Server, *arena.Arena) {
	acfg := arena.DefaultConfig()
	acfg.TurnTimeout = cfg.TurnTimeout()
	a := arena.New(logger, rng, acfg)
	rooms := room.NewDirectory(logger, rng.Fork(), acfg.Clock)
	return server.New(logger, a, rooms, cfg.Server.StaticDir), a
}

func newStrategy(name string, rng *randutil.Rand) (sdk.Strategy, error) {
	switch name {
	case "random":
		return random.New(rng), nil
	case "smart":
		return smart.New(), nil
	}
	return nil, fmt.Errorf("unknown strategy %q", name)
}
