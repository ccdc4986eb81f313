package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/lox/nothanks/internal/randutil"
	"github.com/lox/nothanks/internal/server"
	"github.com/lox/nothanks/sdk"
)

// SpawnCmd runs a server and a bot fleet in one process, then prints the
// leaderboard.
type SpawnCmd struct {
	Addr        string        `default:"localhost:0" help:"Server address, defaults to a random port on localhost"`
	Random      int           `default:"2" help:"Number of random bots"`
	Smart       int           `default:"1" help:"Number of smart bots"`
	Duration    time.Duration `default:"30s" help:"How long to play (0 runs until interrupted)"`
	TurnTimeout time.Duration `default:"5s" help:"Bot turn deadline"`
	StaticDir   string        `help:"Directory of web pages to serve"`
	Seed        *int64        `env:"NOTHANKS_SEED" help:"Deterministic RNG seed"`
	LogLevel    string        `short:"l" default:"warn" help:"Log level: debug, info, warn, error"`
}

func (c *SpawnCmd) Run() error {
	if c.Random+c.Smart < 3 {
		return fmt.Errorf("need at least 3 bots to form a match, got %d", c.Random+c.Smart)
	}
	logger := newLogger(c.LogLevel)
	rng := seededRand(logger, c.Seed)

	cfg := server.DefaultConfig()
	cfg.Arena.TurnTimeoutMs = int(c.TurnTimeout / time.Millisecond)
	cfg.Server.StaticDir = c.StaticDir
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	runners, err := c.fleet(logger, rng)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", c.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", c.Addr, err)
	}
	url := fmt.Sprintf("ws://%s/bots", ln.Addr().String())
	for _, r := range runners {
		r.URL = url
	}

	srv, a := newServer(logger, cfg, rng)

	ctx, cancel := signalContext(logger)
	defer cancel()
	if c.Duration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, c.Duration)
		defer stop()
	}

	logger.Info("Spawning", "addr", ln.Addr().String(), "bots", len(runners), "duration", c.Duration)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, ln)
	})
	g.Go(func() error {
		return runFleet(gctx, runners)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	fmt.Fprintln(os.Stdout, renderLeaderboard(a.Leaderboard()))
	return nil
}

// fleet builds the runners for every strategy group. URLs are filled in once
// the listener is bound.
func (c *SpawnCmd) fleet(logger *log.Logger, rng *randutil.Rand) ([]*sdk.Runner, error) {
	var runners []*sdk.Runner
	for _, group := range []struct {
		strategy string
		count    int
	}{{"random", c.Random}, {"smart", c.Smart}} {
		if group.count == 0 {
			continue
		}
		rs, err := newRunners(logger, "", group.strategy, group.strategy, group.count, rng)
		if err != nil {
			return nil, err
		}
		runners = append(runners, rs...)
	}
	return runners, nil
}
