package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/lox/nothanks/internal/randutil"
	"github.com/lox/nothanks/sdk"
)

// BotsCmd connects sample bots to a running server.
type BotsCmd struct {
	URL      string `default:"ws://localhost:3000/bots" env:"NOTHANKS_BOT_URL" help:"Arena websocket URL"`
	Count    int    `short:"n" default:"3" help:"Number of bots to run"`
	Name     string `default:"SampleBot" env:"NOTHANKS_BOT_NAME" help:"Base display name, numbered when running several"`
	Strategy string `default:"random" enum:"random,smart" help:"Decision strategy (random, smart)"`
	Seed     *int64 `env:"NOTHANKS_SEED" help:"Deterministic RNG seed"`
	LogLevel string `short:"l" default:"info" env:"NOTHANKS_LOG_LEVEL" help:"Log level: debug, info, warn, error"`
}

func (c *BotsCmd) Run() error {
	if c.Count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", c.Count)
	}
	logger := newLogger(c.LogLevel)
	rng := seededRand(logger, c.Seed)

	runners, err := newRunners(logger, c.URL, c.Name, c.Strategy, c.Count, rng)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()
	return runFleet(ctx, runners)
}

// botNames numbers the base name when more than one bot shares it.
func botNames(base string, n int) []string {
	base = strings.TrimSpace(base)
	if n == 1 {
		return []string{base}
	}
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s-%d", base, i+1)
	}
	return names
}

func newRunners(logger *log.Logger, url, base, strategy string, n int, rng *randutil.Rand) ([]*sdk.Runner, error) {
	runners := make([]*sdk.Runner, 0, n)
	for _, name := range botNames(base, n) {
		s, err := newStrategy(strategy, rng.Fork())
		if err != nil {
			return nil, err
		}
		runners = append(runners, &sdk.Runner{
			URL:      url,
			Name:     name,
			Strategy: s,
			Logger:   logger.WithPrefix("bot"),
		})
	}
	return runners, nil
}

// runFleet runs every runner until ctx is done or one of them fails.
func runFleet(ctx context.Context, runners []*sdk.Runner) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, r := range runners {
		g.Go(func() error {
			return r.Run(ctx)
		})
	}
	return g.Wait()
}
