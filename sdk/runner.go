package sdk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/nothanks/protocol"
)

const (
	DefaultReconnectDelay    = time.Second
	DefaultMaxReconnectDelay = 4 * time.Second
)

// Results counts the matches a runner has finished.
type Results struct {
	Matches int
	Wins    int
	Draws   int
}

// Runner keeps one bot connected to the arena and answers every turn with its
// strategy, reconnecting with backoff when the connection drops.
type Runner struct {
	URL      string
	Name     string
	Strategy Strategy
	Logger   *log.Logger
	Clock    quartz.Clock

	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration

	mu      sync.Mutex
	botID   string
	results Results
}

// Run plays until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if r.Name == "" {
		return errors.New("bot name is required")
	}
	if r.Strategy == nil {
		return errors.New("strategy is required")
	}
	if r.Logger == nil {
		r.Logger = log.Default()
	}
	if r.Clock == nil {
		r.Clock = quartz.NewReal()
	}
	base, maxDelay := r.ReconnectDelay, r.MaxReconnectDelay
	if base <= 0 {
		base = DefaultReconnectDelay
	}
	if maxDelay < base {
		maxDelay = max(base, DefaultMaxReconnectDelay)
	}
	logger := r.Logger.With("bot", r.Name)

	delay := base
	for {
		registered, err := r.session(ctx, logger)
		if ctx.Err() != nil {
			return nil
		}
		if registered {
			delay = base
		}
		logger.Warn("Disconnected, retrying", "error", err, "delay", delay)

		timer := r.Clock.NewTimer(delay, "runner", "reconnect")
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		delay = min(delay*2, maxDelay)
	}
}

// BotID returns the id assigned at the last registration.
func (r *Runner) BotID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.botID
}

// Results returns a snapshot of the finished matches.
func (r *Runner) Results() Results {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results
}

func (r *Runner) session(ctx context.Context, logger *log.Logger) (bool, error) {
	c, err := Dial(ctx, r.URL, logger)
	if err != nil {
		return false, err
	}
	defer c.Close()

	ack, err := c.Register(ctx, r.Name)
	if err != nil {
		return false, fmt.Errorf("register: %w", err)
	}
	r.mu.Lock()
	r.botID = ack.BotID
	r.mu.Unlock()
	logger.Info("Registered", "id", ack.BotID, "rating", ack.Rating)

	if err := c.Enqueue(); err != nil {
		return true, err
	}

	for {
		select {
		case <-ctx.Done():
			return true, nil
		case msg, ok := <-c.Events():
			if !ok {
				if err := c.Err(); err != nil {
					return true, err
				}
				return true, ErrClosed
			}
			if err := r.handle(c, logger, ack.BotID, msg); err != nil {
				return true, err
			}
		}
	}
}

func (r *Runner) handle(c *Client, logger *log.Logger, botID string, msg *protocol.Message) error {
	switch msg.Type {
	case protocol.TypeTurn:
		var view protocol.BotView
		if err := msg.Decode(&view); err != nil {
			return err
		}
		action := r.Strategy.Decide(view)
		logger.Debug("Deciding", "match", view.MatchID, "card", view.CurrentCard, "pot", view.Pot, "chips", view.You.Chips, "action", action)
		return c.Act(view.MatchID, action)

	case protocol.TypeMatchStarted:
		var state protocol.MatchState
		if err := msg.Decode(&state); err != nil {
			return err
		}
		logger.Debug("Match started", "match", state.MatchID, "players", len(state.Players))

	case protocol.TypeMatchResumed:
		var resumed protocol.MatchResumed
		if err := msg.Decode(&resumed); err != nil {
			return err
		}
		logger.Info("Match resumed", "match", resumed.MatchID)

	case protocol.TypeMatchEnded:
		var ended protocol.MatchEnded
		if err := msg.Decode(&ended); err != nil {
			return err
		}
		r.record(logger, botID, ended)

	case protocol.TypeError:
		var e protocol.Error
		if err := msg.Decode(&e); err != nil {
			return err
		}
		logger.Warn("Server error", "code", e.Code, "message", e.Message)
	}
	return nil
}

func (r *Runner) record(logger *log.Logger, botID string, ended protocol.MatchEnded) {
	place, score := 0, 0
	for i, s := range ended.Standings {
		if s.BotID == botID {
			place, score = i+1, s.TotalScore
		}
	}
	won := false
	for _, id := range ended.Winners {
		if id == botID {
			won = true
		}
	}

	r.mu.Lock()
	r.results.Matches++
	switch {
	case won && len(ended.Winners) == 1:
		r.results.Wins++
	case won:
		r.results.Draws++
	}
	r.mu.Unlock()

	logger.Info("Match ended", "match", ended.MatchID, "place", place, "of", len(ended.Standings), "score", score, "won", won)
}
