// Package arena runs the bot side of the server: identities and ratings,
// the matchmaking queue, and the matches formed from it.
//
// Lock order is Arena.mu, then Match.mu, then Registry.mu. Match code never
// takes Arena.mu; completion is handed back to the arena after the match lock
// is released.
package arena

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/nothanks/internal/game"
	"github.com/lox/nothanks/internal/ident"
	"github.com/lox/nothanks/internal/randutil"
	"github.com/lox/nothanks/protocol"
)

const (
	// MatchSize is the number of bots seated in every match.
	MatchSize = 3
	// DefaultTurnTimeout is how long a bot has to answer a turn.
	DefaultTurnTimeout = 5 * time.Second
)

var (
	ErrNotRegistered = errors.New("bot is not registered")
	ErrNotInMatch    = errors.New("bot is not in a match")
	ErrWrongMatch    = errors.New("bot is not seated in that match")
)

// Config holds the tunables of an Arena.
type Config struct {
	TurnTimeout time.Duration
	Clock       quartz.Clock
	// NewMatchID overrides match id generation.
	NewMatchID func() string
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		TurnTimeout: DefaultTurnTimeout,
		Clock:       quartz.NewReal(),
		NewMatchID:  ident.MatchID,
	}
}

// Arena owns the matchmaking queue, the active matches and the bot to match
// bindings.
type Arena struct {
	registry *Registry
	rng      randutil.Source
	clock    quartz.Clock
	timeout  time.Duration
	newID    func() string
	logger   *log.Logger

	mu       sync.Mutex
	queue    []string
	matches  map[string]*Match
	bindings map[string]*Match
}

// New creates an arena. rng must be safe for concurrent use.
func New(logger *log.Logger, rng randutil.Source, cfg Config) *Arena {
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = DefaultTurnTimeout
	}
	if cfg.NewMatchID == nil {
		cfg.NewMatchID = ident.MatchID
	}
	return &Arena{
		registry: NewRegistry(ident.NewGenerator(rng), cfg.Clock),
		rng:      rng,
		clock:    cfg.Clock,
		timeout:  cfg.TurnTimeout,
		newID:    cfg.NewMatchID,
		logger:   logger.WithPrefix("arena"),
		matches:  make(map[string]*Match),
		bindings: make(map[string]*Match),
	}
}

// Registry exposes the profile table.
func (a *Arena) Registry() *Registry { return a.registry }

// Register binds conn to the named bot identity. On success the caller
// acknowledges the registration and then calls Activate.
func (a *Arena) Register(name string, conn Conn) (Profile, error) {
	p, err := a.registry.Register(name, conn)
	if err != nil {
		a.logger.Warn("Registration rejected", "name", name, "error", err)
		return Profile{}, err
	}
	a.logger.Info("Bot registered", "bot", p.ID, "name", p.Name, "rating", p.Stats().Rating)
	return p, nil
}

// Activate puts a freshly registered bot to work: back into its match if
// it left one mid-game, otherwise into the queue.
func (a *Arena) Activate(botID string) {
	a.mu.Lock()
	m, ok := a.bindings[botID]
	a.mu.Unlock()

	if ok {
		m.reconnect(botID)
		return
	}
	a.Enqueue(botID)
}

// Enqueue adds a connected bot to the queue and forms any matches that are
// now possible. It is a no-op for queued or seated bots.
func (a *Arena) Enqueue(botID string) {
	if !a.registry.Connected(botID) {
		return
	}
	a.mu.Lock()
	a.enqueueLocked(botID)
	formed := a.formMatchesLocked()
	a.mu.Unlock()

	a.startAll(formed)
}

// TryFormMatches forms matches from the current queue. It is safe to call at
// any time.
func (a *Arena) TryFormMatches() {
	a.mu.Lock()
	formed := a.formMatchesLocked()
	a.mu.Unlock()

	a.startAll(formed)
}

// Act applies a decision from botID. An empty matchID means the bot's
// current match.
func (a *Arena) Act(botID, matchID, action string) error {
	a.mu.Lock()
	m, ok := a.bindings[botID]
	a.mu.Unlock()

	if !ok {
		return ErrNotInMatch
	}
	if matchID != "" && matchID != m.id {
		return ErrWrongMatch
	}
	parsed, err := game.ParseAction(action)
	if err != nil {
		return err
	}

	res, err := m.act(botID, parsed)
	if err != nil {
		return err
	}
	if res != nil {
		a.complete(m, res)
	}
	return nil
}

// Disconnect handles the loss of conn for botID. Stale connections are
// ignored.
func (a *Arena) Disconnect(botID string, conn Conn) {
	if !a.registry.Release(botID, conn) {
		return
	}
	a.logger.Info("Bot disconnected", "bot", botID)

	a.mu.Lock()
	a.removeFromQueueLocked(botID)
	m, ok := a.bindings[botID]
	a.mu.Unlock()

	if !ok {
		return
	}
	if res := m.disconnect(botID); res != nil {
		a.complete(m, res)
	}
}

// Leaderboard returns every profile, best rated first.
func (a *Arena) Leaderboard() []protocol.LeaderboardEntry {
	profiles := a.registry.Leaderboard()
	out := make([]protocol.LeaderboardEntry, len(profiles))
	for i, p := range profiles {
		s := p.Stats()
		out[i] = protocol.LeaderboardEntry{
			ID:       p.ID,
			Name:     p.Name,
			Rating:   s.Rating,
			Games:    s.Games,
			Wins:     s.Wins,
			Losses:   s.Losses,
			Draws:    s.Draws,
			WinRate:  s.WinRate,
			LastSeen: p.LastSeen.UnixMilli(),
		}
	}
	return out
}

// Queue returns the waiting bot ids.
func (a *Arena) Queue() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.queue)
}

// MatchFor returns the match botID is seated in.
func (a *Arena) MatchFor(botID string) (*Match, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.bindings[botID]
	return m, ok
}

// Matches returns the number of active matches.
func (a *Arena) Matches() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.matches)
}

// Close cancels every pending turn deadline.
func (a *Arena) Close() {
	a.mu.Lock()
	matches := make([]*Match, 0, len(a.matches))
	for _, m := range a.matches {
		matches = append(matches, m)
	}
	a.mu.Unlock()

	for _, m := range matches {
		m.stop()
	}
}

func (a *Arena) enqueueLocked(botID string) {
	if _, seated := a.bindings[botID]; seated {
		return
	}
	if slices.Contains(a.queue, botID) {
		return
	}
	a.queue = append(a.queue, botID)
	a.logger.Debug("Bot queued", "bot", botID, "waiting", len(a.queue))
}

func (a *Arena) removeFromQueueLocked(botID string) {
	if i := slices.Index(a.queue, botID); i >= 0 {
		a.queue = slices.Delete(a.queue, i, i+1)
	}
}

// formMatchesLocked samples MatchSize bots at random from the queue for as
// long as enough are waiting. If a pick turns out to be disconnected the
// valid picks go back in the queue and the round stops.
func (a *Arena) formMatchesLocked() []*Match {
	var formed []*Match
	for len(a.queue) >= MatchSize {
		picks := make([]string, 0, MatchSize)
		for range MatchSize {
			i := a.rng.IntN(len(a.queue))
			id := a.queue[i]
			a.queue = slices.Delete(a.queue, i, i+1)
			if a.registry.Connected(id) {
				picks = append(picks, id)
			}
		}
		if len(picks) < MatchSize {
			for _, id := range picks {
				a.enqueueLocked(id)
			}
			break
		}
		formed = append(formed, a.newMatchLocked(picks))
	}
	return formed
}

func (a *Arena) newMatchLocked(bots []string) *Match {
	id := a.newID()
	logger := a.logger.With("match", id)
	session := game.NewSession(id,
		game.WithPolicy(game.MatchPolicy),
		game.WithRNG(a.rng),
		game.WithClock(a.clock),
	)
	for _, botID := range bots {
		name := botID
		if p, ok := a.registry.Profile(botID); ok {
			name = p.Name
		}
		if _, err := session.Join(botID, name); err != nil {
			logger.Error("Failed to seat bot", "bot", botID, "error", err)
		}
	}

	m := &Match{
		id:       id,
		bots:     bots,
		session:  session,
		registry: a.registry,
		clock:    a.clock,
		rng:      a.rng,
		timeout:  a.timeout,
		logger:   logger,
		onFinish: a.complete,
	}
	a.matches[id] = m
	for _, botID := range bots {
		a.bindings[botID] = m
	}
	return m
}

func (a *Arena) startAll(formed []*Match) {
	for _, m := range formed {
		if res := m.start(); res != nil {
			a.complete(m, res)
		}
	}
}

// complete settles a finished match, releases its bots and requeues the
// ones still connected. Repeated calls for the same match are ignored.
func (a *Arena) complete(m *Match, res *game.Result) {
	a.mu.Lock()
	if a.matches[m.id] != m {
		a.mu.Unlock()
		return
	}
	delete(a.matches, m.id)
	for _, botID := range m.bots {
		if a.bindings[botID] == m {
			delete(a.bindings, botID)
		}
	}
	a.mu.Unlock()

	a.registry.Settle(res)

	a.mu.Lock()
	for _, st := range res.Standings {
		if a.registry.Connected(st.ID) {
			a.enqueueLocked(st.ID)
		}
	}
	formed := a.formMatchesLocked()
	a.mu.Unlock()

	a.startAll(formed)
}
