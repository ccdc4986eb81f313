package arena

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/nothanks/internal/game"
	"github.com/lox/nothanks/internal/randutil"
	"github.com/lox/nothanks/protocol"
)

const (
	publicHistory = 10
	botHistory    = 5
)

// Match runs one game between a fixed roster of bots, adding a response
// deadline to every turn.
type Match struct {
	id      string
	bots    []string
	session *game.Session

	registry *Registry
	clock    quartz.Clock
	rng      randutil.Source
	timeout  time.Duration
	logger   *log.Logger
	onFinish func(*Match, *game.Result)

	mu    sync.Mutex
	timer *quartz.Timer
	// turn invalidates timers armed for an earlier decision point.
	turn uint64
}

// ID returns the match identifier.
func (m *Match) ID() string { return m.id }

// Bots returns the roster in seat order.
func (m *Match) Bots() []string {
	return append([]string(nil), m.bots...)
}

// View snapshots the underlying session.
func (m *Match) View() game.View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.View(0)
}

// start deals the first card and prompts seat 0.
func (m *Match) start() *game.Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.session.Start(0); err != nil {
		m.logger.Error("Failed to start match", "error", err)
		return nil
	}
	m.logger.Info("Match started", "bots", m.bots)
	m.broadcast(protocol.TypeMatchStarted, m.publicState())

	if res := m.session.Result(); res != nil {
		return m.finishLocked(res)
	}
	m.prompt()
	return nil
}

// act applies a decision from botID. Only the current turn holder may act.
func (m *Match) act(botID string, action game.Action) (*game.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out, err := m.session.Apply(botID, action)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("Bot acted", "bot", botID, "action", out.Action, "reclassified", out.Reclassified)
	return m.afterMove(out), nil
}

// disconnect marks botID as gone. A turn holder is made to take the card so
// the deck keeps draining. It is a no-op once a newer connection owns the
// seat.
func (m *Match) disconnect(botID string) *game.Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registry.Connected(botID) {
		return nil
	}
	holder := m.session.TurnHolder()
	out, err := m.session.Disconnect(botID)
	if err != nil {
		return nil
	}
	m.logger.Info("Bot disconnected from match", "bot", botID, "forced", out.Action == game.Take)

	if holder == nil || holder.ID != botID {
		if m.session.State() == game.StateInProgress {
			m.broadcast(protocol.TypeMatchUpdate, m.publicState())
		}
		return nil
	}
	return m.afterMove(out)
}

// reconnect rebinds botID to its seat and re-prompts it if the turn is
// its own.
func (m *Match) reconnect(botID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.State() != game.StateInProgress {
		return
	}
	if err := m.session.Reconnect(botID); err != nil {
		return
	}
	m.logger.Info("Bot rejoined match", "bot", botID)
	m.send(botID, protocol.TypeMatchResumed, protocol.MatchResumed{
		MatchID: m.id,
		State:   m.botView(botID),
	})
	if holder := m.session.TurnHolder(); holder != nil && holder.ID == botID {
		m.prompt()
	}
}

// afterMove broadcasts the new state and either finishes or prompts the
// next decision.
func (m *Match) afterMove(out game.Outcome) *game.Result {
	m.broadcast(protocol.TypeMatchUpdate, m.publicState())
	if out.Finished {
		return m.finishLocked(out.Result)
	}
	m.prompt()
	return nil
}

// prompt asks the turn holder for a decision and arms its deadline. With
// nobody connected the match waits one window for a reconnect instead.
func (m *Match) prompt() {
	m.stopTimer()
	m.turn++
	turn := m.turn

	holder := m.session.TurnHolder()
	if holder == nil {
		if m.session.State() == game.StateInProgress {
			m.logger.Warn("No connected bots, waiting for a reconnect", "timeout", m.timeout)
			m.timer = m.clock.AfterFunc(m.timeout, func() { m.expireIdle(turn) })
		}
		return
	}

	botID := holder.ID
	m.send(botID, protocol.TypeTurn, m.botView(botID))
	m.timer = m.clock.AfterFunc(m.timeout, func() { m.expire(turn, botID) })
}

// expire applies the fallback decision for a bot that let its deadline pass.
func (m *Match) expire(turn uint64, botID string) {
	m.mu.Lock()
	res := func() *game.Result {
		if turn != m.turn || m.session.State() != game.StateInProgress {
			return nil
		}
		holder := m.session.TurnHolder()
		if holder == nil || holder.ID != botID {
			return nil
		}

		action := fallbackAction(holder.Chips, m.rng)
		m.logger.Warn("Turn timed out", "bot", botID, "fallback", action)
		m.session.Logf("%s timed out.", holder.Name)

		out, err := m.session.Apply(botID, action)
		if err != nil {
			m.logger.Error("Fallback action rejected", "bot", botID, "error", err)
			return nil
		}
		return m.afterMove(out)
	}()
	m.mu.Unlock()

	if res != nil && m.onFinish != nil {
		m.onFinish(m, res)
	}
}

// expireIdle ends a match nobody came back to.
func (m *Match) expireIdle(turn uint64) {
	m.mu.Lock()
	var res *game.Result
	if turn == m.turn && m.session.State() == game.StateInProgress && m.session.TurnHolder() == nil {
		m.logger.Warn("Abandoned match, finishing with current holdings")
		res = m.finishLocked(m.session.Finish())
	}
	m.mu.Unlock()

	if res != nil && m.onFinish != nil {
		m.onFinish(m, res)
	}
}

func (m *Match) finishLocked(res *game.Result) *game.Result {
	m.stopTimer()
	m.turn++

	standings := make([]protocol.Standing, len(res.Standings))
	for i, st := range res.Standings {
		standings[i] = protocol.Standing{
			BotID:      st.ID,
			Name:       st.Name,
			TotalScore: st.Score,
			Cards:      st.Cards,
			Chips:      st.Chips,
		}
	}
	m.broadcast(protocol.TypeMatchEnded, protocol.MatchEnded{
		MatchID:   m.id,
		Standings: standings,
		Winners:   res.Winners,
	})
	m.logger.Info("Match finished", "winners", res.Winners, "best", res.BestScore)
	return res
}

// stop cancels any pending deadline.
func (m *Match) stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimer()
	m.turn++
}

func (m *Match) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Match) send(botID string, t protocol.Type, payload any) {
	conn, ok := m.registry.Conn(botID)
	if !ok {
		return
	}
	if err := conn.Send(t, payload); err != nil {
		m.logger.Warn("Failed to send to bot", "bot", botID, "type", t, "error", err)
	}
}

func (m *Match) broadcast(t protocol.Type, payload any) {
	for _, id := range m.bots {
		m.send(id, t, payload)
	}
}

// fallbackAction is the decision made for a bot that did not answer: a take
// when it has no chips, otherwise a coin flip.
func fallbackAction(chips int, rng randutil.Source) game.Action {
	if chips <= 0 {
		return game.Take
	}
	if randutil.Coin(rng) {
		return game.Pass
	}
	return game.Take
}
