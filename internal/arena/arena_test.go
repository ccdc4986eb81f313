package arena

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/nothanks/internal/game"
	"github.com/lox/nothanks/internal/randutil"
	"github.com/lox/nothanks/internal/rating"
	"github.com/lox/nothanks/protocol"
)

type sentMessage struct {
	Type    protocol.Type
	Payload any
}

type fakeConn struct {
	mu     sync.Mutex
	msgs   []sentMessage
	closed bool
}

func (c *fakeConn) Send(t protocol.Type, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, sentMessage{Type: t, Payload: payload})
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) count(t protocol.Type) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.msgs {
		if m.Type == t {
			n++
		}
	}
	return n
}

func (c *fakeConn) last(t protocol.Type) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.msgs) - 1; i >= 0; i-- {
		if c.msgs[i].Type == t {
			return c.msgs[i].Payload, true
		}
	}
	return nil, false
}

type testArena struct {
	*Arena
	clock *quartz.Mock
	conns map[string]*fakeConn
}

func newTestArena(t *testing.T) *testArena {
	t.Helper()
	clock := quartz.NewMock(t)
	n := 0
	cfg := Config{
		TurnTimeout: DefaultTurnTimeout,
		Clock:       clock,
		NewMatchID: func() string {
			n++
			return fmt.Sprintf("match-%d", n)
		},
	}
	a := New(log.NewWithOptions(io.Discard, log.Options{}), randutil.New(7), cfg)
	t.Cleanup(a.Close)
	return &testArena{Arena: a, clock: clock, conns: map[string]*fakeConn{}}
}

// join registers and activates a bot, returning its id.
func (ta *testArena) join(t *testing.T, name string) string {
	t.Helper()
	conn := &fakeConn{}
	p, err := ta.Register(name, conn)
	require.NoError(t, err)
	ta.conns[p.ID] = conn
	ta.Activate(p.ID)
	return p.ID
}

func (ta *testArena) leave(t *testing.T, botID string) {
	t.Helper()
	ta.Disconnect(botID, ta.conns[botID])
}

func (ta *testArena) advance(t *testing.T, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ta.clock.Advance(d).MustWait(ctx)
}

func holder(v game.View) (game.SeatView, bool) {
	for _, s := range v.Seats {
		if s.IsTurn {
			return s, true
		}
	}
	return game.SeatView{}, false
}

// playOut has whoever holds the turn take until the match ends.
func playOut(t *testing.T, ta *testArena, m *Match) {
	t.Helper()
	for range game.CardCount {
		v := m.View()
		if v.State == game.StateFinished {
			return
		}
		h, ok := holder(v)
		require.True(t, ok, "in-progress match must have a turn holder")
		require.NoError(t, ta.Act(h.ID, m.ID(), "take"))
	}
	require.Equal(t, game.StateFinished, m.View().State)
}

func TestRegisterValidation(t *testing.T) {
	ta := newTestArena(t)

	_, err := ta.Register("   ", &fakeConn{})
	assert.ErrorIs(t, err, ErrNameRequired)

	_, err = ta.Register(strings.Repeat("x", MaxNameLength+1), &fakeConn{})
	assert.ErrorIs(t, err, ErrNameTooLong)

	id := ta.join(t, "Alpha")
	_, err = ta.Register("ALPHA", &fakeConn{})
	assert.ErrorIs(t, err, ErrNameInUse)

	ta.leave(t, id)
	again, err := ta.Register("alpha", &fakeConn{})
	require.NoError(t, err)
	assert.Equal(t, id, again.ID, "rejoin keeps the identity")
	assert.Equal(t, "alpha", again.Name, "display name follows the latest casing")
	assert.Equal(t, 1200, again.Stats().Rating)
}

func TestMatchFormsWithThreeBots(t *testing.T) {
	ta := newTestArena(t)

	a := ta.join(t, "a")
	b := ta.join(t, "b")
	assert.ElementsMatch(t, []string{a, b}, ta.Queue())
	assert.Zero(t, ta.Matches())

	c := ta.join(t, "c")
	assert.Empty(t, ta.Queue())
	require.Equal(t, 1, ta.Matches())

	m, ok := ta.MatchFor(a)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{a, b, c}, m.Bots())

	for _, id := range []string{a, b, c} {
		assert.Equal(t, 1, ta.conns[id].count(protocol.TypeMatchStarted), id)
	}

	first := m.Bots()[0]
	payload, ok := ta.conns[first].last(protocol.TypeTurn)
	require.True(t, ok, "seat 0 is prompted first")
	view := payload.(protocol.BotView)
	assert.Equal(t, m.ID(), view.MatchID)
	assert.Equal(t, int64(5000), view.TimeoutMs)
	assert.Equal(t, game.StartingChips, view.You.Chips)
	assert.Equal(t, game.CardCount-game.HiddenCards-1, view.DeckCount)
	assert.Equal(t, game.HiddenCards, view.RemovedCount)
	require.NotNil(t, view.CurrentCard)
}

func TestEnqueueIsIdempotent(t *testing.T) {
	ta := newTestArena(t)
	a := ta.join(t, "a")
	ta.Enqueue(a)
	ta.Enqueue(a)
	assert.Equal(t, []string{a}, ta.Queue())

	ta.join(t, "b")
	ta.join(t, "c")
	require.Equal(t, 1, ta.Matches())

	ta.Enqueue(a)
	assert.Empty(t, ta.Queue(), "seated bots are never queued")
}

func TestFormingStopsOnDisconnectedPick(t *testing.T) {
	ta := newTestArena(t)
	a := ta.join(t, "a")
	b := ta.join(t, "b")

	ghost := &fakeConn{}
	p, err := ta.Register("ghost", ghost)
	require.NoError(t, err)
	ta.mu.Lock()
	ta.queue = append(ta.queue, p.ID)
	ta.mu.Unlock()
	ta.registry.Release(p.ID, ghost)

	ta.TryFormMatches()
	assert.Zero(t, ta.Matches())
	assert.ElementsMatch(t, []string{a, b}, ta.Queue())
}

func TestMatchesNeverShareBots(t *testing.T) {
	ta := newTestArena(t)
	var ids []string
	for i := range 10 {
		ids = append(ids, ta.join(t, fmt.Sprintf("bot%d", i)))
	}
	assert.Equal(t, 3, ta.Matches())
	assert.Len(t, ta.Queue(), 1)

	seen := map[string]string{}
	for _, id := range ids {
		m, ok := ta.MatchFor(id)
		if !ok {
			continue
		}
		for _, seat := range m.Bots() {
			if prev, dup := seen[seat]; dup {
				assert.Equal(t, prev, m.ID(), "bot %s in two matches", seat)
			}
			seen[seat] = m.ID()
		}
		assert.Len(t, m.Bots(), MatchSize)
	}
}

func TestTimeoutWithoutChipsForcesTake(t *testing.T) {
	ta := newTestArena(t)
	a := ta.join(t, "a")
	ta.join(t, "b")
	ta.join(t, "c")

	m, ok := ta.MatchFor(a)
	require.True(t, ok)
	first := m.Bots()[0]

	m.mu.Lock()
	p, _ := m.session.Participant(first)
	p.Chips = 0
	card, _ := m.session.CurrentCard()
	m.mu.Unlock()

	ta.advance(t, DefaultTurnTimeout)

	require.Eventually(t, func() bool {
		s, _ := m.View().Seat(first)
		return len(s.Cards) == 1
	}, time.Second, 5*time.Millisecond)

	v := m.View()
	s, _ := v.Seat(first)
	assert.Equal(t, []int{card}, s.Cards)
	assert.Equal(t, 0, s.Chips)
	assert.True(t, s.IsTurn, "taker keeps the turn")
	assert.Equal(t, game.StateInProgress, v.State)

	var messages []string
	for _, e := range v.Events {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, fmt.Sprintf("%s timed out.", s.Name))
	assert.GreaterOrEqual(t, ta.conns[first].count(protocol.TypeTurn), 2, "re-prompted after the fallback")
}

func TestActionCancelsDeadline(t *testing.T) {
	ta := newTestArena(t)
	a := ta.join(t, "a")
	ta.join(t, "b")
	ta.join(t, "c")
	m, _ := ta.MatchFor(a)
	seats := m.Bots()

	ta.advance(t, 4*time.Second)
	require.NoError(t, ta.Act(seats[0], m.ID(), "pass"))
	ta.advance(t, 4*time.Second)

	v := m.View()
	next, _ := v.Seat(seats[1])
	assert.True(t, next.IsTurn)
	assert.Equal(t, game.StartingChips, next.Chips)
	assert.Empty(t, next.Cards)
	assert.Equal(t, 1, v.Pot)
}

func TestActValidation(t *testing.T) {
	ta := newTestArena(t)
	a := ta.join(t, "a")
	assert.ErrorIs(t, ta.Act(a, "", "take"), ErrNotInMatch)

	ta.join(t, "b")
	ta.join(t, "c")
	m, _ := ta.MatchFor(a)
	seats := m.Bots()

	assert.ErrorIs(t, ta.Act(seats[1], "", "take"), game.ErrNotYourTurn)
	assert.ErrorIs(t, ta.Act(seats[0], "match-other", "take"), ErrWrongMatch)
	assert.ErrorIs(t, ta.Act(seats[0], "", "fold"), game.ErrUnknownAction)
}

func TestDisconnectingTurnHolderTakes(t *testing.T) {
	ta := newTestArena(t)
	a := ta.join(t, "a")
	ta.join(t, "b")
	ta.join(t, "c")
	m, _ := ta.MatchFor(a)
	seats := m.Bots()

	require.NoError(t, ta.Act(seats[0], "", "pass"))
	card, _ := func() (int, bool) {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.session.CurrentCard()
	}()

	ta.leave(t, seats[1])

	v := m.View()
	gone, _ := v.Seat(seats[1])
	assert.Equal(t, []int{card}, gone.Cards)
	assert.Equal(t, game.StartingChips+1, gone.Chips)
	assert.False(t, gone.Connected)
	h, ok := holder(v)
	require.True(t, ok)
	assert.Equal(t, seats[2], h.ID)

	playOut(t, ta, m)

	_, bound := ta.MatchFor(seats[1])
	assert.False(t, bound)
	assert.NotContains(t, ta.Queue(), seats[1], "disconnected bots are not requeued")
	assert.ElementsMatch(t, []string{seats[0], seats[2]}, ta.Queue())

	for _, id := range seats {
		p, _ := ta.registry.Profile(id)
		assert.Equal(t, 1, p.Record.Games, id)
	}
	assert.Equal(t, 1, ta.conns[seats[0]].count(protocol.TypeMatchEnded))
}

func TestCompletionSettlesAndRequeues(t *testing.T) {
	ta := newTestArena(t)
	a := ta.join(t, "a")
	ta.join(t, "b")
	ta.join(t, "c")
	m, _ := ta.MatchFor(a)
	seats := m.Bots()

	playOut(t, ta, m)

	payload, ok := ta.conns[seats[1]].last(protocol.TypeMatchEnded)
	require.True(t, ok)
	ended := payload.(protocol.MatchEnded)
	assert.Equal(t, m.ID(), ended.MatchID)
	require.Len(t, ended.Standings, 3)
	for i := 1; i < len(ended.Standings); i++ {
		assert.LessOrEqual(t, ended.Standings[i-1].TotalScore, ended.Standings[i].TotalScore)
	}
	// Seat 0 took every card; the others tie on chip credit.
	assert.ElementsMatch(t, []string{seats[1], seats[2]}, ended.Winners)

	total := 0.0
	for _, id := range seats {
		p, _ := ta.registry.Profile(id)
		total += p.Rating
		assert.Equal(t, 1, p.Record.Games)
	}
	assert.InDelta(t, 3*rating.DefaultRating, total, 1e-6)

	loser, _ := ta.registry.Profile(seats[0])
	assert.Equal(t, 1, loser.Record.Losses)
	assert.Less(t, loser.Rating, rating.DefaultRating)
	winner, _ := ta.registry.Profile(seats[1])
	assert.Equal(t, 1, winner.Record.Draws)

	require.Equal(t, 1, ta.Matches(), "connected bots are requeued into a fresh match")
	next, ok := ta.MatchFor(a)
	require.True(t, ok)
	assert.NotEqual(t, m.ID(), next.ID())
}

func TestReconnectResumesStalledMatch(t *testing.T) {
	ta := newTestArena(t)
	a := ta.join(t, "a")
	ta.join(t, "b")
	ta.join(t, "c")
	m, _ := ta.MatchFor(a)
	seats := m.Bots()

	for _, id := range seats {
		ta.leave(t, id)
	}
	v := m.View()
	require.Equal(t, game.StateInProgress, v.State)
	_, ok := holder(v)
	require.False(t, ok)

	returning := seats[1]
	p, _ := ta.registry.Profile(returning)
	conn := &fakeConn{}
	_, err := ta.Register(p.Name, conn)
	require.NoError(t, err)
	ta.Activate(returning)

	assert.Equal(t, 1, conn.count(protocol.TypeMatchResumed))
	assert.Equal(t, 1, conn.count(protocol.TypeTurn))
	h, ok := holder(m.View())
	require.True(t, ok)
	assert.Equal(t, returning, h.ID)

	// Only the fresh turn deadline fires; the idle window armed before the
	// reconnect no longer applies.
	ta.advance(t, DefaultTurnTimeout)
	require.Eventually(t, func() bool {
		for _, e := range m.View().Events {
			if strings.HasSuffix(e.Message, "timed out.") {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, game.StateInProgress, m.View().State)
	assert.Equal(t, 1, ta.Matches())
}

func TestLateDisconnectKeepsRejoinedSeat(t *testing.T) {
	ta := newTestArena(t)
	a := ta.join(t, "a")
	ta.join(t, "b")
	ta.join(t, "c")
	m, _ := ta.MatchFor(a)
	seats := m.Bots()
	id := seats[1]

	// The old connection is released, then the bot rejoins before the
	// match hears about the drop.
	require.True(t, ta.registry.Release(id, ta.conns[id]))
	p, _ := ta.registry.Profile(id)
	conn := &fakeConn{}
	_, err := ta.Register(p.Name, conn)
	require.NoError(t, err)
	ta.Activate(id)
	assert.Nil(t, m.disconnect(id))

	seat, ok := m.View().Seat(id)
	require.True(t, ok)
	assert.True(t, seat.Connected)
	assert.Equal(t, 1, conn.count(protocol.TypeMatchResumed))
}

func TestAbandonedMatchFinishes(t *testing.T) {
	ta := newTestArena(t)
	a := ta.join(t, "a")
	ta.join(t, "b")
	ta.join(t, "c")
	m, _ := ta.MatchFor(a)

	for _, id := range m.Bots() {
		ta.leave(t, id)
	}
	ta.advance(t, DefaultTurnTimeout)

	require.Eventually(t, func() bool { return ta.Matches() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, game.StateFinished, m.View().State)
	assert.Empty(t, ta.Queue())
	for _, id := range m.Bots() {
		p, _ := ta.registry.Profile(id)
		assert.Equal(t, 1, p.Record.Games)
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	ta := newTestArena(t)
	for _, name := range []string{"charlie", "Bravo", "alpha"} {
		ta.join(t, name)
	}
	ta.registry.mu.Lock()
	for _, p := range ta.registry.byID {
		if p.Name == "charlie" {
			p.Rating = 1300
		}
	}
	ta.registry.mu.Unlock()

	board := ta.Leaderboard()
	require.Len(t, board, 3)
	assert.Equal(t, "charlie", board[0].Name)
	assert.Equal(t, "alpha", board[1].Name)
	assert.Equal(t, "Bravo", board[2].Name)
	assert.Equal(t, 1300, board[0].Rating)
}

func TestLeaderboardTiesOnDisplayedRating(t *testing.T) {
	ta := newTestArena(t)
	ratings := map[string]float64{"zed": 1200.4, "amy": 1199.6, "kim": 1200.6}
	for name := range ratings {
		ta.join(t, name)
	}
	ta.registry.mu.Lock()
	for _, p := range ta.registry.byID {
		p.Rating = ratings[p.Name]
	}
	ta.registry.mu.Unlock()

	board := ta.Leaderboard()
	require.Len(t, board, 3)
	assert.Equal(t, "kim", board[0].Name)
	assert.Equal(t, 1201, board[0].Rating)
	assert.Equal(t, "amy", board[1].Name)
	assert.Equal(t, "zed", board[2].Name)
	assert.Equal(t, board[1].Rating, board[2].Rating)
}

type flipSource struct{ f float64 }

func (s flipSource) IntN(int) int     { return 0 }
func (s flipSource) Float64() float64 { return s.f }

func TestFallbackAction(t *testing.T) {
	assert.Equal(t, game.Take, fallbackAction(0, flipSource{f: 0.1}))
	assert.Equal(t, game.Pass, fallbackAction(3, flipSource{f: 0.1}))
	assert.Equal(t, game.Take, fallbackAction(3, flipSource{f: 0.9}))
}
