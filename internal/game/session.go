package game

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/coder/quartz"
	"github.com/lox/nothanks/internal/randutil"
)

var (
	ErrNotInProgress        = errors.New("no active game")
	ErrAlreadyInProgress    = errors.New("game already in progress")
	ErrUnknownParticipant   = errors.New("participant not found")
	ErrDuplicateParticipant = errors.New("participant already seated")
	ErrNoParticipants       = errors.New("session has no participants")
	ErrNotYourTurn          = errors.New("it is not your turn")
	ErrNoCard               = errors.New("no card to act on")
	ErrUnknownAction        = errors.New("unknown action")
)

// Action is a turn decision.
type Action string

const (
	Take Action = "take"
	Pass Action = "pass"
)

// ParseAction validates a wire action.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case Take, Pass:
		return Action(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// State is the session lifecycle.
type State string

const (
	StateLobby      State = "lobby"
	StateInProgress State = "inProgress"
	StateFinished   State = "finished"
)

// NoTurn is the turn cursor when nobody can act.
const NoTurn = -1

// Participant is a seat in a session, human or bot.
type Participant struct {
	ID        string
	Name      string
	Chips     int
	Cards     []int
	Connected bool
}

// SortedCards returns the owned cards in ascending order.
func (p *Participant) SortedCards() []int {
	cards := slices.Clone(p.Cards)
	slices.Sort(cards)
	if cards == nil {
		cards = []int{}
	}
	return cards
}

// Score is the participant's current total.
func (p *Participant) Score() int {
	return Score(p.Cards, p.Chips)
}

// Policy is where rooms and bot matches diverge on top of the shared engine.
type Policy struct {
	// RemoveInLobby drops a disconnecting participant before the game starts.
	RemoveInLobby bool
	// ForceTakeOnDisconnect makes a disconnecting turn holder take the face-up
	// card before the turn moves on, so the deck always drains.
	ForceTakeOnDisconnect bool
}

var (
	RoomPolicy  = Policy{RemoveInLobby: true}
	MatchPolicy = Policy{ForceTakeOnDisconnect: true}
)

// Outcome describes what a call actually did to the session.
type Outcome struct {
	Actor  string
	Action Action
	// Reclassified is set when a pass without chips was played as a take.
	Reclassified bool
	// Card and Chips are what the actor collected on a take.
	Card     int
	Chips    int
	Finished bool
	Result   *Result
}

// Session is one game: a deck, a pot, an ordered list of participants and a
// turn cursor. It is not safe for concurrent use; owners serialise access.
type Session struct {
	id      string
	state   State
	players []*Participant
	deck    *Deck
	card    int
	pot     int
	turn    int
	events  *EventLog
	result  *Result

	rng         randutil.Source
	clock       quartz.Clock
	policy      Policy
	eventLimit  int
	deckBuilder func(randutil.Source) *Deck
}

// Option configures a Session.
type Option func(*Session)

// WithRNG sets the source used to shuffle decks.
func WithRNG(rng randutil.Source) Option {
	return func(s *Session) { s.rng = rng }
}

// WithClock sets the clock used to timestamp events.
func WithClock(clock quartz.Clock) Option {
	return func(s *Session) { s.clock = clock }
}

// WithPolicy sets the call-site policy.
func WithPolicy(p Policy) Option {
	return func(s *Session) { s.policy = p }
}

// WithEventLimit caps the retained event log.
func WithEventLimit(n int) Option {
	return func(s *Session) { s.eventLimit = n }
}

// WithDeck makes every Start use a copy of the given draw order and hidden
// cards instead of a shuffled deck.
func WithDeck(cards, removed []int) Option {
	return func(s *Session) {
		s.deckBuilder = func(randutil.Source) *Deck { return NewDeck(cards, removed) }
	}
}

// NewSession creates a session in the lobby state.
func NewSession(id string, opts ...Option) *Session {
	s := &Session{
		id:          id,
		state:       StateLobby,
		turn:        NoTurn,
		clock:       quartz.NewReal(),
		eventLimit:  DefaultEventLimit,
		deckBuilder: BuildDeck,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng, _ = randutil.NewFromTime()
	}
	s.events = NewEventLog(s.eventLimit, s.clock)
	s.deck = NewDeck(nil, nil)
	return s
}

func (s *Session) ID() string   { return s.id }
func (s *Session) State() State { return s.state }
func (s *Session) Pot() int     { return s.pot }

// Turn is the index of the participant to act, or NoTurn.
func (s *Session) Turn() int { return s.turn }

// CurrentCard returns the face-up card, if any.
func (s *Session) CurrentCard() (int, bool) {
	return s.card, s.card != NoCard
}

func (s *Session) DeckCount() int    { return s.deck.Remaining() }
func (s *Session) RemovedCount() int { return s.deck.RemovedCount() }

// Result is nil until the session finishes.
func (s *Session) Result() *Result { return s.result }

// Events returns the newest n log entries.
func (s *Session) Events(n int) []Event { return s.events.Recent(n) }

// Logf appends a call-site entry to the event log.
func (s *Session) Logf(format string, args ...any) { s.events.Addf(format, args...) }

// Participants returns the seats in turn order.
func (s *Session) Participants() []*Participant {
	return slices.Clone(s.players)
}

// Participant looks a seat up by id.
func (s *Session) Participant(id string) (*Participant, int) {
	i := s.indexOf(id)
	if i < 0 {
		return nil, -1
	}
	return s.players[i], i
}

// TurnHolder is the participant to act, or nil.
func (s *Session) TurnHolder() *Participant {
	if s.state != StateInProgress || s.turn == NoTurn {
		return nil
	}
	return s.players[s.turn]
}

// ConnectedCount is the number of connected seats.
func (s *Session) ConnectedCount() int {
	n := 0
	for _, p := range s.players {
		if p.Connected {
			n++
		}
	}
	return n
}

// Join seats a new connected participant at the end of the turn order.
func (s *Session) Join(id, name string) (*Participant, error) {
	if s.state == StateInProgress {
		return nil, ErrAlreadyInProgress
	}
	if s.indexOf(id) >= 0 {
		return nil, ErrDuplicateParticipant
	}
	p := &Participant{ID: id, Name: name, Chips: StartingChips, Connected: true}
	s.players = append(s.players, p)
	return p, nil
}

// Remove unseats a participant outside of play.
func (s *Session) Remove(id string) error {
	if s.state == StateInProgress {
		return ErrAlreadyInProgress
	}
	i := s.indexOf(id)
	if i < 0 {
		return ErrUnknownParticipant
	}
	s.players = slices.Delete(s.players, i, i+1)
	return nil
}

// Start deals a fresh game with first to act. A finished session may be
// started again.
func (s *Session) Start(first int) error {
	if s.state == StateInProgress {
		return ErrAlreadyInProgress
	}
	if len(s.players) == 0 {
		return ErrNoParticipants
	}

	s.deck = s.deckBuilder(s.rng)
	s.card = NoCard
	s.pot = 0
	s.result = nil
	s.events.Reset()
	for _, p := range s.players {
		p.Chips = StartingChips
		p.Cards = nil
	}
	s.state = StateInProgress

	if first < 0 || first >= len(s.players) {
		first = 0
	}
	s.turn = first
	if !s.players[first].Connected {
		s.advance()
	}
	s.events.Addf("Game started.")

	card, ok := s.deck.Draw()
	if !ok {
		s.Finish()
		return nil
	}
	s.card = card
	return nil
}

// Apply plays action for the participant holding the turn. Calls from anyone
// else, or outside of play, return an error and leave the session untouched.
// A pass without chips is played as a take.
func (s *Session) Apply(id string, action Action) (Outcome, error) {
	if s.state != StateInProgress {
		return Outcome{}, ErrNotInProgress
	}
	idx := s.indexOf(id)
	if idx < 0 {
		return Outcome{}, ErrUnknownParticipant
	}
	if idx != s.turn {
		return Outcome{}, ErrNotYourTurn
	}
	if s.card == NoCard {
		return Outcome{}, ErrNoCard
	}
	if action != Take && action != Pass {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	p := s.players[idx]
	out := Outcome{Actor: id, Action: action}
	if action == Pass && p.Chips <= 0 {
		out.Action = Take
		out.Reclassified = true
	}

	if out.Action == Pass {
		p.Chips--
		s.pot++
		s.events.Addf("%s passed.", p.Name)
		s.advance()
		return out, nil
	}

	s.take(idx, &out)
	return out, nil
}

// take hands the face-up card and pot to seat idx and turns the next card.
// The taker keeps the turn while connected.
func (s *Session) take(idx int, out *Outcome) {
	p := s.players[idx]
	card, pot := s.card, s.pot

	p.Cards = append(p.Cards, card)
	p.Chips += pot
	s.pot = 0
	out.Action = Take
	out.Card = card
	out.Chips = pot

	if pot > 0 {
		s.events.Addf("%s took %d and %d %s.", p.Name, card, pot, plural(pot, "chip", "chips"))
	} else {
		s.events.Addf("%s took %d.", p.Name, card)
	}

	next, ok := s.deck.Draw()
	if !ok {
		s.card = NoCard
		out.Finished = true
		out.Result = s.Finish()
		return
	}
	s.card = next
	if p.Connected {
		s.turn = idx
		return
	}
	s.advance()
}

// Advance moves the turn to the next connected participant.
func (s *Session) Advance() {
	if s.state != StateInProgress {
		return
	}
	s.advance()
}

func (s *Session) advance() {
	n := len(s.players)
	if n == 0 {
		s.turn = NoTurn
		return
	}
	start := s.turn
	if start < 0 {
		start = -1
	}
	for i := 1; i <= n; i++ {
		next := (start + i) % n
		if s.players[next].Connected {
			s.turn = next
			return
		}
	}
	s.turn = NoTurn
}

// Disconnect marks a participant as gone and applies the session policy.
func (s *Session) Disconnect(id string) (Outcome, error) {
	idx := s.indexOf(id)
	if idx < 0 {
		return Outcome{}, ErrUnknownParticipant
	}
	p := s.players[idx]
	p.Connected = false
	out := Outcome{Actor: id}

	switch {
	case s.state == StateInProgress:
		s.events.Addf("%s disconnected.", p.Name)
		if idx != s.turn {
			return out, nil
		}
		if s.policy.ForceTakeOnDisconnect && s.card != NoCard {
			s.take(idx, &out)
			return out, nil
		}
		s.advance()
	case s.state == StateLobby && s.policy.RemoveInLobby:
		s.players = slices.Delete(s.players, idx, idx+1)
		s.events.Addf("%s left the lobby.", p.Name)
	default:
		s.events.Addf("%s disconnected.", p.Name)
	}
	return out, nil
}

// Reconnect marks a participant as back. If play had stalled with nobody
// connected, the returning participant picks the turn up.
func (s *Session) Reconnect(id string) error {
	idx := s.indexOf(id)
	if idx < 0 {
		return ErrUnknownParticipant
	}
	p := s.players[idx]
	p.Connected = true
	s.events.Addf("%s rejoined.", p.Name)
	if s.state == StateInProgress && s.turn == NoTurn {
		s.turn = idx
	}
	return nil
}

// ResetStake restores a participant's starting chips and clears its cards.
// It is ignored while a game is in progress.
func (s *Session) ResetStake(id string) {
	if s.state == StateInProgress {
		return
	}
	if i := s.indexOf(id); i >= 0 {
		s.players[i].Chips = StartingChips
		s.players[i].Cards = nil
	}
}

// Rename updates a participant's display name.
func (s *Session) Rename(id, name string) {
	if i := s.indexOf(id); i >= 0 {
		s.players[i].Name = name
	}
}

// Finish scores every participant and ends the session. Calling it again
// returns the same result.
func (s *Session) Finish() *Result {
	if s.state == StateFinished && s.result != nil {
		return s.result
	}
	s.state = StateFinished
	s.card = NoCard
	s.turn = NoTurn

	standings := make([]Standing, len(s.players))
	for i, p := range s.players {
		standings[i] = Standing{
			ID:    p.ID,
			Name:  p.Name,
			Score: p.Score(),
			Cards: p.SortedCards(),
			Chips: p.Chips,
		}
	}
	slices.SortStableFunc(standings, func(a, b Standing) int {
		return cmp.Compare(a.Score, b.Score)
	})
	winners := Winners(standings)

	result := &Result{SessionID: s.id, Standings: standings, Winners: winners}
	if len(standings) > 0 {
		result.BestScore = standings[0].Score
		names := make([]string, 0, len(winners))
		for _, st := range standings {
			if result.IsWinner(st.ID) {
				names = append(names, st.Name)
			}
		}
		s.events.Addf("Game finished. Winner: %s (%d).", strings.Join(names, ", "), result.BestScore)
	}
	s.result = result
	return result
}

func (s *Session) indexOf(id string) int {
	return slices.IndexFunc(s.players, func(p *Participant) bool { return p.ID == id })
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
