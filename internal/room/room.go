// Package room hosts human games: a lobby that players join by name, a host
// who starts the game, and a state broadcast after every change.
package room

import (
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/lox/nothanks/internal/game"
	"github.com/lox/nothanks/internal/ident"
	"github.com/lox/nothanks/protocol"
)

const (
	MaxNameLength = 24
	DefaultName   = "Player"
	MinPlayers    = 2
	viewEvents    = 15
)

var (
	ErrNameSeated       = errors.New("that name is already seated, try a different one")
	ErrNotHost          = errors.New("only the host can start the game")
	ErrNotEnoughPlayers = errors.New("need at least two players to start")
	ErrStaleConnection  = errors.New("you are not the active connection for this player")
)

// Conn is a player's transport. Send must not block.
type Conn interface {
	Send(t protocol.Type, payload any) error
}

// Room is one human game. It is safe for concurrent use.
type Room struct {
	id     string
	ids    *ident.Generator
	logger *log.Logger

	mu      sync.Mutex
	session *game.Session
	host    string
	conns   map[string]Conn
}

// ID returns the room code.
func (r *Room) ID() string { return r.id }

// CleanName trims name and bounds its length, falling back to DefaultName.
func CleanName(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > MaxNameLength {
		name = string([]rune(name)[:MaxNameLength])
	}
	if name == "" {
		return DefaultName
	}
	return name
}

// join seats conn under name. A player whose name matches a disconnected
// seat takes that seat back.
func (r *Room) join(name string, conn Conn) (string, protocol.RoomState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name = CleanName(name)
	var existing *game.Participant
	for _, p := range r.session.Participants() {
		if strings.EqualFold(p.Name, name) {
			existing = p
			break
		}
	}

	var playerID string
	switch {
	case existing != nil:
		if existing.Connected && r.conns[existing.ID] != conn {
			return "", protocol.RoomState{}, ErrNameSeated
		}
		playerID = existing.ID
		r.session.Rename(playerID, name)
		if err := r.session.Reconnect(playerID); err != nil {
			return "", protocol.RoomState{}, err
		}
	default:
		playerID = r.ids.PlayerID(name, func(id string) bool {
			p, _ := r.session.Participant(id)
			return p != nil
		})
		if _, err := r.session.Join(playerID, name); err != nil {
			return "", protocol.RoomState{}, err
		}
		r.session.Logf("%s joined the lobby.", name)
	}
	r.conns[playerID] = conn

	if p, _ := r.session.Participant(r.host); p == nil {
		r.host = r.firstPlayer()
	}
	r.session.ResetStake(playerID)

	r.logger.Info("Player joined", "player", playerID, "name", name, "rejoin", existing != nil)
	state := r.state()
	r.broadcast(state)
	return playerID, state, nil
}

// Start deals a new game. Only the host may start, and the host acts first.
func (r *Room) Start(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session.State() == game.StateInProgress {
		return game.ErrAlreadyInProgress
	}
	if len(r.session.Participants()) < MinPlayers {
		return ErrNotEnoughPlayers
	}
	if playerID != r.host {
		return ErrNotHost
	}
	_, first := r.session.Participant(playerID)
	if err := r.session.Start(first); err != nil {
		return err
	}
	r.logger.Info("Game started", "host", playerID)
	r.broadcast(r.state())
	return nil
}

// Act plays action for playerID. conn must be the player's live connection.
func (r *Room) Act(playerID string, conn Conn, action string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session.State() != game.StateInProgress {
		return game.ErrNotInProgress
	}
	p, idx := r.session.Participant(playerID)
	if p == nil {
		return game.ErrUnknownParticipant
	}
	if r.conns[playerID] != conn {
		return ErrStaleConnection
	}
	if idx != r.session.Turn() {
		return game.ErrNotYourTurn
	}
	parsed, err := game.ParseAction(action)
	if err != nil {
		return err
	}
	out, err := r.session.Apply(playerID, parsed)
	if err != nil {
		return err
	}
	r.logger.Debug("Player acted", "player", playerID, "action", out.Action, "finished", out.Finished)
	r.broadcast(r.state())
	return nil
}

// disconnect releases conn from playerID and reports whether the room has
// no players left.
func (r *Room) disconnect(playerID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.conns[playerID]; !ok || c != conn {
		return len(r.session.Participants()) == 0
	}
	delete(r.conns, playerID)
	if _, err := r.session.Disconnect(playerID); err != nil {
		return len(r.session.Participants()) == 0
	}
	if p, _ := r.session.Participant(r.host); p == nil {
		r.host = r.firstPlayer()
	}
	r.logger.Info("Player disconnected", "player", playerID)
	r.broadcast(r.state())
	return len(r.session.Participants()) == 0
}

// State returns the current room view.
func (r *Room) State() protocol.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state()
}

func (r *Room) firstPlayer() string {
	players := r.session.Participants()
	if len(players) == 0 {
		return ""
	}
	return players[0].ID
}

func (r *Room) state() protocol.RoomState {
	v := r.session.View(viewEvents)
	players := make([]protocol.RoomPlayer, len(v.Seats))
	for i, s := range v.Seats {
		players[i] = protocol.RoomPlayer{
			ID:        s.ID,
			Name:      s.Name,
			Chips:     s.Chips,
			Cards:     s.Cards,
			Score:     s.Score,
			Connected: s.Connected,
			IsHost:    s.ID == r.host,
			IsTurn:    s.IsTurn,
		}
	}

	winners := []string{}
	if res := r.session.Result(); res != nil && v.State == game.StateFinished {
		winners = res.Winners
	}
	var host *string
	if r.host != "" {
		h := r.host
		host = &h
	}

	events := make([]protocol.Event, len(v.Events))
	for i, e := range v.Events {
		events[i] = protocol.Event{Timestamp: e.Timestamp.UnixMilli(), Message: e.Message}
	}

	return protocol.RoomState{
		RoomID:       r.id,
		State:        string(v.State),
		Players:      players,
		Pot:          v.Pot,
		CurrentCard:  protocol.Card(v.CurrentCard, v.HasCard()),
		DeckCount:    v.DeckCount,
		RemovedCount: v.RemovedCount,
		HostID:       host,
		WinnerIDs:    winners,
		Events:       events,
	}
}

func (r *Room) broadcast(state protocol.RoomState) {
	for id, conn := range r.conns {
		if err := conn.Send(protocol.TypeStateUpdate, state); err != nil {
			r.logger.Warn("Failed to send room state", "player", id, "error", err)
		}
	}
}
