package room

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/nothanks/internal/game"
	"github.com/lox/nothanks/internal/ident"
	"github.com/lox/nothanks/internal/randutil"
	"github.com/lox/nothanks/protocol"
)

// Directory tracks the live rooms. Rooms are created on first join and
// dropped once their last player has gone.
type Directory struct {
	rng    randutil.Source
	clock  quartz.Clock
	ids    *ident.Generator
	logger *log.Logger

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewDirectory creates an empty directory. A nil clock means the wall clock.
// rng must be safe for concurrent use.
func NewDirectory(logger *log.Logger, rng randutil.Source, clock quartz.Clock) *Directory {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Directory{
		rng:    rng,
		clock:  clock,
		ids:    ident.NewGenerator(rng),
		logger: logger.WithPrefix("rooms"),
		rooms:  make(map[string]*Room),
	}
}

// Join seats conn in roomID under name, creating the room if needed.
func (d *Directory) Join(roomID, name string, conn Conn) (*Room, string, protocol.RoomState, error) {
	id, err := ident.NormalizeRoomID(roomID)
	if err != nil {
		return nil, "", protocol.RoomState{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[id]
	if !ok {
		r = &Room{
			id:     id,
			ids:    d.ids,
			logger: d.logger.With("room", id),
			session: game.NewSession(id,
				game.WithPolicy(game.RoomPolicy),
				game.WithRNG(d.rng),
				game.WithClock(d.clock),
			),
			conns: make(map[string]Conn),
		}
	}

	playerID, state, err := r.join(name, conn)
	if err != nil {
		return nil, "", protocol.RoomState{}, err
	}
	if !ok {
		d.rooms[id] = r
		d.logger.Info("Room created", "room", id)
	}
	return r, playerID, state, nil
}

// Leave releases conn from playerID's seat in r and drops the room once it is
// empty.
func (d *Directory) Leave(r *Room, playerID string, conn Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !r.disconnect(playerID, conn) {
		return
	}
	if d.rooms[r.id] == r {
		delete(d.rooms, r.id)
		d.logger.Info("Room closed", "room", r.id)
	}
}

// Get returns the room with the given code.
func (d *Directory) Get(roomID string) (*Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rooms[roomID]
	return r, ok
}

// Len returns the number of live rooms.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}
