package arena

import (
	"cmp"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/coder/quartz"

	"github.com/lox/nothanks/internal/game"
	"github.com/lox/nothanks/internal/ident"
	"github.com/lox/nothanks/internal/rating"
	"github.com/lox/nothanks/protocol"
)

// MaxNameLength bounds bot display names.
const MaxNameLength = 36

var (
	ErrNameRequired = errors.New("bot name is required")
	ErrNameTooLong  = errors.New("bot name must be 36 characters or fewer")
	ErrNameInUse    = errors.New("bot name already connected")
)

// Conn is the live transport behind a registered bot. Send must not block.
type Conn interface {
	Send(t protocol.Type, payload any) error
	Close() error
}

// Profile is a bot's identity and standing for the lifetime of the process.
type Profile struct {
	ID       string
	Name     string
	Rating   float64
	Record   rating.Record
	LastSeen time.Time
}

// Stats is the wire summary of the profile.
func (p Profile) Stats() protocol.Stats {
	return protocol.Stats{
		Games:   p.Record.Games,
		Wins:    p.Record.Wins,
		Losses:  p.Record.Losses,
		Draws:   p.Record.Draws,
		Rating:  rating.Display(p.Rating),
		WinRate: p.Record.WinRate(),
	}
}

// Registry owns every bot profile and the single live connection allowed per
// name. It is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	byName map[string]*Profile
	byID   map[string]*Profile
	live   map[string]Conn
	ids    *ident.Generator
	clock  quartz.Clock
}

func NewRegistry(ids *ident.Generator, clock quartz.Clock) *Registry {
	return &Registry{
		byName: make(map[string]*Profile),
		byID:   make(map[string]*Profile),
		live:   make(map[string]Conn),
		ids:    ids,
		clock:  clock,
	}
}

// Register binds conn to the profile named name, creating it on first use.
// A name is matched case-insensitively and the stored display name follows
// the latest casing.
func (r *Registry) Register(name string, conn Conn) (Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Profile{}, ErrNameRequired
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return Profile{}, ErrNameTooLong
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(name)
	p, ok := r.byName[key]
	if ok {
		if existing, live := r.live[p.ID]; live && existing != conn {
			return Profile{}, ErrNameInUse
		}
		p.Name = name
	} else {
		id := r.ids.BotID(name, func(id string) bool {
			_, taken := r.byID[id]
			return taken
		})
		p = &Profile{ID: id, Name: name, Rating: rating.DefaultRating}
		r.byName[key] = p
		r.byID[id] = p
	}

	r.live[p.ID] = conn
	p.LastSeen = r.clock.Now()
	return *p, nil
}

// Release drops the live binding of botID if it is still conn. It reports
// whether the binding was removed.
func (r *Registry) Release(botID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.live[botID]; !ok || existing != conn {
		return false
	}
	delete(r.live, botID)
	if p, ok := r.byID[botID]; ok {
		p.LastSeen = r.clock.Now()
	}
	return true
}

// Conn returns the live connection of botID.
func (r *Registry) Conn(botID string) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.live[botID]
	return c, ok
}

// Connected reports whether botID has a live connection.
func (r *Registry) Connected(botID string) bool {
	_, ok := r.Conn(botID)
	return ok
}

// Profile returns a copy of the profile for botID.
func (r *Registry) Profile(botID string) (Profile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[botID]
	if !ok {
		return Profile{}, false
	}
	return *p, true
}

// Settle records a finished match: each participant's record, then the
// pairwise rating update computed from pre-match ratings.
func (r *Registry) Settle(res *game.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	entries := make([]rating.Entry, 0, len(res.Standings))
	for _, st := range res.Standings {
		p, ok := r.byID[st.ID]
		if !ok {
			continue
		}
		p.Record.Add(rating.Classify(st.ID, res.Winners))
		p.LastSeen = now
		entries = append(entries, rating.Entry{ID: p.ID, Rating: p.Rating, Score: st.Score})
	}
	for id, updated := range rating.Settle(entries) {
		r.byID[id].Rating = updated
	}
}

// Leaderboard returns every profile, best displayed rating first and by name
// on ties.
func (r *Registry) Leaderboard() []Profile {
	r.mu.Lock()
	out := make([]Profile, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, *p)
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b Profile) int {
		if c := cmp.Compare(rating.Display(b.Rating), rating.Display(a.Rating)); c != 0 {
			return c
		}
		if c := cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}
