// Package ident generates the identifiers handed out to bots, room players and
// matches.
package ident

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

const (
	// SuffixLength is the number of base36 characters after the slug.
	SuffixLength = 4
	// MaxSlugLength bounds the name-derived part of an id.
	MaxSlugLength = 32
	// MaxRoomIDLength bounds room codes.
	MaxRoomIDLength = 64

	maxAttempts = 32
)

var ErrInvalidRoomID = errors.New("room id required")

// RandSource interface for dependency injection of randomness
type RandSource interface {
	IntN(n int) int
}

// Generator builds slug ids with a configurable random source.
type Generator struct {
	rng RandSource
}

func NewGenerator(rng RandSource) *Generator {
	return &Generator{rng: rng}
}

// Slug lower-cases name, collapses every run of characters outside [a-z0-9]
// into a single '-', trims leading and trailing dashes and truncates to max.
// It returns fallback when nothing is left.
func Slug(name string, max int, fallback string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.Trim(b.String(), "-")
	if max > 0 && len(s) > max {
		s = s[:max]
	}
	if s == "" {
		return fallback
	}
	return s
}

// Suffix returns n random base36 characters.
func (g *Generator) Suffix(n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = alphabet[g.rng.IntN(len(alphabet))]
	}
	return string(out)
}

// ID returns "<slug>-<suffix>" for name, redrawing the suffix while exists
// reports a collision. After repeated collisions the suffix is lengthened.
func (g *Generator) ID(name, fallback string, exists func(string) bool) string {
	slug := Slug(name, MaxSlugLength, fallback)
	n := SuffixLength
	for attempt := 0; ; attempt++ {
		if attempt > 0 && attempt%maxAttempts == 0 {
			n++
		}
		candidate := slug + "-" + g.Suffix(n)
		if exists == nil || !exists(candidate) {
			return candidate
		}
	}
}

// BotID derives a bot id from its display name.
func (g *Generator) BotID(name string, exists func(string) bool) string {
	return g.ID(name, "bot", exists)
}

// PlayerID derives a room player id from its display name.
func (g *Generator) PlayerID(name string, exists func(string) bool) string {
	return g.ID(name, "player", exists)
}

// MatchID returns a time-ordered unique match id.
func MatchID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "match-" + id.String()
}

// NormalizeRoomID maps a user supplied room code onto [a-z0-9_-], collapsing
// runs of dashes.
func NormalizeRoomID(raw string) (string, error) {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
			b.WriteRune(r)
			dash = false
		case !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	id := strings.Trim(b.String(), "-")
	if len(id) > MaxRoomIDLength {
		id = id[:MaxRoomIDLength]
	}
	if id == "" {
		return "", ErrInvalidRoomID
	}
	return id, nil
}
