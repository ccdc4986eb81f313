package ident

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/nothanks/internal/randutil"
)

type fixedSource struct {
	values []int
}

func (f *fixedSource) IntN(n int) int {
	if len(f.values) == 0 {
		return 0
	}
	v := f.values[0]
	f.values = f.values[1:]
	return v % n
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Smart Bot", "smart-bot"},
		{"  --Hello__World!!  ", "hello-world"},
		{"ÜBER", "ber"},
		{"!!!", "bot"},
		{"", "bot"},
		{strings.Repeat("a", 40), strings.Repeat("a", 32)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slug(tt.in, MaxSlugLength, "bot"))
		})
	}
}

func TestBotIDShape(t *testing.T) {
	g := NewGenerator(randutil.New(1))
	pattern := regexp.MustCompile(`^smart-bot-[0-9a-z]{4}$`)
	for range 50 {
		assert.Regexp(t, pattern, g.BotID("Smart Bot", nil))
	}
}

func TestIDRegeneratesOnCollision(t *testing.T) {
	// 10 -> 'a', 11 -> 'b'
	g := NewGenerator(&fixedSource{values: []int{10, 10, 10, 10, 11, 11, 11, 11}})
	taken := map[string]bool{"bot-aaaa": true}

	id := g.BotID("", func(id string) bool { return taken[id] })
	assert.Equal(t, "bot-bbbb", id)
}

func TestIDGrowsSuffixUnderPressure(t *testing.T) {
	g := NewGenerator(&fixedSource{})
	calls := 0
	id := g.PlayerID("Ann", func(id string) bool {
		calls++
		return len(id) == len("ann-")+SuffixLength
	})
	assert.Equal(t, "ann-00000", id)
	assert.Equal(t, maxAttempts+1, calls)
}

func TestMatchIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		id := MatchID()
		require.True(t, strings.HasPrefix(id, "match-"))
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestNormalizeRoomID(t *testing.T) {
	id, err := NormalizeRoomID("  My Room!! 42 ")
	require.NoError(t, err)
	assert.Equal(t, "my-room-42", id)

	id, err = NormalizeRoomID("ab_c")
	require.NoError(t, err)
	assert.Equal(t, "ab_c", id)

	_, err = NormalizeRoomID(" ?? ")
	assert.ErrorIs(t, err, ErrInvalidRoomID)
}
