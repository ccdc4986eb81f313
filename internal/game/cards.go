package game

import (
	"github.com/lox/nothanks/internal/randutil"
)

// Cards are plain integers in [MinCard, MaxCard]; there are no suits and no
// duplicates in a deck.
const (
	MinCard   = 3
	MaxCard   = 35
	CardCount = MaxCard - MinCard + 1

	// HiddenCards are set aside face down at the start of every game and
	// never revealed.
	HiddenCards = 9

	// StartingChips is the stake every participant begins a game with.
	StartingChips = 11

	// NoCard marks an empty face-up slot.
	NoCard = 0
)

// FullCardSet returns every card value in ascending order.
func FullCardSet() []int {
	cards := make([]int, 0, CardCount)
	for c := MinCard; c <= MaxCard; c++ {
		cards = append(cards, c)
	}
	return cards
}

// Shuffle returns a Fisher-Yates shuffled copy of list. The input is not
// modified.
func Shuffle(list []int, rng randutil.Source) []int {
	out := make([]int, len(list))
	copy(out, list)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Deck is an ordered draw pile plus the hidden cards removed from play.
type Deck struct {
	cards   []int
	removed []int
	drawn   []int
}

// BuildDeck shuffles the full card set and sets the first HiddenCards aside.
func BuildDeck(rng randutil.Source) *Deck {
	shuffled := Shuffle(FullCardSet(), rng)
	return NewDeck(shuffled[HiddenCards:], shuffled[:HiddenCards])
}

// NewDeck builds a deck from an explicit draw order. Used for scripted games.
func NewDeck(cards, removed []int) *Deck {
	d := &Deck{
		cards:   make([]int, len(cards)),
		removed: make([]int, len(removed)),
	}
	copy(d.cards, cards)
	copy(d.removed, removed)
	return d
}

// Draw takes the next card off the pile.
func (d *Deck) Draw() (int, bool) {
	if len(d.cards) == 0 {
		return NoCard, false
	}
	card := d.cards[0]
	d.cards = d.cards[1:]
	d.drawn = append(d.drawn, card)
	return card, true
}

// Remaining is the number of undrawn cards.
func (d *Deck) Remaining() int {
	return len(d.cards)
}

// RemovedCount is the number of hidden cards. The values themselves are never
// exposed outside the package.
func (d *Deck) RemovedCount() int {
	return len(d.removed)
}
