// Package smart scores both choices by how they move the bot's total and
// simulates the table to guess what happens to a passed card.
package smart

import (
	"slices"

	"github.com/lox/nothanks/internal/game"
	"github.com/lox/nothanks/protocol"
	"github.com/lox/nothanks/sdk"
)

const (
	margin       = 0.5
	loopPenalty  = 0.2
	rivalMargin  = 0.25
	bigPot       = 3
	lowChips     = 2
	cheapOpening = 16
)

type Strategy struct{}

func New() *Strategy { return &Strategy{} }

// passOutcome is the simulated result of passing the current card around the
// table.
type passOutcome struct {
	takenByOther bool
	passes       int
	backToSelf   bool
}

func (s *Strategy) Decide(view protocol.BotView) sdk.Action {
	if view.CurrentCard == nil {
		return sdk.Take
	}
	card := *view.CurrentCard
	chips := view.You.Chips
	cards := slices.Sorted(slices.Values(view.You.Cards))
	if chips <= 0 {
		return sdk.Take
	}

	current := float64(game.Score(cards, chips))
	deltaTake := float64(game.Score(append(slices.Clone(cards), card), chips+view.Pot)) - current

	out := simulatePass(view, card)
	var deltaPass float64
	if out.takenByOther {
		deltaPass = float64(game.Score(cards, chips-1)) - current
	} else {
		future := float64(game.Score(append(slices.Clone(cards), card), chips-1+view.Pot+out.passes))
		deltaPass = future - current + float64(out.passes)*loopPenalty
	}

	switch {
	case deltaTake <= deltaPass-margin:
		return sdk.Take
	case deltaPass <= deltaTake-margin:
		return sdk.Pass
	case runNeighbors(cards, card) >= 2 && deltaTake <= deltaPass+1:
		return sdk.Take
	case view.Pot >= bigPot && deltaTake <= deltaPass+2:
		return sdk.Take
	case chips <= lowChips && deltaTake <= deltaPass+1.5:
		return sdk.Take
	case len(cards) == 0 && card <= cheapOpening && view.Pot >= 1:
		return sdk.Take
	case out.backToSelf && view.Pot < bigPot && deltaPass < deltaTake+margin:
		return sdk.Pass
	case deltaPass <= deltaTake:
		return sdk.Pass
	}
	return sdk.Take
}

// simulatePass walks the seats after ours, assuming each rival takes once the
// card is worth it to them or they cannot pay.
func simulatePass(view protocol.BotView, card int) passOutcome {
	self := sdk.Seat(view)
	if self < 0 {
		return passOutcome{passes: 1, backToSelf: true}
	}
	pot := view.Pot + 1
	passes := 1

	n := len(view.Players)
	for offset := 1; offset < n; offset++ {
		p := view.Players[(self+offset)%n]
		if p.Chips <= 0 {
			return passOutcome{takenByOther: true, passes: passes}
		}
		current := game.Score(p.Cards, p.Chips)
		deltaTake := float64(game.Score(append(slices.Clone(p.Cards), card), p.Chips+pot) - current)
		deltaPass := float64(game.Score(p.Cards, p.Chips-1) - current)
		if deltaTake <= deltaPass-rivalMargin || deltaTake <= 0 {
			return passOutcome{takenByOther: true, passes: passes}
		}
		pot++
		passes++
	}
	return passOutcome{passes: passes, backToSelf: true}
}

func runNeighbors(cards []int, card int) int {
	n := 0
	if slices.Contains(cards, card-1) {
		n++
	}
	if slices.Contains(cards, card+1) {
		n++
	}
	return n
}

var _ sdk.Strategy = (*Strategy)(nil)
