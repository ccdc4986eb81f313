// Package random is the sample arena bot: it grabs cheap cards and flips a
// coin for the rest.
package random

import (
	"slices"

	"github.com/lox/nothanks/internal/randutil"
	"github.com/lox/nothanks/protocol"
	"github.com/lox/nothanks/sdk"
)

type Strategy struct {
	rng randutil.Source
}

func New(rng randutil.Source) *Strategy {
	return &Strategy{rng: rng}
}

// Decide takes when out of chips or when the card, net of the pot, is no
// worse than the lowest card already held. Otherwise it passes half the time.
func (s *Strategy) Decide(view protocol.BotView) sdk.Action {
	if view.CurrentCard == nil || view.You.Chips <= 0 {
		return sdk.Take
	}
	if len(view.You.Cards) > 0 && *view.CurrentCard-view.Pot <= slices.Min(view.You.Cards) {
		return sdk.Take
	}
	if randutil.Coin(s.rng) {
		return sdk.Pass
	}
	return sdk.Take
}

var _ sdk.Strategy = (*Strategy)(nil)
