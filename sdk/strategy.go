package sdk

import (
	"github.com/lox/nothanks/protocol"
)

// Action is a turn decision sent to the arena.
type Action string

const (
	Take Action = "take"
	Pass Action = "pass"
)

// Strategy decides a bot's move from its view of the match.
type Strategy interface {
	Decide(view protocol.BotView) Action
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(view protocol.BotView) Action

func (f StrategyFunc) Decide(view protocol.BotView) Action { return f(view) }

// Seat returns the index of the deciding bot in view.Players, or -1.
func Seat(view protocol.BotView) int {
	for i, p := range view.Players {
		if p.Name == view.You.Name {
			return i
		}
	}
	return -1
}
