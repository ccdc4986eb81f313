package arena

import (
	"github.com/lox/nothanks/internal/game"
	"github.com/lox/nothanks/protocol"
)

func (m *Match) players(v game.View) []protocol.MatchPlayer {
	players := make([]protocol.MatchPlayer, len(v.Seats))
	for i, s := range v.Seats {
		players[i] = protocol.MatchPlayer{
			BotID:     s.ID,
			Name:      s.Name,
			Chips:     s.Chips,
			Cards:     s.Cards,
			IsTurn:    s.IsTurn,
			Connected: s.Connected,
		}
	}
	return players
}

func (m *Match) publicState() protocol.MatchState {
	v := m.session.View(publicHistory)
	return protocol.MatchState{
		MatchID:      m.id,
		CurrentCard:  protocol.Card(v.CurrentCard, v.HasCard()),
		Pot:          v.Pot,
		DeckCount:    v.DeckCount,
		RemovedCount: v.RemovedCount,
		Players:      m.players(v),
		History:      events(v.Events),
	}
}

func (m *Match) botView(botID string) protocol.BotView {
	v := m.session.View(botHistory)
	self, _ := v.Seat(botID)
	cards := self.Cards
	if cards == nil {
		cards = []int{}
	}
	return protocol.BotView{
		MatchID:      m.id,
		You:          protocol.Self{Name: self.Name, Chips: self.Chips, Cards: cards},
		CurrentCard:  protocol.Card(v.CurrentCard, v.HasCard()),
		Pot:          v.Pot,
		DeckCount:    v.DeckCount,
		RemovedCount: v.RemovedCount,
		Players:      m.players(v),
		History:      events(v.Events),
		TimeoutMs:    m.timeout.Milliseconds(),
	}
}

func events(in []game.Event) []protocol.Event {
	out := make([]protocol.Event, len(in))
	for i, e := range in {
		out[i] = protocol.Event{Timestamp: e.Timestamp.UnixMilli(), Message: e.Message}
	}
	return out
}
