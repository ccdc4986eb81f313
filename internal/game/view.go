package game

// SeatView is one participant as every viewer sees it. Hands are public in
// this game; hidden cards never appear in any view.
type SeatView struct {
	ID        string
	Name      string
	Chips     int
	Cards     []int
	Score     int
	Connected bool
	IsTurn    bool
}

// View is a sanitized copy of the session safe to hand to transports.
type View struct {
	ID           string
	State        State
	CurrentCard  int
	Pot          int
	DeckCount    int
	RemovedCount int
	Turn         int
	Seats        []SeatView
	Events       []Event
}

// HasCard reports whether a card is face up.
func (v View) HasCard() bool {
	return v.CurrentCard != NoCard
}

// Seat returns the view of participant id.
func (v View) Seat(id string) (SeatView, bool) {
	for _, s := range v.Seats {
		if s.ID == id {
			return s, true
		}
	}
	return SeatView{}, false
}

// View snapshots the session with the newest events entries of the log.
func (s *Session) View(events int) View {
	seats := make([]SeatView, len(s.players))
	for i, p := range s.players {
		seats[i] = SeatView{
			ID:        p.ID,
			Name:      p.Name,
			Chips:     p.Chips,
			Cards:     p.SortedCards(),
			Score:     p.Score(),
			Connected: p.Connected,
			IsTurn:    s.state == StateInProgress && s.turn == i,
		}
	}
	return View{
		ID:           s.id,
		State:        s.state,
		CurrentCard:  s.card,
		Pot:          s.pot,
		DeckCount:    s.deck.Remaining(),
		RemovedCount: s.deck.RemovedCount(),
		Turn:         s.turn,
		Seats:        seats,
		Events:       s.events.Recent(events),
	}
}
