// Package game implements the rules engine for "No Thanks!": a 33 card deck
// (3 to 35) with nine cards hidden, where each turn a player either takes the
// face-up card along with the chips piled on it, or pays a chip to pass.
//
// The main type is Session, which owns the deck, pot, turn cursor and event
// log for one game. Human rooms and bot matches share it and differ only in
// the Policy they install and in what they layer on top (hosts, timeouts).
//
// # Basic Usage
//
//	s := game.NewSession("room-1", game.WithPolicy(game.RoomPolicy))
//	s.Join("alice", "Alice")
//	s.Join("bob", "Bob")
//	_ = s.Start(0)
//	out, err := s.Apply("alice", game.Pass)
//	if out.Finished {
//	    fmt.Println(out.Result.Winners)
//	}
//
// # Deterministic Testing
//
// Inject a seeded source with WithRNG, or fix the exact draw order:
//
//	s := game.NewSession("t", game.WithDeck([]int{10, 11, 12}, nil))
//
// # Scoring
//
// Each run of consecutive cards counts only its lowest card; every chip held
// subtracts one. The lowest total wins and ties share the win.
package game
