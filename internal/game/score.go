package game

import (
	"slices"
)

// Score totals a holding: each run of consecutive cards counts only its
// lowest card, and every chip is worth minus one. Lower is better.
func Score(cards []int, chips int) int {
	if len(cards) == 0 {
		return -chips
	}
	sorted := slices.Clone(cards)
	slices.Sort(sorted)

	total := 0
	for i, card := range sorted {
		if i == 0 || card != sorted[i-1]+1 {
			total += card
		}
	}
	return total - chips
}

// Standing is one participant's final position in a finished session.
type Standing struct {
	ID    string
	Name  string
	Score int
	Cards []int
	Chips int
}

// Winners returns the ids of every standing sharing the minimum score, in
// input order. Ties produce several winners.
func Winners(standings []Standing) []string {
	if len(standings) == 0 {
		return []string{}
	}
	best := standings[0].Score
	for _, s := range standings[1:] {
		best = min(best, s.Score)
	}
	var ids []string
	for _, s := range standings {
		if s.Score == best {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// Result is the payload a session hands to its owner once it finishes.
type Result struct {
	SessionID string
	// Standings are sorted by ascending score; ties keep seat order.
	Standings []Standing
	Winners   []string
	BestScore int
}

// IsWinner reports whether id is in the winner set.
func (r *Result) IsWinner(id string) bool {
	return slices.Contains(r.Winners, id)
}
