// Package rating settles finished matches into rating and record changes.
//
// Every unordered pair of participants is scored as a head to head game:
// the lower total wins, equal totals draw. Deltas are accumulated over all
// pairs against the pre-match ratings and only then applied.
package rating

import (
	"math"
	"slices"
)

const (
	DefaultRating = 1200.0
	MinRating     = 100.0
	K             = 32.0
)

// Entry is one participant's pre-settlement rating and final score.
type Entry struct {
	ID     string
	Rating float64
	Score  int
}

// Expected returns the expected result for a player rated a against b.
func Expected(a, b float64) float64 {
	return 1 / (1 + math.Pow(10, (b-a)/400))
}

// actual is the pairwise result for the side scoring a against b. Lower
// scores are better.
func actual(a, b int) float64 {
	switch {
	case a < b:
		return 1
	case a > b:
		return 0
	default:
		return 0.5
	}
}

// Deltas accumulates K*(actual-expected) over every pair of entries.
func Deltas(entries []Entry) map[string]float64 {
	deltas := make(map[string]float64, len(entries))
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			a, b := entries[i], entries[j]
			expA := Expected(a.Rating, b.Rating)
			resA := actual(a.Score, b.Score)

			deltas[a.ID] += K * (resA - expA)
			deltas[b.ID] += K * ((1 - resA) - (1 - expA))
		}
	}
	return deltas
}

// Apply adds delta to rating and clamps the result at MinRating.
func Apply(rating, delta float64) float64 {
	return math.Max(MinRating, rating+delta)
}

// Settle returns the post-match rating of every entry.
func Settle(entries []Entry) map[string]float64 {
	deltas := Deltas(entries)
	out := make(map[string]float64, len(entries))
	for _, e := range entries {
		out[e.ID] = Apply(e.Rating, deltas[e.ID])
	}
	return out
}

// Display rounds a rating for presentation.
func Display(r float64) int {
	return int(math.Round(r))
}

// Outcome is how a finished match counts towards a participant's record.
type Outcome int

const (
	Loss Outcome = iota
	Win
	Draw
)

func (o Outcome) String() string {
	switch o {
	case Win:
		return "win"
	case Draw:
		return "draw"
	default:
		return "loss"
	}
}

// Classify maps the winner set of a match onto id's record: a sole winner
// wins, a shared win is a draw, anything else is a loss.
func Classify(id string, winners []string) Outcome {
	if !slices.Contains(winners, id) {
		return Loss
	}
	if len(winners) > 1 {
		return Draw
	}
	return Win
}

// Record is a participant's aggregate results.
type Record struct {
	Games  int
	Wins   int
	Losses int
	Draws  int
}

// Add counts one more game.
func (r *Record) Add(o Outcome) {
	r.Games++
	switch o {
	case Win:
		r.Wins++
	case Draw:
		r.Draws++
	default:
		r.Losses++
	}
}

// WinRate is wins over games, or 0 before the first game.
func (r Record) WinRate() float64 {
	if r.Games == 0 {
		return 0
	}
	return float64(r.Wins) / float64(r.Games)
}
