package randutil

import (
	rand "math/rand/v2"
	"sync"
	"time"
)

const (
	goldenRatio64 = 0x9e3779b97f4a7c15
)

// Source is the random source consumed by the deck, matchmaking and the
// turn-timeout fallback. Tests substitute scripted implementations.
type Source interface {
	IntN(n int) int
	Float64() float64
}

// Rand is a Source safe for concurrent use by many sessions.
type Rand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// New returns a *Rand seeded deterministically from the provided int64.
// Both 64-bit PCG seeds are derived from it so every call site gets a
// reproducible sequence.
func New(seed int64) *Rand {
	u := uint64(seed)
	return &Rand{r: rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))}
}

// NewFromTime seeds from the wall clock and returns the seed used, so it can
// be logged and replayed.
func NewFromTime() (*Rand, int64) {
	seed := time.Now().UnixNano()
	return New(seed), seed
}

func (r *Rand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.IntN(n)
}

func (r *Rand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Float64()
}

// Int64 returns a non-negative value, used to derive per-session seeds.
func (r *Rand) Int64() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Int64()
}

// Fork derives an independent generator so a session never contends on the
// process-wide lock.
func (r *Rand) Fork() *Rand {
	return New(r.Int64())
}

// Coin reports true with probability one half.
func Coin(src Source) bool {
	return src.Float64() < 0.5
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
