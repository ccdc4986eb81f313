package game

// ScriptedSource replays fixed results (IntN values are taken modulo n) and
// then falls back to zero. It lets tests pin shuffles, pairings and coin flips.
type ScriptedSource struct {
	Ints   []int
	Floats []float64
}

func (s *ScriptedSource) IntN(n int) int {
	if len(s.Ints) == 0 {
		return 0
	}
	v := s.Ints[0]
	s.Ints = s.Ints[1:]
	return v % n
}

func (s *ScriptedSource) Float64() float64 {
	if len(s.Floats) == 0 {
		return 0
	}
	v := s.Floats[0]
	s.Floats = s.Floats[1:]
	return v
}
