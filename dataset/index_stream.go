package dataset

import "math/rand/v2"

// IndexStream yields object indices as consecutive random permutations of
// [0, n): every window of n draws aligned to a reshuffle contains each index once.
type IndexStream struct {
	rng  *rand.Rand
	perm []int
	pos  int
}

// NewIndexStream creates a stream over n indices. n must be positive.
func NewIndexStream(n int, rng *rand.Rand) *IndexStream {
	s := &IndexStream{rng: rng, perm: make([]int, n)}
	for i := range s.perm {
		s.perm[i] = i
	}
	s.shuffle()
	return s
}

func (s *IndexStream) shuffle() {
	s.rng.Shuffle(len(s.perm), func(i, j int) { s.perm[i], s.perm[j] = s.perm[j], s.perm[i] })
	s.pos = 0
}

// Next returns the next index, reshuffling once the current permutation is consumed.
func (s *IndexStream) Next() int {
	if s.pos == len(s.perm) {
		s.shuffle()
	}
	i := s.perm[s.pos]
	s.pos++
	return i
}

// Len returns the permutation length.
func (s *IndexStream) Len() int { return len(s.perm) }
