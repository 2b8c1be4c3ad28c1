package question

import (
	"math/rand"
	"sync"
	"time"
)

// Shuffler permutes answer sets with a Fisher–Yates shuffle over an injected source.
// *rand.Rand is not safe for concurrent use, so draws are serialized.
type Shuffler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewShuffler returns a Shuffler drawing from rng. A nil rng is seeded from the clock.
func NewShuffler(rng *rand.Rand) *Shuffler {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Shuffler{rng: rng}
}

// Permutation returns a uniformly random permutation of [0, n).
func (s *Shuffler) Permutation(n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := n - 1; i > 0; i-- {
		j := s.rng.Intn(i + 1)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}

// Present shuffles the answers of q and strips their correctness flags.
// The correct answer is read from the flagged entry before shuffling.
func (s *Shuffler) Present(q Question) PresentedQuestion {
	correct, _ := q.CorrectAnswer()

	perm := s.Permutation(len(q.Answers))
	texts := make([]string, len(q.Answers))
	for i, idx := range perm {
		texts[i] = q.Answers[idx].Text
	}

	return PresentedQuestion{
		Text:          q.Text,
		Answers:       texts,
		CorrectAnswer: correct,
		Category:      q.Category,
	}
}
