package question

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore samples without replacement from an in-memory slice.
type memoryStore struct {
	mu        sync.Mutex
	questions []Question
	rng       *rand.Rand
	err       error
}

func newMemoryStore(qs ...Question) *memoryStore {
	return &memoryStore{questions: qs, rng: rand.New(rand.NewSource(3))}
}

func (m *memoryStore) Sample(_ context.Context, category string, count int) ([]Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var matches []Question
	for _, q := range m.questions {
		if q.Category == category {
			matches = append(matches, q)
		}
	}
	m.rng.Shuffle(len(matches), func(i, j int) { matches[i], matches[j] = matches[j], matches[i] })
	if len(matches) > count {
		matches = matches[:count]
	}
	return matches, nil
}

func (m *memoryStore) DistinctCategories(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	seen := map[string]bool{}
	out := []string{}
	for _, q := range m.questions {
		if !seen[q.Category] {
			seen[q.Category] = true
			out = append(out, q.Category)
		}
	}
	return out, nil
}

func numbered(category string, n int) []Question {
	out := make([]Question, n)
	for i := range out {
		out[i] = Question{
			Text:     fmt.Sprintf("%s question %d", category, i),
			Category: category,
			Answers:  answers(i % 4),
		}
	}
	return out
}

func TestParseCount(t *testing.T) {
	cases := map[string]int{
		"":     1,
		"abc":  1,
		"0":    1,
		"-3":   1,
		"2.5":  1,
		"1":    1,
		"5":    5,
		" 7 ":  7,
		"1000": 1000,
	}
	for raw, want := range cases {
		assert.Equal(t, want, ParseCount(raw), "raw=%q", raw)
	}
}

func TestSamplerReturnsExactlyKDistinct(t *testing.T) {
	store := newMemoryStore(append(numbered("Math", 10), numbered("Art", 10)...)...)
	sampler := NewSampler(store, NewShuffler(rand.New(rand.NewSource(1))), 0)

	got, err := sampler.Sample(context.Background(), "Math", 4)

	require.NoError(t, err)
	require.Len(t, got, 4)
	seen := map[string]bool{}
	for _, q := range got {
		assert.Equal(t, "Math", q.Category)
		assert.False(t, seen[q.Text], "duplicate %q", q.Text)
		seen[q.Text] = true
	}
}

func TestSamplerShortfallReturnsAllMatches(t *testing.T) {
	store := newMemoryStore(append(numbered("Math", 2), numbered("Art", 10)...)...)
	sampler := NewSampler(store, nil, 0)

	got, err := sampler.Sample(context.Background(), "Math", 5)

	require.NoError(t, err)
	assert.Len(t, got, 2)
	for _, q := range got {
		assert.Equal(t, "Math", q.Category)
	}
}

func TestSamplerEmptyCategoryIsNotFound(t *testing.T) {
	sampler := NewSampler(newMemoryStore(numbered("Art", 3)...), nil, 0)

	_, err := sampler.Sample(context.Background(), "Math", 1)
	assert.ErrorIs(t, err, ErrCategoryNotFound)

	_, err = sampler.Sample(context.Background(), "  ", 1)
	assert.ErrorIs(t, err, ErrCategoryNotFound)
}

func TestSamplerWrapsStoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("connection reset")
	sampler := NewSampler(store, nil, 0)

	_, err := sampler.Sample(context.Background(), "Math", 1)

	assert.ErrorIs(t, err, ErrPersistence)
	assert.NotErrorIs(t, err, ErrCategoryNotFound)
}

func TestSamplerUncappedByDefault(t *testing.T) {
	store := newMemoryStore(numbered("Math", 80)...)
	sampler := NewSampler(store, nil, 0)

	got, err := sampler.Sample(context.Background(), "Math", 60)

	require.NoError(t, err)
	assert.Len(t, got, 60)
}

func TestSamplerClampsToConfiguredMaxCount(t *testing.T) {
	store := newMemoryStore(numbered("Math", 20)...)
	sampler := NewSampler(store, nil, 3)

	got, err := sampler.Sample(context.Background(), "Math", 10)

	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestSamplerStripsFlagsAndKeepsCorrectAnswer(t *testing.T) {
	store := newMemoryStore(mathQuestion())
	sampler := NewSampler(store, nil, 0)

	got, err := sampler.Sample(context.Background(), "Math", 1)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.ElementsMatch(t, []string{"1", "3", "4", "5"}, got[0].Answers)
	assert.Equal(t, "4", got[0].CorrectAnswer)
}
