package question

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const defaultSampleCount = 1

// SampleSource draws random questions of one category without replacement.
type SampleSource interface {
	Sample(ctx context.Context, category string, count int) ([]Question, error)
}

// Sampler retrieves a randomized batch of questions for a category.
type Sampler struct {
	source   SampleSource
	shuffler *Shuffler
	maxCount int
}

// NewSampler builds a Sampler. A positive maxCount caps a single batch; <= 0 leaves
// count unbounded, so a category with N >= K questions always yields K.
func NewSampler(source SampleSource, shuffler *Shuffler, maxCount int) *Sampler {
	if shuffler == nil {
		shuffler = NewShuffler(nil)
	}
	if maxCount < 0 {
		maxCount = 0
	}
	return &Sampler{source: source, shuffler: shuffler, maxCount: maxCount}
}

// ParseCount reads the count query parameter. Anything that is not a positive
// integer falls back to 1.
func ParseCount(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return defaultSampleCount
	}
	return n
}

// Sample returns up to count shuffled questions from category.
// An empty result is reported as ErrCategoryNotFound.
func (s *Sampler) Sample(ctx context.Context, category string, count int) ([]PresentedQuestion, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, ErrCategoryNotFound
	}
	if count <= 0 {
		count = defaultSampleCount
	}
	if s.maxCount > 0 && count > s.maxCount {
		count = s.maxCount
	}

	questions, err := s.source.Sample(ctx, category, count)
	if err != nil {
		if errors.Is(err, ErrPersistence) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: sample %q: %v", ErrPersistence, category, err)
	}
	if len(questions) == 0 {
		return nil, ErrCategoryNotFound
	}

	out := make([]PresentedQuestion, 0, len(questions))
	for _, q := range questions {
		out = append(out, s.shuffler.Present(q))
	}
	return out, nil
}
