package question

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/trivia-pipeline/internal/metrics"
)

// Publisher hands validated questions to the submissions queue.
type Publisher interface {
	Publish(ctx context.Context, q Question) (string, error)
}

// CategorySource lists distinct stored categories.
type CategorySource interface {
	DistinctCategories(ctx context.Context) ([]string, error)
}

// ServiceOptions wires the service collaborators. Categories, Cache and Sampler
// may be nil for submit-only callers such as the importer.
type ServiceOptions struct {
	Publisher  Publisher
	Categories CategorySource
	Cache      CategoryCache
	Sampler    *Sampler
	Metrics    *metrics.Metrics
}

// Service is the entry point for submissions and retrieval.
type Service struct {
	publisher  Publisher
	categories CategorySource
	cache      CategoryCache
	sampler    *Sampler
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

func NewService(opts ServiceOptions, logger zerolog.Logger) *Service {
	return &Service{
		publisher:  opts.Publisher,
		categories: opts.Categories,
		cache:      opts.Cache,
		sampler:    opts.Sampler,
		metrics:    opts.Metrics,
		logger:     logger.With().Str("component", "question_service").Logger(),
	}
}

// Submit validates req and publishes it. Validation failures never reach the queue.
func (s *Service) Submit(ctx context.Context, req SubmissionRequest) (SubmissionReceipt, error) {
	q, err := ValidateSubmission(req)
	if err != nil {
		s.metrics.Submission(metrics.OutcomeRejected, ReasonOf(err))
		return SubmissionReceipt{}, err
	}

	id, err := s.publisher.Publish(ctx, q)
	if err != nil {
		s.metrics.Submission(metrics.OutcomeFailed, "")
		s.metrics.Publish(publishOutcome(err))
		s.logger.Error().Err(err).Str("category", q.Category).Msg("submission publish failed")
		return SubmissionReceipt{}, err
	}

	s.metrics.Submission(metrics.OutcomeAccepted, "")
	s.metrics.Publish(metrics.OutcomePublished)
	s.logger.Info().Str("submission_id", id).Str("category", q.Category).Msg("question queued")
	return SubmissionReceipt{SubmissionID: id, Category: q.Category}, nil
}

// Categories returns the distinct categories, served from cache when possible.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx); err == nil && cached != nil {
			return cached, nil
		} else if err != nil {
			s.logger.Warn().Err(err).Msg("category cache read failed")
		}
	}

	categories, err := s.categories.DistinctCategories(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, categories); err != nil {
			s.logger.Warn().Err(err).Msg("category cache write failed")
		}
	}
	return categories, nil
}

// Questions returns up to count shuffled questions of category.
func (s *Service) Questions(ctx context.Context, category string, count int) ([]PresentedQuestion, error) {
	out, err := s.sampler.Sample(ctx, category, count)
	switch {
	case err == nil:
		s.metrics.Retrieval(metrics.OutcomeAccepted)
	case errors.Is(err, ErrCategoryNotFound):
		s.metrics.Retrieval(metrics.OutcomeNotFound)
	default:
		s.metrics.Retrieval(metrics.OutcomeFailed)
		s.logger.Error().Err(err).Str("category", category).Msg("question sampling failed")
	}
	return out, err
}

func publishOutcome(err error) string {
	switch {
	case errors.Is(err, ErrBrokerUnavailable):
		return metrics.OutcomeUnavailable
	case errors.Is(err, ErrPublishTimeout):
		return metrics.OutcomeTimeout
	default:
		return metrics.OutcomeFailed
	}
}
