package etl

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/trivia-pipeline/internal/broker"
	"github.com/gokatarajesh/trivia-pipeline/internal/metrics"
	"github.com/gokatarajesh/trivia-pipeline/internal/question"
)

const (
	defaultMaxAttempts     = 5
	defaultRequeueDelay    = time.Second
	defaultMaxRequeueDelay = 30 * time.Second
)

// Outcome is the terminal decision taken for one delivery.
type Outcome string

const (
	OutcomeAcked        Outcome = metrics.OutcomeAcked
	OutcomeRequeued     Outcome = metrics.OutcomeRequeued
	OutcomeDeadLettered Outcome = metrics.OutcomeDeadLettered
	OutcomePoison       Outcome = metrics.OutcomePoison
)

// Store persists questions idempotently.
type Store interface {
	Create(ctx context.Context, q question.Question, idempotencyKey string) (question.StoredQuestion, error)
}

// Notifier is told about every newly stored question after its delivery is acked.
type Notifier interface {
	QuestionStored(ctx context.Context, q question.StoredQuestion) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, q question.StoredQuestion) error

func (f NotifierFunc) QuestionStored(ctx context.Context, q question.StoredQuestion) error {
	return f(ctx, q)
}

// ProcessorOptions configures a Processor.
type ProcessorOptions struct {
	Store       Store
	Attempts    AttemptCounter
	Notifiers   []Notifier
	MaxAttempts int
	// RequeueDelay is the pause before the first requeue; it doubles per failed
	// attempt up to MaxRequeueDelay.
	RequeueDelay    time.Duration
	MaxRequeueDelay time.Duration
	Metrics         *metrics.Metrics
}

// Processor turns queue deliveries into stored questions and owns the ack/nack decision.
type Processor struct {
	store           Store
	attempts        AttemptCounter
	notifiers       []Notifier
	maxAttempts     int
	requeueDelay    time.Duration
	maxRequeueDelay time.Duration
	metrics         *metrics.Metrics
	logger          zerolog.Logger
}

func NewProcessor(opts ProcessorOptions, logger zerolog.Logger) *Processor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RequeueDelay <= 0 {
		opts.RequeueDelay = defaultRequeueDelay
	}
	if opts.MaxRequeueDelay < opts.RequeueDelay {
		opts.MaxRequeueDelay = defaultMaxRequeueDelay
		if opts.MaxRequeueDelay < opts.RequeueDelay {
			opts.MaxRequeueDelay = opts.RequeueDelay
		}
	}
	return &Processor{
		store:           opts.Store,
		attempts:        opts.Attempts,
		notifiers:       opts.Notifiers,
		maxAttempts:     opts.MaxAttempts,
		requeueDelay:    opts.RequeueDelay,
		maxRequeueDelay: opts.MaxRequeueDelay,
		metrics:         opts.Metrics,
		logger:          logger.With().Str("component", "etl_processor").Logger(),
	}
}

// Handle satisfies broker.HandlerFunc.
func (p *Processor) Handle(ctx context.Context, d broker.Delivery) {
	p.Process(ctx, d)
}

// Process runs decode -> validate -> persist -> ack for one delivery.
// The delivery is never acked before the store confirms the write.
func (p *Processor) Process(ctx context.Context, d broker.Delivery) Outcome {
	key := IdempotencyKey(d.MessageID(), d.Body())
	log := p.logger.With().Str("message_id", d.MessageID()).Str("key", key).Bool("redelivered", d.Redelivered()).Logger()

	q, err := Decode(d.Body())
	if err != nil {
		log.Error().Err(err).Msg("PoisonMessage: dropping undecodable delivery")
		return p.finish(log, d, OutcomePoison)
	}

	stored, err := p.store.Create(ctx, q, key)
	if err != nil {
		outcome, attempt := p.retryOutcome(ctx, log, key, err)
		if outcome == OutcomeRequeued {
			p.pause(ctx, attempt)
		}
		return p.finish(log, d, outcome)
	}

	outcome := p.finish(log, d, OutcomeAcked)
	if outcome != OutcomeAcked {
		return outcome
	}
	p.clearAttempts(ctx, log, key)
	log.Info().Str("question_id", stored.ID.String()).Str("category", stored.Question.Category).Msg("question persisted")

	for _, n := range p.notifiers {
		if err := n.QuestionStored(ctx, stored); err != nil {
			log.Warn().Err(err).Msg("post-persist notification failed")
		}
	}
	return outcome
}

// retryOutcome requeues until the message has failed maxAttempts times, then dead-letters it.
// The returned attempt number drives the requeue backoff.
func (p *Processor) retryOutcome(ctx context.Context, log zerolog.Logger, key string, cause error) (Outcome, int64) {
	if p.attempts == nil {
		log.Warn().Err(cause).Msg("persist failed, requeueing")
		return OutcomeRequeued, 1
	}

	n, err := p.attempts.Incr(ctx, key)
	if err != nil {
		// without a counter the message is requeued rather than lost
		log.Warn().Err(err).Msg("attempt counter unavailable")
		log.Warn().Err(cause).Msg("persist failed, requeueing")
		return OutcomeRequeued, 1
	}
	if n >= int64(p.maxAttempts) {
		log.Error().Err(cause).Int64("attempts", n).Msg("RedeliveryExhausted: dead-lettering message")
		p.clearAttempts(ctx, log, key)
		return OutcomeDeadLettered, n
	}
	log.Warn().Err(cause).Int64("attempts", n).Dur("retry_in", p.requeueBackoff(n)).Msg("persist failed, requeueing")
	return OutcomeRequeued, n
}

// requeueBackoff is RequeueDelay doubled per prior failure, capped at MaxRequeueDelay.
func (p *Processor) requeueBackoff(attempt int64) time.Duration {
	wait := p.requeueDelay
	for i := int64(1); i < attempt; i++ {
		wait *= 2
		if wait >= p.maxRequeueDelay {
			return p.maxRequeueDelay
		}
	}
	return wait
}

// pause holds the delivery before it is requeued. The broker redelivers a
// requeued message immediately, so the wait has to happen here. A cancelled
// ctx cuts the wait short; the message is still requeued.
func (p *Processor) pause(ctx context.Context, attempt int64) {
	timer := time.NewTimer(p.requeueBackoff(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (p *Processor) clearAttempts(ctx context.Context, log zerolog.Logger, key string) {
	if p.attempts == nil {
		return
	}
	if err := p.attempts.Clear(ctx, key); err != nil {
		log.Debug().Err(err).Msg("clear attempt counter")
	}
}

func (p *Processor) finish(log zerolog.Logger, d broker.Delivery, outcome Outcome) Outcome {
	var err error
	switch outcome {
	case OutcomeAcked:
		err = d.Ack()
	case OutcomeRequeued:
		err = d.Nack(true)
	default:
		err = d.Nack(false)
	}
	if err != nil {
		// the broker redelivers unacknowledged messages once the channel is gone
		log.Error().Err(err).Str("outcome", string(outcome)).Msg("acknowledgement failed")
		outcome = OutcomeRequeued
	}
	p.metrics.Delivery(string(outcome))
	return outcome
}

// Decode strictly parses a queue body and re-validates it.
// Every failure wraps question.ErrPoisonMessage: retrying cannot fix it.
func Decode(body []byte) (question.Question, error) {
	var q question.Question
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&q); err != nil {
		return question.Question{}, fmt.Errorf("%w: decode: %v", question.ErrPoisonMessage, err)
	}
	if dec.More() {
		return question.Question{}, fmt.Errorf("%w: trailing data after message body", question.ErrPoisonMessage)
	}
	if err := question.ValidateQuestion(q); err != nil {
		return question.Question{}, fmt.Errorf("%w: %v", question.ErrPoisonMessage, err)
	}
	return q, nil
}

// IdempotencyKey derives the storage key for a delivery: the publisher's message id,
// or a content hash when the message carries none.
func IdempotencyKey(messageID string, body []byte) string {
	if messageID != "" {
		return "msg:" + messageID
	}
	sum := sha256.Sum256(body)
	return "sha256:" + hex.EncodeToString(sum[:])
}
