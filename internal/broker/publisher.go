package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// ChannelSource hands out channels on the current connection.
type ChannelSource interface {
	Channel() (Channel, error)
}

// Message is one outgoing queue message.
type Message struct {
	ID          string
	Body        []byte
	ContentType string
	Headers     amqp.Table
}

// Publisher writes persistent messages to one durable queue and waits for broker confirms.
// A single channel is shared, so publishes are serialized through a one-slot semaphore
// that callers wait on under the same deadline as the confirm.
type Publisher struct {
	source  ChannelSource
	queue   string
	timeout time.Duration
	logger  zerolog.Logger
	slot    chan struct{}

	mu sync.Mutex
	ch Channel
}

// NewPublisher builds a Publisher for queue. timeout bounds each publish+confirm.
func NewPublisher(source ChannelSource, queue string, timeout time.Duration, logger zerolog.Logger) *Publisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{
		source:  source,
		queue:   queue,
		timeout: timeout,
		logger:  logger.With().Str("component", "broker_publisher").Logger(),
		slot:    make(chan struct{}, 1),
	}
}

// Publish sends msg and returns once the broker has confirmed it.
// ErrNotConnected is returned when no channel can be opened; context.DeadlineExceeded when
// the publish slot, the channel or the confirm is not available in time; ErrPublishNacked
// when the broker rejects it. The timeout covers the whole call, including queueing
// behind other publishers.
func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	select {
	case p.slot <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("publish %s: waiting for publish slot: %w", msg.ID, ctx.Err())
	}
	defer func() { <-p.slot }()

	ch, err := p.channel(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("publish %s: open channel: %w", msg.ID, ctxErr)
		}
		return err
	}

	contentType := msg.ContentType
	if contentType == "" {
		contentType = "application/json"
	}

	acked, err := ch.PublishConfirmed(ctx, p.queue, amqp.Publishing{
		ContentType:  contentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    time.Now().UTC(),
		Headers:      msg.Headers,
		Body:         msg.Body,
	})
	if err != nil {
		// the channel state is unknown after a failed or abandoned confirm
		p.discard(ch)
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("publish %s: %w", msg.ID, context.DeadlineExceeded)
		}
		return fmt.Errorf("publish %s: %w", msg.ID, err)
	}
	if !acked {
		return fmt.Errorf("publish %s: %w", msg.ID, ErrPublishNacked)
	}
	return nil
}

type openResult struct {
	ch  Channel
	err error
}

// channel returns the cached channel or opens one, giving up when ctx ends.
// Only the slot holder calls it.
func (p *Publisher) channel(ctx context.Context) (Channel, error) {
	p.mu.Lock()
	ch := p.ch
	p.mu.Unlock()
	if ch != nil {
		return ch, nil
	}

	res := make(chan openResult, 1)
	go func() {
		ch, err := p.source.Channel()
		res <- openResult{ch: ch, err: err}
	}()

	var r openResult
	select {
	case r = <-res:
	case <-ctx.Done():
		go func() {
			if late := <-res; late.ch != nil {
				_ = late.ch.Close()
			}
		}()
		return nil, ctx.Err()
	}
	if r.err != nil {
		if errors.Is(r.err, ErrNotConnected) {
			return nil, r.err
		}
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, r.err)
	}

	closed := r.ch.NotifyClose(make(chan *amqp.Error, 1))
	go p.watch(r.ch, closed)
	p.mu.Lock()
	p.ch = r.ch
	p.mu.Unlock()
	return r.ch, nil
}

// watch drops the cached channel once the broker closes it.
func (p *Publisher) watch(ch Channel, closed chan *amqp.Error) {
	amqpErr, ok := <-closed
	if ok && amqpErr != nil {
		p.logger.Warn().Str("reason", amqpErr.Reason).Msg("publisher channel closed")
	}
	p.mu.Lock()
	if p.ch == ch {
		p.ch = nil
	}
	p.mu.Unlock()
}

// discard closes ch and forgets it if it is still the cached channel.
func (p *Publisher) discard(ch Channel) {
	p.mu.Lock()
	if p.ch == ch {
		p.ch = nil
	}
	p.mu.Unlock()
	if err := ch.Close(); err != nil {
		p.logger.Debug().Err(err).Msg("publisher channel close")
	}
}

// Close releases the publisher channel.
func (p *Publisher) Close() {
	p.mu.Lock()
	ch := p.ch
	p.ch = nil
	p.mu.Unlock()
	if ch != nil {
		if err := ch.Close(); err != nil {
			p.logger.Debug().Err(err).Msg("publisher channel close")
		}
	}
}
