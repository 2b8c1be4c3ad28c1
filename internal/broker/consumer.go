package broker

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Delivery is one received message plus its acknowledgement handle.
type Delivery interface {
	Body() []byte
	MessageID() string
	Redelivered() bool
	Ack() error
	Nack(requeue bool) error
}

// HandlerFunc processes one delivery and must ack or nack it exactly once.
type HandlerFunc func(ctx context.Context, d Delivery)

// SessionSource is what the consumer needs from a broker session.
type SessionSource interface {
	ChannelSource
	WaitReady(ctx context.Context) error
}

// ConsumerOptions configures a Consumer.
type ConsumerOptions struct {
	Queue    string
	Tag      string
	Prefetch int
	Workers  int
	// RetryDelay is the pause before resubscribing after a failed Consume.
	RetryDelay time.Duration
}

// Consumer subscribes to a queue with manual acknowledgement and fans
// deliveries out to a fixed pool of workers.
type Consumer struct {
	session SessionSource
	opts    ConsumerOptions
	handle  HandlerFunc
	logger  zerolog.Logger
}

// NewConsumer builds a Consumer.
func NewConsumer(session SessionSource, opts ConsumerOptions, handle HandlerFunc, logger zerolog.Logger) *Consumer {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Prefetch < opts.Workers {
		opts.Prefetch = opts.Workers
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &Consumer{
		session: session,
		opts:    opts,
		handle:  handle,
		logger:  logger.With().Str("component", "broker_consumer").Str("queue", opts.Queue).Logger(),
	}
}

// Run consumes until ctx is cancelled, resubscribing whenever the channel drops.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := c.session.WaitReady(ctx); err != nil {
			return err
		}

		if err := c.consumeOnce(ctx); err != nil {
			c.logger.Warn().Err(err).Dur("retry_in", c.opts.RetryDelay).Msg("consume failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.opts.RetryDelay):
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context) error {
	ch, err := c.session.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	deliveries, err := ch.Consume(c.opts.Queue, c.opts.Tag, c.opts.Prefetch)
	if err != nil {
		return err
	}
	c.logger.Info().Int("workers", c.opts.Workers).Int("prefetch", c.opts.Prefetch).Msg("consuming")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			// closing the channel ends the deliveries range below
			_ = ch.Close()
		case <-done:
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < c.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range deliveries {
				c.handle(ctx, &amqpDelivery{d: d})
			}
		}()
	}
	wg.Wait()
	return nil
}

type amqpDelivery struct {
	d amqp.Delivery
}

func (a *amqpDelivery) Body() []byte            { return a.d.Body }
func (a *amqpDelivery) MessageID() string       { return a.d.MessageId }
func (a *amqpDelivery) Redelivered() bool       { return a.d.Redelivered }
func (a *amqpDelivery) Ack() error              { return a.d.Ack(false) }
func (a *amqpDelivery) Nack(requeue bool) error { return a.d.Nack(false, requeue) }
