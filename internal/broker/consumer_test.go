package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ackRecorder struct {
	mu     sync.Mutex
	acked  []uint64
	nacked map[uint64]bool
}

func (a *ackRecorder) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *ackRecorder) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked[tag] = requeue
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type readySource struct {
	staticSource
}

func (readySource) WaitReady(context.Context) error { return nil }

func TestConsumerDispatchesAndAcks(t *testing.T) {
	ch := newFakeChannel()
	acks := &ackRecorder{nacked: map[uint64]bool{}}

	var mu sync.Mutex
	seen := map[string]bool{}
	handle := func(_ context.Context, d Delivery) {
		mu.Lock()
		seen[d.MessageID()] = true
		mu.Unlock()
		if string(d.Body()) == "bad" {
			_ = d.Nack(false)
			return
		}
		_ = d.Ack()
	}

	c := NewConsumer(readySource{staticSource{ch: ch}}, ConsumerOptions{Queue: "q", Workers: 3}, handle, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	for i, body := range []string{"ok", "bad", "ok"} {
		ch.deliveries <- amqp.Delivery{
			Acknowledger: acks,
			DeliveryTag:  uint64(i + 1),
			MessageId:    string(rune('a' + i)),
			Body:         []byte(body),
		}
	}

	require.Eventually(t, func() bool {
		acks.mu.Lock()
		defer acks.mu.Unlock()
		return len(acks.acked) == 2 && len(acks.nacked) == 1
	}, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, acks.nacked[2], "handler asked for no requeue")
	assert.Len(t, seen, 3)
	assert.True(t, ch.isClosed())
}

func TestConsumerDefaults(t *testing.T) {
	c := NewConsumer(readySource{}, ConsumerOptions{Queue: "q", Workers: 4, Prefetch: 1}, nil, zerolog.Nop())

	assert.Equal(t, 4, c.opts.Workers)
	assert.Equal(t, 4, c.opts.Prefetch, "prefetch is raised to keep every worker busy")
	assert.Equal(t, time.Second, c.opts.RetryDelay)
}
