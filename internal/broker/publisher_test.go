package broker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherSendsPersistentConfirmedMessage(t *testing.T) {
	ch := newFakeChannel()
	p := NewPublisher(staticSource{ch: ch}, "SUBMITTED_QUESTIONS", time.Second, zerolog.Nop())

	err := p.Publish(context.Background(), Message{ID: "m-1", Body: []byte(`{"question":"2+2?"}`)})

	require.NoError(t, err)
	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, "SUBMITTED_QUESTIONS", ch.routingKey)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "m-1", msg.MessageId)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.JSONEq(t, `{"question":"2+2?"}`, string(msg.Body))
}

func TestPublisherNackedByBroker(t *testing.T) {
	ch := newFakeChannel()
	ch.confirm = func(context.Context) (bool, error) { return false, nil }
	p := NewPublisher(staticSource{ch: ch}, "q", time.Second, zerolog.Nop())

	err := p.Publish(context.Background(), Message{ID: "m-1"})

	assert.ErrorIs(t, err, ErrPublishNacked)
}

func TestPublisherConfirmTimeout(t *testing.T) {
	ch := newFakeChannel()
	ch.confirm = func(ctx context.Context) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	}
	p := NewPublisher(staticSource{ch: ch}, "q", 10*time.Millisecond, zerolog.Nop())

	err := p.Publish(context.Background(), Message{ID: "m-1"})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, ch.isClosed(), "channel is discarded after an abandoned confirm")
}

func TestPublisherNotConnected(t *testing.T) {
	p := NewPublisher(staticSource{err: ErrNotConnected}, "q", time.Second, zerolog.Nop())

	err := p.Publish(context.Background(), Message{ID: "m-1"})

	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPublisherWrapsChannelOpenFailure(t *testing.T) {
	p := NewPublisher(staticSource{err: errors.New("channel/connection is not open")}, "q", time.Second, zerolog.Nop())

	err := p.Publish(context.Background(), Message{ID: "m-1"})

	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPublisherReopensChannelAfterFailure(t *testing.T) {
	var opened int32
	first := newFakeChannel()
	first.confirm = func(context.Context) (bool, error) { return false, errors.New("channel closed") }
	second := newFakeChannel()
	source := channelFunc(func() (Channel, error) {
		if atomic.AddInt32(&opened, 1) == 1 {
			return first, nil
		}
		return second, nil
	})
	p := NewPublisher(source, "q", time.Second, zerolog.Nop())

	assert.Error(t, p.Publish(context.Background(), Message{ID: "m-1"}))
	require.NoError(t, p.Publish(context.Background(), Message{ID: "m-2"}))

	assert.Len(t, second.published, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&opened))
}

func TestPublisherSerializesPublishes(t *testing.T) {
	var inFlight, maxInFlight int32
	ch := newFakeChannel()
	ch.confirm = func(context.Context) (bool, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			cur := atomic.LoadInt32(&maxInFlight)
			if n <= cur || atomic.CompareAndSwapInt32(&maxInFlight, cur, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return true, nil
	}
	p := NewPublisher(staticSource{ch: ch}, "q", time.Second, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Publish(context.Background(), Message{ID: "m"}))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
	assert.Len(t, ch.published, 8)
}

func TestPublisherTimeoutIncludesWaitingForSlot(t *testing.T) {
	const timeout = 100 * time.Millisecond
	source := channelFunc(func() (Channel, error) {
		ch := newFakeChannel()
		ch.confirm = func(ctx context.Context) (bool, error) {
			<-ctx.Done()
			return false, ctx.Err()
		}
		return ch, nil
	})
	p := NewPublisher(source, "q", timeout, zerolog.Nop())

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		worst time.Duration
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := p.Publish(context.Background(), Message{ID: "m"})
			elapsed := time.Since(start)

			assert.ErrorIs(t, err, context.DeadlineExceeded)
			mu.Lock()
			if elapsed > worst {
				worst = elapsed
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Less(t, worst, 3*timeout, "every caller fails within one publish timeout")
}

func TestPublisherTimeoutBoundsChannelOpen(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	source := channelFunc(func() (Channel, error) {
		<-release
		return newFakeChannel(), nil
	})
	p := NewPublisher(source, "q", 20*time.Millisecond, zerolog.Nop())

	start := time.Now()
	err := p.Publish(context.Background(), Message{ID: "m-1"})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

type channelFunc func() (Channel, error)

func (f channelFunc) Channel() (Channel, error) {
	return f()
}
