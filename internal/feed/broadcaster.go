package feed

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/trivia-pipeline/internal/metrics"
	ws "github.com/gokatarajesh/trivia-pipeline/pkg/http/ws"
)

// Hub is the part of ws.Hub the broadcaster needs.
type Hub interface {
	Broadcast(topic string, msg ws.Message) (int, error)
}

// Broadcaster listens for Redis Pub/Sub question events and forwards them to feed clients.
type Broadcaster struct {
	redis   *redis.Client
	hub     Hub
	channel string
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewBroadcaster creates a Pub/Sub powered feed broadcaster.
func NewBroadcaster(redis *redis.Client, hub Hub, channel string, m *metrics.Metrics, logger zerolog.Logger) *Broadcaster {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Broadcaster{
		redis:   redis,
		hub:     hub,
		channel: channel,
		metrics: m,
		logger:  logger.With().Str("component", "feed_broadcaster").Logger(),
	}
}

// Run subscribes to the event channel and blocks until the context is cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	if b.redis == nil || b.hub == nil {
		return nil
	}

	sub := b.redis.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.Forward(msg.Payload)
		}
	}
}

// Forward decodes one event and broadcasts it to clients subscribed to its category.
func (b *Broadcaster) Forward(payload string) {
	var evt ws.QuestionAddedPayload
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		b.logger.Warn().Err(err).Msg("failed to decode question event payload")
		b.metrics.FeedEvent(metrics.OutcomeDropped)
		return
	}

	msg, err := ws.NewMessage(ws.TypeQuestionAdded, evt)
	if err != nil {
		b.logger.Warn().Err(err).Msg("failed to marshal question WS payload")
		b.metrics.FeedEvent(metrics.OutcomeDropped)
		return
	}

	sent, err := b.hub.Broadcast(evt.Category, msg)
	if err != nil {
		b.logger.Warn().Err(err).Msg("failed to broadcast question event")
	}
	b.logger.Debug().Str("question_id", evt.ID).Int("clients", sent).Msg("question event broadcast")
	b.metrics.FeedEvent(metrics.OutcomeBroadcast)
}
