package feed

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/gokatarajesh/trivia-pipeline/internal/question"
	ws "github.com/gokatarajesh/trivia-pipeline/pkg/http/ws"
)

// DefaultChannel is the Redis Pub/Sub channel carrying question_added events.
const DefaultChannel = "trivia:questions:added"

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Notifier publishes a question_added event for every stored question.
// It runs in the ETL process; API replicas relay the events to their WebSocket clients.
type Notifier struct {
	redis   redisPublisher
	channel string
}

func NewNotifier(client redisPublisher, channel string) *Notifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Notifier{redis: client, channel: channel}
}

// QuestionStored publishes the question without its answers.
func (n *Notifier) QuestionStored(ctx context.Context, q question.StoredQuestion) error {
	payload, err := json.Marshal(EventFor(q))
	if err != nil {
		return err
	}
	return n.redis.Publish(ctx, n.channel, payload).Err()
}

// EventFor builds the public event payload for q.
func EventFor(q question.StoredQuestion) ws.QuestionAddedPayload {
	return ws.QuestionAddedPayload{
		ID:       q.ID.String(),
		Category: q.Question.Category,
		Question: q.Question.Text,
	}
}
