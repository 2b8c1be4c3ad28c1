package question

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gokatarajesh/trivia-pipeline/internal/broker"
)

type messagePublisher interface {
	Publish(ctx context.Context, msg broker.Message) error
}

// QueuePublisher serializes validated questions onto the submissions queue.
type QueuePublisher struct {
	publisher messagePublisher
}

func NewQueuePublisher(publisher messagePublisher) *QueuePublisher {
	return &QueuePublisher{publisher: publisher}
}

// Publish enqueues q and returns the submission id used as the message id.
// It does not wait for the question to be stored.
func (p *QueuePublisher) Publish(ctx context.Context, q Question) (string, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("encode question: %w", err)
	}

	id := uuid.NewString()
	err = p.publisher.Publish(ctx, broker.Message{
		ID:          id,
		Body:        body,
		ContentType: "application/json",
	})
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, broker.ErrNotConnected):
		return "", fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return "", fmt.Errorf("%w: %v", ErrPublishTimeout, err)
	default:
		return "", fmt.Errorf("%w: %v", ErrBrokerPublish, err)
	}
}
