package broker

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	// ErrNotConnected is returned while the session has no live connection.
	ErrNotConnected = errors.New("broker: not connected")
	// ErrPublishNacked means the broker refused a confirmed publish.
	ErrPublishNacked = errors.New("broker: publish nacked")
)

// Topology describes the queue layout declared on every (re)connect.
type Topology struct {
	Queue              string
	DeadLetterExchange string
}

// DeadLetterQueue is the queue bound to the dead-letter exchange, or "" when none is configured.
func (t Topology) DeadLetterQueue() string {
	if t.DeadLetterExchange == "" {
		return ""
	}
	return t.Queue + ".dlq"
}

// Connection is the subset of an AMQP connection the session drives.
type Connection interface {
	Channel() (Channel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

// Channel is the subset of an AMQP channel used by publishers and consumers.
type Channel interface {
	Declare(t Topology) error
	PublishConfirmed(ctx context.Context, routingKey string, msg amqp.Publishing) (bool, error)
	Consume(queue, consumerTag string, prefetch int) (<-chan amqp.Delivery, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

// Dialer opens a broker connection.
type Dialer func(url string) (Connection, error)

// DialAMQP is the production Dialer backed by amqp091-go.
func DialAMQP(url string) (Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return &amqpConnection{conn: conn}, nil
}

type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return &amqpChannel{ch: ch}, nil
}

func (c *amqpConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	return c.conn.NotifyClose(receiver)
}

func (c *amqpConnection) Close() error {
	if c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}

type amqpChannel struct {
	ch        *amqp.Channel
	confirmed bool
}

func (c *amqpChannel) Declare(t Topology) error {
	var args amqp.Table
	if t.DeadLetterExchange != "" {
		if err := c.ch.ExchangeDeclare(t.DeadLetterExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare dead-letter exchange: %w", err)
		}
		dlq := t.DeadLetterQueue()
		if _, err := c.ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare dead-letter queue: %w", err)
		}
		if err := c.ch.QueueBind(dlq, t.Queue, t.DeadLetterExchange, false, nil); err != nil {
			return fmt.Errorf("bind dead-letter queue: %w", err)
		}
		args = amqp.Table{
			"x-dead-letter-exchange":    t.DeadLetterExchange,
			"x-dead-letter-routing-key": t.Queue,
		}
	}
	if _, err := c.ch.QueueDeclare(t.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}
	return nil
}

func (c *amqpChannel) PublishConfirmed(ctx context.Context, routingKey string, msg amqp.Publishing) (bool, error) {
	if !c.confirmed {
		if err := c.ch.Confirm(false); err != nil {
			return false, fmt.Errorf("enable confirms: %w", err)
		}
		c.confirmed = true
	}
	conf, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, "", routingKey, false, false, msg)
	if err != nil {
		return false, err
	}
	return conf.WaitContext(ctx)
}

func (c *amqpChannel) Consume(queue, consumerTag string, prefetch int) (<-chan amqp.Delivery, error) {
	if prefetch > 0 {
		if err := c.ch.Qos(prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("set qos: %w", err)
		}
	}
	return c.ch.Consume(queue, consumerTag, false, false, false, false, nil)
}

func (c *amqpChannel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	return c.ch.NotifyClose(receiver)
}

func (c *amqpChannel) Close() error {
	if c.ch.IsClosed() {
		return nil
	}
	return c.ch.Close()
}
