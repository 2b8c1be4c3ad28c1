package broker

import (
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// fakeChannel records publishes and lets tests decide the confirm result.
type fakeChannel struct {
	mu         sync.Mutex
	declared   []Topology
	published  []amqp.Publishing
	routingKey string
	confirm    func(ctx context.Context) (bool, error)
	declareErr error
	deliveries chan amqp.Delivery
	notify     []chan *amqp.Error
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery)}
}

func (c *fakeChannel) Declare(t Topology) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.declared = append(c.declared, t)
	return c.declareErr
}

func (c *fakeChannel) PublishConfirmed(ctx context.Context, routingKey string, msg amqp.Publishing) (bool, error) {
	c.mu.Lock()
	c.published = append(c.published, msg)
	c.routingKey = routingKey
	confirm := c.confirm
	c.mu.Unlock()
	if confirm == nil {
		return true, nil
	}
	return confirm(ctx)
}

func (c *fakeChannel) Consume(string, string, int) (<-chan amqp.Delivery, error) {
	return c.deliveries, nil
}

func (c *fakeChannel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = append(c.notify, receiver)
	return receiver
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, n := range c.notify {
		close(n)
	}
	close(c.deliveries)
	return nil
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeConnection struct {
	mu      sync.Mutex
	channel *fakeChannel
	chanErr error
	notify  []chan *amqp.Error
	closed  bool
}

func (c *fakeConnection) Channel() (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chanErr != nil {
		return nil, c.chanErr
	}
	if c.channel == nil || c.channel.isClosed() {
		c.channel = newFakeChannel()
	}
	return c.channel, nil
}

func (c *fakeConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = append(c.notify, receiver)
	return receiver
}

func (c *fakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, n := range c.notify {
		close(n)
	}
	return nil
}

// drop simulates the broker closing the connection.
func (c *fakeConnection) drop() {
	c.mu.Lock()
	notify := c.notify
	c.notify = nil
	c.mu.Unlock()
	for _, n := range notify {
		n <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "CONNECTION_FORCED"}
	}
}

// scriptedDialer fails the first failures dials, then hands out fresh connections.
type scriptedDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
	conns    []*fakeConnection
}

func (d *scriptedDialer) Dial(string) (Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("dial tcp: connection refused")
	}
	conn := &fakeConnection{}
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *scriptedDialer) last() *fakeConnection {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *scriptedDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type staticSource struct {
	ch  Channel
	err error
}

func (s staticSource) Channel() (Channel, error) {
	return s.ch, s.err
}
