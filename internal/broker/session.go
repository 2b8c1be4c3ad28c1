package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// State is a step of the session's reconnect state machine.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// SessionOptions tunes dialing and reconnect backoff.
type SessionOptions struct {
	URL        string
	Topology   Topology
	Dialer     Dialer
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// OnStateChange is called synchronously on every transition.
	OnStateChange func(State)
}

// Session owns one broker connection and keeps it alive.
// Publishers and consumers borrow channels from it instead of holding the connection.
type Session struct {
	url        string
	topology   Topology
	dial       Dialer
	minBackoff time.Duration
	maxBackoff time.Duration
	onChange   func(State)
	logger     zerolog.Logger

	mu    sync.RWMutex
	conn  Connection
	state State
	ready chan struct{}
}

// NewSession creates a disconnected session. Call Run to start connecting.
func NewSession(opts SessionOptions, logger zerolog.Logger) *Session {
	if opts.Dialer == nil {
		opts.Dialer = DialAMQP
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * time.Second
	}
	return &Session{
		url:        opts.URL,
		topology:   opts.Topology,
		dial:       opts.Dialer,
		minBackoff: opts.MinBackoff,
		maxBackoff: opts.MaxBackoff,
		onChange:   opts.OnStateChange,
		logger:     logger.With().Str("component", "broker_session").Logger(),
		state:      StateDisconnected,
		ready:      make(chan struct{}),
	}
}

// Run drives Disconnected -> Connecting -> Connected, falling into Backoff on
// failures, until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	attempt := 0
	for {
		s.setState(StateConnecting)
		conn, err := s.connect()
		if err != nil {
			wait := s.backoff(attempt)
			attempt++
			s.setState(StateBackoff)
			s.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("broker connect failed")

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				s.setState(StateDisconnected)
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}

		attempt = 0
		closed := conn.NotifyClose(make(chan *amqp.Error, 1))
		s.attach(conn)
		s.logger.Info().Str("queue", s.topology.Queue).Msg("broker connected")

		select {
		case <-ctx.Done():
			s.detach()
			if err := conn.Close(); err != nil {
				s.logger.Warn().Err(err).Msg("broker close failed")
			}
			return ctx.Err()
		case amqpErr := <-closed:
			s.detach()
			if amqpErr != nil {
				s.logger.Warn().Str("reason", amqpErr.Reason).Int("code", amqpErr.Code).Msg("broker connection lost")
			} else {
				s.logger.Warn().Msg("broker connection closed")
			}
		}
	}
}

func (s *Session) connect() (Connection, error) {
	conn, err := s.dial(s.url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()
	if err := ch.Declare(s.topology); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// backoff doubles from MinBackoff per failed attempt, capped at MaxBackoff.
func (s *Session) backoff(attempt int) time.Duration {
	wait := s.minBackoff
	for i := 0; i < attempt; i++ {
		wait *= 2
		if wait >= s.maxBackoff {
			return s.maxBackoff
		}
	}
	return wait
}

func (s *Session) attach(conn Connection) {
	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	close(s.ready)
	s.mu.Unlock()
	s.notify(StateConnected)
}

func (s *Session) detach() {
	s.mu.Lock()
	s.conn = nil
	s.state = StateDisconnected
	s.ready = make(chan struct{})
	s.mu.Unlock()
	s.notify(StateDisconnected)
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.notify(state)
}

func (s *Session) notify(state State) {
	if s.onChange != nil {
		s.onChange(state)
	}
}

// State reports the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Topology returns the declared queue layout.
func (s *Session) Topology() Topology {
	return s.topology
}

// Channel opens a new channel on the live connection.
func (s *Session) Channel() (Channel, error) {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return nil, ErrNotConnected
	}
	return conn.Channel()
}

// WaitReady blocks until the session is connected or ctx ends.
func (s *Session) WaitReady(ctx context.Context) error {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ping reports ErrNotConnected unless a connection is live.
func (s *Session) Ping(context.Context) error {
	if s.State() != StateConnected {
		return ErrNotConnected
	}
	return nil
}
