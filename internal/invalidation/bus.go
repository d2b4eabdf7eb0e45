// Package invalidation propagates table invalidations between processes that
// share a database but keep separate caches.
//
// Messages travel over a Redis pub/sub channel encoded with msgpack. Every bus
// carries a random origin id and ignores its own messages.
package invalidation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/electwix/querycache/internal/logging"
)

// DefaultChannel is the channel used when none is configured.
const DefaultChannel = "querycache:invalidate"

// Message announces modified tables. An empty Tables list means every table.
type Message struct {
	Origin string    `msgpack:"origin"`
	Tables []string  `msgpack:"tables"`
	At     time.Time `msgpack:"at"`
}

// All reports whether m invalidates every table.
func (m Message) All() bool { return len(m.Tables) == 0 }

// Encode serializes m.
func Encode(m Message) ([]byte, error) {
	b, err := msgpack.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("invalidation: encode: %w", err)
	}
	return b, nil
}

// Decode parses a payload produced by Encode.
func Decode(b []byte) (Message, error) {
	var m Message
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("invalidation: decode: %w", err)
	}
	if m.Origin == "" {
		return Message{}, errors.New("invalidation: decode: message has no origin")
	}
	return m, nil
}

// Handler applies a message received from another process.
type Handler func(ctx context.Context, m Message)

// RedisBus publishes and receives invalidations on one Redis channel.
type RedisBus struct {
	client  redis.UniversalClient
	channel string
	origin  string
	logger  logging.Logger
	now     func() time.Time
}

// Option configures a RedisBus.
type Option func(*RedisBus)

// WithChannel overrides DefaultChannel.
func WithChannel(channel string) Option {
	return func(b *RedisBus) {
		if channel != "" {
			b.channel = channel
		}
	}
}

// WithOrigin fixes the origin id instead of generating one.
func WithOrigin(id uuid.UUID) Option {
	return func(b *RedisBus) {
		b.origin = id.String()
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(b *RedisBus) {
		b.logger = logging.OrNop(l)
	}
}

// NewRedisBus creates a bus over client. The caller owns client.
func NewRedisBus(client redis.UniversalClient, opts ...Option) *RedisBus {
	b := &RedisBus{
		client:  client,
		channel: DefaultChannel,
		origin:  uuid.NewString(),
		logger:  logging.NewNopLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logging.Component(b.logger, "invalidation", "channel", b.channel)
	return b
}

// Origin returns the id stamped on published messages.
func (b *RedisBus) Origin() string { return b.origin }

// Channel returns the Redis channel name.
func (b *RedisBus) Channel() string { return b.channel }

// Publish announces that tables were modified. No tables means all of them.
func (b *RedisBus) Publish(ctx context.Context, tables []string) error {
	payload, err := Encode(Message{Origin: b.origin, Tables: tables, At: b.now().UTC()})
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("invalidation: publish to %s: %w", b.channel, err)
	}
	b.logger.Debug("published", "tables", tables)
	return nil
}

// Subscribe joins the channel. Messages published after Subscribe returns are
// delivered by Subscription.Run.
func (b *RedisBus) Subscribe(ctx context.Context) (*Subscription, error) {
	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("invalidation: subscribe to %s: %w", b.channel, err)
	}
	return &Subscription{bus: b, ps: ps}, nil
}

// Subscription receives messages from other origins.
type Subscription struct {
	bus *RedisBus
	ps  *redis.PubSub
}

// Run calls h for every message from another origin until ctx is done or the
// subscription is closed. Undecodable payloads are logged and skipped.
func (s *Subscription) Run(ctx context.Context, h Handler) error {
	ch := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			m, err := Decode([]byte(msg.Payload))
			if err != nil {
				s.bus.logger.Warn("dropping invalid message", "error", err)
				continue
			}
			if m.Origin == s.bus.origin {
				continue
			}
			s.bus.logger.Debug("received", "origin", m.Origin, "tables", m.Tables)
			h(ctx, m)
		}
	}
}

// Close leaves the channel.
func (s *Subscription) Close() error {
	return s.ps.Close()
}
