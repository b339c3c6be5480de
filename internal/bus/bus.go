package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ErrClosed is returned when subscribing on a closed Bus.
var ErrClosed = errors.New("bus closed")

// Publisher publishes payloads to topics.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Subscriber opens subscriptions on topics.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// WithBufferSize sets the per-subscription channel capacity.
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// Bus is a Channel Bus backed by a Redis client.
type Bus struct {
	rdb        redis.UniversalClient
	logger     *slog.Logger
	bufferSize int

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// New creates a Bus. The caller keeps ownership of rdb.
func New(rdb redis.UniversalClient, opts ...Option) *Bus {
	b := &Bus{
		rdb:        rdb,
		logger:     slog.Default(),
		bufferSize: 100,
		subs:       make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers payload to every current subscriber of topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	receivers, err := b.rdb.Publish(ctx, topic, payload).Result()
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	if receivers == 0 {
		b.logger.Debug("published with no subscribers", "topic", topic)
	}
	return nil
}

// Subscribe registers on topic and returns once the server has confirmed
// the subscription, so anything published afterwards is delivered.
// The subscription stays open until Close or ctx cancellation.
func (b *Bus) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.mu.Unlock()

	ps := b.rdb.Subscribe(ctx, topic)

	// First reply is the subscribe confirmation.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	sub := newSubscription(topic, b.bufferSize, ps.Close)
	sub.onClose = func() { b.forget(sub) }

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		ps.Close()
		return nil, ErrClosed
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go sub.pump(ctx, ps.Channel(redis.WithChannelSize(b.bufferSize)))

	b.logger.Debug("subscribed", "topic", topic)
	return sub, nil
}

// Close cancels every open subscription. The Redis client is not closed.
func (b *Bus) Close() error {
	b.mu.Lock()
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	var errs []error
	for _, s := range subs {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ping checks the Redis connection.
func (b *Bus) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

func (b *Bus) forget(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}
