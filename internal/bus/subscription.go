package bus

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Subscription is a live registration on one topic.
// Messages is closed after Close, or when the subscribing context ends.
type Subscription struct {
	topic string
	out   chan []byte
	done  chan struct{}

	closeOnce sync.Once
	closeErr  error
	closer    func() error
	onClose   func()
}

func newSubscription(topic string, size int, closer func() error) *Subscription {
	return &Subscription{
		topic:  topic,
		out:    make(chan []byte, size),
		done:   make(chan struct{}),
		closer: closer,
	}
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.topic
}

// Messages returns the payload stream.
func (s *Subscription) Messages() <-chan []byte {
	return s.out
}

// Done is closed once the subscription has been cancelled.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.closer != nil {
			s.closeErr = s.closer()
		}
		if s.onClose != nil {
			s.onClose()
		}
	})
	return s.closeErr
}

// pump copies payloads from the Redis channel until cancellation.
func (s *Subscription) pump(ctx context.Context, in <-chan *redis.Message) {
	defer close(s.out)

	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				s.Close()
				return
			}
			select {
			case s.out <- []byte(msg.Payload):
			case <-ctx.Done():
				s.Close()
				return
			case <-s.done:
				return
			}
		}
	}
}
