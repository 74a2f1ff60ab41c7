package realtime

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Channel is the Redis pub/sub channel carrying new change sequence numbers.
const Channel = "sitdb:realtime:changes"

// Broker fans Redis change notifications out to the open streams of this
// process. A wake-up only shortens the wait for the next poll; streams never
// depend on it for delivery.
type Broker struct {
	client *redis.Client
	logger *slog.Logger

	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

// NewBroker constructs a Broker.
func NewBroker(client *redis.Client, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{client: client, logger: logger, subs: make(map[chan struct{}]struct{})}
}

// Notify publishes seq to every process.
func (b *Broker) Notify(ctx context.Context, seq int64) error {
	return b.client.Publish(ctx, Channel, strconv.FormatInt(seq, 10)).Err()
}

// Subscribe registers a wake-up channel. The returned func removes it.
func (b *Broker) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
	}
}

// Subscribers returns the number of registered wake-up channels.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Run consumes the Redis channel until ctx is cancelled.
func (b *Broker) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, Channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-msgs:
			if !ok {
				return nil
			}
			b.wake()
		}
	}
}

// wake never blocks: a subscriber that has not drained its previous signal
// already has a poll pending.
func (b *Broker) wake() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
