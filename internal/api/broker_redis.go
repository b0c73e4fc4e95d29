package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"fleettrack/internal/model"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so alert streams
// work across replicas.
type RedisBroker struct {
	rdb *redis.Client

	mu   sync.Mutex
	subs map[chan model.AlertEvent]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisBroker{rdb: redis.NewClient(opt), subs: map[chan model.AlertEvent]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(topic string) chan model.AlertEvent {
	ch := make(chan model.AlertEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(topic))
	// initial consume to ensure subscription
	_, _ = ps.Receive(ctx)
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	// The forwarding goroutine owns ch: it closes it once the PubSub
	// channel drains, so Unsubscribe never races a send with the close.
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt model.AlertEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
				select {
				case ch <- evt:
				default:
				}
			}
		}
	}()
	return ch
}

// Unsubscribe closes the underlying PubSub; the forwarding goroutine then
// drains out and closes ch itself.
func (b *RedisBroker) Unsubscribe(topic string, ch chan model.AlertEvent) {
	b.mu.Lock()
	ps := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(evt model.AlertEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(evt)
	_ = b.rdb.Publish(ctx, b.chanName(evt.VehicleID), data).Err()
	_ = b.rdb.Publish(ctx, b.chanName(TopicAll), data).Err()
}

func (b *RedisBroker) chanName(topic string) string { return "alerts:" + topic }
