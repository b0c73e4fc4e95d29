package api

import (
	"sync"

	"fleettrack/internal/model"
)

// TopicAll subscribes to alerts for every vehicle.
const TopicAll = "*"

// EventBroker fans fired alerts out to stream subscribers. Topics are
// vehicle ids, plus TopicAll for a fleet-wide feed.
type EventBroker interface {
	Subscribe(topic string) chan model.AlertEvent
	Unsubscribe(topic string, ch chan model.AlertEvent)
	Publish(evt model.AlertEvent)
}

// Broker is the in-process EventBroker used when no REDIS_URL is set.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan model.AlertEvent]struct{} // topic -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan model.AlertEvent]struct{}{}}
}

func (b *Broker) Subscribe(topic string) chan model.AlertEvent {
	ch := make(chan model.AlertEvent, 8)
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[chan model.AlertEvent]struct{}{}
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(topic string, ch chan model.AlertEvent) {
	b.mu.Lock()
	if m := b.subs[topic]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, topic)
		}
	}
	b.mu.Unlock()
	close(ch)
}

func (b *Broker) Publish(evt model.AlertEvent) {
	b.mu.Lock()
	for _, topic := range []string{evt.VehicleID, TopicAll} {
		for ch := range b.subs[topic] {
			// Slow subscribers miss events rather than stalling the pipeline.
			select {
			case ch <- evt:
			default:
			}
		}
	}
	b.mu.Unlock()
}
