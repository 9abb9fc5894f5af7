package relay

import (
	"encoding/json"
	"sync"
	"sync/atomic"
)

const subscriberBufSize = 256

// Event is one server-sent event.
type Event struct {
	Name    string
	Payload string
}

// Broker fans out events to all subscribed SSE clients. The latest event of
// each sticky name is replayed to new subscribers.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      atomic.Int64
	sticky      map[string]bool
	last        map[string]Event
}

// NewBroker creates a broker. Events named in sticky are retained and
// replayed on Subscribe.
func NewBroker(sticky ...string) *Broker {
	b := &Broker{
		subscribers: make(map[int64]chan Event),
		sticky:      make(map[string]bool, len(sticky)),
		last:        make(map[string]Event),
	}
	for _, name := range sticky {
		b.sticky[name] = true
	}
	return b
}

// Subscribe registers a new client. Returns the subscriber ID and a channel
// to receive events on. The channel is buffered; slow consumers will have
// events dropped.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	for _, evt := range b.last {
		ch <- evt
	}
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish sends an event to all subscribers. Non-blocking: slow clients
// have events dropped.
func (b *Broker) Publish(evt Event) {
	if b.sticky[evt.Name] {
		b.mu.Lock()
		b.last[evt.Name] = evt
		b.mu.Unlock()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// PublishJSON marshals v as the event payload.
func (b *Broker) PublishJSON(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.Publish(Event{Name: name, Payload: string(data)})
	return nil
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
