package ipc

import (
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/averyln/procsuper/internal/events"
)

// Broker fans out every event the core emits to every currently-subscribed
// connection. It implements events.Sink and is the single Sink handed to
// lifecycle.New for a server process. Each connection identifies its
// subscription by a uuid.UUID correlation id, used for log correlation the
// way the teacher logged conn.RemoteAddr() — meaningless for a Unix socket,
// where every peer reports the same empty address.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]func(events.Topic, any)
	log         hclog.Logger
}

// NewBroker creates an empty Broker.
func NewBroker(log hclog.Logger) *Broker {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Broker{
		subscribers: make(map[uuid.UUID]func(events.Topic, any)),
		log:         log.Named("broker"),
	}
}

// Emit implements events.Sink, synchronously fanning the event out to every
// subscriber. A slow or wedged subscriber delays delivery to the others —
// acceptable for a reference transport whose connections are expected to
// keep up, same tradeoff the teacher's own single-threaded event callback
// made.
func (b *Broker) Emit(topic events.Topic, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, cb := range b.subscribers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("subscriber callback panicked", "subscriber", id, "panic", r)
				}
			}()
			cb(topic, payload)
		}()
	}
}

// Subscribe registers cb under id and returns an unsubscribe function.
func (b *Broker) Subscribe(id uuid.UUID, cb func(events.Topic, any)) func() {
	b.mu.Lock()
	b.subscribers[id] = cb
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
}
