package docstore

import "sync"

// Broker fans change signals for a collection out to its watchers. Signals carry no
// payload and coalesce: a watcher that has not consumed the previous signal just
// re-reads once.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan struct{}]struct{})}
}

// Subscribe registers for changes in collection. The returned function unregisters.
func (b *Broker) Subscribe(collection string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	if b.subs[collection] == nil {
		b.subs[collection] = make(map[chan struct{}]struct{})
	}
	b.subs[collection][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[collection], ch)
			if len(b.subs[collection]) == 0 {
				delete(b.subs, collection)
			}
			b.mu.Unlock()
		})
	}
}

// Publish signals every watcher of collection without blocking.
func (b *Broker) Publish(collection string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[collection] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers reports how many watchers are registered for collection.
func (b *Broker) Subscribers(collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[collection])
}
