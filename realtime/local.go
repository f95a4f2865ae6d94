package realtime

import "sync"

// LocalBroker delivers synchronously within one process. It serves tests
// and single-process deployments without a NATS server.
type LocalBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]func([]byte)
	nextID uint64
}

// NewLocalBroker creates an empty LocalBroker.
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[string]map[uint64]func([]byte))}
}

// Publish implements Broker.
func (b *LocalBroker) Publish(subject string, data []byte) error {
	b.mu.RLock()
	handlers := make([]func([]byte), 0, len(b.subs[subject]))
	for _, fn := range b.subs[subject] {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(data)
	}
	return nil
}

// Subscribe implements Broker.
func (b *LocalBroker) Subscribe(subject string, handler func([]byte)) (func() error, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[subject] == nil {
		b.subs[subject] = make(map[uint64]func([]byte))
	}
	b.nextID++
	id := b.nextID
	b.subs[subject][id] = handler

	return func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[subject], id)
		if len(b.subs[subject]) == 0 {
			delete(b.subs, subject)
		}
		return nil
	}, nil
}
