// Package realtime fans chat messages and notifications out to connected
// clients. Events travel over a Broker (NATS in production) so that every
// process serving a room sees them.
package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
)

// Subject prefixes.
const (
	ChatSubjectPrefix   = "sangam.chat."
	NotifySubjectPrefix = "sangam.notify."
)

// ChatRoom names the room shared by two users: chat_<min>_<max>.
func ChatRoom(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return "chat_" + strconv.FormatInt(a, 10) + "_" + strconv.FormatInt(b, 10)
}

// ChatSubject is the broker subject for a chat room.
func ChatSubject(room string) string {
	return ChatSubjectPrefix + room
}

// NotifySubject is the broker subject for a user's notifications.
func NotifySubject(userID int64) string {
	return NotifySubjectPrefix + strconv.FormatInt(userID, 10)
}

// Broker delivers payloads published on a subject to its subscribers.
type Broker interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte)) (unsubscribe func() error, err error)
}

// Handler receives a payload delivered to a local subscription.
type Handler func(data []byte)

type topic struct {
	unsubscribe func() error
	handlers    map[uint64]Handler
}

// Hub multiplexes local subscribers onto a single broker subscription per
// subject.
type Hub struct {
	broker Broker
	logger *slog.Logger

	mu     sync.Mutex
	topics map[string]*topic
	nextID uint64
}

// NewHub creates a Hub over broker.
func NewHub(broker Broker, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		broker: broker,
		logger: logger,
		topics: make(map[string]*topic),
	}
}

// Subscribe registers h for payloads on subject. The returned function
// removes it; the broker subscription is dropped with the last handler.
func (h *Hub) Subscribe(subject string, handler Handler) (func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[subject]
	if !ok {
		t = &topic{handlers: make(map[uint64]Handler)}
		unsub, err := h.broker.Subscribe(subject, func(data []byte) {
			h.dispatch(subject, data)
		})
		if err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", subject, err)
		}
		t.unsubscribe = unsub
		h.topics[subject] = t
	}

	h.nextID++
	id := h.nextID
	t.handlers[id] = handler

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(subject, id) })
	}, nil
}

func (h *Hub) remove(subject string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[subject]
	if !ok {
		return
	}
	delete(t.handlers, id)
	if len(t.handlers) > 0 {
		return
	}
	delete(h.topics, subject)
	if err := t.unsubscribe(); err != nil {
		h.logger.Warn("Failed to unsubscribe", "subject", subject, "error", err)
	}
}

func (h *Hub) dispatch(subject string, data []byte) {
	h.mu.Lock()
	t, ok := h.topics[subject]
	var handlers []Handler
	if ok {
		handlers = make([]Handler, 0, len(t.handlers))
		for _, fn := range t.handlers {
			handlers = append(handlers, fn)
		}
	}
	h.mu.Unlock()

	for _, fn := range handlers {
		fn(data)
	}
}

// Publish JSON-encodes v and publishes it on subject.
func (h *Hub) Publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := h.broker.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribers reports how many local handlers are registered for subject.
func (h *Hub) Subscribers(subject string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[subject]; ok {
		return len(t.handlers)
	}
	return 0
}

// Close drops every broker subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for subject, t := range h.topics {
		if err := t.unsubscribe(); err != nil {
			h.logger.Warn("Failed to unsubscribe", "subject", subject, "error", err)
		}
		delete(h.topics, subject)
	}
}
