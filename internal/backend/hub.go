package backend

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Op is the kind of row change.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// ChangeEvent says that a row changed. It is a refetch trigger, not a delta:
// it carries no column values.
type ChangeEvent struct {
	Table string    `json:"table"`
	Op    Op        `json:"op"`
	RowID string    `json:"row_id,omitempty"`
	At    time.Time `json:"at"`
}

// Hub fans committed changes out to subscribers.
//
// Publish never blocks: a subscriber whose buffer is full loses the event
// and its Dropped counter is incremented.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
	logger *log.Logger
}

// NewHub creates a hub whose subscriptions default to buffer slots.
func NewHub(buffer int, logger *log.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscription receives events from a Hub until Close is called.
type Subscription struct {
	hub     *Hub
	ch      chan ChangeEvent
	once    sync.Once
	dropped atomic.Uint64
}

// Subscribe registers a new subscriber. buffer <= 0 uses the hub default.
// On a closed hub the returned subscription's channel is already closed.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = h.buffer
	}
	s := &Subscription{hub: h, ch: make(chan ChangeEvent, buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// Publish delivers ev to every subscriber without blocking.
func (h *Hub) Publish(ev ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs {
		select {
		case s.ch <- ev:
		default:
			if s.dropped.Add(1) == 1 {
				h.logger.Printf("Warning: subscriber buffer full, dropping %s %s events", ev.Op, ev.Table)
			}
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscription. Later Publish calls are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		s.once.Do(func() { close(s.ch) })
		delete(h.subs, s)
	}
}

// Events returns the event channel. It is closed by Close or Hub.Close.
func (s *Subscription) Events() <-chan ChangeEvent {
	return s.ch
}

// Dropped returns how many events were lost to a full buffer.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()

	delete(s.hub.subs, s)
	s.once.Do(func() { close(s.ch) })
}
