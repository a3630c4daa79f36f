// Package broadcast fans events out to live subscribers. Delivery is
// best-effort: a subscriber that cannot take an event is dropped.
package broadcast

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"tradingarena/internal/metrics"
)

type EventType string

const (
	EventPriceUpdate   EventType = "price_update"
	EventDebateMessage EventType = "debate_message"
	EventCycleStatus   EventType = "cycle_status"
	EventTradeExecuted EventType = "trade_executed"
)

// Event is the envelope every subscriber receives.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// SnapshotFunc produces the catch-up event sent to a new subscriber.
type SnapshotFunc func() (Event, bool)

type Subscription struct {
	id uint64
	ch chan Event
}

// Events is closed once the subscription is removed from the hub.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	buf    int

	snapshot SnapshotFunc
	now      func() time.Time
	logger   *zap.Logger
}

func NewHub(buf int, logger *zap.Logger) *Hub {
	if buf <= 0 {
		buf = 64
	}
	return &Hub{
		subs:   map[uint64]*Subscription{},
		buf:    buf,
		now:    time.Now,
		logger: logger,
	}
}

// SetSnapshot installs the catch-up source. It must not call back into the hub.
func (h *Hub) SetSnapshot(fn SnapshotFunc) {
	h.mu.Lock()
	h.snapshot = fn
	h.mu.Unlock()
}

// Subscribe registers a subscriber. The current-state snapshot, when one is
// available, is queued before any later event can be.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscription{id: h.nextID, ch: make(chan Event, h.buf)}
	if h.snapshot != nil {
		if ev, ok := h.snapshot(); ok {
			if ev.Timestamp.IsZero() {
				ev.Timestamp = h.now().UTC()
			}
			sub.ch <- ev
		}
	}
	h.subs[sub.id] = sub
	metrics.Subscribers.Set(float64(len(h.subs)))
	if h.logger != nil {
		h.logger.Info("subscriber connected", zap.Uint64("subscriber", sub.id), zap.Int("subscribers", len(h.subs)))
	}
	return sub
}

// Unsubscribe is safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub.id]; !ok {
		return
	}
	h.removeLocked(sub)
	if h.logger != nil {
		h.logger.Info("subscriber disconnected", zap.Uint64("subscriber", sub.id), zap.Int("subscribers", len(h.subs)))
	}
}

// Publish stamps ev and hands it to every live subscriber without blocking.
// Subscribers whose queue is full are pruned.
func (h *Hub) Publish(typ EventType, data any) Event {
	ev := Event{Type: typ, Data: data, Timestamp: h.now().UTC()}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			h.removeLocked(sub)
			metrics.SubscribersPrunedTotal.Inc()
			if h.logger != nil {
				h.logger.Warn("subscriber pruned, queue full", zap.Uint64("subscriber", sub.id))
			}
		}
	}
	metrics.EventsPublishedTotal.WithLabelValues(string(typ)).Inc()
	return ev
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close drops every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		h.removeLocked(sub)
	}
}

func (h *Hub) removeLocked(sub *Subscription) {
	delete(h.subs, sub.id)
	close(sub.ch)
	metrics.Subscribers.Set(float64(len(h.subs)))
}
