package stream

import (
	"sync"
	"sync/atomic"
	"time"
)

// UpdateType names what changed in an Update.
type UpdateType string

const (
	UpdateRender    UpdateType = "render"
	UpdateTelemetry UpdateType = "telemetry"
	UpdateStatus    UpdateType = "status"
	UpdateAlert     UpdateType = "alert"
	UpdateForecast  UpdateType = "forecast"
)

type Update struct {
	Type    UpdateType `json:"type"`
	Payload any        `json:"payload"`
	At      time.Time  `json:"at"`
}

// subscriberBuffer bounds how far a subscriber may lag before updates are
// dropped for it.
const subscriberBuffer = 64

// Hub fans updates out to every subscriber. Publish never blocks: a full
// subscriber misses the update.
type Hub struct {
	subscribers map[uint64]chan Update
	nextID      atomic.Uint64
	dropped     atomic.Uint64
	mu          sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[uint64]chan Update),
	}
}

func (h *Hub) Subscribe() (uint64, <-chan Update) {
	id := h.nextID.Add(1)
	ch := make(chan Update, subscriberBuffer)

	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()

	return id, ch
}

func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
}

func (h *Hub) Publish(u Update) {
	if u.At.IsZero() {
		u.At = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers {
		select {
		case ch <- u:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Dropped reports how many deliveries were skipped for slow subscribers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close closes all subscriber channels so streaming handlers return.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}
