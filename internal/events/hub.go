// Package events fans registry events out to live subscribers.
package events

import (
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one published registry event.
type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Filter selects events for a subscriber. A nil Filter selects everything.
type Filter func(Event) bool

// Types selects events whose type starts with any of prefixes, so "agent."
// matches every provisioning event. No prefixes selects everything.
func Types(prefixes ...string) Filter {
	if len(prefixes) == 0 {
		return nil
	}
	return func(ev Event) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(ev.Type, p) {
				return true
			}
		}
		return false
	}
}

func (f Filter) match(ev Event) bool { return f == nil || f(ev) }

const (
	defaultHistory   = 100
	subscriberBuffer = 128
)

type subscriber struct {
	ch     chan Event
	filter Filter
}

// Hub is an in-memory pub/sub that keeps recent history for clients that
// reconnect with a Last-Event-ID.
type Hub struct {
	dropped atomic.Uint64

	mu      sync.Mutex
	lastID  int64
	history []Event
	limit   int
	subs    map[*subscriber]struct{}
}

// NewHub creates a hub that retains the last history events (100 if <= 0).
func NewHub(history int) *Hub {
	if history <= 0 {
		history = defaultHistory
	}
	return &Hub{
		history: make([]Event, 0, history),
		limit:   history,
		subs:    make(map[*subscriber]struct{}),
	}
}

// Publish records an event under the next ID and hands it to matching
// subscribers. A subscriber whose buffer is full misses the event and the
// miss is counted in Dropped.
func (h *Hub) Publish(eventType string, data any) Event {
	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	ev := Event{ID: h.lastID, Type: eventType, At: time.Now().UTC(), Data: payload}

	if len(h.history) == h.limit {
		copy(h.history, h.history[1:])
		h.history = h.history[:h.limit-1]
	}
	h.history = append(h.history, ev)

	for sub := range h.subs {
		if !sub.filter.match(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
	return ev
}

// Subscribe registers a subscriber for events matching filter. The returned
// cancel func closes the channel and may be called more than once.
func (h *Hub) Subscribe(filter Filter) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer), filter: filter}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			close(sub.ch)
			h.mu.Unlock()
		})
	}
}

// Since returns retained events with ID greater than lastID that match
// filter, oldest first.
func (h *Hub) Since(lastID int64, filter Filter) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, len(h.history))
	for _, ev := range h.history {
		if ev.ID > lastID && filter.match(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }
