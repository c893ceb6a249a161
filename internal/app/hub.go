package app

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ayusman/kaleido/internal/latest"
)

// Hub fans values out to any number of subscribers. Each subscriber has its
// own single-slot mailbox, so a slow reader only drops its own frames and
// never blocks Publish.
type Hub[T any] struct {
	latest latest.Slot[T]

	mu     sync.Mutex
	subs   map[uuid.UUID]*latest.Mailbox[T]
	closed bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// HubStats summarizes a hub.
type HubStats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
}

// NewHub creates an empty Hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[uuid.UUID]*latest.Mailbox[T])}
}

// Publish stores v as the latest value and offers it to every subscriber.
func (h *Hub[T]) Publish(v *T) {
	h.latest.Store(v)
	h.published.Add(1)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, box := range h.subs {
		box.Publish(v)
	}
}

// Latest returns the most recently published value, or nil.
func (h *Hub[T]) Latest() *T {
	return h.latest.Load()
}

// Subscribe registers a new subscriber. The latest value, if any, is
// delivered first so a new client does not wait for the next publish.
func (h *Hub[T]) Subscribe() *Subscription[T] {
	box := latest.NewMailbox[T]()
	sub := &Subscription[T]{ID: uuid.New(), box: box, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		box.Close()
		return sub
	}
	if v := h.latest.Load(); v != nil {
		box.Publish(v)
	}
	h.subs[sub.ID] = box
	return sub
}

// Subscribers returns the number of active subscribers.
func (h *Hub[T]) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Stats returns the hub counters. Dropped includes subscribers that have
// already gone.
func (h *Hub[T]) Stats() HubStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	dropped := h.dropped.Load()
	for _, box := range h.subs {
		d, _ := box.Stats()
		dropped += d
	}
	return HubStats{
		Subscribers: len(h.subs),
		Published:   h.published.Load(),
		Dropped:     dropped,
	}
}

// Close ends every subscription. Later subscriptions start closed.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, box := range h.subs {
		box.Close()
		delete(h.subs, id)
	}
}

func (h *Hub[T]) remove(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if box, ok := h.subs[id]; ok {
		d, _ := box.Stats()
		h.dropped.Add(d)
		box.Close()
		delete(h.subs, id)
	}
}

// Subscription is one reader of a Hub.
type Subscription[T any] struct {
	ID  uuid.UUID
	box *latest.Mailbox[T]
	hub *Hub[T]
}

// Next blocks for the next value. It returns false once the subscription or
// hub is closed or ctx is done.
func (s *Subscription[T]) Next(ctx context.Context) (*T, bool) {
	return s.box.Receive(ctx)
}

// Close unregisters the subscription.
func (s *Subscription[T]) Close() {
	s.hub.remove(s.ID)
}
