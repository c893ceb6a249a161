package latest

import (
	"context"
	"sync"
)

// Mailbox is a single-slot buffer with overwrite-on-publish semantics.
// Publish never blocks; Receive blocks until a value is available, the
// mailbox is closed, or the context is done.
type Mailbox[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	value  *T
	closed bool

	// drops counts values overwritten before they were received.
	drops uint64
	// received counts values handed to the consumer.
	received uint64
}

// NewMailbox creates an empty mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	m := &Mailbox[T]{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Publish stores v, replacing any value that has not been received yet.
// Publishing to a closed mailbox is a no-op.
func (m *Mailbox[T]) Publish(v *T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if m.value != nil {
		m.drops++
	}
	m.value = v
	m.cond.Signal()
}

// Receive blocks until a value is published and returns it. It returns
// false once the mailbox is closed or ctx is done.
func (m *Mailbox[T]) Receive(ctx context.Context) (*T, bool) {
	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.cond.Broadcast()
	})
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	for m.value == nil && !m.closed && ctx.Err() == nil {
		m.cond.Wait()
	}
	if m.closed || ctx.Err() != nil {
		return nil, false
	}

	v := m.value
	m.value = nil
	m.received++
	return v, true
}

// Close wakes any blocked receiver. Subsequent publishes are dropped.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.value = nil
	m.cond.Broadcast()
}

// Stats returns the number of dropped and received values.
func (m *Mailbox[T]) Stats() (drops, received uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drops, m.received
}
