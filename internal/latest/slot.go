// Package latest provides single-slot holders that always keep the newest value.
//
// Slot is a non-blocking cell read by the render loop. Mailbox is a blocking
// single-consumer variant used to hand the newest frame to a worker, dropping
// anything the worker did not get to in time.
package latest

import "sync/atomic"

// Slot holds the most recently stored value. Values are swapped whole, so a
// reader never observes a partially written value. The zero Slot is empty.
type Slot[T any] struct {
	v       atomic.Pointer[T]
	version atomic.Uint64
}

// Store replaces the held value. Storing nil empties the slot.
func (s *Slot[T]) Store(v *T) {
	s.v.Store(v)
	s.version.Add(1)
}

// Load returns the held value, or nil if nothing has been stored yet.
func (s *Slot[T]) Load() *T {
	return s.v.Load()
}

// Version returns the number of Store calls so far.
func (s *Slot[T]) Version() uint64 {
	return s.version.Load()
}
