// Package events fans typed notifications out to any number of listeners
// without ever blocking the publisher.
package events

import (
	"sync"
	"sync/atomic"
)

// Bus fans out values from publishers to N listeners. Publish is lock-free
// and may be called from a real-time audio callback.
type Bus[T any] struct {
	mu        sync.Mutex // serializes Subscribe/Unsubscribe
	listeners atomic.Pointer[[]*Listener[T]]
	dropped   atomic.Uint64
}

// Listener receives values from the bus.
type Listener[T any] struct {
	C    chan T
	done chan struct{}
}

// Done is closed when the listener is unsubscribed.
func (l *Listener[T]) Done() <-chan struct{} {
	return l.done
}

// NewBus creates a bus with no listeners.
func NewBus[T any]() *Bus[T] {
	b := &Bus[T]{}
	b.listeners.Store(&[]*Listener[T]{})
	return b
}

// Subscribe registers a new listener with the given channel buffer.
func (b *Bus[T]) Subscribe(buffer int) *Listener[T] {
	l := &Listener[T]{
		C:    make(chan T, buffer),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	cur := *b.listeners.Load()
	next := make([]*Listener[T], 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, l)
	b.listeners.Store(&next)
	return l
}

// Unsubscribe removes a listener and signals it to stop. C is left open so
// that a concurrent Publish never sends on a closed channel.
func (b *Bus[T]) Unsubscribe(l *Listener[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := *b.listeners.Load()
	next := make([]*Listener[T], 0, len(cur))
	found := false
	for _, x := range cur {
		if x == l {
			found = true
			continue
		}
		next = append(next, x)
	}
	if !found {
		return
	}
	b.listeners.Store(&next)
	close(l.done)
}

// ListenerCount returns the number of active listeners.
func (b *Bus[T]) ListenerCount() int {
	return len(*b.listeners.Load())
}

// Dropped returns how many deliveries were skipped because a listener was
// full.
func (b *Bus[T]) Dropped() uint64 {
	return b.dropped.Load()
}

// Publish delivers v to every listener that has room. Slow listeners lose
// the value rather than blocking the publisher.
func (b *Bus[T]) Publish(v T) {
	for _, l := range *b.listeners.Load() {
		select {
		case l.C <- v:
		default:
			b.dropped.Add(1)
		}
	}
}
