// Package stream provides a latest-value broadcast used for progress reporting.
package stream

import "sync"

// Latest holds one value at a time and broadcasts every new value to its subscribers.
// A new subscriber immediately receives the current value. A slow subscriber only ever
// sees the newest value: stale values it has not read yet are dropped.
type Latest[T any] struct {
	subs    map[int]chan T
	current T
	nextID  int
	mu      sync.Mutex
	closed  bool
}

// NewLatest creates a stream whose current value is initial.
func NewLatest[T any](initial T) *Latest[T] {
	return &Latest[T]{current: initial, subs: make(map[int]chan T)}
}

// Current returns the latest value.
func (l *Latest[T]) Current() T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Publish replaces the current value and offers it to every subscriber.
func (l *Latest[T]) Publish(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.current = v
	for _, ch := range l.subs {
		offer(ch, v)
	}
}

// offer puts v in a one-slot channel, replacing an unread older value.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Subscribe returns a channel carrying the current value and every later one, and a function
// that ends the subscription and closes the channel.
func (l *Latest[T]) Subscribe() (<-chan T, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan T, 1)
	ch <- l.current
	if l.closed {
		close(ch)
		return ch, func() {}
	}

	id := l.nextID
	l.nextID++
	l.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if sub, ok := l.subs[id]; ok {
				delete(l.subs, id)
				close(sub)
			}
		})
	}
}

// Close ends every subscription. Later publishes are ignored.
func (l *Latest[T]) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	for id, ch := range l.subs {
		delete(l.subs, id)
		close(ch)
	}
}

// Subscribers returns the number of active subscriptions.
func (l *Latest[T]) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}
