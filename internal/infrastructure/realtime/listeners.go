package realtime

import "sync"

type listener[T any] struct {
	id int
	fn func(T)
}

// listeners is a registration-ordered callback list. Callbacks run outside the lock on
// the goroutine that emits.
type listeners[T any] struct {
	mu   sync.RWMutex
	next int
	fns  []listener[T]
}

func (l *listeners[T]) add(fn func(T)) func() {
	l.mu.Lock()
	l.next++
	id := l.next
	l.fns = append(l.fns, listener[T]{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for i, x := range l.fns {
				if x.id == id {
					l.fns = append(l.fns[:i:i], l.fns[i+1:]...)
					return
				}
			}
		})
	}
}

func (l *listeners[T]) emit(v T) {
	l.mu.RLock()
	fns := make([]func(T), len(l.fns))
	for i, x := range l.fns {
		fns[i] = x.fn
	}
	l.mu.RUnlock()
	for _, fn := range fns {
		fn(v)
	}
}
