package workspace

import "sync"

// emitter is a minimal subscription list. Handlers run synchronously on the
// goroutine that fires the event.
type emitter[T any] struct {
	mu       sync.Mutex
	next     int
	handlers map[int]func(T)
}

func (e *emitter[T]) subscribe(fn func(T)) Disposable {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[int]func(T))
	}
	id := e.next
	e.next++
	e.handlers[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers, id)
	}
}

func (e *emitter[T]) fire(value T) {
	e.mu.Lock()
	fns := make([]func(T), 0, len(e.handlers))
	for _, fn := range e.handlers {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(value)
	}
}
