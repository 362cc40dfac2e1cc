// Package observer provides ordered, typed subscriber sets with unsubscribe
// funcs. Handlers are invoked outside the set's lock so they can subscribe,
// unsubscribe or publish again from inside a notification.
package observer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/travigo/livebus/pkg/util"
)

// ErrHandlerPanic marks an error produced from a recovered subscriber panic
var ErrHandlerPanic = errors.New("subscriber panicked")

type Handler[T any] func(T)

// PanicHandler receives the recovered value of a handler that panicked
type PanicHandler func(recovered any)

type entry[T any] struct {
	id      uint64
	handler Handler[T]
}

type Set[T any] struct {
	mu       sync.Mutex
	nextID   uint64
	handlers []entry[T]
}

// Subscribe registers handler and returns the func that removes it. Calling
// the returned func more than once is harmless.
func (s *Set[T]) Subscribe(handler Handler[T]) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.handlers = append(s.handlers, entry[T]{id: id, handler: handler})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		util.InPlaceFilter(&s.handlers, func(e entry[T]) bool {
			return e.id != id
		})
	}
}

func (s *Set[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.handlers)
}

// Publish calls every handler in subscription order. A panicking handler is
// reported to onPanic and the remaining handlers still run.
func (s *Set[T]) Publish(value T, onPanic PanicHandler) {
	s.mu.Lock()
	handlers := make([]entry[T], len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	for _, e := range handlers {
		invoke(e.handler, value, onPanic)
	}
}

func invoke[T any](handler Handler[T], value T, onPanic PanicHandler) {
	defer func() {
		if recovered := recover(); recovered != nil && onPanic != nil {
			onPanic(recovered)
		}
	}()

	handler(value)
}

// PanicError turns a recovered panic value into an error wrapping
// ErrHandlerPanic
func PanicError(recovered any) error {
	if err, ok := recovered.(error); ok {
		return fmt.Errorf("%w: %w", ErrHandlerPanic, err)
	}

	return fmt.Errorf("%w: %v", ErrHandlerPanic, recovered)
}
