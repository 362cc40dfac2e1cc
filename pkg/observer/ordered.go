package observer

import "sync"

// Ordered is a Set whose values are published in the order they were
// enqueued, even when several goroutines produce them. Enqueue is meant to
// be called while the producer still holds its own state lock and Drain
// after releasing it.
type Ordered[T any] struct {
	Set[T]

	queueMu  sync.Mutex
	pending  []T
	draining bool
}

func (o *Ordered[T]) Enqueue(value T) {
	o.queueMu.Lock()
	defer o.queueMu.Unlock()

	o.pending = append(o.pending, value)
}

// Drain publishes everything enqueued so far. When another goroutine is
// already draining it returns at once and that goroutine delivers the
// values, which also covers values enqueued from inside a handler.
func (o *Ordered[T]) Drain(onPanic PanicHandler) {
	o.queueMu.Lock()
	if o.draining {
		o.queueMu.Unlock()
		return
	}
	o.draining = true

	for len(o.pending) > 0 {
		value := o.pending[0]

		var zero T
		o.pending[0] = zero
		o.pending = o.pending[1:]
		o.queueMu.Unlock()

		o.Publish(value, onPanic)

		o.queueMu.Lock()
	}

	o.draining = false
	o.queueMu.Unlock()
}
