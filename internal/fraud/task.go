package fraud

import (
	"context"
	"sync"
)

// Task is the handle of work running in the background. Callers may select
// on Done, block in Wait with their own deadline, or ignore it entirely.
type Task[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func newTask[T any]() *Task[T] {
	return &Task[T]{done: make(chan struct{})}
}

// completedTask returns a Task that is already finished.
func completedTask[T any](v T, err error) *Task[T] {
	t := newTask[T]()
	t.finish(v, err)
	return t
}

func (t *Task[T]) finish(v T, err error) {
	t.once.Do(func() {
		t.val = v
		t.err = err
		close(t.done)
	})
}

// Done is closed when the task finishes.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx ends. A ctx error does not
// stop the task.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.val, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the outcome without blocking; ok is false while running.
func (t *Task[T]) Result() (v T, err error, ok bool) {
	select {
	case <-t.done:
		return t.val, t.err, true
	default:
		var zero T
		return zero, nil, false
	}
}
