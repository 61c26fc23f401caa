package task

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sourcegraph/conc/panics"
	"github.com/supremind/tpsec/types"
)

// Result is the outcome of a finished task
type Result[T any] struct {
	// Value is the partial value when the task was canceled
	Value    T
	Warnings []Warning
	Canceled bool
	// Err is only set for unexpected failures, per-item failures are Warnings
	Err     error
	Summary string
}

// Future is the pending Result of a task running on its own goroutine
type Future[T any] struct {
	done   chan struct{}
	result Result[T]
}

// Done is closed once the result is ready
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task finishes
func (f *Future[T]) Wait() Result[T] {
	<-f.done
	return f.result
}

// Body does the work of a task, and returns the value with a summary on completion
type Body[T any] func(ctx context.Context, t *Task) (T, string, error)

// Start runs body on a new goroutine.
// Errors returned by body and panics are unexpected failures: they are logged,
// wrapped with types.ErrUnexpected, and reported in Result.Err.
func Start[T any](ctx context.Context, t *Task, body Body[T]) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	go func() {
		defer close(f.done)
		f.result = run(ctx, t, body)
	}()

	return f
}

// Failed returns a Future which already finished with err
func Failed[T any](err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), result: Result[T]{Err: err, Summary: err.Error()}}
	close(f.done)
	return f
}

func run[T any](ctx context.Context, t *Task, body Body[T]) Result[T] {
	var (
		catcher panics.Catcher
		value   T
		summary string
		e       error
	)
	catcher.Try(func() {
		value, summary, e = body(ctx, t)
	})
	if e == nil {
		e = catcher.Recovered().AsError()
	}

	res := Result[T]{
		Value:    value,
		Warnings: t.Warnings(),
		Canceled: t.Canceled(),
		Summary:  summary,
	}
	if e != nil {
		t.log.Error(e, "An unexpected exception occurred while "+t.Title)
		res.Err = fmt.Errorf("%w: %s: %v", types.ErrUnexpected, t.Title, e)
		res.Summary = "An unexpected exception occurred"
	}
	return res
}

// CountString renders n with a noun, pluralized in English
func CountString(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
