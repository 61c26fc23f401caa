// Package task runs batch operations on a worker goroutine, tracking progress,
// per-item warnings and cooperative cancellation.
package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"github.com/oklog/ulid/v2"
)

// Status values shared by all tasks
const (
	StatusRunning  = "Running"
	StatusCanceled = "Canceled"
)

// Warning is a per-item failure which did not abort the batch
type Warning struct {
	Message string
	Err     error
}

func (w Warning) Error() string {
	if w.Err == nil {
		return w.Message
	}
	return w.Message + ": " + w.Err.Error()
}

func (w Warning) Unwrap() error {
	return w.Err
}

// Progress is a snapshot of a running task
type Progress struct {
	TaskID   string
	Title    string
	Step     int
	Total    int
	Status   string
	Warnings int
}

// Task tracks one batch operation
type Task struct {
	ID    ulid.ULID
	Title string
	Total int

	mu       sync.Mutex
	step     int
	status   string
	warnings []Warning
	canceled bool
	progress func(Progress)
	log      logr.Logger
}

// Option configures a Task
type Option func(*Task)

// WithProgress reports every progress change to fn, from the worker goroutine
func WithProgress(fn func(Progress)) Option {
	return func(t *Task) {
		t.progress = fn
	}
}

// WithLogger sets the logger warnings are written to
func WithLogger(l logr.Logger) Option {
	return func(t *Task) {
		t.log = l
	}
}

// New creates a task of total steps
func New(title string, total int, opts ...Option) *Task {
	t := &Task{
		ID:     ulid.Make(),
		Title:  title,
		Total:  total,
		status: StatusRunning,
		log:    logr.Discard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.WithValues("task", t.ID.String())
	return t
}

// SetProgress moves the task to step with a status message
func (t *Task) SetProgress(step int, status string) {
	t.mu.Lock()
	t.step = step
	t.status = status
	p := t.snapshot()
	t.mu.Unlock()

	t.log.V(4).Info("progress", "step", step, "total", t.Total, "status", status)
	t.report(p)
}

// SetWarning records a per-item failure
func (t *Task) SetWarning(message string, err error) {
	t.mu.Lock()
	t.warnings = append(t.warnings, Warning{Message: message, Err: err})
	p := t.snapshot()
	t.mu.Unlock()

	t.log.Error(err, message)
	t.report(p)
}

// IsCanceled polls ctx, and marks the task canceled once ctx is done
func (t *Task) IsCanceled(ctx context.Context) bool {
	if ctx.Err() == nil {
		return false
	}

	t.mu.Lock()
	first := !t.canceled
	t.canceled = true
	t.status = StatusCanceled
	p := t.snapshot()
	t.mu.Unlock()

	if first {
		t.log.Info("canceled", "step", p.Step)
		t.report(p)
	}
	return true
}

// Warnings returns a copy of recorded warnings
func (t *Task) Warnings() []Warning {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Warning(nil), t.warnings...)
}

// Status returns the latest status message
func (t *Task) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Canceled tells if the task has observed a cancellation
func (t *Task) Canceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}

func (t *Task) snapshot() Progress {
	return Progress{
		TaskID:   t.ID.String(),
		Title:    t.Title,
		Step:     t.step,
		Total:    t.Total,
		Status:   t.status,
		Warnings: len(t.warnings),
	}
}

func (t *Task) report(p Progress) {
	if t.progress != nil {
		t.progress(p)
	}
}

func (t *Task) String() string {
	return fmt.Sprintf("%s (%s)", t.Title, t.ID)
}
