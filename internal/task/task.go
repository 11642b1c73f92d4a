package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/pingu-sat/internal/metrics"
)

var (
	// ErrAlreadyStarted is returned when Start is called on a task that was started before
	ErrAlreadyStarted = errors.New("task already started")

	// ErrStop can be returned by a loop step to finish the task without reporting a failure
	ErrStop = errors.New("stop requested by loop")

	// ErrPanic wraps a panic recovered from one of the task hooks
	ErrPanic = errors.New("panic in task")
)

// Runner is the capability shared by sensors and consumers: a setup step,
// one loop iteration and a teardown step.
type Runner interface {
	Setup(ctx context.Context) error
	Update(ctx context.Context) error
	Teardown() error
}

// StopSignal is a one-shot cancellation flag shared by a group of tasks.
// Once set it never resets.
type StopSignal struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewStopSignal creates an unset StopSignal
func NewStopSignal() *StopSignal {
	ctx, cancel := context.WithCancel(context.Background())
	return &StopSignal{ctx: ctx, cancel: cancel}
}

// Set raises the signal. Safe to call more than once.
func (s *StopSignal) Set() {
	s.cancel()
}

// IsSet reports whether the signal was raised
func (s *StopSignal) IsSet() bool {
	return s.ctx.Err() != nil
}

// Done is closed when the signal is raised
func (s *StopSignal) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Context returns a context cancelled together with the signal
func (s *StopSignal) Context() context.Context {
	return s.ctx
}

// WithLogger sets the logger for the task
func WithLogger(logger *slog.Logger) func(t *Task) {
	return func(t *Task) {
		t.logger = logger.With(slog.String("task", t.name))
	}
}

// WithSetup sets the step executed once before the first loop iteration
func WithSetup(setup func(ctx context.Context) error) func(t *Task) {
	return func(t *Task) {
		t.setup = setup
	}
}

// WithTeardown sets the step executed once after the last loop iteration
func WithTeardown(teardown func() error) func(t *Task) {
	return func(t *Task) {
		t.teardown = teardown
	}
}

// WithInterval sets the pause between loop iterations
func WithInterval(d time.Duration) func(t *Task) {
	return func(t *Task) {
		t.interval = d
	}
}

// WithGroup labels the task metrics with the name of the owning group
func WithGroup(group string) func(t *Task) {
	return func(t *Task) {
		t.group = group
	}
}

// Task runs a loop step repeatedly on its own goroutine until its StopSignal is set.
// Setup runs once, teardown runs once on every exit path after a successful setup.
type Task struct {
	name  string
	group string

	setup    func(ctx context.Context) error
	loop     func(ctx context.Context) error
	teardown func() error
	interval time.Duration

	signal *StopSignal

	started atomic.Bool
	done    chan struct{}
	err     error

	logger *slog.Logger
}

// New creates a Task with the given loop step bound to signal. A nil signal
// gives the task a private one.
func New(name string, loop func(ctx context.Context) error, signal *StopSignal, options ...func(t *Task)) *Task {
	if signal == nil {
		signal = NewStopSignal()
	}

	t := Task{
		name:   name,
		group:  "default",
		loop:   loop,
		signal: signal,
		done:   make(chan struct{}),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&t)
	}

	return &t
}

// FromRunner creates a Task driving r's Setup, Update and Teardown
func FromRunner(name string, r Runner, signal *StopSignal, options ...func(t *Task)) *Task {
	options = append([]func(t *Task){WithSetup(r.Setup), WithTeardown(r.Teardown)}, options...)
	return New(name, r.Update, signal, options...)
}

// Name returns the task name
func (t *Task) Name() string {
	return t.name
}

// Start runs the task on a new goroutine
func (t *Task) Start() error {
	if !t.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	go t.run()
	return nil
}

// Stop sets the StopSignal and blocks until the task has returned.
// It is safe to call Stop more than once. Stopping a task that was never
// started retires it: a later Start returns ErrAlreadyStarted.
func (t *Task) Stop() error {
	t.signal.Set()

	if t.started.CompareAndSwap(false, true) {
		close(t.done)
		return nil
	}

	<-t.done
	return t.err
}

// Done is closed once the task has fully returned
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the error that terminated the task. Only meaningful after Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

func (t *Task) run() {
	defer close(t.done)

	ctx := t.signal.Context()

	if t.setup != nil {
		if err := t.call(func() error { return t.setup(ctx) }); err != nil {
			t.err = fmt.Errorf("%s: setup: %w", t.name, err)
			t.logger.Error(fmt.Sprintf("setup failed: %s", err.Error()), slog.String("type", fmt.Sprintf("%T", err)))
			metrics.TaskFailures.WithLabelValues(t.group, t.name).Inc()
			return
		}
	}

	defer func() {
		if t.teardown == nil {
			return
		}
		if err := t.call(t.teardown); err != nil {
			t.logger.Error(fmt.Sprintf("teardown failed: %s", err.Error()))
			t.err = errors.Join(t.err, fmt.Errorf("%s: teardown: %w", t.name, err))
		}
	}()

	t.logger.Debug("task started")

	for !t.signal.IsSet() {
		err := t.call(func() error { return t.loop(ctx) })
		if err != nil {
			if errors.Is(err, ErrStop) || (t.signal.IsSet() && errors.Is(err, context.Canceled)) {
				break
			}

			t.err = fmt.Errorf("%s: loop: %w", t.name, err)
			t.logger.Error(fmt.Sprintf("task aborted: %s", err.Error()), slog.String("type", fmt.Sprintf("%T", err)))
			metrics.TaskFailures.WithLabelValues(t.group, t.name).Inc()
			return
		}

		metrics.TaskIterations.WithLabelValues(t.group, t.name).Inc()

		if t.interval > 0 {
			if err = Sleep(ctx, t.interval); err != nil {
				break
			}
		}
	}

	t.logger.Debug("task stopped")
}

// call runs fn, converting a panic into an error wrapping ErrPanic
func (t *Task) call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	return fn()
}

// Sleep pauses for d or until ctx is done, whichever happens first
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
