package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// WithSupervisorLogger sets the logger for the supervisor and the tasks it creates
func WithSupervisorLogger(logger *slog.Logger) func(s *Supervisor) {
	return func(s *Supervisor) {
		s.logger = logger.With(slog.String("group", s.name))
	}
}

// Supervisor owns a group of tasks sharing one StopSignal. Start launches all
// of them, Stop sets the signal once and waits for every task to return.
type Supervisor struct {
	name   string
	signal *StopSignal
	tasks  []*Task

	started  atomic.Bool
	stopOnce sync.Once
	stopErr  error

	logger *slog.Logger
}

// NewSupervisor creates an empty Supervisor with a discard logger
func NewSupervisor(name string, options ...func(s *Supervisor)) *Supervisor {
	s := Supervisor{
		name:   name,
		signal: NewStopSignal(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Add registers a task driving r. Tasks must be added before Start.
func (s *Supervisor) Add(name string, r Runner, options ...func(t *Task)) *Task {
	return s.AddFunc(name, r.Update, append([]func(t *Task){WithSetup(r.Setup), WithTeardown(r.Teardown)}, options...)...)
}

// AddFunc registers a task running loop. Tasks must be added before Start.
func (s *Supervisor) AddFunc(name string, loop func(ctx context.Context) error, options ...func(t *Task)) *Task {
	options = append([]func(t *Task){WithGroup(s.name), WithLogger(s.logger)}, options...)
	t := New(name, loop, s.signal, options...)
	s.tasks = append(s.tasks, t)
	return t
}

// Tasks returns the registered tasks in registration order
func (s *Supervisor) Tasks() []*Task {
	return s.tasks
}

// Start launches every registered task
func (s *Supervisor) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("supervisor %s: %w", s.name, ErrAlreadyStarted)
	}

	s.logger.Info(fmt.Sprintf("starting %d tasks", len(s.tasks)))

	for _, t := range s.tasks {
		if err := t.Start(); err != nil {
			return fmt.Errorf("starting task %s: %w", t.Name(), err)
		}
	}

	return nil
}

// Stop sets the shared StopSignal and returns once every task has returned.
// Errors of failed tasks are joined. Safe to call more than once.
func (s *Supervisor) Stop() error {
	s.stopOnce.Do(func() {
		s.signal.Set()

		var errs []error
		for _, t := range s.tasks {
			if err := t.Stop(); err != nil {
				errs = append(errs, err)
			}
		}

		s.stopErr = errors.Join(errs...)
		s.logger.Info("all tasks stopped")
	})

	return s.stopErr
}

// Scope starts the group, runs fn and stops the group on every exit path of fn,
// including a panic.
func (s *Supervisor) Scope(fn func() error) (err error) {
	if err = s.Start(); err != nil {
		return errors.Join(err, s.Stop())
	}

	defer func() {
		if stopErr := s.Stop(); stopErr != nil {
			s.logger.Warn(fmt.Sprintf("tasks failed: %s", stopErr.Error()))
		}
	}()

	return fn()
}

// Done is closed when the group's StopSignal is set
func (s *Supervisor) Done() <-chan struct{} {
	return s.signal.Done()
}
