package outfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/pingu-sat/internal/metrics"
	"github.com/roman-kulish/pingu-sat/internal/task"
)

// DefaultPopTimeout bounds how long the drain task waits for an item before
// re-checking its stop signal
const DefaultPopTimeout = time.Second

var (
	ErrClosed       = errors.New("writer is closed")
	ErrAlreadyOpen  = errors.New("writer is already open")
	ErrDrainStopped = errors.New("writer drain task stopped")
	ErrWriteFailed  = errors.New("records not written")
)

// WithLogger sets the logger for the writer
func WithLogger(logger *slog.Logger) func(w *Writer) {
	return func(w *Writer) {
		w.logger = logger.With(slog.String("file", w.name))
	}
}

// WithChannel sets the metrics label of the writer, the file name by default
func WithChannel(channel string) func(w *Writer) {
	return func(w *Writer) {
		w.channel = channel
	}
}

// WithPopTimeout sets the drain task's queue wait
func WithPopTimeout(d time.Duration) func(w *Writer) {
	return func(w *Writer) {
		w.popTimeout = d
	}
}

// WithFileMode sets the permissions of a newly created file
func WithFileMode(mode os.FileMode) func(w *Writer) {
	return func(w *Writer) {
		w.mode = mode
	}
}

// Writer appends strings to a single file. Callers enqueue without blocking,
// one drain task owns the file handle and writes items in enqueue order.
type Writer struct {
	path       string
	name       string
	channel    string
	mode       os.FileMode
	popTimeout time.Duration

	queue *queue
	file  *os.File
	out   io.Writer
	drain *task.Task

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	closeErr  error

	written uint64
	records uint64
	failed  atomic.Uint64

	logger *slog.Logger
}

// New creates a Writer for path. Nothing touches the file before Open;
// writes issued before Open are queued.
func New(path string, options ...func(w *Writer)) *Writer {
	w := Writer{
		path:       path,
		name:       filepath.Base(path),
		mode:       0o644,
		popTimeout: DefaultPopTimeout,
		queue:      newQueue(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&w)
	}
	if w.channel == "" {
		w.channel = w.name
	}

	return &w
}

// Path returns the file path
func (w *Writer) Path() string {
	return w.path
}

// Open opens the file for appending and starts the drain task
func (w *Writer) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.file != nil {
		return ErrAlreadyOpen
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, w.mode)
	if err != nil {
		return fmt.Errorf("opening %s: %w", w.path, err)
	}

	w.file = f
	w.out = f
	w.drain = task.New("outfile:"+w.name, w.drainOne, nil,
		task.WithTeardown(w.flush),
		task.WithGroup("outfile"),
		task.WithLogger(w.logger),
	)

	if err = w.drain.Start(); err != nil {
		_ = f.Close()
		w.file = nil
		return fmt.Errorf("starting drain task: %w", err)
	}

	w.logger.Debug("file opened", slog.String("path", w.path))
	return nil
}

// Write enqueues s verbatim. It never blocks on file I/O.
func (w *Writer) Write(s string) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return ErrClosed
	}
	if w.drain != nil {
		select {
		case <-w.drain.Done():
			return fmt.Errorf("%s: %w", w.name, ErrDrainStopped)
		default:
		}
	}

	w.queue.Push(s)
	return nil
}

// WriteLine enqueues s followed by a newline
func (w *Writer) WriteLine(s string) error {
	return w.Write(s + "\n")
}

// Close stops accepting writes, waits for the drain task to write everything
// already queued and closes the file. Records that could not be written are
// reported with ErrWriteFailed. Safe to call more than once.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()

		if w.file == nil {
			if n := w.queue.Len(); n > 0 {
				w.logger.Warn(fmt.Sprintf("discarding %s records queued before open", humanize.Comma(int64(n))))
			}
			return
		}

		err := w.drain.Stop()
		if n := w.queue.Len(); n > 0 {
			w.failed.Add(uint64(n))
			w.logger.Warn(fmt.Sprintf("discarding %s records left after the drain task stopped", humanize.Comma(int64(n))))
		}
		if cerr := w.file.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("closing %s: %w", w.path, cerr))
		}
		if n := w.failed.Load(); n > 0 {
			err = errors.Join(err, fmt.Errorf("%s: %s %w", w.path, humanize.Comma(int64(n)), ErrWriteFailed))
		}
		w.closeErr = err

		w.logger.Info(fmt.Sprintf("file closed: %s records, %s written",
			humanize.Comma(int64(w.records)), humanize.Bytes(w.written)))
	})

	return w.closeErr
}

// drainOne is the drain task's loop step. A failed write loses that record
// only; the task keeps draining.
func (w *Writer) drainOne(ctx context.Context) error {
	s, ok := w.queue.Pop(ctx, w.popTimeout)
	if !ok {
		return nil
	}
	w.write(s)
	return nil
}

// flush writes whatever is left in the queue once the drain loop has exited
func (w *Writer) flush() error {
	for {
		s, ok := w.queue.TryPop()
		if !ok {
			return nil
		}
		w.write(s)
	}
}

func (w *Writer) write(s string) {
	if err := w.writeFile(s); err != nil {
		w.failed.Add(1)
		metrics.OutfileWriteErrors.WithLabelValues(w.channel).Inc()
		w.logger.Warn(fmt.Sprintf("record not written: %s", err.Error()))
	}
}

func (w *Writer) writeFile(s string) error {
	n, err := io.WriteString(w.out, s)
	w.written += uint64(n)
	metrics.OutfileBytes.WithLabelValues(w.channel).Add(float64(n))

	if err != nil {
		return fmt.Errorf("writing %s: %w", w.path, err)
	}
	w.records++
	return nil
}
