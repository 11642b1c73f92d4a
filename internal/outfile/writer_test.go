package outfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err = scanner.Err(); err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return lines
}

func TestWriter_PreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ordered.log")
	w := New(path, WithPopTimeout(10*time.Millisecond))

	if err := w.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	const total = 1000

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			if err := w.WriteLine(fmt.Sprintf("line %04d", i)); err != nil {
				t.Errorf("WriteLine %d failed: %v", i, err)
				return
			}
		}
	}()
	<-done

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != total {
		t.Fatalf("Expected %d lines, got %d", total, len(lines))
	}
	for i, line := range lines {
		if want := fmt.Sprintf("line %04d", i); line != want {
			t.Fatalf("Line %d: expected %q, got %q", i, want, line)
		}
	}
}

func TestWriter_ConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.log")
	w := New(path, WithPopTimeout(10*time.Millisecond))

	if err := w.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	const writers, perWriter = 8, 200

	var wg sync.WaitGroup
	for id := 0; id < writers; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_ = w.WriteLine(fmt.Sprintf("%d:%03d", id, i))
			}
		}(id)
	}
	wg.Wait()

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != writers*perWriter {
		t.Fatalf("Expected %d lines, got %d", writers*perWriter, len(lines))
	}

	// per writer order is kept, lines are never torn
	last := make(map[string]int)
	for _, line := range lines {
		id, seq, ok := strings.Cut(line, ":")
		if !ok || len(seq) != 3 {
			t.Fatalf("Torn line %q", line)
		}
		var n int
		fmt.Sscanf(seq, "%d", &n)
		if prev, seen := last[id]; seen && n != prev+1 {
			t.Fatalf("Writer %s: %d written after %d", id, n, prev)
		}
		last[id] = n
	}
}

func TestWriter_WritesBeforeOpenAreKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "early.log")
	w := New(path)

	_ = w.Write("a")
	_ = w.Write("b")

	if err := w.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	_ = w.Write("c")

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(b) != "abc" {
		t.Errorf("Expected %q, got %q", "abc", string(b))
	}
}

func TestWriter_Close(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.log")
	w := New(path)

	if err := w.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := w.Open(); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("Expected ErrAlreadyOpen, got %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}

	if err := w.WriteLine("late"); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := w.Open(); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed on reopen, got %v", err)
	}
}

func TestWriter_CloseWithoutOpen(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "never.log"))
	_ = w.Write("dropped")

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(w.Path()); !os.IsNotExist(err) {
		t.Errorf("Expected no file to be created, got %v", err)
	}
}

// flakyWriter fails its first failures writes, then forwards to w
type flakyWriter struct {
	w        io.Writer
	failures int
}

func (f *flakyWriter) Write(b []byte) (int, error) {
	if f.failures > 0 {
		f.failures--
		return 0, errors.New("disk full")
	}
	return f.w.Write(b)
}

func TestWriter_KeepsDrainingAfterWriteError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flaky.log")
	w := New(path, WithPopTimeout(10*time.Millisecond))

	if err := w.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	w.out = &flakyWriter{w: w.file, failures: 2}

	for i := 0; i < 5; i++ {
		if err := w.WriteLine(fmt.Sprintf("line %d", i)); err != nil {
			t.Fatalf("WriteLine %d failed: %v", i, err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for w.queue.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	select {
	case <-w.drain.Done():
		t.Fatal("Expected the drain task to survive a failed write")
	default:
	}
	if err := w.WriteLine("line 5"); err != nil {
		t.Fatalf("WriteLine after a failed write: %v", err)
	}

	err := w.Close()
	if !errors.Is(err, ErrWriteFailed) {
		t.Errorf("Expected ErrWriteFailed from Close, got %v", err)
	}
	if n := w.failed.Load(); n != 2 {
		t.Errorf("Expected 2 failed records, got %d", n)
	}

	lines := readLines(t, path)
	want := []string{"line 2", "line 3", "line 4", "line 5"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("Expected %v, got %v", want, lines)
	}
}

func TestWriter_RejectsWritesOnceDrainStopped(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "stopped.log"), WithPopTimeout(10*time.Millisecond))

	if err := w.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	_ = w.drain.Stop()

	if err := w.WriteLine("lost"); !errors.Is(err, ErrDrainStopped) {
		t.Errorf("Expected ErrDrainStopped, got %v", err)
	}
	if n := w.queue.Len(); n != 0 {
		t.Errorf("Expected a rejected record not to be queued, got %d queued", n)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestWriter_Channel(t *testing.T) {
	dir := t.TempDir()

	if w := New(filepath.Join(dir, "2024-06-01-12-00-00_gps.txt")); w.channel != "2024-06-01-12-00-00_gps.txt" {
		t.Errorf("Expected the file name as default channel, got %q", w.channel)
	}
	if w := New(filepath.Join(dir, "2024-06-01-12-00-00_gps.txt"), WithChannel("gps.txt")); w.channel != "gps.txt" {
		t.Errorf("Expected channel gps.txt, got %q", w.channel)
	}
}

func TestQueue(t *testing.T) {
	q := newQueue()

	if _, ok := q.TryPop(); ok {
		t.Fatal("Expected empty queue")
	}

	in := []string{"3", "1", "2"}
	for _, s := range in {
		q.Push(s)
	}
	if q.Len() != 3 {
		t.Errorf("Expected length 3, got %d", q.Len())
	}

	var out []string
	for {
		s, ok := q.Pop(context.Background(), time.Millisecond)
		if !ok {
			break
		}
		out = append(out, s)
	}
	if strings.Join(out, "") != "312" {
		t.Errorf("Expected FIFO order 312, got %v", out)
	}

	// Pop wakes up for an item pushed while it waits
	go func() {
		time.Sleep(5 * time.Millisecond)
		q.Push("late")
	}()
	if s, ok := q.Pop(context.Background(), time.Second); !ok || s != "late" {
		t.Errorf("Expected late item, got %q (ok=%v)", s, ok)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if _, ok := q.Pop(ctx, time.Second); ok {
		t.Error("Expected no item from a cancelled pop")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Expected a cancelled pop to return immediately")
	}
}
