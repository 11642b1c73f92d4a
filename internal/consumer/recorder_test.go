package consumer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/pingu-sat/internal/sensor"
	"github.com/roman-kulish/pingu-sat/internal/sensor/gps"
	"github.com/roman-kulish/pingu-sat/internal/task"
)

func readFile(t *testing.T, path string) []string {
	t.Helper()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
}

func TestEnvironmentChannel(t *testing.T) {
	ch := EnvironmentChannel(DefaultNames)
	now := time.Unix(1717243200, 123456000)

	got := ch.Format(flightSnapshot().Snapshot(), now)
	if want := "1717243200.123456,-5.25,21.5,(19.5, 1013.25)"; got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	got = ch.Format(fixedSnapshot{}.Snapshot(), now)
	if want := "1717243200.123456,,,"; got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestGPSChannel(t *testing.T) {
	ch := GPSChannel(DefaultNames)

	if got := ch.Format(flightSnapshot().Snapshot(), time.Now()); got != ggaMunich {
		t.Errorf("Expected %q, got %q", ggaMunich, got)
	}
	if got := ch.Format(fixedSnapshot{"gps": nil}.Snapshot(), time.Now()); got != gps.NoFix {
		t.Errorf("Expected %q, got %q", gps.NoFix, got)
	}
}

func TestRecorder_Files(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	r := NewRecorder(flightSnapshot(), dir,
		[]Channel{EnvironmentChannel(DefaultNames), GPSChannel(DefaultNames)},
		WithRecordInterval(0),
		WithRecorderClock(ticker(start, time.Second)),
	)

	ctx := context.Background()
	if err := r.Setup(ctx); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	paths := r.Paths()
	wantNames := []string{"2024-06-01-12-00-00_environment.txt", "2024-06-01-12-00-00_gps.txt"}
	for i, p := range paths {
		if filepath.Base(p) != wantNames[i] {
			t.Errorf("Expected file %s, got %s", wantNames[i], filepath.Base(p))
		}
	}

	for i := 0; i < 3; i++ {
		if err := r.Update(ctx); err != nil {
			t.Fatalf("Update %d failed: %v", i, err)
		}
	}
	if err := r.Teardown(); err != nil {
		t.Fatalf("Teardown failed: %v", err)
	}

	env := readFile(t, paths[0])
	if len(env) != 3 {
		t.Fatalf("Expected 3 environment lines, got %d", len(env))
	}
	if !strings.HasPrefix(env[2], fmt.Sprintf("%d.000000,", start.Add(3*time.Second).Unix())) {
		t.Errorf("Unexpected timestamp in %q", env[2])
	}

	for _, line := range readFile(t, paths[1]) {
		if line != ggaMunich {
			t.Errorf("Expected %q, got %q", ggaMunich, line)
		}
	}
}

func TestRecorder_SetupFailure(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRecorder(fixedSnapshot{}, file, []Channel{GPSChannel(DefaultNames)})
	if err := r.Setup(context.Background()); err == nil {
		t.Error("Expected setup to fail when the data directory is a file")
	}

	r = NewRecorder(fixedSnapshot{}, t.TempDir(), nil)
	if err := r.Setup(context.Background()); err == nil {
		t.Error("Expected setup to fail without channels")
	}
}

// Three sensors publish fixed sequences; the recorder runs exactly five
// cycles and its file holds one formatted snapshot per cycle.
func TestRecorder_EndToEnd(t *testing.T) {
	registry := sensor.NewRegistry()
	sources := map[string]*sequenceSource{
		"a": {values: []sensor.Reading{1.0, 2.0, 3.0, 4.0, 5.0}},
		"b": {values: []sensor.Reading{"x", "y", nil, "z", "w"}},
		"c": {values: []sensor.Reading{sensor.Pressure{Temperature: 20, Pressure: 1000}, nil}},
	}
	for _, name := range []string{"a", "b", "c"} {
		if err := registry.Register(name, sources[name]); err != nil {
			t.Fatalf("Register %s failed: %v", name, err)
		}
	}

	start := time.Unix(1700000000, 0)
	recorder := NewRecorder(registry, t.TempDir(),
		[]Channel{SnapshotChannel("e2e.txt", "a", "b", "c")},
		WithRecordInterval(time.Millisecond),
		WithRecorderClock(ticker(start, time.Second)),
	)

	const cycles = 5
	var n int
	cycle := func(ctx context.Context) error {
		for _, name := range registry.Names() {
			src, _ := registry.Source(name)
			if err := src.Update(ctx); err != nil {
				return err
			}
		}
		if err := recorder.Update(ctx); err != nil {
			return err
		}
		if n++; n == cycles {
			return task.ErrStop
		}
		return nil
	}

	tk := task.New("e2e", cycle, nil, task.WithSetup(recorder.Setup), task.WithTeardown(recorder.Teardown))

	// the clock is read once by Setup, then once per cycle
	path := filepath.Join(recorder.dir, start.Format(FilenameTimeFormat)+"_e2e.txt")

	if err := tk.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	select {
	case <-tk.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Task did not finish")
	}
	if err := tk.Err(); err != nil {
		t.Fatalf("Task failed: %v", err)
	}

	want := []string{
		"1700000001.000000,1,x,(20, 1000)",
		"1700000002.000000,2,y,",
		"1700000003.000000,3,,(20, 1000)",
		"1700000004.000000,4,z,",
		"1700000005.000000,5,w,(20, 1000)",
	}

	got := readFile(t, path)
	if len(got) != len(want) {
		t.Fatalf("Expected %d lines, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Line %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}
