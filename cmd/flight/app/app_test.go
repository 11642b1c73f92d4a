package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRun_NoConsumers(t *testing.T) {
	config := &Config{Storage: StorageConfig{DataDirectory: t.TempDir()}}

	err := Run(context.Background(), config, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil || !strings.Contains(err.Error(), "no consumers") {
		t.Errorf("Expected a no consumers error, got %v", err)
	}
}

func TestRun_BenchFlight(t *testing.T) {
	dir := t.TempDir()
	config := &Config{
		Radio: RadioConfig{Type: RadioLog},
		Consumers: ConsumersConfig{
			Telemetry: DutyConfig{Enabled: true, Interval: Duration(10 * time.Millisecond)},
			Recorder:  DutyConfig{Enabled: true, Interval: Duration(10 * time.Millisecond)},
			Archive:   DutyConfig{Enabled: true, Interval: Duration(10 * time.Millisecond)},
		},
		Storage: StorageConfig{DataDirectory: dir},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := Run(ctx, config, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}

	var env, gps, archive bool
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, "_environment.txt"):
			env = true
		case strings.HasSuffix(name, "_gps.txt"):
			gps = true
			b, _ := os.ReadFile(filepath.Join(dir, name))
			if !strings.HasPrefix(string(b), "No GPS\n") {
				t.Errorf("Expected the GPS file to record missing fixes, got %q", b)
			}
		case strings.HasSuffix(name, ".sqlite"):
			archive = true
		}
	}

	if !env || !gps || !archive {
		t.Errorf("Expected environment, gps and archive files, got %v", entries)
	}
}

func TestRun_RadioUnavailable(t *testing.T) {
	dir := t.TempDir()
	config := &Config{
		Radio: RadioConfig{Type: RadioSerial, Port: filepath.Join(dir, "ttyRADIO")},
		Consumers: ConsumersConfig{
			Telemetry: DutyConfig{Enabled: true, Interval: Duration(10 * time.Millisecond)},
			Recorder:  DutyConfig{Enabled: true, Interval: Duration(10 * time.Millisecond)},
		},
		Storage: StorageConfig{DataDirectory: dir},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := Run(ctx, config, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("Expected the flight to run without its radio, got %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*_environment.txt"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("Expected one environment file, got %v (%v)", matches, err)
	}
	b, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(b) == 0 {
		t.Error("Expected the recorder to write without a radio")
	}
}
