package app

import (
	"context"
	"errors"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roman-kulish/pingu-sat/internal/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newArchive(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "flight.sqlite")
	store := storage.NewSqliteStore(path)
	defer store.Close()

	ctx := context.Background()
	if _, err := store.CreateSession(ctx, "empty-flight", nil); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	id, err := store.CreateSession(ctx, "bench-flight", nil)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		readings := []storage.Reading{
			{Sensor: "t_internal", Field: "value", Value: float(20 + float64(i))},
			{Sensor: "gps", Field: "sentence", Raw: text("No GPS")},
		}
		if err = store.StoreReadings(ctx, id, t0.Add(time.Duration(i)*time.Second), readings); err != nil {
			t.Fatalf("StoreReadings failed: %v", err)
		}
	}
	return path
}

func TestRun(t *testing.T) {
	config := NewConfig()
	config.DBPath = newArchive(t)
	config.OutputFile = filepath.Join(t.TempDir(), "plot.png")

	if err := Run(context.Background(), config, discard); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	f, err := os.Open(config.OutputFile)
	if err != nil {
		t.Fatalf("Expected an image to be written: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Decoding image failed: %v", err)
	}
	if img.Bounds().Dx() < defaultMinPlotWidth {
		t.Errorf("Expected the image to be at least %d wide, got %d", defaultMinPlotWidth, img.Bounds().Dx())
	}
}

func TestRun_Errors(t *testing.T) {
	db := newArchive(t)

	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr error
	}{
		{"missing database", func(c *Config) { c.DBPath = filepath.Join(t.TempDir(), "nope.sqlite") }, os.ErrNotExist},
		{"unknown session", func(c *Config) { c.SessionID = 42 }, ErrNoSession},
		{"session without readings", func(c *Config) { c.SessionID = 1 }, ErrNoData},
		{"unknown sensor", func(c *Config) { c.Sensor = "geiger" }, ErrNoData},
		{"text sensor", func(c *Config) { c.Sensor = "gps" }, ErrNoData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewConfig()
			config.DBPath = db
			config.OutputFile = filepath.Join(t.TempDir(), "plot.png")
			tt.modify(config)

			err := Run(context.Background(), config, discard)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfig_Apply(t *testing.T) {
	c := NewConfig()
	c.DBPath = "flight.sqlite"
	c.OutputFile = "plot"

	if err := c.apply("JPEG", "thermal", "UTC"); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if c.Format != ImageJPEG || c.Theme != ThermalTheme || c.OutputFile != "plot.jpeg" {
		t.Errorf("Unexpected config %+v", c)
	}
	if c.TimeZone != time.UTC {
		t.Errorf("Expected UTC, got %s", c.TimeZone)
	}

	invalid := []struct {
		name                string
		format, theme, zone string
	}{
		{"format", "gif", "classic", "UTC"},
		{"theme", "png", "jungle", "UTC"},
		{"zone", "png", "classic", "Mars/Olympus"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConfig()
			c.DBPath = "flight.sqlite"
			c.OutputFile = "plot"
			if err := c.apply(tt.format, tt.theme, tt.zone); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}
