package ds18b20

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/roman-kulish/pingu-sat/internal/metrics"
	"github.com/roman-kulish/pingu-sat/internal/sensor"
	"github.com/roman-kulish/pingu-sat/internal/task"
)

const (
	Device = "ds18b20"

	// DefaultBackoff is the pause after a failed read
	DefaultBackoff = time.Second
)

var (
	// ErrCRC is returned when the one-wire driver reports a CRC mismatch
	ErrCRC = errors.New("crc check failed")

	// ErrMalformed is returned when the w1_slave file does not contain a temperature
	ErrMalformed = errors.New("malformed w1_slave content")
)

// WithLogger sets the logger for the sensor
func WithLogger(logger *slog.Logger) func(s *Sensor) {
	return func(s *Sensor) {
		s.logger = logger.With(slog.String("sensor", s.name))
	}
}

// WithBackoff sets the pause after a failed read
func WithBackoff(d time.Duration) func(s *Sensor) {
	return func(s *Sensor) {
		s.backoff = d
	}
}

// Sensor reads a DS18B20 one-wire thermometer through the kernel w1_slave file.
// The kernel refreshes the file on every read, so there is no handle to hold.
type Sensor struct {
	name    string
	path    string
	backoff time.Duration

	reading sensor.Slot[float64]
	logger  *slog.Logger
}

// New creates a DS18B20 sensor reading from path, e.g.
// /sys/bus/w1/devices/28-00000de90790/w1_slave
func New(name, path string, options ...func(s *Sensor)) *Sensor {
	s := Sensor{
		name:    name,
		path:    path,
		backoff: DefaultBackoff,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

func (s *Sensor) Setup(context.Context) error {
	s.logger.Info("temperature sensor started", slog.String("path", s.path))
	return nil
}

func (s *Sensor) Update(ctx context.Context) error {
	temperature, err := ReadFile(s.path)
	if err != nil {
		s.reading.Clear()
		metrics.SensorUpdates.WithLabelValues(s.name, "absent").Inc()
		s.logger.Info(fmt.Sprintf("temperature read failed: %s", err.Error()))
		return task.Sleep(ctx, s.backoff)
	}

	s.reading.Store(temperature)
	metrics.SensorUpdates.WithLabelValues(s.name, "ok").Inc()
	return nil
}

func (s *Sensor) Teardown() error {
	s.reading.Clear()
	s.logger.Info("temperature sensor shut down")
	return nil
}

// Data returns the latest temperature in degrees Celsius as float64, nil when absent
func (s *Sensor) Data() sensor.Reading {
	return s.reading.Reading()
}

// ReadFile reads and parses a w1_slave file
func ReadFile(path string) (float64, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(string(p))
}

// Parse decodes w1_slave content:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func Parse(content string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) < 2 {
		return 0, ErrMalformed
	}

	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, ErrCRC
	}

	i := strings.Index(lines[1], "t=")
	if i < 0 {
		return 0, ErrMalformed
	}

	milli, err := strconv.ParseInt(strings.TrimSpace(lines[1][i+2:]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return float64(milli) / 1000.0, nil
}
