package gps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roman-kulish/pingu-sat/internal/metrics"
	"github.com/roman-kulish/pingu-sat/internal/sensor"
	"github.com/roman-kulish/pingu-sat/internal/sensor/driver"
	"github.com/roman-kulish/pingu-sat/internal/task"
)

const (
	Device = "gps"

	// DefaultBaudRate of the GPS receiver
	DefaultBaudRate = 9600

	// DefaultBackoff is the pause after a failed read
	DefaultBackoff = 5 * time.Second

	sentenceType = "GGA"
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

// WithAirborne switches the receiver to the airborne dynamic model on setup
func WithAirborne(enabled bool) func(s *Sensor) {
	return func(s *Sensor) {
		s.airborne = enabled
	}
}

// WithOpener replaces the function opening the serial port
func WithOpener(open func() (io.ReadWriteCloser, error)) func(s *Sensor) {
	return func(s *Sensor) {
		s.open = open
	}
}

// Sensor reads NMEA sentences from a serial GPS receiver and publishes the
// latest GGA sentence verbatim.
type Sensor struct {
	name     string
	config   driver.SerialConfig
	backoff  time.Duration
	airborne bool

	open    func() (io.ReadWriteCloser, error)
	port    io.ReadWriteCloser
	lines   *driver.LineReader
	reading sensor.Slot[string]

	logger *slog.Logger
}

// New creates a GPS sensor reading from the serial port described by config
func New(name string, config driver.SerialConfig, options ...func(s *Sensor)) *Sensor {
	if config.BaudRate == 0 {
		config.BaudRate = DefaultBaudRate
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = driver.DefaultReadTimeout
	}

	s := Sensor{
		name:    name,
		config:  config,
		backoff: DefaultBackoff,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	s.open = func() (io.ReadWriteCloser, error) {
		return driver.OpenSerial(&s.config)
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

func (s *Sensor) Setup(context.Context) error {
	port, err := s.open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", Device, err)
	}

	if s.airborne {
		if err = SetAirborne(port); err != nil {
			_ = port.Close()
			return err
		}
		s.logger.Info("gps receiver set to airborne mode")
	}

	s.port = port
	s.lines = driver.NewLineReader(port)
	s.logger.Info("gps sensor started", slog.String("port", s.config.Port))
	return nil
}

// Update reads lines until a GGA sentence arrives or the read times out
func (s *Sensor) Update(ctx context.Context) error {
	sentence, err := s.read(ctx)
	if err != nil {
		s.reading.Clear()
		metrics.SensorUpdates.WithLabelValues(s.name, "absent").Inc()

		if errors.Is(err, context.Canceled) {
			return nil
		}

		s.logger.Info(fmt.Sprintf("gps read failed: %s", err.Error()))
		return task.Sleep(ctx, s.backoff)
	}

	s.reading.Store(sentence)
	metrics.SensorUpdates.WithLabelValues(s.name, "ok").Inc()
	return nil
}

func (s *Sensor) read(ctx context.Context) (string, error) {
	for ctx.Err() == nil {
		line, err := s.lines.ReadLine(s.config.ReadTimeout)
		if err != nil {
			return "", err
		}

		if IsSentence(line, sentenceType) {
			return strings.TrimSpace(line), nil
		}
	}

	return "", ctx.Err()
}

func (s *Sensor) Teardown() error {
	s.reading.Clear()
	if s.port == nil {
		return nil
	}
	if err := s.port.Close(); err != nil {
		return fmt.Errorf("closing %s port: %w", Device, err)
	}
	s.logger.Info("gps sensor shut down")
	return nil
}

// Data returns the latest GGA sentence as a string, nil when absent
func (s *Sensor) Data() sensor.Reading {
	return s.reading.Reading()
}

// IsSentence reports whether line is an NMEA sentence of the given type,
// regardless of the talker ID ($GPGGA, $GNGGA, ...)
func IsSentence(line, sentence string) bool {
	if len(line) < 6 || line[0] != '$' {
		return false
	}
	return line[3:6] == sentence
}
