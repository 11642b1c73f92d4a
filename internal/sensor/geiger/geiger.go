package geiger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/roman-kulish/pingu-sat/internal/metrics"
	"github.com/roman-kulish/pingu-sat/internal/sensor"
	"github.com/roman-kulish/pingu-sat/internal/sensor/driver"
	"github.com/roman-kulish/pingu-sat/internal/task"
)

const (
	Device = "geiger"

	// DefaultBaudRate of the counter's serial output
	DefaultBaudRate = 9600

	// DefaultBackoff is the pause after a failed read
	DefaultBackoff = time.Second
)

// ErrMalformed is returned for lines not matching "CPS, n, CPM, n, uSv/hr, x, MODE"
var ErrMalformed = errors.New("malformed geiger line")

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

// WithWindow sets the number of CPS values summed per window
func WithWindow(size int) func(s *Sensor) {
	return func(s *Sensor) {
		s.window = size
	}
}

// WithOpener replaces the function opening the serial port
func WithOpener(open func() (io.ReadCloser, error)) func(s *Sensor) {
	return func(s *Sensor) {
		s.open = open
	}
}

// Sensor reads the Geiger counter's serial output. Every successful read
// publishes the counts together with the sum of the last completed window.
type Sensor struct {
	name    string
	config  driver.SerialConfig
	backoff time.Duration
	window  int

	open        func() (io.ReadCloser, error)
	port        io.ReadCloser
	lines       *driver.LineReader
	accumulator *sensor.Accumulator
	reading     sensor.Slot[sensor.Radiation]

	logger *slog.Logger
}

// New creates a Geiger counter sensor reading from the serial port described by config
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
		window:  sensor.DefaultWindow,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	s.open = func() (io.ReadCloser, error) {
		return driver.OpenSerial(&s.config)
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

func (s *Sensor) Setup(context.Context) error {
	acc, err := sensor.NewAccumulator(s.window)
	if err != nil {
		return driver.NewConfigError(err.Error())
	}

	port, err := s.open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", Device, err)
	}

	s.accumulator = acc
	s.port = port
	s.lines = driver.NewLineReader(port)
	s.logger.Info("geiger counter started", slog.String("port", s.config.Port))
	return nil
}

func (s *Sensor) Update(ctx context.Context) error {
	line, err := s.lines.ReadLine(s.config.ReadTimeout)
	if err == nil {
		var r sensor.Radiation
		if r, err = Parse(line); err == nil {
			s.accumulator.Push(r.CPS)
			r.WindowSum, r.WindowValid = s.accumulator.Sum()

			s.reading.Store(r)
			metrics.SensorUpdates.WithLabelValues(s.name, "ok").Inc()
			return nil
		}
	}

	s.reading.Clear()
	metrics.SensorUpdates.WithLabelValues(s.name, "absent").Inc()
	s.logger.Info(fmt.Sprintf("geiger read failed: %s", err.Error()))
	return task.Sleep(ctx, s.backoff)
}

func (s *Sensor) Teardown() error {
	s.reading.Clear()
	if s.port == nil {
		return nil
	}
	if err := s.port.Close(); err != nil {
		return fmt.Errorf("closing %s port: %w", Device, err)
	}
	s.logger.Info("geiger counter shut down")
	return nil
}

// Data returns the latest sensor.Radiation, nil when absent
func (s *Sensor) Data() sensor.Reading {
	return s.reading.Reading()
}

// Parse decodes a counter line of the form "CPS, 00012, CPM, 00720, uSv/hr, 004.10, SLOW"
func Parse(line string) (sensor.Radiation, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) < 7 {
		return sensor.Radiation{}, fmt.Errorf("%w: %d fields", ErrMalformed, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	if fields[0] != "CPS" || fields[2] != "CPM" {
		return sensor.Radiation{}, fmt.Errorf("%w: unexpected labels %q, %q", ErrMalformed, fields[0], fields[2])
	}

	cps, err := strconv.Atoi(fields[1])
	if err != nil {
		return sensor.Radiation{}, fmt.Errorf("%w: invalid CPS: %w", ErrMalformed, err)
	}

	cpm, err := strconv.Atoi(fields[3])
	if err != nil {
		return sensor.Radiation{}, fmt.Errorf("%w: invalid CPM: %w", ErrMalformed, err)
	}

	dose, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return sensor.Radiation{}, fmt.Errorf("%w: invalid dose: %w", ErrMalformed, err)
	}

	return sensor.Radiation{
		CPS:  cps,
		CPM:  cpm,
		Dose: dose,
		Mode: fields[6],
	}, nil
}
