package dht22

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MichaelS11/go-dht"

	"github.com/roman-kulish/pingu-sat/internal/metrics"
	"github.com/roman-kulish/pingu-sat/internal/sensor"
	"github.com/roman-kulish/pingu-sat/internal/sensor/driver"
	"github.com/roman-kulish/pingu-sat/internal/task"
)

const (
	Device = "dht22"

	// DefaultRetries is the number of read attempts per update
	DefaultRetries = 11

	// DefaultBackoff is the pause after a failed read
	DefaultBackoff = 2 * time.Second
)

// Reader performs one humidity/temperature measurement; *dht.DHT implements it
type Reader interface {
	ReadRetry(maxRetries int) (humidity float64, temperature float64, err error)
}

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

// WithReader replaces the GPIO device; Setup then does not touch the host
func WithReader(r Reader) func(s *Sensor) {
	return func(s *Sensor) {
		s.device = r
	}
}

// Sensor reads a DHT22 humidity/temperature sensor on a GPIO pin
type Sensor struct {
	name    string
	pin     string
	retries int
	backoff time.Duration

	device  Reader
	reading sensor.Slot[sensor.Humidity]

	logger *slog.Logger
}

// New creates a DHT22 sensor on the named GPIO pin, e.g. "GPIO4"
func New(name, pin string, options ...func(s *Sensor)) *Sensor {
	s := Sensor{
		name:    name,
		pin:     pin,
		retries: DefaultRetries,
		backoff: DefaultBackoff,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

func (s *Sensor) Setup(context.Context) error {
	if s.device != nil {
		return nil
	}

	if err := dht.HostInit(); err != nil {
		return driver.NewRuntimeError("initializing host", err)
	}

	d, err := dht.NewDHT(s.pin, dht.Celsius, "")
	if err != nil {
		return driver.NewRuntimeError(fmt.Sprintf("opening %s on %s", Device, s.pin), err)
	}

	s.device = d
	s.logger.Info("humidity sensor started", slog.String("pin", s.pin))
	return nil
}

func (s *Sensor) Update(ctx context.Context) error {
	humidity, temperature, err := s.device.ReadRetry(s.retries)
	if err != nil {
		s.reading.Clear()
		metrics.SensorUpdates.WithLabelValues(s.name, "absent").Inc()
		s.logger.Info(fmt.Sprintf("humidity read failed: %s", err.Error()))
		return task.Sleep(ctx, s.backoff)
	}

	s.reading.Store(sensor.Humidity{Humidity: humidity, Temperature: temperature})
	metrics.SensorUpdates.WithLabelValues(s.name, "ok").Inc()
	return nil
}

func (s *Sensor) Teardown() error {
	s.reading.Clear()
	return nil
}

// Data returns the latest sensor.Humidity, nil when absent
func (s *Sensor) Data() sensor.Reading {
	return s.reading.Reading()
}
