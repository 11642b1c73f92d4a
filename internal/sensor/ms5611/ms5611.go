package ms5611

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/roman-kulish/pingu-sat/internal/metrics"
	"github.com/roman-kulish/pingu-sat/internal/sensor"
	"github.com/roman-kulish/pingu-sat/internal/sensor/driver"
	"github.com/roman-kulish/pingu-sat/internal/task"
)

const (
	Device = "ms5611"

	// DefaultAddress of the sensor on the I2C bus
	DefaultAddress = 0x77

	// DefaultBackoff is the pause after a failed read
	DefaultBackoff = time.Second

	cmdReset     = 0x1E
	cmdConvertD1 = 0x48 // pressure, OSR 4096
	cmdConvertD2 = 0x58 // temperature, OSR 4096
	cmdADCRead   = 0x00

	conversionTime = 10 * time.Millisecond
)

// promAddresses holds the PROM addresses of the calibration coefficients C1..C6
var promAddresses = [6]byte{0xA2, 0xA4, 0xA6, 0xA8, 0xAA, 0xAC}

// Conn is the register-level connection to the sensor; *i2c.Dev implements it
type Conn interface {
	Tx(w, r []byte) error
}

// Calibration holds the factory coefficients C1..C6
type Calibration [6]uint16

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

// WithConn replaces the I2C bus with conn; Setup then does not open a bus
func WithConn(conn Conn) func(s *Sensor) {
	return func(s *Sensor) {
		s.conn = conn
	}
}

// Sensor reads an MS5611 barometer over I2C
type Sensor struct {
	name    string
	busName string
	address uint16
	backoff time.Duration

	bus         i2c.BusCloser
	conn        Conn
	calibration Calibration
	reading     sensor.Slot[sensor.Pressure]

	logger *slog.Logger
}

// New creates an MS5611 sensor on the named I2C bus ("" selects the first bus)
func New(name, busName string, address uint16, options ...func(s *Sensor)) *Sensor {
	if address == 0 {
		address = DefaultAddress
	}

	s := Sensor{
		name:    name,
		busName: busName,
		address: address,
		backoff: DefaultBackoff,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Setup opens the bus, resets the sensor and reads the calibration PROM
func (s *Sensor) Setup(context.Context) error {
	if s.conn == nil {
		if _, err := host.Init(); err != nil {
			return driver.NewRuntimeError("initializing host drivers", err)
		}

		bus, err := i2creg.Open(s.busName)
		if err != nil {
			return driver.NewRuntimeError(fmt.Sprintf("opening i2c bus %q", s.busName), err)
		}

		s.bus = bus
		s.conn = &i2c.Dev{Bus: bus, Addr: s.address}
	}

	if err := s.conn.Tx([]byte{cmdReset}, nil); err != nil {
		return driver.NewRuntimeError("resetting sensor", err)
	}
	time.Sleep(3 * time.Millisecond)

	calibration, err := readCalibration(s.conn)
	if err != nil {
		return err
	}

	s.calibration = calibration
	s.logger.Info("pressure sensor started", slog.String("bus", s.busName), slog.Int("address", int(s.address)))
	return nil
}

func (s *Sensor) Update(ctx context.Context) error {
	d1, err := convert(s.conn, cmdConvertD1)
	if err == nil {
		var d2 uint32
		if d2, err = convert(s.conn, cmdConvertD2); err == nil {
			temperature, pressure := Compensate(s.calibration, d1, d2)
			s.reading.Store(sensor.Pressure{Temperature: temperature, Pressure: pressure})
			metrics.SensorUpdates.WithLabelValues(s.name, "ok").Inc()
			return nil
		}
	}

	s.reading.Clear()
	metrics.SensorUpdates.WithLabelValues(s.name, "absent").Inc()
	s.logger.Info(fmt.Sprintf("pressure read failed: %s", err.Error()))
	return task.Sleep(ctx, s.backoff)
}

func (s *Sensor) Teardown() error {
	s.reading.Clear()
	if s.bus == nil {
		return nil
	}
	if err := s.bus.Close(); err != nil {
		return fmt.Errorf("closing i2c bus: %w", err)
	}
	s.logger.Info("pressure sensor shut down")
	return nil
}

// Data returns the latest sensor.Pressure, nil when absent
func (s *Sensor) Data() sensor.Reading {
	return s.reading.Reading()
}

func readCalibration(conn Conn) (Calibration, error) {
	var c Calibration
	buf := make([]byte, 2)
	for i, addr := range promAddresses {
		if err := conn.Tx([]byte{addr}, buf); err != nil {
			return c, driver.NewRuntimeError(fmt.Sprintf("reading PROM 0x%02X", addr), err)
		}
		c[i] = uint16(buf[0])<<8 | uint16(buf[1])
	}
	return c, nil
}

// convert starts a conversion and reads the 24-bit result
func convert(conn Conn, cmd byte) (uint32, error) {
	if err := conn.Tx([]byte{cmd}, nil); err != nil {
		return 0, driver.NewRuntimeError(fmt.Sprintf("starting conversion 0x%02X", cmd), err)
	}
	time.Sleep(conversionTime)

	buf := make([]byte, 3)
	if err := conn.Tx([]byte{cmdADCRead}, buf); err != nil {
		return 0, driver.NewRuntimeError("reading ADC", err)
	}
	return uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2]), nil
}

// Compensate applies the first-order datasheet compensation to the raw pressure
// (d1) and temperature (d2) values. It returns degrees Celsius and mbar.
func Compensate(c Calibration, d1, d2 uint32) (temperature, pressure float64) {
	dT := float64(d2) - float64(c[4])*(1<<8)
	temp := 2000 + dT*float64(c[5])/(1<<23)

	off := float64(c[1])*(1<<16) + float64(c[3])*dT/(1<<7)
	sens := float64(c[0])*(1<<15) + float64(c[2])*dT/(1<<8)
	p := (float64(d1)*sens/(1<<21) - off) / (1 << 15)

	return temp / 100, p / 100
}
