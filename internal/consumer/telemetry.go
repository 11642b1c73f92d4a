package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roman-kulish/pingu-sat/internal/radio"
	"github.com/roman-kulish/pingu-sat/internal/sensor"
	"github.com/roman-kulish/pingu-sat/internal/task"
)

// DefaultTelemetryInterval is the pause after each telemetry packet
const DefaultTelemetryInterval = 20 * time.Second

// TelemetryOption configures a Telemetry consumer
type TelemetryOption func(t *Telemetry)

// WithTelemetryLogger sets the logger for the telemetry consumer
func WithTelemetryLogger(logger *slog.Logger) TelemetryOption {
	return func(t *Telemetry) {
		t.logger = logger.With(slog.String("consumer", "telemetry"))
	}
}

// WithTelemetryInterval sets the pause after each packet
func WithTelemetryInterval(d time.Duration) TelemetryOption {
	return func(t *Telemetry) {
		t.interval = d
	}
}

// WithTelemetryNames sets the sensor names read by the consumer
func WithTelemetryNames(names Names) TelemetryOption {
	return func(t *Telemetry) {
		t.names = names.withDefaults()
	}
}

// WithTelemetryClock replaces time.Now
func WithTelemetryClock(clock Clock) TelemetryOption {
	return func(t *Telemetry) {
		t.clock = clock
	}
}

// Telemetry sends a housekeeping packet built from the latest readings
type Telemetry struct {
	sensors  Snapshotter
	sink     radio.Sink
	names    Names
	interval time.Duration
	clock    Clock

	sequence int

	logger *slog.Logger
}

// NewTelemetry creates a telemetry consumer reading sensors and sending to sink
func NewTelemetry(sensors Snapshotter, sink radio.Sink, options ...TelemetryOption) *Telemetry {
	t := Telemetry{
		sensors:  sensors,
		sink:     sink,
		names:    DefaultNames,
		interval: DefaultTelemetryInterval,
		clock:    time.Now,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&t)
	}

	return &t
}

func (t *Telemetry) Setup(context.Context) error {
	t.sequence = 0
	return nil
}

func (t *Telemetry) Update(ctx context.Context) error {
	packet := BuildTelemetry(t.sensors.Snapshot(), t.names, t.clock())
	packet.Sequence = t.sequence

	if err := t.sink.SendTelemetry(ctx, packet); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return err
		}
		t.logger.Warn(fmt.Sprintf("telemetry packet %d not sent: %s", packet.Sequence, err.Error()))
	} else {
		t.logger.Info("telemetry packet sent", slog.Int("sequence", packet.Sequence))
	}

	t.sequence++
	return task.Sleep(ctx, t.interval)
}

func (t *Telemetry) Teardown() error {
	return nil
}

// Sequence returns the number of the next packet
func (t *Telemetry) Sequence() int {
	return t.sequence
}

// BuildTelemetry assembles a telemetry packet from snap. Absent readings leave
// the corresponding fields nil.
func BuildTelemetry(snap sensor.Snapshot, names Names, now time.Time) *radio.Telemetry {
	fix := fixOf(snap, names.GPS)

	return &radio.Telemetry{
		Time:                now,
		Latitude:            fix.Latitude,
		Longitude:           fix.Longitude,
		HDOP:                fix.HDOP,
		Altitude:            fix.Altitude,
		InternalTemperature: floatOf(snap, names.InternalTemperature),
		ExternalTemperature: floatOf(snap, names.ExternalTemperature),
		Pressure:            pressureOf(snap, names.Pressure),
	}
}
