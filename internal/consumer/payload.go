package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roman-kulish/pingu-sat/internal/radio"
	"github.com/roman-kulish/pingu-sat/internal/sensor"
	"github.com/roman-kulish/pingu-sat/internal/task"
)

const (
	// DefaultSampleInterval is the pause after each payload sample
	DefaultSampleInterval = 10 * time.Second

	// SamplesPerPacket is the number of samples batched into one payload packet
	SamplesPerPacket = 2

	// MissingField replaces a value whose reading is absent
	MissingField = " "
)

// PayloadOption configures a Payload consumer
type PayloadOption func(p *Payload)

// WithPayloadLogger sets the logger for the payload consumer
func WithPayloadLogger(logger *slog.Logger) PayloadOption {
	return func(p *Payload) {
		p.logger = logger.With(slog.String("consumer", "payload"))
	}
}

// WithSampleInterval sets the pause after each sample
func WithSampleInterval(d time.Duration) PayloadOption {
	return func(p *Payload) {
		p.interval = d
	}
}

// WithPayloadNames sets the sensor names read by the consumer
func WithPayloadNames(names Names) PayloadOption {
	return func(p *Payload) {
		p.names = names.withDefaults()
	}
}

// Sample is one set of payload values
type Sample struct {
	Pressure            *float64
	ExternalTemperature *float64
	Altitude            *float64
}

// Payload packs two samples into one science packet per Update:
//
//	00042;pressure,t_external,alt;pressure,t_external,alt
type Payload struct {
	sensors  Snapshotter
	sink     radio.Sink
	names    Names
	interval time.Duration

	counter int

	logger *slog.Logger
}

// NewPayload creates a payload consumer reading sensors and sending to sink
func NewPayload(sensors Snapshotter, sink radio.Sink, options ...PayloadOption) *Payload {
	p := Payload{
		sensors:  sensors,
		sink:     sink,
		names:    DefaultNames,
		interval: DefaultSampleInterval,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&p)
	}

	return &p
}

func (p *Payload) Setup(context.Context) error {
	p.counter = 0
	return nil
}

// Update blocks for SamplesPerPacket sample intervals, then sends one packet
func (p *Payload) Update(ctx context.Context) error {
	samples := make([]string, 0, SamplesPerPacket)
	for len(samples) < SamplesPerPacket {
		samples = append(samples, FormatSample(SampleFrom(p.sensors.Snapshot(), p.names)))
		if err := task.Sleep(ctx, p.interval); err != nil {
			return err
		}
	}

	record := FormatRecord(p.counter, samples...)
	if err := p.sink.SendData(ctx, []byte(record)); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return err
		}
		p.logger.Warn(fmt.Sprintf("payload packet %d not sent: %s", p.counter, err.Error()))
	} else {
		p.logger.Info("payload packet sent", slog.Int("counter", p.counter))
	}

	p.counter++
	return nil
}

func (p *Payload) Teardown() error {
	return nil
}

// Counter returns the number of the next packet
func (p *Payload) Counter() int {
	return p.counter
}

// SampleFrom extracts the payload values from snap
func SampleFrom(snap sensor.Snapshot, names Names) Sample {
	return Sample{
		Pressure:            pressureOf(snap, names.Pressure),
		ExternalTemperature: floatOf(snap, names.ExternalTemperature),
		Altitude:            fixOf(snap, names.GPS).Altitude,
	}
}

// FormatSample renders a sample as pressure,t_external,alt with fixed widths.
// An absent value becomes a single space.
func FormatSample(s Sample) string {
	return strings.Join([]string{
		formatField(s.Pressure, "%09.4f"),
		formatField(s.ExternalTemperature, "%+08.3f"),
		formatField(s.Altitude, "%08.2f"),
	}, ",")
}

// FormatRecord joins the zero padded counter and samples with ';'
func FormatRecord(counter int, samples ...string) string {
	return strings.Join(append([]string{fmt.Sprintf("%05d", counter)}, samples...), ";")
}

func formatField(v *float64, format string) string {
	if v == nil {
		return MissingField
	}
	return fmt.Sprintf(format, *v)
}
