package radio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/roman-kulish/pingu-sat/internal/metrics"
	"github.com/roman-kulish/pingu-sat/internal/sensor/driver"
)

const (
	// DefaultBaudRate of the radio modem
	DefaultBaudRate = 38400

	DefaultCallsign = "PINGUSAT"
	DefaultAddress  = 0x53

	kindData      = 'D'
	kindTelemetry = 'T'
)

// WithSerialLogger sets the logger for the serial link
func WithSerialLogger(logger *slog.Logger) func(l *SerialLink) {
	return func(l *SerialLink) {
		l.logger = logger.With(slog.String("radio", "serial"))
	}
}

// WithCallsign sets the callsign and address written into every frame
func WithCallsign(callsign string, address byte) func(l *SerialLink) {
	return func(l *SerialLink) {
		l.callsign = callsign
		l.address = address
	}
}

// WithPortOpener replaces the function opening the serial port
func WithPortOpener(open func() (io.WriteCloser, error)) func(l *SerialLink) {
	return func(l *SerialLink) {
		l.open = open
	}
}

// SerialLink sends ASCII frames to a radio modem on a serial port:
//
//	CALLSIGN,AA,K,body*CS
//
// where AA is the hex address, K the packet kind (D data, T telemetry) and CS
// the XOR checksum of everything between the start and '*'.
type SerialLink struct {
	config   driver.SerialConfig
	callsign string
	address  byte

	open func() (io.WriteCloser, error)

	mu   sync.Mutex
	port io.WriteCloser

	logger *slog.Logger
}

// NewSerialLink creates a link on the serial port described by config
func NewSerialLink(config driver.SerialConfig, options ...func(l *SerialLink)) *SerialLink {
	if config.BaudRate == 0 {
		config.BaudRate = DefaultBaudRate
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = driver.DefaultReadTimeout
	}

	l := SerialLink{
		config:   config,
		callsign: DefaultCallsign,
		address:  DefaultAddress,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	l.open = func() (io.WriteCloser, error) {
		return driver.OpenSerial(&l.config)
	}

	for _, option := range options {
		option(&l)
	}

	return &l
}

func (l *SerialLink) Open(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port != nil {
		return nil
	}

	port, err := l.open()
	if err != nil {
		return fmt.Errorf("opening radio: %w", err)
	}

	l.port = port
	l.logger.Info("radio link opened",
		slog.String("port", l.config.Port),
		slog.String("callsign", l.callsign),
		slog.String("address", fmt.Sprintf("0x%02X", l.address)))
	return nil
}

func (l *SerialLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		return nil
	}

	err := l.port.Close()
	l.port = nil
	if err != nil {
		return fmt.Errorf("closing radio: %w", err)
	}

	l.logger.Info("radio link closed")
	return nil
}

func (l *SerialLink) SendData(ctx context.Context, data []byte) error {
	if len(data) > MaxPacketSize {
		metrics.RadioPackets.WithLabelValues("payload", "failed").Inc()
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	return l.send(ctx, "payload", Frame(l.callsign, l.address, kindData, string(data)))
}

func (l *SerialLink) SendTelemetry(ctx context.Context, t *Telemetry) error {
	return l.send(ctx, "telemetry", Frame(l.callsign, l.address, kindTelemetry, t.Fields()))
}

func (l *SerialLink) send(ctx context.Context, kind, frame string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		metrics.RadioPackets.WithLabelValues(kind, "failed").Inc()
		return ErrNotOpen
	}

	if _, err := io.WriteString(l.port, frame); err != nil {
		metrics.RadioPackets.WithLabelValues(kind, "failed").Inc()
		return fmt.Errorf("writing %s frame: %w", kind, err)
	}

	metrics.RadioPackets.WithLabelValues(kind, "sent").Inc()
	l.logger.Debug("frame sent", slog.String("kind", kind), slog.Int("size", len(frame)))
	return nil
}

// Frame builds one newline terminated radio frame
func Frame(callsign string, address byte, kind byte, body string) string {
	head := fmt.Sprintf("%s,%02X,%c,%s", callsign, address, kind, strings.TrimRight(body, "\r\n"))
	return fmt.Sprintf("%s*%02X\n", head, Checksum(head))
}

// Checksum is the XOR of all bytes of s
func Checksum(s string) byte {
	var cs byte
	for i := 0; i < len(s); i++ {
		cs ^= s[i]
	}
	return cs
}
