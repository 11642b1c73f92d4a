package radio

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/roman-kulish/pingu-sat/internal/metrics"
)

// LogLink writes packets to a logger instead of a radio, for bench runs
type LogLink struct {
	open   atomic.Bool
	logger *slog.Logger
}

// NewLogLink creates a LogLink. A nil logger discards packets.
func NewLogLink(logger *slog.Logger) *LogLink {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LogLink{logger: logger.With(slog.String("radio", "log"))}
}

func (l *LogLink) Open(context.Context) error {
	l.open.Store(true)
	return nil
}

func (l *LogLink) Close() error {
	l.open.Store(false)
	return nil
}

func (l *LogLink) SendData(_ context.Context, data []byte) error {
	if !l.open.Load() {
		metrics.RadioPackets.WithLabelValues("payload", "failed").Inc()
		return ErrNotOpen
	}

	metrics.RadioPackets.WithLabelValues("payload", "sent").Inc()
	l.logger.Info("payload packet", slog.String("data", string(data)))
	return nil
}

func (l *LogLink) SendTelemetry(_ context.Context, t *Telemetry) error {
	if !l.open.Load() {
		metrics.RadioPackets.WithLabelValues("telemetry", "failed").Inc()
		return ErrNotOpen
	}

	metrics.RadioPackets.WithLabelValues("telemetry", "sent").Inc()
	l.logger.Info("telemetry packet", slog.Int("sequence", t.Sequence), slog.String("fields", t.Fields()))
	return nil
}
