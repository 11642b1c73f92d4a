package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pingusat"

var (
	SensorUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_updates_total",
			Help:      "Sensor update attempts by result (ok, absent).",
		},
		[]string{"sensor", "result"},
	)

	TaskIterations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_iterations_total",
			Help:      "Completed loop iterations of supervised tasks.",
		},
		[]string{"group", "task"},
	)

	TaskFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_failures_total",
			Help:      "Supervised tasks terminated by a fault.",
		},
		[]string{"group", "task"},
	)

	RadioPackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "radio_packets_total",
			Help:      "Radio packets by kind (telemetry, payload) and result (sent, failed).",
		},
		[]string{"kind", "result"},
	)

	OutfileBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outfile_bytes_total",
			Help:      "Bytes written by queued file writers.",
		},
		[]string{"channel"},
	)

	OutfileWriteErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outfile_write_errors_total",
			Help:      "Records queued file writers failed to write.",
		},
		[]string{"channel"},
	)
)

func init() {
	prometheus.MustRegister(SensorUpdates)
	prometheus.MustRegister(TaskIterations)
	prometheus.MustRegister(TaskFailures)
	prometheus.MustRegister(RadioPackets)
	prometheus.MustRegister(OutfileBytes)
	prometheus.MustRegister(OutfileWriteErrors)

	prometheus.MustRegister(collectors.NewBuildInfoCollector())
}

// Serve exposes the registered metrics on addr until ctx is done
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		prometheus.DefaultGatherer,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		},
	))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", slog.String("addr", addr))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving metrics: %w", err)
	}

	return nil
}
