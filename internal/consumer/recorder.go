package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roman-kulish/pingu-sat/internal/outfile"
	"github.com/roman-kulish/pingu-sat/internal/sensor"
	"github.com/roman-kulish/pingu-sat/internal/sensor/gps"
	"github.com/roman-kulish/pingu-sat/internal/task"
)

const (
	// DefaultRecordInterval is the pause after each recorded line
	DefaultRecordInterval = time.Second

	// FilenameTimeFormat prefixes every file created by a Recorder
	FilenameTimeFormat = "2006-01-02-15-04-05"
)

// Channel is one output file of a Recorder
type Channel struct {
	// Suffix is appended to the timestamp prefix to form the file name
	Suffix string

	// Format renders one line from the snapshot taken at now
	Format func(snap sensor.Snapshot, now time.Time) string
}

// EnvironmentChannel records <unix time>,<t_external>,<t_internal>,<pressure tuple>
func EnvironmentChannel(names Names) Channel {
	names = names.withDefaults()
	return Channel{
		Suffix: "environment.txt",
		Format: func(snap sensor.Snapshot, now time.Time) string {
			return fmt.Sprintf("%s,%s,%s,%s",
				unixSeconds(now),
				formatReading(snap[names.ExternalTemperature]),
				formatReading(snap[names.InternalTemperature]),
				formatReading(snap[names.Pressure]),
			)
		},
	}
}

// GPSChannel records the raw GGA sentence, or gps.NoFix when there is none
func GPSChannel(names Names) Channel {
	names = names.withDefaults()
	return Channel{
		Suffix: "gps.txt",
		Format: func(snap sensor.Snapshot, _ time.Time) string {
			if s, ok := snap.Text(names.GPS); ok && s != "" {
				return s
			}
			return gps.NoFix
		},
	}
}

// SnapshotChannel records <unix time> followed by every named reading
func SnapshotChannel(suffix string, names ...string) Channel {
	return Channel{
		Suffix: suffix,
		Format: func(snap sensor.Snapshot, now time.Time) string {
			line := unixSeconds(now)
			for _, name := range names {
				line += "," + formatReading(snap[name])
			}
			return line
		},
	}
}

// RecorderOption configures a Recorder
type RecorderOption func(r *Recorder)

// WithRecorderLogger sets the logger for the recorder and its files
func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger.With(slog.String("consumer", "recorder"))
	}
}

// WithRecordInterval sets the pause after each line
func WithRecordInterval(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		r.interval = d
	}
}

// WithRecorderClock replaces time.Now
func WithRecorderClock(clock Clock) RecorderOption {
	return func(r *Recorder) {
		r.clock = clock
	}
}

// Recorder appends one line per channel and Update to timestamp-prefixed files
// in its directory. Each file is written through its own outfile.Writer.
type Recorder struct {
	sensors  Snapshotter
	dir      string
	channels []Channel
	interval time.Duration
	clock    Clock

	writers []*outfile.Writer

	logger *slog.Logger
}

// NewRecorder creates a recorder writing channels into dir
func NewRecorder(sensors Snapshotter, dir string, channels []Channel, options ...RecorderOption) *Recorder {
	r := Recorder{
		sensors:  sensors,
		dir:      dir,
		channels: channels,
		interval: DefaultRecordInterval,
		clock:    time.Now,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// Setup creates the output files
func (r *Recorder) Setup(context.Context) (err error) {
	if len(r.channels) == 0 {
		return errors.New("recorder has no channels")
	}

	if err = os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	prefix := r.clock().Format(FilenameTimeFormat)

	defer func() {
		if err != nil {
			_ = r.Teardown()
		}
	}()

	for _, ch := range r.channels {
		w := outfile.New(filepath.Join(r.dir, prefix+"_"+ch.Suffix),
			outfile.WithLogger(r.logger),
			outfile.WithChannel(ch.Suffix),
		)
		if err = w.Open(); err != nil {
			return err
		}
		r.writers = append(r.writers, w)
	}

	r.logger.Info(fmt.Sprintf("recording %d channels", len(r.writers)), slog.String("dir", r.dir))
	return nil
}

func (r *Recorder) Update(ctx context.Context) error {
	snap := r.sensors.Snapshot()
	now := r.clock()

	for i, ch := range r.channels {
		if err := r.writers[i].WriteLine(ch.Format(snap, now)); err != nil {
			return fmt.Errorf("recording %s: %w", ch.Suffix, err)
		}
	}

	return task.Sleep(ctx, r.interval)
}

// Teardown flushes and closes every file
func (r *Recorder) Teardown() error {
	var errs []error
	for _, w := range r.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.writers = nil
	return errors.Join(errs...)
}

// Paths returns the paths of the open files in channel order
func (r *Recorder) Paths() []string {
	paths := make([]string, len(r.writers))
	for i, w := range r.writers {
		paths[i] = w.Path()
	}
	return paths
}
