package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/pingu-sat/internal/sensor"
	"github.com/roman-kulish/pingu-sat/internal/storage"
	"github.com/roman-kulish/pingu-sat/internal/task"
)

// DefaultArchiveInterval is the pause after each archived snapshot
const DefaultArchiveInterval = 5 * time.Second

// ArchiveOption configures an Archive consumer
type ArchiveOption func(a *Archive)

// WithArchiveLogger sets the logger for the archive consumer
func WithArchiveLogger(logger *slog.Logger) ArchiveOption {
	return func(a *Archive) {
		a.logger = logger.With(slog.String("consumer", "archive"))
	}
}

// WithArchiveInterval sets the pause after each snapshot
func WithArchiveInterval(d time.Duration) ArchiveOption {
	return func(a *Archive) {
		a.interval = d
	}
}

// WithFlightConfig stores config with the flight session
func WithFlightConfig(config any) ArchiveOption {
	return func(a *Archive) {
		a.config = config
	}
}

// WithArchiveClock replaces time.Now
func WithArchiveClock(clock Clock) ArchiveOption {
	return func(a *Archive) {
		a.clock = clock
	}
}

// Archive stores every snapshot in the flight database under one session per run
type Archive struct {
	sensors  Snapshotter
	store    storage.Store
	config   any
	interval time.Duration
	clock    Clock

	flightID  string
	sessionID int64
	stored    int

	logger *slog.Logger
}

// NewArchive creates an archive consumer. The store is owned by the caller.
func NewArchive(sensors Snapshotter, store storage.Store, options ...ArchiveOption) *Archive {
	a := Archive{
		sensors:  sensors,
		store:    store,
		interval: DefaultArchiveInterval,
		clock:    time.Now,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&a)
	}

	return &a
}

// Setup opens a new flight session
func (a *Archive) Setup(ctx context.Context) error {
	a.flightID = uuid.NewString()

	id, err := a.store.CreateSession(ctx, a.flightID, a.config)
	if err != nil {
		return fmt.Errorf("creating flight session: %w", err)
	}

	a.sessionID = id
	a.logger.Info("flight session created", slog.String("flight", a.flightID), slog.Int64("session", id))
	return nil
}

func (a *Archive) Update(ctx context.Context) error {
	readings := Flatten(a.sensors.Snapshot())

	if err := a.store.StoreReadings(ctx, a.sessionID, a.clock(), readings); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return err
		}
		if errors.Is(err, storage.ErrClosed) {
			return err
		}
		a.logger.Warn(fmt.Sprintf("snapshot not archived: %s", err.Error()))
	} else {
		a.stored++
	}

	return task.Sleep(ctx, a.interval)
}

func (a *Archive) Teardown() error {
	a.logger.Info(fmt.Sprintf("%d snapshots archived", a.stored), slog.String("flight", a.flightID))
	return nil
}

// FlightID returns the flight UUID, empty before Setup
func (a *Archive) FlightID() string {
	return a.flightID
}

// SessionID returns the database session of the flight
func (a *Archive) SessionID() int64 {
	return a.sessionID
}

// Flatten converts a snapshot into storage rows ordered by sensor name.
// An absent reading yields a single row with no value.
func Flatten(snap sensor.Snapshot) []storage.Reading {
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	var rows []storage.Reading
	for _, name := range names {
		rows = append(rows, flattenReading(name, snap[name])...)
	}
	return rows
}

func flattenReading(name string, r sensor.Reading) []storage.Reading {
	value := func(field string, v float64) storage.Reading {
		return storage.Reading{Sensor: name, Field: field, Value: &v}
	}

	switch v := r.(type) {
	case nil:
		return []storage.Reading{{Sensor: name, Field: "value"}}
	case float64:
		return []storage.Reading{value("value", v)}
	case string:
		return []storage.Reading{{Sensor: name, Field: "sentence", Raw: &v}}
	case sensor.Pressure:
		return []storage.Reading{value("pressure", v.Pressure), value("temperature", v.Temperature)}
	case sensor.Humidity:
		return []storage.Reading{value("humidity", v.Humidity), value("temperature", v.Temperature)}
	case sensor.Radiation:
		rows := []storage.Reading{
			value("cps", float64(v.CPS)),
			value("cpm", float64(v.CPM)),
			value("dose", v.Dose),
			{Sensor: name, Field: "mode", Raw: &v.Mode},
		}
		if v.WindowValid {
			rows = append(rows, value("window_sum", float64(v.WindowSum)))
		}
		return rows
	default:
		s := fmt.Sprint(v)
		return []storage.Reading{{Sensor: name, Field: "value", Raw: &s}}
	}
}
