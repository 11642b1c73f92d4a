package storage

import (
	"context"
	"time"
)

// Store provides an interface for persisting flight data.
// It handles flight sessions and sensor readings in a thread-safe manner.
// All operations that write to the database should be considered atomic.
type Store interface {
	// CreateSession starts a new flight session and returns its identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - flightID: Unique identifier of the flight (a UUID)
	//   - config: Optional flight configuration. Can be string, []byte, or JSON-serializable object
	//
	// Returns:
	//   - sessionID: Unique identifier for the created session
	//   - error: If session creation fails or context is cancelled
	CreateSession(ctx context.Context, flightID string, config any) (sessionID int64, err error)

	// Sessions returns all flight sessions ordered by start time.
	Sessions(ctx context.Context) (sessions []*Session, err error)

	// StoreReadings saves the readings of one snapshot in a single transaction.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - sessionID: ID of the session the readings belong to
	//   - timestamp: Time the snapshot was taken
	//   - readings: Flattened sensor readings, absent values included
	//
	// Returns:
	//   - error: If storage fails or context is cancelled
	StoreReadings(ctx context.Context, sessionID int64, timestamp time.Time, readings []Reading) error

	// Readings returns the stored readings of a session, oldest first.
	// An empty sensor name selects all sensors.
	Readings(ctx context.Context, sessionID int64, sensor string) ([]*Record, error)

	// Close releases all database connections and resources.
	// It is safe to call Close multiple times.
	Close() error
}
