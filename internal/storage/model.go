package storage

import (
	"time"
)

// Session is one flight
type Session struct {
	ID        int64
	FlightID  string
	StartTime time.Time
	Config    *string
}

// Reading is one field of one sensor reading. Value holds numeric fields,
// Raw holds text readings; both are nil for an absent reading.
type Reading struct {
	Sensor string
	Field  string
	Value  *float64
	Raw    *string
}

// Record is a stored Reading
type Record struct {
	ID        int64
	SessionID int64
	Timestamp time.Time
	Reading
}
