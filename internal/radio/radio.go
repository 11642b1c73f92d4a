package radio

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotOpen  = errors.New("radio link is not open")
	ErrTooLarge = errors.New("packet exceeds maximum size")
)

// MaxPacketSize is the largest data packet a link accepts
const MaxPacketSize = 255

// Sink accepts pre-formatted packets for transmission
type Sink interface {
	SendData(ctx context.Context, data []byte) error
	SendTelemetry(ctx context.Context, t *Telemetry) error
}

// Link is a Sink with a connection lifecycle
type Link interface {
	Sink
	Open(ctx context.Context) error
	Close() error
}

// Telemetry is the housekeeping packet sent to the ground station
type Telemetry struct {
	Sequence            int       `json:"sequence"`                      // Packet sequence number
	Time                time.Time `json:"time"`                          // Time the packet was assembled
	Latitude            *float64  `json:"latitude,omitempty"`            // GPS latitude in decimal degrees
	Longitude           *float64  `json:"longitude,omitempty"`           // GPS longitude in decimal degrees
	HDOP                *float64  `json:"hdop,omitempty"`                // GPS horizontal dilution of precision
	Altitude            *float64  `json:"altitude,omitempty"`            // GPS altitude in meters
	InternalTemperature *float64  `json:"internalTemperature,omitempty"` // Internal temperature in °C
	ExternalTemperature *float64  `json:"externalTemperature,omitempty"` // External temperature in °C
	Pressure            *float64  `json:"pressure,omitempty"`            // Barometric pressure in mbar
}

// Fields returns the comma-separated telemetry fields used by line based
// links: hhmmss, lat, lon, hdop, alt, temp1, temp2, pressure. Absent values
// are empty.
func (t *Telemetry) Fields() string {
	fields := []string{
		t.Time.UTC().Format("150405"),
		formatOptional(t.Latitude, 5),
		formatOptional(t.Longitude, 5),
		formatOptional(t.HDOP, 2),
		formatOptional(t.Altitude, 1),
		formatOptional(t.InternalTemperature, 2),
		formatOptional(t.ExternalTemperature, 2),
		formatOptional(t.Pressure, 2),
	}
	return strings.Join(fields, ",")
}

func formatOptional(v *float64, precision int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', precision, 64)
}
