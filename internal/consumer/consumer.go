package consumer

import (
	"fmt"
	"strconv"
	"time"

	"github.com/roman-kulish/pingu-sat/internal/sensor"
	"github.com/roman-kulish/pingu-sat/internal/sensor/gps"
	"github.com/roman-kulish/pingu-sat/internal/task"
)

// Process is a consumer duty: it reads a fresh snapshot on every Update and
// hands a formatted record to its sink
type Process interface {
	task.Runner
}

// Snapshotter re-derives the current readings; *sensor.Registry implements it
type Snapshotter interface {
	Snapshot() sensor.Snapshot
}

// Names maps the roles consumers read to registered sensor names
type Names struct {
	GPS                 string `yaml:"gps"`
	Pressure            string `yaml:"pressure"`
	InternalTemperature string `yaml:"internalTemperature"`
	ExternalTemperature string `yaml:"externalTemperature"`
}

// DefaultNames are the sensor names of the flight configuration
var DefaultNames = Names{
	GPS:                 "gps",
	Pressure:            "pressure",
	InternalTemperature: "t_internal",
	ExternalTemperature: "t_external",
}

// withDefaults fills empty roles from DefaultNames
func (n Names) withDefaults() Names {
	if n.GPS == "" {
		n.GPS = DefaultNames.GPS
	}
	if n.Pressure == "" {
		n.Pressure = DefaultNames.Pressure
	}
	if n.InternalTemperature == "" {
		n.InternalTemperature = DefaultNames.InternalTemperature
	}
	if n.ExternalTemperature == "" {
		n.ExternalTemperature = DefaultNames.ExternalTemperature
	}
	return n
}

// Clock returns the current time
type Clock func() time.Time

// pressureOf returns the barometric pressure of the pressure sensor reading
func pressureOf(snap sensor.Snapshot, name string) *float64 {
	p, ok := sensor.Get[sensor.Pressure](snap, name)
	if !ok {
		return nil
	}
	return &p.Pressure
}

func floatOf(snap sensor.Snapshot, name string) *float64 {
	v, ok := snap.Float(name)
	if !ok {
		return nil
	}
	return &v
}

func fixOf(snap sensor.Snapshot, name string) gps.Fix {
	return gps.ParseReading(snap[name])
}

// formatReading renders a reading as plain text; absent readings are empty
func formatReading(r sensor.Reading) string {
	switch v := r.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// unixSeconds formats t as seconds since the epoch with microsecond precision
func unixSeconds(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000)
}
