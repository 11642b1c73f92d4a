package gps

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"
)

// NoFix is written in place of a sentence when the receiver has no data
const NoFix = "No GPS"

// GGA field positions, the sentence type being field 0
const (
	ggaLatitude  = 2
	ggaLongitude = 4
	ggaHDOP      = 8
	ggaAltitude  = 9
)

// Fix is the position decoded from a GGA sentence. Fields are nil when the
// receiver reported no fix or the sentence could not be decoded.
type Fix struct {
	Time      *time.Duration // time of day (UTC) since midnight
	Latitude  *float64       // decimal degrees, negative south
	Longitude *float64       // decimal degrees, negative west
	Altitude  *float64       // meters above mean sea level
	HDOP      *float64       // horizontal dilution of precision
	Sentence  string         // raw sentence
}

// ParseFix decodes a GGA sentence. It never fails: malformed sentences and
// sentences without a fix yield a Fix with absent fields.
func ParseFix(sentence string) Fix {
	fix := Fix{Sentence: sentence}
	if sentence == "" {
		return fix
	}

	s, err := nmea.Parse(sentence)
	if err != nil {
		return fix
	}

	gga, ok := s.(nmea.GGA)
	if !ok {
		return fix
	}

	if gga.Time.Valid {
		t := time.Duration(gga.Time.Hour)*time.Hour +
			time.Duration(gga.Time.Minute)*time.Minute +
			time.Duration(gga.Time.Second)*time.Second +
			time.Duration(gga.Time.Millisecond)*time.Millisecond
		fix.Time = &t
	}

	if gga.FixQuality == nmea.Invalid || gga.FixQuality == "" {
		return fix
	}

	// go-nmea decodes empty fields as 0, which is a valid position
	fields := strings.Split(strings.SplitN(sentence, "*", 2)[0], ",")
	if hasField(fields, ggaLatitude) {
		fix.Latitude = ptr(round(gga.Latitude, 5))
	}
	if hasField(fields, ggaLongitude) {
		fix.Longitude = ptr(round(gga.Longitude, 5))
	}
	if hasField(fields, ggaHDOP) {
		fix.HDOP = ptr(gga.HDOP)
	}
	if hasField(fields, ggaAltitude) {
		fix.Altitude = ptr(gga.Altitude)
	}

	return fix
}

func hasField(fields []string, i int) bool {
	return i < len(fields) && strings.TrimSpace(fields[i]) != ""
}

// ParseReading decodes a GPS sensor reading, nil or not a string means no fix
func ParseReading(r any) Fix {
	sentence, _ := r.(string)
	return ParseFix(sentence)
}

// String returns a short human readable representation of the fix
func (f Fix) String() string {
	if f.Latitude == nil || f.Longitude == nil {
		return "no fix"
	}
	return fmt.Sprintf("%.5f,%.5f", *f.Latitude, *f.Longitude)
}

func ptr[T any](v T) *T {
	return &v
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
