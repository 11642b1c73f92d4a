package app

import (
	"math"
	"sort"
	"time"

	"github.com/roman-kulish/pingu-sat/internal/storage"
)

// Row is the time series of one numeric field of one sensor
type Row struct {
	Label  string
	Bounds Bounds
	Values []*float64 // indexed by column, nil where the reading was absent
}

// StripData holds the archive readings of a session laid out as rows of
// sensor fields against snapshot time
type StripData struct {
	Rows  []*Row
	Times []time.Time
}

// NewStripData arranges records into rows. Text readings are skipped, and so
// are rows that never carried a value.
func NewStripData(records []*storage.Record) *StripData {
	columns := make(map[int64]int)
	var times []time.Time
	for _, r := range records {
		key := r.Timestamp.UnixNano()
		if _, ok := columns[key]; !ok {
			columns[key] = 0
			times = append(times, r.Timestamp)
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i, t := range times {
		columns[t.UnixNano()] = i
	}

	rows := make(map[string]*Row)
	for _, r := range records {
		if r.Value == nil {
			continue
		}

		label := r.Sensor + "." + r.Field
		row, ok := rows[label]
		if !ok {
			row = &Row{
				Label:  label,
				Bounds: Bounds{Min: math.Inf(1), Max: math.Inf(-1)},
				Values: make([]*float64, len(times)),
			}
			rows[label] = row
		}

		v := *r.Value
		row.Values[columns[r.Timestamp.UnixNano()]] = &v
		row.Bounds.Min = math.Min(row.Bounds.Min, v)
		row.Bounds.Max = math.Max(row.Bounds.Max, v)
	}

	strip := StripData{Times: times}
	for _, row := range rows {
		strip.Rows = append(strip.Rows, row)
	}
	sort.Slice(strip.Rows, func(i, j int) bool { return strip.Rows[i].Label < strip.Rows[j].Label })

	return &strip
}

// Empty reports whether there is nothing to plot
func (s *StripData) Empty() bool {
	return len(s.Rows) == 0 || len(s.Times) == 0
}

// Start returns the time of the first column
func (s *StripData) Start() time.Time {
	if len(s.Times) == 0 {
		return time.Time{}
	}
	return s.Times[0]
}

// End returns the time of the last column
func (s *StripData) End() time.Time {
	if len(s.Times) == 0 {
		return time.Time{}
	}
	return s.Times[len(s.Times)-1]
}
