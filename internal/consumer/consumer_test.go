package consumer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/roman-kulish/pingu-sat/internal/radio"
	"github.com/roman-kulish/pingu-sat/internal/sensor"
)

const ggaMunich = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"

// sequenceSource publishes the next value of a fixed sequence on every Update;
// a nil entry publishes the absence sentinel
type sequenceSource struct {
	values []sensor.Reading
	next   int
	slot   sensor.Slot[sensor.Reading]
}

func (s *sequenceSource) Setup(context.Context) error { return nil }
func (s *sequenceSource) Teardown() error             { return nil }
func (s *sequenceSource) Data() sensor.Reading {
	v, _ := s.slot.Load()
	return v
}

func (s *sequenceSource) Update(context.Context) error {
	v := s.values[s.next%len(s.values)]
	s.next++
	if v == nil {
		s.slot.Clear()
		return nil
	}
	s.slot.Store(v)
	return nil
}

// fixedSnapshot is a Snapshotter returning the same readings every time
type fixedSnapshot sensor.Snapshot

func (f fixedSnapshot) Snapshot() sensor.Snapshot {
	snap := make(sensor.Snapshot, len(f))
	for k, v := range f {
		snap[k] = v
	}
	return snap
}

// recordingSink keeps every packet it is given
type recordingSink struct {
	mu        sync.Mutex
	data      [][]byte
	telemetry []*radio.Telemetry
	err       error
}

func (s *recordingSink) SendData(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data = append(s.data, data)
	return nil
}

func (s *recordingSink) SendTelemetry(_ context.Context, t *radio.Telemetry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.telemetry = append(s.telemetry, t)
	return nil
}

var errLinkDown = errors.New("link down")

// ticker returns a clock advancing by step on every call
func ticker(start time.Time, step time.Duration) Clock {
	now := start.Add(-step)
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}

func flightSnapshot() fixedSnapshot {
	return fixedSnapshot{
		"gps":        ggaMunich,
		"pressure":   sensor.Pressure{Temperature: 19.5, Pressure: 1013.25},
		"t_internal": 21.5,
		"t_external": -5.25,
	}
}
