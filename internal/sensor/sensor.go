package sensor

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/roman-kulish/pingu-sat/internal/task"
)

// ErrDuplicateSource is returned when a name is registered twice
var ErrDuplicateSource = errors.New("sensor already registered")

// Reading is the latest value published by a Source. A nil Reading is the
// absence sentinel: the last read failed or no read completed yet.
type Reading any

// Source is the capability every sensor driver implements. Setup, Update and
// Teardown are called from the sensor's own task; Data may be called from any
// goroutine and never blocks.
type Source interface {
	task.Runner

	// Data returns the latest published reading, nil when absent
	Data() Reading
}

// Pressure is the reading of a barometric sensor
type Pressure struct {
	Temperature float64 // degrees Celsius
	Pressure    float64 // mbar
}

func (p Pressure) String() string {
	return fmt.Sprintf("(%g, %g)", p.Temperature, p.Pressure)
}

// Humidity is the reading of a combined humidity/temperature sensor
type Humidity struct {
	Humidity    float64 // % relative humidity
	Temperature float64 // degrees Celsius
}

// Radiation is the reading of the Geiger counter
type Radiation struct {
	CPS  int     // counts per second
	CPM  int     // counts per minute
	Dose float64 // uSv/hr
	Mode string  // counter integration mode

	WindowSum   int  // sum of the last completed window of CPS values
	WindowValid bool // whether a window was completed yet
}

// Slot holds one sensor's latest reading. It is written by the sensor's own
// goroutine and read by any number of consumers; every store replaces the whole
// value in one step.
type Slot[T any] struct {
	p atomic.Pointer[T]
}

// Store publishes v
func (s *Slot[T]) Store(v T) {
	s.p.Store(&v)
}

// Clear publishes the absence sentinel
func (s *Slot[T]) Clear() {
	s.p.Store(nil)
}

// Load returns the published value and whether one is present
func (s *Slot[T]) Load() (T, bool) {
	p := s.p.Load()
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}

// Reading returns the published value as a Reading, nil when absent
func (s *Slot[T]) Reading() Reading {
	p := s.p.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Registry maps logical sensor names to their sources. It is populated during
// composition and only read afterwards, so lookups take no lock.
type Registry struct {
	sources map[string]Source
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds src under name
func (r *Registry) Register(name string, src Source) error {
	if name == "" {
		return fmt.Errorf("registering sensor: empty name")
	}
	if src == nil {
		return fmt.Errorf("registering sensor %s: nil source", name)
	}
	if _, ok := r.sources[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSource, name)
	}

	r.sources[name] = src
	return nil
}

// Source returns the source registered under name
func (r *Registry) Source(name string) (Source, bool) {
	src, ok := r.sources[name]
	return src, ok
}

// Names returns the registered names in lexical order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of registered sources
func (r *Registry) Len() int {
	return len(r.sources)
}

// Snapshot reads the current reading of every source
func (r *Registry) Snapshot() Snapshot {
	snap := make(Snapshot, len(r.sources))
	for name, src := range r.sources {
		snap[name] = src.Data()
	}
	return snap
}

// Snapshot maps sensor names to the readings observed at one point of a
// consumer's pass. Readings of different sensors are not synchronized.
type Snapshot map[string]Reading

// Get returns the reading stored under name if it is present and of type T
func Get[T any](snap Snapshot, name string) (T, bool) {
	v, ok := snap[name].(T)
	return v, ok
}

// Float returns a float64 reading
func (s Snapshot) Float(name string) (float64, bool) {
	return Get[float64](s, name)
}

// Text returns a string reading
func (s Snapshot) Text(name string) (string, bool) {
	return Get[string](s, name)
}

// Absent reports whether the reading stored under name is the absence sentinel
// or the name is unknown
func (s Snapshot) Absent(name string) bool {
	return s[name] == nil
}
