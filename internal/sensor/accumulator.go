package sensor

import "fmt"

// DefaultWindow is the number of counts summed per window by the radiation counter
const DefaultWindow = 10

// Accumulator sums values in tumbling windows of a fixed size: once capacity
// values are pushed their sum is published and the window starts empty again.
// It is not safe for concurrent use; it belongs to the goroutine updating the sensor.
type Accumulator struct {
	window []int
	sum    int
	valid  bool
}

// NewAccumulator creates an Accumulator with the given window size
func NewAccumulator(capacity int) (*Accumulator, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid accumulator capacity: %d", capacity)
	}
	return &Accumulator{window: make([]int, 0, capacity)}, nil
}

// Push adds v to the current window. It reports true when v completed a window,
// in which case Sum now returns that window's total.
func (a *Accumulator) Push(v int) bool {
	a.window = append(a.window, v)
	if len(a.window) < cap(a.window) {
		return false
	}

	total := 0
	for _, x := range a.window {
		total += x
	}

	a.sum = total
	a.valid = true
	a.window = a.window[:0]
	return true
}

// Sum returns the total of the last completed window and whether one exists
func (a *Accumulator) Sum() (int, bool) {
	return a.sum, a.valid
}

// Len returns the number of values in the current, incomplete window
func (a *Accumulator) Len() int {
	return len(a.window)
}

// Capacity returns the window size
func (a *Accumulator) Capacity() int {
	return cap(a.window)
}
