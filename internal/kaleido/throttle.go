package kaleido

import (
	"math"
	"time"
)

// MinSpeed is the floor applied to the speed before computing the frame
// interval, so a zero or negative speed yields a 100s interval.
const MinSpeed = 0.01

// FrameInterval returns the minimum time between redraws for a speed given
// in frames per second.
func FrameInterval(speed float64) time.Duration {
	if math.IsNaN(speed) {
		speed = MinSpeed
	}
	return time.Duration(float64(time.Second) / math.Max(MinSpeed, speed))
}

// Throttle decides whether a refresh tick should redraw. Implementations
// may keep state between calls; the loop calls Ready once per tick.
type Throttle interface {
	Ready(elapsed time.Duration, speed float64) bool
}

// ThrottleFunc adapts a function to Throttle.
type ThrottleFunc func(elapsed time.Duration, speed float64) bool

// Ready calls f.
func (f ThrottleFunc) Ready(elapsed time.Duration, speed float64) bool {
	return f(elapsed, speed)
}

// IntervalThrottle redraws when strictly more than FrameInterval(speed) has
// passed since the last redraw. The first redraw is measured from elapsed 0.
type IntervalThrottle struct {
	last time.Duration
}

// Ready reports whether to redraw at elapsed, recording it if so.
func (t *IntervalThrottle) Ready(elapsed time.Duration, speed float64) bool {
	if elapsed-t.last > FrameInterval(speed) {
		t.last = elapsed
		return true
	}
	return false
}

// Last returns the elapsed time of the last redraw.
func (t *IntervalThrottle) Last() time.Duration {
	return t.last
}
