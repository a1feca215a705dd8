// Package clock abstracts the system clock so trade windows and schedule
// times can be tested deterministically.
package clock

import "time"

// Clock reads the current time
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// New returns a Clock backed by the system clock
func New() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}
