package poll

import "time"

// Clock schedules callbacks. AfterFunc returns a stop function with the
// semantics of (*time.Timer).Stop.
type Clock interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// RealClock returns the wall clock.
func RealClock() Clock {
	return realClock{}
}
