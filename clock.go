package jobcue

import "time"

// Clock is the time source used for enqueue timestamps and expiry.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}
