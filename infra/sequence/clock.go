package sequence

import "time"

// Clock reports monotonic nanoseconds since construction. The engine
// treats the values as opaque attributes, so only monotonicity matters.
type Clock struct {
	base time.Time
}

func NewClock() *Clock {
	return &Clock{base: time.Now()}
}

func (c *Clock) Now() uint64 {
	return uint64(time.Since(c.base))
}
