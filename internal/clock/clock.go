package clock

import "time"

// Clock supplies the current time in milliseconds since epoch.
// Business code takes a Clock instead of calling time.Now so that
// due dates and penalties are testable.
type Clock interface {
	Now() int64
}

// System is the wall-clock implementation.
type System struct{}

func (System) Now() int64 {
	return time.Now().UnixMilli()
}

// Fake is a manually advanced clock for tests.
type Fake struct {
	Millis int64
}

func (f *Fake) Now() int64 {
	return f.Millis
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.Millis += d.Milliseconds()
}
