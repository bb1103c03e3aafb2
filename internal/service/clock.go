package service

import "time"

// Clock supplies the current time to the engine.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// addSeconds returns t plus whole seconds.
func addSeconds(t time.Time, s int64) time.Time {
	return t.Add(time.Duration(s) * time.Second)
}
