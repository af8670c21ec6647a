package appeal

import "time"

// Timer is the cancelable handle for a scheduled finality-window expiry.
type Timer interface {
    Stop() bool
}

// Clock abstracts wall-clock reads and timer scheduling so finality windows
// can be driven deterministically in tests.
type Clock interface {
    Now() time.Time
    AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
func (realClock) AfterFunc(d time.Duration, f func()) Timer {
    return time.AfterFunc(d, f)
}

// SystemClock returns the wall clock.
func SystemClock() Clock { return realClock{} }
