package policy

import "sync"

// Tally accumulates per-validator agreement for one round. Failed and
// timed-out validators are recorded as excluded rather than counted against
// the majority denominator. Safe for concurrent use.
type Tally struct {
    mu       sync.Mutex
    agreeing int
    tallied  int
    excluded int
}

// Agree records a tallied validator that agreed with the leader.
func (t *Tally) Agree() {
    t.mu.Lock()
    t.agreeing++
    t.tallied++
    t.mu.Unlock()
}

// Disagree records a tallied validator that did not agree.
func (t *Tally) Disagree() {
    t.mu.Lock()
    t.tallied++
    t.mu.Unlock()
}

// Exclude records a validator removed from the tally (timeout or failure).
func (t *Tally) Exclude() {
    t.mu.Lock()
    t.excluded++
    t.mu.Unlock()
}

// Counts returns (agreeing, tallied, excluded).
func (t *Tally) Counts() (int, int, int) {
    t.mu.Lock()
    defer t.mu.Unlock()
    return t.agreeing, t.tallied, t.excluded
}

// Reached reports whether the agreeing validators strictly exceed the given
// fraction of tallied validators. A round where nothing could be tallied
// never reaches agreement.
func (t *Tally) Reached(fraction float64) bool {
    t.mu.Lock()
    defer t.mu.Unlock()
    if t.tallied == 0 {
        return false
    }
    return float64(t.agreeing) > fraction*float64(t.tallied)
}
