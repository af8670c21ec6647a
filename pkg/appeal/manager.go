package appeal

import (
    "errors"
    "log"
    "math"
    "sync"
    "time"

    "github.com/amirimatin/go-ndconsensus/pkg/internal/logutil"
)

var (
    // ErrAppealWindowExpired rejects an appeal filed after the finality
    // deadline; the session's resolution stands.
    ErrAppealWindowExpired = errors.New("appeal: finality window expired")
    // ErrAppealLimitExceeded rejects an appeal past the configured maximum
    // or once the validator set can no longer grow.
    ErrAppealLimitExceeded = errors.New("appeal: appeal limit exceeded")
)

// Options tunes the appeal manager.
type Options struct {
    // Window is how long after acceptance (or rejection with escalations
    // remaining) an appeal may still be filed. Zero means DefaultWindow.
    Window time.Duration
    // MaxAppeals caps appeals per session. Zero derives the cap from the
    // population size: ceil(log2(population)), minimum 1.
    MaxAppeals int
    // EscalationFactor multiplies the validator-set size on each appeal.
    // Zero means doubling.
    EscalationFactor int
    // Clock defaults to the system clock.
    Clock Clock
    // Logger is optional.
    Logger *log.Logger
}

// DefaultWindow is the finality window applied when Options.Window is zero.
const DefaultWindow = 30 * time.Second

// Manager tracks finality windows per session, validates appeal eligibility
// and computes the escalated validator-set size for re-runs. It owns no
// session state; the engine applies the resulting transitions.
type Manager struct {
    opts Options

    mu     sync.Mutex
    timers map[string]Timer
}

// NewManager constructs a Manager.
func NewManager(opts Options) *Manager {
    if opts.Window <= 0 { opts.Window = DefaultWindow }
    if opts.EscalationFactor < 2 { opts.EscalationFactor = 2 }
    if opts.Clock == nil { opts.Clock = SystemClock() }
    if opts.Logger == nil { opts.Logger = log.Default() }
    return &Manager{opts: opts, timers: make(map[string]Timer)}
}

// Window returns the configured finality-window duration.
func (m *Manager) Window() time.Duration { return m.opts.Window }

// OpenWindow schedules onExpire to fire after the finality window and
// returns the deadline. A previously scheduled window for the session is
// replaced. The wait is a scheduled timer, never a busy wait; sessions
// waiting on their windows cost nothing to each other.
func (m *Manager) OpenWindow(sessionID string, onExpire func()) time.Time {
    deadline := m.opts.Clock.Now().Add(m.opts.Window)
    m.mu.Lock()
    if t, ok := m.timers[sessionID]; ok {
        t.Stop()
    }
    m.timers[sessionID] = m.opts.Clock.AfterFunc(m.opts.Window, func() {
        m.mu.Lock()
        delete(m.timers, sessionID)
        m.mu.Unlock()
        onExpire()
    })
    m.mu.Unlock()
    logutil.Infof(m.opts.Logger, "finality window open: session=%s deadline=%s", sessionID, deadline.Format(time.RFC3339))
    return deadline
}

// CancelWindow stops a pending window timer, e.g. when an appeal re-enters a
// round. Returns false when no timer was pending (the window already fired).
func (m *Manager) CancelWindow(sessionID string) bool {
    m.mu.Lock()
    defer m.mu.Unlock()
    t, ok := m.timers[sessionID]
    if !ok {
        return false
    }
    delete(m.timers, sessionID)
    return t.Stop()
}

// Stop cancels all pending windows.
func (m *Manager) Stop() {
    m.mu.Lock()
    defer m.mu.Unlock()
    for id, t := range m.timers {
        t.Stop()
        delete(m.timers, id)
    }
}

// Now exposes the manager's clock for deadline comparisons.
func (m *Manager) Now() time.Time { return m.opts.Clock.Now() }

// MaxAppeals resolves the appeal cap for a population of the given size.
func (m *Manager) MaxAppeals(population int) int {
    if m.opts.MaxAppeals > 0 {
        return m.opts.MaxAppeals
    }
    if population < 2 {
        return 1
    }
    c := int(math.Ceil(math.Log2(float64(population))))
    if c < 1 { c = 1 }
    return c
}

// Escalate validates eligibility and computes the next validator-set size.
// deadline is the session's current finality deadline; appeals counts prior
// appeals; current is the validator-set size of the latest round. The next
// size is current times the escalation factor, capped at population minus
// one (the leader). Escalation must be strictly monotonic: when the cap
// leaves no room to grow, the appeal is rejected as exhausted.
func (m *Manager) Escalate(deadline time.Time, appeals, current, population int) (int, error) {
    if !m.opts.Clock.Now().Before(deadline) {
        return 0, ErrAppealWindowExpired
    }
    next, ok := m.nextSize(appeals, current, population)
    if !ok {
        return 0, ErrAppealLimitExceeded
    }
    return next, nil
}

// CanEscalate reports whether a further appeal could still grow the
// validator set, ignoring the deadline. The engine uses it after a rejected
// round to decide between opening a challenge window and failing outright.
func (m *Manager) CanEscalate(appeals, current, population int) bool {
    _, ok := m.nextSize(appeals, current, population)
    return ok
}

func (m *Manager) nextSize(appeals, current, population int) (int, bool) {
    if appeals >= m.MaxAppeals(population) {
        return 0, false
    }
    next := current * m.opts.EscalationFactor
    if limit := population - 1; next > limit {
        next = limit
    }
    if next <= current {
        return 0, false
    }
    return next, true
}
