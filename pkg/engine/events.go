package engine

import (
    "context"
    "sync"
    "time"
)

type EventType string

const (
    EventSubmitted          EventType = "submitted"
    EventRoundCompleted     EventType = "round_completed"
    EventFinalityWindowOpen EventType = "finality_window_open"
    EventAppealFiled        EventType = "appeal_filed"
    EventFinalized          EventType = "finalized"
    EventFailed             EventType = "failed"
)

// Event is an application-consumable notification of session progress. Only
// fields relevant to an event type are populated.
type Event struct {
    Type      EventType
    At        time.Time
    SessionID string
    TaskID    string
    Round     int
    Outcome   string
    // Validators is the validator-set size of the round the event concerns.
    Validators int
    // Error describes why the session failed; set on EventFailed only.
    Error string
}

// Subscribe returns a channel of events. The returned channel is buffered and
// closed automatically when ctx is done. Events may be dropped if the consumer
// is too slow (best-effort delivery) to avoid back-pressuring the engine.
func (e *Engine) Subscribe(ctx context.Context) <-chan Event {
    ch := make(chan Event, 64)
    e.eb.add(ch)
    go func() {
        <-ctx.Done()
        e.eb.remove(ch)
        close(ch)
    }()
    return ch
}

// internal event bus
type eventBus struct {
    mu   sync.Mutex
    subs map[chan Event]struct{}
}

func (e *eventBus) add(ch chan Event) {
    e.mu.Lock()
    if e.subs == nil { e.subs = make(map[chan Event]struct{}) }
    e.subs[ch] = struct{}{}
    e.mu.Unlock()
}

func (e *eventBus) remove(ch chan Event) {
    e.mu.Lock()
    if e.subs != nil { delete(e.subs, ch) }
    e.mu.Unlock()
}

func (e *eventBus) publish(ev Event) {
    e.mu.Lock()
    for ch := range e.subs {
        select {
        case ch <- ev:
        default:
            // drop if receiver is slow
        }
    }
    e.mu.Unlock()
}
