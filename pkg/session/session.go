package session

import (
    "encoding/json"
    "fmt"
    "sync"
    "time"

    "github.com/amirimatin/go-ndconsensus/pkg/round"
    "github.com/amirimatin/go-ndconsensus/pkg/task"
)

// State is a session lifecycle state.
type State string

const (
    // StateSubmitted: task accepted, no round dispatched yet.
    StateSubmitted State = "submitted"
    // StateRoundInProgress: exactly one round of this session is pending.
    StateRoundInProgress State = "round_in_progress"
    // StateAccepted: the latest round reached majority agreement.
    StateAccepted State = "accepted"
    // StateRejected: the latest round failed to reach majority.
    StateRejected State = "rejected"
    // StateFinalityWindowOpen: a challenge window is running; an appeal filed
    // before the deadline re-enters RoundInProgress with a larger validator set.
    StateFinalityWindowOpen State = "finality_window_open"
    // StateFinalized: terminal; the accepted value is binding.
    StateFinalized State = "finalized"
    // StateFailed: terminal; no agreement within the permitted escalations.
    StateFailed State = "failed"
)

// Terminal reports whether s permits no further transitions.
func (s State) Terminal() bool { return s == StateFinalized || s == StateFailed }

// legal transition table; anything not listed is a programming error.
var transitions = map[State][]State{
    StateSubmitted:          {StateRoundInProgress, StateFailed},
    StateRoundInProgress:    {StateAccepted, StateRejected, StateFailed},
    StateAccepted:           {StateFinalityWindowOpen},
    StateRejected:           {StateFinalityWindowOpen, StateFailed},
    StateFinalityWindowOpen: {StateRoundInProgress, StateFinalized, StateFailed},
}

// Session tracks the full lifecycle of one task from submission to
// finalization. All mutation goes through methods holding the session's own
// lock; different sessions are fully independent.
type Session struct {
    mu sync.Mutex

    // immutable after creation
    ID   string
    Task task.Task

    state            State
    rounds           []*round.Round
    appeals          int
    windows          int
    finalityDeadline time.Time
    finalValue       json.RawMessage
    createdAt        time.Time
}

// New creates a session in StateSubmitted.
func New(id string, t task.Task) *Session {
    return &Session{ID: id, Task: t, state: StateSubmitted, createdAt: time.Now()}
}

// State returns the current state.
func (s *Session) State() State {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.state
}

// Transition moves the session to a new state, enforcing the legal-transition
// table. Callers that race (e.g. an appeal against window expiry) rely on the
// table to reject the loser.
func (s *Session) Transition(to State) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.transitionLocked(to)
}

func (s *Session) transitionLocked(to State) error {
    for _, allowed := range transitions[s.state] {
        if allowed == to {
            s.state = to
            return nil
        }
    }
    return fmt.Errorf("session: illegal transition %s -> %s", s.state, to)
}

// BeginRound transitions into RoundInProgress. The exactly-one-pending-round
// invariant holds because a session already in RoundInProgress has no legal
// transition back into it.
func (s *Session) BeginRound() error {
    return s.Transition(StateRoundInProgress)
}

// RecordRound appends a completed round and transitions the session according
// to the round's outcome.
func (s *Session) RecordRound(r *round.Round) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    var to State
    switch r.Outcome {
    case round.OutcomeAccepted:
        to = StateAccepted
    case round.OutcomeRejected:
        to = StateRejected
    default:
        return fmt.Errorf("session: round %d of task %s has no outcome", r.Number, r.TaskID)
    }
    if err := s.transitionLocked(to); err != nil {
        return err
    }
    s.rounds = append(s.rounds, r)
    return nil
}

// OpenWindow transitions into FinalityWindowOpen with the given deadline and
// returns the window's sequence number, which identifies this window to
// ResolveExpired.
func (s *Session) OpenWindow(deadline time.Time) (int, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if err := s.transitionLocked(StateFinalityWindowOpen); err != nil {
        return 0, err
    }
    s.windows++
    s.finalityDeadline = deadline
    return s.windows, nil
}

// Resolve closes the session from FinalityWindowOpen (or a dead end) into a
// terminal state, capturing the final value when finalizing.
func (s *Session) Resolve(to State, value json.RawMessage) error {
    if !to.Terminal() {
        return fmt.Errorf("session: resolve to non-terminal state %s", to)
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    if err := s.transitionLocked(to); err != nil {
        return err
    }
    if to == StateFinalized {
        s.finalValue = value
    }
    return nil
}

// ResolveExpired closes the session like Resolve, but only while the window
// identified by seq is still the open one. An expiry callback that lost the
// race against an appeal finds the session in RoundInProgress (or inside a
// later window) and must leave it alone; without the seq check a callback
// that fired just before its timer was canceled could fail a session whose
// appeal round is already running.
func (s *Session) ResolveExpired(seq int, to State, value json.RawMessage) error {
    if !to.Terminal() {
        return fmt.Errorf("session: resolve to non-terminal state %s", to)
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.state != StateFinalityWindowOpen || seq != s.windows {
        return fmt.Errorf("session: window %d no longer open (state %s, window %d)", seq, s.state, s.windows)
    }
    if err := s.transitionLocked(to); err != nil {
        return err
    }
    if to == StateFinalized {
        s.finalValue = value
    }
    return nil
}

// NoteAppeal increments the appeal counter.
func (s *Session) NoteAppeal() {
    s.mu.Lock()
    s.appeals++
    s.mu.Unlock()
}

// Appeals returns how many appeals have been filed.
func (s *Session) Appeals() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.appeals
}

// FinalityDeadline returns the deadline of the current (or last) window.
func (s *Session) FinalityDeadline() time.Time {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.finalityDeadline
}

// LatestRound returns the most recent round, or nil before the first one.
func (s *Session) LatestRound() *round.Round {
    s.mu.Lock()
    defer s.mu.Unlock()
    if len(s.rounds) == 0 {
        return nil
    }
    return s.rounds[len(s.rounds)-1]
}

// Rounds returns a copy of the completed-round slice in order.
func (s *Session) Rounds() []*round.Round {
    s.mu.Lock()
    defer s.mu.Unlock()
    out := make([]*round.Round, len(s.rounds))
    copy(out, s.rounds)
    return out
}

// RoundCount returns the number of completed rounds.
func (s *Session) RoundCount() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return len(s.rounds)
}

// FinalValue returns the binding agreed value once finalized, else nil.
func (s *Session) FinalValue() json.RawMessage {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.finalValue
}
