package session

import (
    "testing"
    "time"

    "github.com/amirimatin/go-ndconsensus/pkg/round"
    "github.com/amirimatin/go-ndconsensus/pkg/task"
)

func newSession() *Session {
    return New("s1", task.Task{ID: "t1", Policy: task.PolicyStrict})
}

func acceptedRound(n int) *round.Round {
    return &round.Round{Number: n, TaskID: "t1", LeaderID: "a", Outcome: round.OutcomeAccepted, Value: []byte(`"v"`)}
}

func rejectedRound(n int) *round.Round {
    return &round.Round{Number: n, TaskID: "t1", LeaderID: "a", Outcome: round.OutcomeRejected}
}

func TestLifecycle_AcceptThenFinalize(t *testing.T) {
    s := newSession()
    if s.State() != StateSubmitted {
        t.Fatalf("initial state: %s", s.State())
    }
    if err := s.BeginRound(); err != nil {
        t.Fatalf("begin: %v", err)
    }
    if err := s.RecordRound(acceptedRound(1)); err != nil {
        t.Fatalf("record: %v", err)
    }
    if s.State() != StateAccepted {
        t.Fatalf("state after accept: %s", s.State())
    }
    if _, err := s.OpenWindow(time.Now().Add(time.Second)); err != nil {
        t.Fatalf("open window: %v", err)
    }
    if err := s.Resolve(StateFinalized, []byte(`"v"`)); err != nil {
        t.Fatalf("resolve: %v", err)
    }
    if !s.State().Terminal() {
        t.Fatalf("finalized must be terminal")
    }
    if string(s.FinalValue()) != `"v"` {
        t.Fatalf("final value: %s", s.FinalValue())
    }
}

func TestOnePendingRound(t *testing.T) {
    s := newSession()
    if err := s.BeginRound(); err != nil {
        t.Fatalf("begin: %v", err)
    }
    // A second concurrent round for the same session is illegal.
    if err := s.BeginRound(); err == nil {
        t.Fatalf("expected second BeginRound to fail")
    }
}

func TestAppealRace_TransitionArbitrates(t *testing.T) {
    s := newSession()
    _ = s.BeginRound()
    _ = s.RecordRound(acceptedRound(1))
    _, _ = s.OpenWindow(time.Now().Add(time.Second))

    // Appeal wins: session re-enters RoundInProgress.
    if err := s.Transition(StateRoundInProgress); err != nil {
        t.Fatalf("appeal transition: %v", err)
    }
    // Window expiry then loses: finalizing is no longer legal.
    if err := s.Resolve(StateFinalized, nil); err == nil {
        t.Fatalf("expiry must lose the race")
    }
}

func TestResolveExpired_BoundToItsWindow(t *testing.T) {
    s := newSession()
    _ = s.BeginRound()
    _ = s.RecordRound(rejectedRound(1))
    seq1, err := s.OpenWindow(time.Now().Add(time.Second))
    if err != nil {
        t.Fatalf("open window: %v", err)
    }

    // An appeal re-enters RoundInProgress; the first window's expiry must
    // not be able to fail the session anymore, even though the transition
    // RoundInProgress -> Failed is legal in general.
    if err := s.Transition(StateRoundInProgress); err != nil {
        t.Fatalf("appeal transition: %v", err)
    }
    if err := s.ResolveExpired(seq1, StateFailed, nil); err == nil {
        t.Fatalf("stale expiry must not fail an appealed session")
    }
    if s.State() != StateRoundInProgress {
        t.Fatalf("state clobbered: %s", s.State())
    }

    // The appeal round accepts and opens a second window; the stale expiry
    // still has no power over it, only the current window's does.
    _ = s.RecordRound(acceptedRound(2))
    seq2, err := s.OpenWindow(time.Now().Add(time.Second))
    if err != nil {
        t.Fatalf("open second window: %v", err)
    }
    if seq2 == seq1 {
        t.Fatalf("window sequence must advance: %d", seq2)
    }
    if err := s.ResolveExpired(seq1, StateFinalized, []byte(`"v"`)); err == nil {
        t.Fatalf("stale expiry must not finalize a later window")
    }
    if err := s.ResolveExpired(seq2, StateFinalized, []byte(`"v"`)); err != nil {
        t.Fatalf("current window expiry: %v", err)
    }
    if string(s.FinalValue()) != `"v"` {
        t.Fatalf("final value: %s", s.FinalValue())
    }
}

func TestRejectedCanFailOrReopen(t *testing.T) {
    s := newSession()
    _ = s.BeginRound()
    _ = s.RecordRound(rejectedRound(1))
    if s.State() != StateRejected {
        t.Fatalf("state: %s", s.State())
    }
    if _, err := s.OpenWindow(time.Now().Add(time.Second)); err != nil {
        t.Fatalf("rejected must allow a challenge window: %v", err)
    }

    s2 := newSession()
    _ = s2.BeginRound()
    _ = s2.RecordRound(rejectedRound(1))
    if err := s2.Resolve(StateFailed, nil); err != nil {
        t.Fatalf("rejected must allow failing: %v", err)
    }
}

func TestTerminalStatesFreeze(t *testing.T) {
    s := newSession()
    _ = s.BeginRound()
    _ = s.RecordRound(acceptedRound(1))
    _, _ = s.OpenWindow(time.Now().Add(time.Second))
    _ = s.Resolve(StateFinalized, []byte(`1`))
    for _, to := range []State{StateSubmitted, StateRoundInProgress, StateAccepted, StateFailed} {
        if err := s.Transition(to); err == nil {
            t.Fatalf("terminal session transitioned to %s", to)
        }
    }
}

func TestRoundsAndLatest(t *testing.T) {
    s := newSession()
    _ = s.BeginRound()
    _ = s.RecordRound(rejectedRound(1))
    _, _ = s.OpenWindow(time.Now().Add(time.Second))
    _ = s.Transition(StateRoundInProgress)
    s.NoteAppeal()
    _ = s.RecordRound(acceptedRound(2))

    if s.RoundCount() != 2 || s.Appeals() != 1 {
        t.Fatalf("rounds=%d appeals=%d", s.RoundCount(), s.Appeals())
    }
    if lr := s.LatestRound(); lr == nil || lr.Number != 2 {
        t.Fatalf("latest: %+v", s.LatestRound())
    }
    rs := s.Rounds()
    if len(rs) != 2 || rs[0].Number != 1 {
        t.Fatalf("rounds copy: %+v", rs)
    }
}

func TestStore_IdempotencyAndArchive(t *testing.T) {
    st := NewStore(2)
    s := newSession()
    st.Put(s)

    if id, ok := st.SessionIDForTask("t1"); !ok || id != "s1" {
        t.Fatalf("task lookup: %q %v", id, ok)
    }
    got, err := st.Get("s1")
    if err != nil || got != s {
        t.Fatalf("get: %v", err)
    }

    st.Archive("s1")
    if st.Live() != 0 || st.Archived() != 1 {
        t.Fatalf("live=%d archived=%d", st.Live(), st.Archived())
    }
    // Archived sessions remain readable and keep the task mapping.
    if _, err := st.Get("s1"); err != nil {
        t.Fatalf("archived get: %v", err)
    }
    if _, ok := st.SessionIDForTask("t1"); !ok {
        t.Fatalf("task mapping lost after archive")
    }

    if _, err := st.Get("nope"); err != ErrUnknownSession {
        t.Fatalf("expected ErrUnknownSession, got %v", err)
    }
}

func TestStore_ArchiveEviction(t *testing.T) {
    st := NewStore(2)
    for _, id := range []string{"s1", "s2", "s3"} {
        s := New(id, task.Task{ID: "task-" + id})
        st.Put(s)
        st.Archive(id)
    }
    if st.Archived() != 2 {
        t.Fatalf("archived=%d", st.Archived())
    }
    if _, err := st.Get("s1"); err != ErrUnknownSession {
        t.Fatalf("oldest should be evicted, got %v", err)
    }
    if _, err := st.Get("s3"); err != nil {
        t.Fatalf("newest should remain: %v", err)
    }
}
