package engine

import (
    "context"
    "fmt"
    "sync"

    "github.com/google/uuid"

    "github.com/amirimatin/go-ndconsensus/pkg/appeal"
    "github.com/amirimatin/go-ndconsensus/pkg/internal/logutil"
    "github.com/amirimatin/go-ndconsensus/pkg/observability/metrics"
    "github.com/amirimatin/go-ndconsensus/pkg/policy"
    "github.com/amirimatin/go-ndconsensus/pkg/round"
    "github.com/amirimatin/go-ndconsensus/pkg/session"
    "github.com/amirimatin/go-ndconsensus/pkg/task"
)

// Engine is the embeddable consensus facade. It accepts tasks, drives rounds
// of leader/validator execution through the coordinator, arbitrates finality
// windows and appeals, and exposes session status and lifecycle events.
//
// All exported methods are safe for concurrent use.
type Engine struct {
    opts    Options
    coord   *round.Coordinator
    appeals *appeal.Manager
    store   *session.Store
    eb      eventBus

    mu      sync.Mutex
    running bool
    closed  bool
    ctx     context.Context
    cancel  context.CancelFunc
    wg      sync.WaitGroup
}

// New assembles an Engine from Options. No background work starts until
// Start is called.
func New(opts Options) (*Engine, error) {
    if err := opts.Validate(); err != nil {
        return nil, err
    }
    if opts.InitialValidators == 0 {
        opts.InitialValidators = DefaultInitialValidators
    }
    coord, err := round.NewCoordinator(round.Options{
        Executor: opts.Executor,
        Registry: opts.Registry,
        Timeout:  opts.RoundTimeout,
        Logger:   opts.Logger,
        Rand:     opts.Rand,
        Clock:    opts.Clock,
    })
    if err != nil {
        return nil, err
    }
    mgr := appeal.NewManager(appeal.Options{
        Window:           opts.FinalityWindow,
        MaxAppeals:       opts.MaxAppeals,
        EscalationFactor: opts.EscalationFactor,
        Clock:            opts.Clock,
        Logger:           opts.Logger,
    })
    return &Engine{
        opts:    opts,
        coord:   coord,
        appeals: mgr,
        store:   session.NewStore(opts.MaxArchive),
    }, nil
}

// Start registers metrics and makes the engine accept submissions. ctx bounds
// the lifetime of all rounds the engine spawns.
func (e *Engine) Start(ctx context.Context) error {
    e.mu.Lock()
    defer e.mu.Unlock()
    if e.closed {
        return ErrClosed
    }
    if e.running {
        return nil
    }
    metrics.Register()
    e.ctx, e.cancel = context.WithCancel(ctx)
    e.running = true
    logutil.Infof(e.opts.Logger, "engine started: participants=%d initial_validators=%d",
        len(e.opts.Registry.Participants()), e.opts.InitialValidators)
    return nil
}

// Stop cancels in-flight rounds and pending finality windows, then waits for
// round goroutines to drain or ctx to expire. The engine accepts no further
// submissions afterwards.
func (e *Engine) Stop(ctx context.Context) error {
    e.mu.Lock()
    if !e.running {
        e.mu.Unlock()
        return nil
    }
    e.running = false
    e.closed = true
    cancel := e.cancel
    e.mu.Unlock()

    cancel()
    e.appeals.Stop()

    done := make(chan struct{})
    go func() {
        e.wg.Wait()
        close(done)
    }()
    select {
    case <-done:
    case <-ctx.Done():
        return ctx.Err()
    }
    logutil.Infof(e.opts.Logger, "engine stopped")
    return nil
}

// SubmitTask accepts a task and starts its first round. Submission is
// idempotent on task ID: resubmitting a known task returns the existing
// session ID without side effects, even after that session completed.
func (e *Engine) SubmitTask(ctx context.Context, t task.Task) (string, error) {
    e.mu.Lock()
    defer e.mu.Unlock()
    if e.closed {
        return "", ErrClosed
    }
    if !e.running {
        return "", ErrNotStarted
    }
    if t.ID == "" {
        return "", fmt.Errorf("%w: empty task ID", ErrInvalidTask)
    }
    if err := policy.Validate(t.Policy, t.Params, e.opts.Judge != nil); err != nil {
        return "", fmt.Errorf("%w: %v", ErrInvalidTask, err)
    }
    if id, ok := e.store.SessionIDForTask(t.ID); ok {
        return id, nil
    }

    s := session.New(uuid.NewString(), t)
    e.store.Put(s)
    metrics.SessionsActive.Inc()
    e.eb.publish(Event{Type: EventSubmitted, At: e.appeals.Now(), SessionID: s.ID, TaskID: t.ID})
    logutil.Infof(e.opts.Logger, "task submitted: task=%s session=%s policy=%s", t.ID, s.ID, t.Policy)

    if err := s.BeginRound(); err != nil {
        return "", err
    }
    e.wg.Add(1)
    go e.runRound(s, 1, e.opts.InitialValidators, "")
    return s.ID, nil
}

// FileAppeal challenges the latest outcome of a session while its finality
// window is open. A successful appeal cancels the window and re-runs the
// round with an escalated validator set, excluding the previous leader.
func (e *Engine) FileAppeal(ctx context.Context, sessionID string) error {
    e.mu.Lock()
    if e.closed {
        e.mu.Unlock()
        return ErrClosed
    }
    if !e.running {
        e.mu.Unlock()
        return ErrNotStarted
    }
    e.mu.Unlock()

    s, err := e.store.Get(sessionID)
    if err != nil {
        return err
    }
    latest := s.LatestRound()
    if latest == nil || s.State().Terminal() {
        metrics.AppealsTotal.WithLabelValues("rejected").Inc()
        return appeal.ErrAppealWindowExpired
    }
    population := len(e.opts.Registry.Participants())
    next, err := e.appeals.Escalate(s.FinalityDeadline(), s.Appeals(), len(latest.ValidatorSet), population)
    if err != nil {
        metrics.AppealsTotal.WithLabelValues("rejected").Inc()
        return err
    }
    // The transition arbitrates the race against window expiry: whichever of
    // the two moves the session out of FinalityWindowOpen first wins.
    if err := s.Transition(session.StateRoundInProgress); err != nil {
        metrics.AppealsTotal.WithLabelValues("rejected").Inc()
        return appeal.ErrAppealWindowExpired
    }
    e.appeals.CancelWindow(sessionID)
    s.NoteAppeal()
    metrics.AppealsTotal.WithLabelValues("accepted").Inc()
    e.eb.publish(Event{
        Type: EventAppealFiled, At: e.appeals.Now(),
        SessionID: s.ID, TaskID: s.Task.ID,
        Round: latest.Number + 1, Validators: next,
    })
    logutil.Infof(e.opts.Logger, "appeal filed: session=%s round=%d validators=%d->%d",
        s.ID, latest.Number+1, len(latest.ValidatorSet), next)

    e.wg.Add(1)
    go e.runRound(s, latest.Number+1, next, latest.LeaderID)
    return nil
}

// SessionStatus returns a snapshot of a live or archived session.
func (e *Engine) SessionStatus(sessionID string) (SessionStatus, error) {
    s, err := e.store.Get(sessionID)
    if err != nil {
        return SessionStatus{}, err
    }
    return snapshot(s), nil
}

// SessionIDForTask resolves the session a task ID was assigned to.
func (e *Engine) SessionIDForTask(taskID string) (string, bool) {
    return e.store.SessionIDForTask(taskID)
}

// Status summarizes the engine.
func (e *Engine) Status() EngineStatus {
    e.mu.Lock()
    running := e.running
    e.mu.Unlock()
    parts := e.opts.Registry.Participants()
    st := EngineStatus{
        Running:         running,
        Participants:    len(parts),
        RegistryVersion: e.opts.Registry.Version(),
        LiveSessions:    e.store.Live(),
        ArchivedCount:   e.store.Archived(),
    }
    for _, p := range parts {
        st.ParticipantIDs = append(st.ParticipantIDs, p.ID)
    }
    return st
}

// runRound executes one round for s and applies its outcome to the session
// lifecycle. It owns the session's progress until the round completes; the
// one-pending-round invariant is enforced by the session transition table.
func (e *Engine) runRound(s *session.Session, number, validators int, excludeLeader string) {
    defer e.wg.Done()

    pol, err := policy.New(s.Task.Policy, s.Task.Params, e.opts.Judge, policy.Config{MajorityFraction: e.opts.MajorityFraction})
    if err != nil {
        e.failSession(s, fmt.Sprintf("policy construction: %v", err))
        return
    }
    r, err := e.coord.Run(e.ctx, s.Task, pol, number, validators, excludeLeader)
    if err != nil {
        e.failSession(s, fmt.Sprintf("round %d: %v", number, err))
        return
    }
    if err := s.RecordRound(r); err != nil {
        logutil.Errorf(e.opts.Logger, "record round: session=%s err=%v", s.ID, err)
        return
    }
    e.eb.publish(Event{
        Type: EventRoundCompleted, At: e.appeals.Now(),
        SessionID: s.ID, TaskID: s.Task.ID,
        Round: r.Number, Outcome: string(r.Outcome), Validators: len(r.ValidatorSet),
    })

    switch r.Outcome {
    case round.OutcomeAccepted:
        e.openWindow(s)
    case round.OutcomeRejected:
        population := len(e.opts.Registry.Participants())
        if e.appeals.CanEscalate(s.Appeals(), len(r.ValidatorSet), population) {
            // Rejection is challengeable too: a party convinced the task
            // should pass may appeal for a larger validator set.
            e.openWindow(s)
        } else {
            e.resolve(s, session.StateFailed, nil)
        }
    }
}

// openWindow moves the session into its finality window and arms the expiry
// timer. The session state is set before the timer so an immediately firing
// window still observes a consistent session; the window sequence pins the
// timer callback to this window and no other.
func (e *Engine) openWindow(s *session.Session) {
    seq, err := s.OpenWindow(e.appeals.Now().Add(e.appeals.Window()))
    if err != nil {
        logutil.Errorf(e.opts.Logger, "open window: session=%s err=%v", s.ID, err)
        return
    }
    id := s.ID
    e.appeals.OpenWindow(id, func() { e.onWindowExpired(id, seq) })
    e.eb.publish(Event{
        Type: EventFinalityWindowOpen, At: e.appeals.Now(),
        SessionID: s.ID, TaskID: s.Task.ID, Round: s.RoundCount(),
    })
}

// onWindowExpired finalizes or fails the session once its challenge window
// elapses without an appeal. A callback that lost the race against FileAppeal
// (even one already past CancelWindow's reach) is rejected by ResolveExpired's
// sequence check and leaves the appeal round undisturbed.
func (e *Engine) onWindowExpired(sessionID string, seq int) {
    s, err := e.store.Get(sessionID)
    if err != nil {
        return
    }
    latest := s.LatestRound()
    if latest == nil {
        return
    }
    if latest.Outcome == round.OutcomeAccepted {
        e.resolveExpired(s, seq, session.StateFinalized, latest.Value)
    } else {
        e.resolveExpired(s, seq, session.StateFailed, nil)
    }
}

func (e *Engine) resolve(s *session.Session, to session.State, value []byte) {
    if err := s.Resolve(to, value); err != nil {
        return
    }
    e.finish(s, to)
}

func (e *Engine) resolveExpired(s *session.Session, seq int, to session.State, value []byte) {
    if err := s.ResolveExpired(seq, to, value); err != nil {
        return
    }
    e.finish(s, to)
}

func (e *Engine) finish(s *session.Session, to session.State) {
    metrics.SessionsActive.Dec()
    e.store.Archive(s.ID)
    if to == session.StateFinalized {
        metrics.SessionsTotal.WithLabelValues("finalized").Inc()
        e.eb.publish(Event{Type: EventFinalized, At: e.appeals.Now(), SessionID: s.ID, TaskID: s.Task.ID, Round: s.RoundCount()})
        logutil.Infof(e.opts.Logger, "session finalized: session=%s task=%s rounds=%d", s.ID, s.Task.ID, s.RoundCount())
        return
    }
    metrics.SessionsTotal.WithLabelValues("failed").Inc()
    e.eb.publish(Event{
        Type: EventFailed, At: e.appeals.Now(),
        SessionID: s.ID, TaskID: s.Task.ID, Round: s.RoundCount(),
        Error: round.ErrConsensusNotReached.Error(),
    })
    logutil.Warnf(e.opts.Logger, "session failed: session=%s task=%s rounds=%d err=%v",
        s.ID, s.Task.ID, s.RoundCount(), round.ErrConsensusNotReached)
}

// failSession handles infrastructure failures before a round could complete.
func (e *Engine) failSession(s *session.Session, reason string) {
    logutil.Errorf(e.opts.Logger, "session aborted: session=%s task=%s reason=%s", s.ID, s.Task.ID, reason)
    if err := s.Transition(session.StateFailed); err != nil {
        return
    }
    metrics.SessionsActive.Dec()
    metrics.SessionsTotal.WithLabelValues("failed").Inc()
    e.store.Archive(s.ID)
    e.eb.publish(Event{Type: EventFailed, At: e.appeals.Now(), SessionID: s.ID, TaskID: s.Task.ID, Round: s.RoundCount(), Error: reason})
}
