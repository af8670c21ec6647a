package round

import (
    "context"
    "errors"
    "log"
    "math/rand"
    "sync"
    "time"

    "github.com/amirimatin/go-ndconsensus/pkg/appeal"
    "github.com/amirimatin/go-ndconsensus/pkg/executor"
    "github.com/amirimatin/go-ndconsensus/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-ndconsensus/pkg/observability/metrics"
    "github.com/amirimatin/go-ndconsensus/pkg/observability/tracing"
    "github.com/amirimatin/go-ndconsensus/pkg/policy"
    "github.com/amirimatin/go-ndconsensus/pkg/registry"
    "github.com/amirimatin/go-ndconsensus/pkg/task"
)

// Options carries the Coordinator's injected collaborators and tuning.
type Options struct {
    // Executor runs the task for each participant. Required.
    Executor executor.Executor
    // Registry provides the eligible participant population. Required.
    Registry registry.Registry
    // Timeout bounds one round from dispatch to tally. A participant that
    // has not reported by then is excluded from the tally rather than
    // permitted to stall the round. Zero means DefaultTimeout.
    Timeout time.Duration
    // Logger is used for operational messages.
    Logger *log.Logger
    // Rand, when set, makes leader/validator sampling deterministic (tests).
    Rand *rand.Rand
    // Clock provides the round deadline timer and timestamps. Defaults to
    // the system clock.
    Clock appeal.Clock
}

// DefaultTimeout is the round-level deadline when Options.Timeout is zero.
const DefaultTimeout = 60 * time.Second

// Validate checks required collaborators.
func (o Options) Validate() error {
    if o.Executor == nil {
        return errors.New("round: nil Executor")
    }
    if o.Registry == nil {
        return errors.New("round: nil Registry")
    }
    return nil
}

// Coordinator orchestrates single consensus rounds: it samples leader and
// validators, fans execution out concurrently, applies the task's equivalence
// policy and records the round outcome.
type Coordinator struct {
    opts Options

    mu  sync.Mutex // guards rnd
    rnd *rand.Rand
}

// NewCoordinator constructs a Coordinator from validated options.
func NewCoordinator(opts Options) (*Coordinator, error) {
    if err := opts.Validate(); err != nil {
        return nil, err
    }
    if opts.Logger == nil { opts.Logger = log.Default() }
    if opts.Timeout <= 0 { opts.Timeout = DefaultTimeout }
    if opts.Clock == nil { opts.Clock = appeal.SystemClock() }
    rnd := opts.Rand
    if rnd == nil {
        rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
    }
    return &Coordinator{opts: opts, rnd: rnd}, nil
}

// Run executes one consensus round for the task. validators is the requested
// validator-set size (capped at population minus the leader); excludeLeader
// names the previous round's leader, which is not eligible for re-selection.
// The returned round always carries a final outcome; an error is returned
// only when no round could be formed at all.
func (c *Coordinator) Run(ctx context.Context, t task.Task, pol policy.Policy, number, validators int, excludeLeader string) (*Round, error) {
    ctx, end := tracing.StartSpan(ctx, "round.run")
    defer end()

    parts := c.opts.Registry.Participants()
    if len(parts) < 2 {
        return nil, ErrInsufficientParticipants
    }

    c.mu.Lock()
    leader := pickLeader(parts, excludeLeader, c.rnd)
    valSet := sampleValidators(parts, leader.ID, validators, c.rnd)
    c.mu.Unlock()
    if len(valSet) == 0 {
        return nil, ErrInsufficientParticipants
    }

    r := &Round{
        Number:          number,
        TaskID:          t.ID,
        LeaderID:        leader.ID,
        ValidatorSet:    valSet,
        RegistryVersion: c.opts.Registry.Version(),
        Results:         make(map[string]task.ExecutionResult, len(valSet)+1),
        Outcome:         OutcomePending,
        StartedAt:       c.opts.Clock.Now(),
    }
    obsmetrics.ValidatorSetSize.Set(float64(len(valSet)))
    logutil.Infof(c.opts.Logger, "round started: task=%s round=%d leader=%s validators=%d policy=%s",
        t.ID, number, leader.ID, len(valSet), t.Policy)

    // Everyone executes independently and concurrently; nobody observes
    // another's in-flight result before publishing its own.
    executing := []string{leader.ID}
    if pol.ValidatorsExecute() {
        executing = append(executing, valSet...)
    }
    rctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
    defer cancel()
    resCh := make(chan task.ExecutionResult, len(executing))
    for _, id := range executing {
        go func(id string) {
            resCh <- c.opts.Executor.Execute(rctx, id, t)
        }(id)
    }

    timedOut := make(chan struct{})
    deadline := c.opts.Clock.AfterFunc(c.opts.Timeout, func() { close(timedOut) })
    defer deadline.Stop()
collect:
    for range executing {
        select {
        case res := <-resCh:
            r.Results[res.ParticipantID] = res
        case <-timedOut:
            break collect
        case <-ctx.Done():
            break collect
        }
    }
    // A participant that never reported is tallied as timed out.
    for _, id := range executing {
        if _, ok := r.Results[id]; !ok {
            r.Results[id] = task.Failure(id, t.ID, task.ErrorTimeout, "no result within round timeout")
        }
    }
    for _, res := range r.Results {
        if !res.Succeeded {
            obsmetrics.ParticipantFailures.WithLabelValues(string(res.Error)).Inc()
            logutil.Warnf(c.opts.Logger, "participant excluded from tally: task=%s round=%d participant=%s kind=%s detail=%s",
                t.ID, number, res.ParticipantID, res.Error, res.Detail)
        }
    }

    in := policy.Input{Task: t, Leader: r.Results[leader.ID]}
    for _, id := range valSet {
        if pol.ValidatorsExecute() {
            in.Validators = append(in.Validators, r.Results[id])
        } else {
            // The validator did not run the task; it only contributes a
            // judgment about the leader's output.
            in.Validators = append(in.Validators, task.ExecutionResult{ParticipantID: id, TaskID: t.ID, Succeeded: true})
        }
    }

    dec, err := pol.Evaluate(rctx, in)
    if err != nil {
        return nil, err
    }
    r.Agreeing = dec.Agreeing
    r.Tallied = dec.Tallied
    r.CompletedAt = c.opts.Clock.Now()
    if dec.Accepted {
        r.Outcome = OutcomeAccepted
        r.Value = dec.Value
    } else {
        r.Outcome = OutcomeRejected
    }

    obsmetrics.RoundsTotal.WithLabelValues(string(r.Outcome)).Inc()
    obsmetrics.RoundDuration.Observe(r.CompletedAt.Sub(r.StartedAt).Seconds())
    logutil.Infof(c.opts.Logger, "round completed: task=%s round=%d outcome=%s agreeing=%d tallied=%d",
        t.ID, number, r.Outcome, r.Agreeing, r.Tallied)
    return r, nil
}
