package round

import (
    "context"
    "log"
    "math/rand"
    "sync"
    "testing"
    "time"

    "github.com/amirimatin/go-ndconsensus/pkg/appeal"
    "github.com/amirimatin/go-ndconsensus/pkg/executor"
    "github.com/amirimatin/go-ndconsensus/pkg/policy"
    "github.com/amirimatin/go-ndconsensus/pkg/registry/static"
    "github.com/amirimatin/go-ndconsensus/pkg/task"
)

// fakeExec returns a canned value per participant and tracks who executed.
type fakeExec struct {
    mu     sync.Mutex
    values map[string]string // participantID -> value; default "default"
    delays map[string]time.Duration
    ran    map[string]bool
}

func newFakeExec() *fakeExec {
    return &fakeExec{values: map[string]string{}, delays: map[string]time.Duration{}, ran: map[string]bool{}}
}

func (f *fakeExec) Execute(ctx context.Context, id string, t task.Task) task.ExecutionResult {
    f.mu.Lock()
    f.ran[id] = true
    v, ok := f.values[id]
    d := f.delays[id]
    f.mu.Unlock()
    if d > 0 {
        select {
        case <-time.After(d):
        case <-ctx.Done():
            return task.Failure(id, t.ID, task.ErrorTimeout, ctx.Err().Error())
        }
    }
    if !ok {
        v = `"default"`
    }
    return task.ExecutionResult{ParticipantID: id, TaskID: t.ID, Value: []byte(v), Succeeded: true}
}

func (f *fakeExec) executed(id string) bool {
    f.mu.Lock()
    defer f.mu.Unlock()
    return f.ran[id]
}

var _ executor.Executor = (*fakeExec)(nil)

func newCoordinator(t *testing.T, exec executor.Executor, ids []string, timeout time.Duration) *Coordinator {
    t.Helper()
    c, err := NewCoordinator(Options{
        Executor: exec,
        Registry: static.New(ids...),
        Timeout:  timeout,
        Logger:   log.Default(),
        Rand:     rand.New(rand.NewSource(1)),
    })
    if err != nil {
        t.Fatalf("new coordinator: %v", err)
    }
    return c
}

func strictPolicy(t *testing.T) policy.Policy {
    t.Helper()
    p, err := policy.New(task.PolicyStrict, task.PolicyParams{}, nil, policy.Config{})
    if err != nil {
        t.Fatalf("policy: %v", err)
    }
    return p
}

func TestRun_AllAgreeAccepts(t *testing.T) {
    exec := newFakeExec()
    c := newCoordinator(t, exec, []string{"a", "b", "c", "d", "e"}, time.Second)
    r, err := c.Run(context.Background(), task.Task{ID: "t1"}, strictPolicy(t), 1, 4, "")
    if err != nil {
        t.Fatalf("run: %v", err)
    }
    if r.Outcome != OutcomeAccepted {
        t.Fatalf("outcome: %s (agreeing=%d tallied=%d)", r.Outcome, r.Agreeing, r.Tallied)
    }
    if string(r.Value) != `"default"` {
        t.Fatalf("value: %s", r.Value)
    }
    if len(r.ValidatorSet) != 4 {
        t.Fatalf("validator set: %v", r.ValidatorSet)
    }
    for _, id := range r.ValidatorSet {
        if id == r.LeaderID {
            t.Fatalf("leader %s in validator set", r.LeaderID)
        }
    }
    if len(r.Results) != 5 {
        t.Fatalf("expected 5 results, got %d", len(r.Results))
    }
}

func TestRun_DisagreementRejects(t *testing.T) {
    exec := newFakeExec()
    // Every participant answers differently; nobody can match the leader.
    for _, id := range []string{"a", "b", "c", "d", "e"} {
        exec.values[id] = `"` + id + `"`
    }
    c := newCoordinator(t, exec, []string{"a", "b", "c", "d", "e"}, time.Second)
    r, err := c.Run(context.Background(), task.Task{ID: "t1"}, strictPolicy(t), 1, 4, "")
    if err != nil {
        t.Fatalf("run: %v", err)
    }
    if r.Outcome != OutcomeRejected {
        t.Fatalf("outcome: %s", r.Outcome)
    }
    if r.Value != nil {
        t.Fatalf("rejected round must carry no value")
    }
}

func TestRun_SlowParticipantExcluded(t *testing.T) {
    exec := newFakeExec()
    exec.delays["c"] = 2 * time.Second
    c := newCoordinator(t, exec, []string{"a", "b", "c", "d", "e"}, 100*time.Millisecond)
    // Keep the slow participant out of leadership so it lands in the
    // validator set, where exclusion semantics apply.
    r, err := c.Run(context.Background(), task.Task{ID: "t1"}, strictPolicy(t), 1, 4, "c")
    if err != nil {
        t.Fatalf("run: %v", err)
    }
    if r.Outcome != OutcomeAccepted {
        t.Fatalf("outcome: %s (agreeing=%d tallied=%d)", r.Outcome, r.Agreeing, r.Tallied)
    }
    res, ok := r.Results["c"]
    if !ok {
        t.Fatalf("missing result entry for slow participant")
    }
    if res.Succeeded || res.Error != task.ErrorTimeout {
        t.Fatalf("slow participant should be a timeout failure: %+v", res)
    }
    // 3 agreeing of 3 tallied (c excluded); leader is tallied separately.
    if r.Tallied != 3 || r.Agreeing != 3 {
        t.Fatalf("tally: agreeing=%d tallied=%d", r.Agreeing, r.Tallied)
    }
}

func TestRun_PreviousLeaderNotReselected(t *testing.T) {
    exec := newFakeExec()
    c := newCoordinator(t, exec, []string{"a", "b"}, time.Second)
    for i := 0; i < 10; i++ {
        r, err := c.Run(context.Background(), task.Task{ID: "t1"}, strictPolicy(t), 1, 1, "a")
        if err != nil {
            t.Fatalf("run: %v", err)
        }
        if r.LeaderID != "b" {
            t.Fatalf("excluded leader was re-selected: %s", r.LeaderID)
        }
        if len(r.ValidatorSet) != 1 || r.ValidatorSet[0] != "a" {
            t.Fatalf("validator set: %v", r.ValidatorSet)
        }
    }
}

// assentingJudge accepts everything; it stands in for a model-backed judge.
type assentingJudge struct{}

func (assentingJudge) Compare(context.Context, string, []byte, []byte) (policy.Judgment, error) {
    return policy.Judgment{Equivalent: true, Confidence: 1}, nil
}
func (assentingJudge) Assess(context.Context, string, []byte) (policy.Judgment, error) {
    return policy.Judgment{Equivalent: true, Confidence: 1}, nil
}

func TestRun_NonComparativeSkipsValidatorExecution(t *testing.T) {
    exec := newFakeExec()
    params := task.PolicyParams{Criterion: "acceptable answer"}
    pol, err := policy.New(task.PolicyNonComparative, params, assentingJudge{}, policy.Config{})
    if err != nil {
        t.Fatalf("policy: %v", err)
    }
    c := newCoordinator(t, exec, []string{"a", "b", "c", "d"}, time.Second)
    r, err := c.Run(context.Background(), task.Task{ID: "t1", Policy: task.PolicyNonComparative, Params: params}, pol, 1, 3, "")
    if err != nil {
        t.Fatalf("run: %v", err)
    }
    if r.Outcome != OutcomeAccepted {
        t.Fatalf("outcome: %s", r.Outcome)
    }
    if !exec.executed(r.LeaderID) {
        t.Fatalf("leader did not execute")
    }
    for _, id := range r.ValidatorSet {
        if exec.executed(id) {
            t.Fatalf("validator %s executed a non-comparative task", id)
        }
    }
}

// manualClock drives the round deadline by hand.
type manualClock struct {
    mu     sync.Mutex
    now    time.Time
    timers []*manualTimer
}

type manualTimer struct {
    c       *manualClock
    at      time.Time
    fn      func()
    stopped bool
    fired   bool
}

func newManualClock() *manualClock { return &manualClock{now: time.Unix(500, 0)} }

func (c *manualClock) Now() time.Time {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, fn func()) appeal.Timer {
    c.mu.Lock()
    mt := &manualTimer{c: c, at: c.now.Add(d), fn: fn}
    c.timers = append(c.timers, mt)
    c.mu.Unlock()
    return mt
}

func (t *manualTimer) Stop() bool {
    t.c.mu.Lock()
    defer t.c.mu.Unlock()
    if t.fired || t.stopped {
        return false
    }
    t.stopped = true
    return true
}

func (c *manualClock) Advance(d time.Duration) {
    c.mu.Lock()
    c.now = c.now.Add(d)
    var due []*manualTimer
    for _, t := range c.timers {
        if !t.stopped && !t.fired && !t.at.After(c.now) {
            t.fired = true
            due = append(due, t)
        }
    }
    c.mu.Unlock()
    for _, t := range due {
        t.fn()
    }
}

func (c *manualClock) pending() int {
    c.mu.Lock()
    defer c.mu.Unlock()
    n := 0
    for _, t := range c.timers {
        if !t.stopped && !t.fired {
            n++
        }
    }
    return n
}

// blockingExec never reports; participants hold until the round context ends.
type blockingExec struct{}

func (blockingExec) Execute(ctx context.Context, id string, t task.Task) task.ExecutionResult {
    <-ctx.Done()
    return task.Failure(id, t.ID, task.ErrorTimeout, ctx.Err().Error())
}

func TestRun_DeadlineComesFromClock(t *testing.T) {
    clk := newManualClock()
    c, err := NewCoordinator(Options{
        Executor: blockingExec{},
        Registry: static.New("a", "b", "c", "d", "e"),
        Timeout:  time.Hour,
        Logger:   log.Default(),
        Rand:     rand.New(rand.NewSource(1)),
        Clock:    clk,
    })
    if err != nil {
        t.Fatalf("new coordinator: %v", err)
    }
    pol := strictPolicy(t)

    type outcome struct {
        r   *Round
        err error
    }
    done := make(chan outcome, 1)
    go func() {
        r, err := c.Run(context.Background(), task.Task{ID: "t1"}, pol, 1, 4, "")
        done <- outcome{r, err}
    }()

    // Wait for the round to arm its deadline timer, then advance past it.
    waitUntil := time.Now().Add(2 * time.Second)
    for clk.pending() == 0 && time.Now().Before(waitUntil) {
        time.Sleep(2 * time.Millisecond)
    }
    if clk.pending() == 0 {
        t.Fatalf("deadline timer never armed")
    }
    clk.Advance(2 * time.Hour)

    select {
    case out := <-done:
        if out.err != nil {
            t.Fatalf("run: %v", out.err)
        }
        if out.r.Outcome != OutcomeRejected {
            t.Fatalf("outcome: %s", out.r.Outcome)
        }
        for id, res := range out.r.Results {
            if res.Succeeded || res.Error != task.ErrorTimeout {
                t.Fatalf("participant %s should be a timeout failure: %+v", id, res)
            }
        }
        if !out.r.CompletedAt.After(out.r.StartedAt) {
            t.Fatalf("timestamps not clock-driven: started=%v completed=%v", out.r.StartedAt, out.r.CompletedAt)
        }
    case <-time.After(2 * time.Second):
        t.Fatalf("round did not conclude after the clock passed its deadline")
    }
}

func TestRun_InsufficientParticipants(t *testing.T) {
    c := newCoordinator(t, newFakeExec(), []string{"only"}, time.Second)
    if _, err := c.Run(context.Background(), task.Task{ID: "t1"}, strictPolicy(t), 1, 4, ""); err != ErrInsufficientParticipants {
        t.Fatalf("expected ErrInsufficientParticipants, got %v", err)
    }
}
