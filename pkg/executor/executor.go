package executor

import (
    "context"
    "fmt"
    "log"
    "time"

    "github.com/amirimatin/go-ndconsensus/pkg/internal/logutil"
    "github.com/amirimatin/go-ndconsensus/pkg/task"
)

// Func is the caller-supplied computation: it performs the (possibly
// non-deterministic) work for a task and returns the raw result value as
// JSON. The engine canonicalizes the value before it enters any comparison.
type Func func(ctx context.Context, t task.Task) ([]byte, error)

// Executor runs a task once on behalf of one participant and captures the
// outcome deterministically packaged for comparison. Implementations must be
// safe for concurrent use: a round runs one execution per participant in
// parallel, and no execution may observe another's in-flight result.
type Executor interface {
    Execute(ctx context.Context, participantID string, t task.Task) task.ExecutionResult
}

// Options configures the Func-backed executor.
type Options struct {
    // Timeout is the default per-execution wall-clock budget. A task's own
    // ExecTimeout takes precedence when set. Zero means DefaultTimeout.
    Timeout time.Duration
    // Logger is optional; log.Default() is used when nil.
    Logger *log.Logger
}

// DefaultTimeout bounds a single execution when neither the executor options
// nor the task specify one.
const DefaultTimeout = 30 * time.Second

type funcExecutor struct {
    fn     Func
    opts   Options
}

// New wraps a computation closure into an Executor that enforces the
// wall-clock timeout, absorbs panics and errors into failed results, and
// canonicalizes successful output. A nil fn yields an executor whose every
// result is a failure.
func New(fn Func, opts Options) Executor {
    if opts.Logger == nil { opts.Logger = log.Default() }
    if opts.Timeout <= 0 { opts.Timeout = DefaultTimeout }
    return &funcExecutor{fn: fn, opts: opts}
}

func (e *funcExecutor) Execute(ctx context.Context, participantID string, t task.Task) task.ExecutionResult {
    if e.fn == nil {
        return task.Failure(participantID, t.ID, task.ErrorFailure, "no executor backend configured")
    }
    timeout := e.opts.Timeout
    if t.ExecTimeout > 0 { timeout = t.ExecTimeout }
    ctx, cancel := context.WithTimeout(ctx, timeout)
    defer cancel()

    type outcome struct {
        raw []byte
        err error
    }
    // The backend runs in its own goroutine so a computation that ignores
    // ctx still cannot stall the round past the wall-clock budget.
    done := make(chan outcome, 1)
    go func() {
        defer func() {
            if r := recover(); r != nil {
                done <- outcome{err: fmt.Errorf("executor backend panic: %v", r)}
            }
        }()
        raw, err := e.fn(ctx, t)
        done <- outcome{raw: raw, err: err}
    }()

    select {
    case <-ctx.Done():
        logutil.Warnf(e.opts.Logger, "execution timed out: task=%s participant=%s after=%s", t.ID, participantID, timeout)
        return task.Failure(participantID, t.ID, task.ErrorTimeout, ctx.Err().Error())
    case out := <-done:
        if out.err != nil {
            // Failures surface as-is; a prior value is never substituted.
            return task.Failure(participantID, t.ID, task.ErrorFailure, out.err.Error())
        }
        value, err := task.Canonicalize(out.raw)
        if err != nil {
            // Non-canonicalizable output is a contract violation by the
            // backend, not a stylistic concern.
            logutil.Errorf(e.opts.Logger, "non-canonical executor output: task=%s participant=%s err=%v", t.ID, participantID, err)
            return task.Failure(participantID, t.ID, task.ErrorFailure, fmt.Sprintf("non-canonical output: %v", err))
        }
        return task.ExecutionResult{
            ParticipantID: participantID,
            TaskID:        t.ID,
            Value:         value,
            Succeeded:     true,
        }
    }
}
