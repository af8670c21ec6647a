package task

import (
    "encoding/json"
    "time"
)

// PolicyKind selects the equivalence-checking strategy applied to the
// per-participant execution results of a round.
type PolicyKind string

const (
    // PolicyStrict requires canonical byte equality between leader and
    // validator outputs.
    PolicyStrict PolicyKind = "strict"
    // PolicyComparative has every validator re-execute the work and judges
    // each result against the leader's per a supplied criterion.
    PolicyComparative PolicyKind = "comparative"
    // PolicyNonComparative has only the leader execute; validators judge the
    // leader's single output against an acceptance rubric.
    PolicyNonComparative PolicyKind = "noncomparative"
)

// PolicyParams carries free-form configuration for the chosen policy.
type PolicyParams struct {
    // Criterion is a natural-language equivalence criterion (comparative) or
    // acceptance rubric (non-comparative), evaluated by a judge.
    Criterion string `json:"criterion,omitempty"`
    // Tolerance, when > 0, lets comparative checks accept numeric outputs
    // whose absolute difference is within the tolerance, without consulting
    // a judge.
    Tolerance float64 `json:"tolerance,omitempty"`
}

// Task is an immutable description of one unit of non-deterministic work. It
// is created by the submitting caller and never mutated by the engine.
type Task struct {
    // ID uniquely identifies the task and doubles as the submission
    // idempotency key.
    ID string `json:"id"`
    // Payload is the opaque input handed to the executor backend.
    Payload json.RawMessage `json:"payload,omitempty"`
    // Policy selects the equivalence strategy for this task.
    Policy PolicyKind `json:"policy"`
    // Params configures the selected policy.
    Params PolicyParams `json:"params,omitempty"`
    // ExecTimeout overrides the engine's default per-execution wall-clock
    // timeout when > 0.
    ExecTimeout time.Duration `json:"execTimeout,omitempty"`
}

// ErrorKind classifies a failed execution for tallying purposes.
type ErrorKind string

const (
    // ErrorNone marks a successful execution.
    ErrorNone ErrorKind = ""
    // ErrorTimeout marks an execution that exceeded its wall-clock budget.
    ErrorTimeout ErrorKind = "timeout"
    // ErrorFailure marks an execution that returned an error or produced
    // output that could not be canonicalized.
    ErrorFailure ErrorKind = "failure"
)

// ExecutionResult is the captured outcome of one executor run for one task by
// one participant. Value is always in canonical form (see Canonicalize) so
// that byte comparison is meaningful.
type ExecutionResult struct {
    ParticipantID string          `json:"participantId"`
    TaskID        string          `json:"taskId"`
    Value         json.RawMessage `json:"value,omitempty"`
    Succeeded     bool            `json:"succeeded"`
    Error         ErrorKind       `json:"error,omitempty"`
    // Detail carries a human-readable failure description for logs. It never
    // participates in equivalence comparison.
    Detail string `json:"detail,omitempty"`
}

// Failure constructs a failed result for a participant.
func Failure(participantID, taskID string, kind ErrorKind, detail string) ExecutionResult {
    return ExecutionResult{
        ParticipantID: participantID,
        TaskID:        taskID,
        Succeeded:     false,
        Error:         kind,
        Detail:        detail,
    }
}
