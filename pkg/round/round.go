package round

import (
    "encoding/json"
    "time"

    "github.com/amirimatin/go-ndconsensus/pkg/task"
)

// Outcome is the resolution of one round.
type Outcome string

const (
    OutcomePending  Outcome = "pending"
    OutcomeAccepted Outcome = "accepted"
    OutcomeRejected Outcome = "rejected"
)

// Round records one attempt to reach agreement on a task. It is created by
// the Coordinator and becomes immutable once its outcome is set.
type Round struct {
    // Number starts at 1 and increases with every appeal.
    Number int `json:"number"`
    TaskID string `json:"taskId"`
    // LeaderID executed the task first; it is never counted among the
    // validator set for majority computation.
    LeaderID string `json:"leaderId"`
    // ValidatorSet lists the sampled validators in selection order.
    ValidatorSet []string `json:"validatorSet"`
    // RegistryVersion is the population version the sample was drawn from.
    RegistryVersion uint64 `json:"registryVersion"`
    // Results holds the captured execution result per executing participant.
    // Non-comparative rounds carry only the leader's entry.
    Results map[string]task.ExecutionResult `json:"-"`
    Outcome Outcome `json:"outcome"`
    // Value is the synthesized agreed value when the round was accepted.
    Value json.RawMessage `json:"value,omitempty"`
    // Agreeing / Tallied mirror the policy decision for observability.
    Agreeing int `json:"agreeing"`
    Tallied  int `json:"tallied"`

    StartedAt   time.Time `json:"startedAt"`
    CompletedAt time.Time `json:"completedAt"`
}
