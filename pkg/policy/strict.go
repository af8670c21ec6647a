package policy

import (
    "bytes"
    "context"

    "github.com/amirimatin/go-ndconsensus/pkg/task"
)

// Strict accepts a round only when the canonical value of every agreeing
// validator is byte-identical to the leader's. Cheapest and most precise;
// suited to tasks with a small, enumerable output space.
type Strict struct {
    cfg Config
}

func (s *Strict) ValidatorsExecute() bool { return true }

func (s *Strict) Evaluate(_ context.Context, in Input) (Decision, error) {
    if !in.Leader.Succeeded {
        // Without a leader value there is nothing to agree on.
        return Decision{Tallied: countSucceeded(in.Validators)}, nil
    }
    var t Tally
    for _, v := range in.Validators {
        if !v.Succeeded {
            t.Exclude()
            continue
        }
        if bytes.Equal(v.Value, in.Leader.Value) {
            t.Agree()
        } else {
            t.Disagree()
        }
    }
    agreeing, tallied, _ := t.Counts()
    d := Decision{Agreeing: agreeing, Tallied: tallied}
    if t.Reached(s.cfg.fraction()) {
        d.Accepted = true
        d.Value = in.Leader.Value
    }
    return d, nil
}

func countSucceeded(rs []task.ExecutionResult) int {
    n := 0
    for _, r := range rs {
        if r.Succeeded { n++ }
    }
    return n
}
