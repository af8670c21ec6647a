package policy

import (
    "context"
    "sync"
)

// NonComparative has only the leader execute the task; each validator judges
// whether the leader's single output satisfies the task's acceptance
// criterion, without redoing the underlying work. Cheapest in execution cost,
// weakest guarantee.
type NonComparative struct {
    cfg   Config
    judge Judge
}

func (n *NonComparative) ValidatorsExecute() bool { return false }

func (n *NonComparative) Evaluate(ctx context.Context, in Input) (Decision, error) {
    if !in.Leader.Succeeded {
        return Decision{}, nil
    }
    criterion := in.Task.Params.Criterion

    var t Tally
    var wg sync.WaitGroup
    // One independent judge call per sampled validator; a non-deterministic
    // judge may well split its verdicts.
    for range in.Validators {
        wg.Add(1)
        go func() {
            defer wg.Done()
            j, err := n.judge.Assess(ctx, criterion, in.Leader.Value)
            if err != nil {
                t.Disagree()
                return
            }
            if j.Equivalent {
                t.Agree()
            } else {
                t.Disagree()
            }
        }()
    }
    wg.Wait()

    agreeing, tallied, _ := t.Counts()
    d := Decision{Agreeing: agreeing, Tallied: tallied}
    if t.Reached(n.cfg.fraction()) {
        d.Accepted = true
        d.Value = in.Leader.Value
    }
    return d, nil
}
