package policy

import (
    "context"
    "math"
    "strconv"
    "sync"

    "github.com/amirimatin/go-ndconsensus/pkg/task"
)

// Comparative has every validator independently re-execute the work, then
// scores each validator's result against the leader's for closeness. Numeric
// outputs within the configured tolerance agree without consulting the judge;
// everything else is a judge call per the task's criterion.
type Comparative struct {
    cfg   Config
    judge Judge
}

func (c *Comparative) ValidatorsExecute() bool { return true }

func (c *Comparative) Evaluate(ctx context.Context, in Input) (Decision, error) {
    if !in.Leader.Succeeded {
        return Decision{Tallied: countSucceeded(in.Validators)}, nil
    }
    tol := in.Task.Params.Tolerance
    criterion := in.Task.Params.Criterion

    var t Tally
    var wg sync.WaitGroup
    for _, v := range in.Validators {
        if !v.Succeeded {
            t.Exclude()
            continue
        }
        if tol > 0 {
            if lf, vf, ok := asNumbers(in.Leader.Value, v.Value); ok {
                if math.Abs(lf-vf) <= tol {
                    t.Agree()
                } else {
                    t.Disagree()
                }
                continue
            }
            if criterion == "" {
                // Tolerance-only task with non-numeric output: no basis for
                // closeness, count as disagreement.
                t.Disagree()
                continue
            }
        }
        wg.Add(1)
        go func(v task.ExecutionResult) {
            defer wg.Done()
            j, err := c.judge.Compare(ctx, criterion, in.Leader.Value, v.Value)
            if err != nil {
                // A failed judgment never accepts on the validator's behalf.
                t.Disagree()
                return
            }
            if j.Equivalent {
                t.Agree()
            } else {
                t.Disagree()
            }
        }(v)
    }
    wg.Wait()

    agreeing, tallied, _ := t.Counts()
    d := Decision{Agreeing: agreeing, Tallied: tallied}
    if t.Reached(c.cfg.fraction()) {
        d.Accepted = true
        d.Value = in.Leader.Value
    }
    return d, nil
}

func asNumbers(a, b []byte) (float64, float64, bool) {
    af, err := strconv.ParseFloat(string(a), 64)
    if err != nil {
        return 0, 0, false
    }
    bf, err := strconv.ParseFloat(string(b), 64)
    if err != nil {
        return 0, 0, false
    }
    return af, bf, true
}
