package policy

import (
    "context"
    "errors"
    "fmt"

    "github.com/amirimatin/go-ndconsensus/pkg/task"
)

var (
    // ErrInvalidPolicyConfig is returned when a task's policy kind or params
    // are malformed. It is surfaced at submission time, before any round runs.
    ErrInvalidPolicyConfig = errors.New("policy: invalid policy configuration")
)

// Input carries everything a policy needs to decide one round.
type Input struct {
    Task task.Task
    // Leader is the leader's execution result. It is reconciled like any
    // validator result but tallied separately.
    Leader task.ExecutionResult
    // Validators holds one entry per sampled validator. For non-comparative
    // policies the validators did not execute the task; their entries carry
    // only the participant ID.
    Validators []task.ExecutionResult
}

// Decision is the outcome of applying a policy to a round's results.
type Decision struct {
    // Accepted reports whether the required majority agreed.
    Accepted bool
    // Value is the synthesized agreed value when Accepted.
    Value []byte
    // Agreeing counts validators judged equivalent to (or accepting of) the
    // leader's output.
    Agreeing int
    // Tallied counts validators whose results entered the agreement tally;
    // timed-out and failed participants are excluded.
    Tallied int
}

// Policy decides whether a round's per-participant results constitute
// sufficient agreement, and synthesizes the agreed value.
type Policy interface {
    // ValidatorsExecute reports whether sampled validators must run the task
    // themselves. Non-comparative validators only judge the leader's output.
    ValidatorsExecute() bool
    // Evaluate applies the equivalence strategy to one round's results. It
    // never returns an error for per-participant failures; those are
    // absorbed into the tally.
    Evaluate(ctx context.Context, in Input) (Decision, error)
}

// Config holds policy tuning shared by all variants.
type Config struct {
    // MajorityFraction is the fraction of tallied validators that must be
    // strictly exceeded for acceptance. Zero means the default simple
    // majority (0.5).
    MajorityFraction float64
}

func (c Config) fraction() float64 {
    if c.MajorityFraction <= 0 || c.MajorityFraction >= 1 {
        return 0.5
    }
    return c.MajorityFraction
}

// New builds the policy for a task's kind and params. judge may be nil for
// strict tasks and for comparative tasks that rely purely on a numeric
// tolerance.
func New(kind task.PolicyKind, params task.PolicyParams, judge Judge, cfg Config) (Policy, error) {
    if err := Validate(kind, params, judge != nil); err != nil {
        return nil, err
    }
    switch kind {
    case task.PolicyStrict:
        return &Strict{cfg: cfg}, nil
    case task.PolicyComparative:
        return &Comparative{cfg: cfg, judge: judge}, nil
    case task.PolicyNonComparative:
        return &NonComparative{cfg: cfg, judge: judge}, nil
    }
    // Unreachable given Validate, kept for safety.
    return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidPolicyConfig, kind)
}

// Validate checks a task's policy configuration without building the policy.
// judgeAvailable reports whether the engine has a judge wired; kinds that
// depend on one are rejected up front when it is missing.
func Validate(kind task.PolicyKind, params task.PolicyParams, judgeAvailable bool) error {
    switch kind {
    case task.PolicyStrict:
        return nil
    case task.PolicyComparative:
        if params.Tolerance < 0 {
            return fmt.Errorf("%w: negative tolerance", ErrInvalidPolicyConfig)
        }
        if params.Criterion == "" && params.Tolerance == 0 {
            return fmt.Errorf("%w: comparative policy needs a criterion or a tolerance", ErrInvalidPolicyConfig)
        }
        if params.Criterion != "" && !judgeAvailable {
            return fmt.Errorf("%w: comparative criterion requires a judge", ErrInvalidPolicyConfig)
        }
        return nil
    case task.PolicyNonComparative:
        if params.Criterion == "" {
            return fmt.Errorf("%w: non-comparative policy needs an acceptance criterion", ErrInvalidPolicyConfig)
        }
        if !judgeAvailable {
            return fmt.Errorf("%w: non-comparative policy requires a judge", ErrInvalidPolicyConfig)
        }
        return nil
    default:
        return fmt.Errorf("%w: unknown kind %q", ErrInvalidPolicyConfig, kind)
    }
}
