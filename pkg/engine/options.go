package engine

import (
    "errors"
    "log"
    "math/rand"
    "time"

    "github.com/amirimatin/go-ndconsensus/pkg/appeal"
    "github.com/amirimatin/go-ndconsensus/pkg/executor"
    "github.com/amirimatin/go-ndconsensus/pkg/policy"
    "github.com/amirimatin/go-ndconsensus/pkg/registry"
)

// Options carries dependency-injected collaborators and runtime configuration
// used to assemble the engine facade. Instances are typically produced from
// bootstrap.Config.
type Options struct {
    // Executor runs task computations for every participant. Required.
    Executor executor.Executor
    // Registry provides the eligible-participant population. Required.
    Registry registry.Registry
    // Judge performs model-backed judgments for comparative and
    // non-comparative tasks. Optional; tasks whose policy depends on a judge
    // are rejected at submission when none is wired.
    Judge policy.Judge
    // Logger is used by the engine to report operational messages. Required.
    Logger *log.Logger

    // InitialValidators is the validator-set size of a session's first
    // round. Default 4.
    InitialValidators int
    // RoundTimeout bounds each round from dispatch to tally.
    RoundTimeout time.Duration
    // FinalityWindow is how long an accepted (or appealable rejected)
    // outcome remains challengeable.
    FinalityWindow time.Duration
    // MaxAppeals caps appeals per session; zero derives the cap from the
    // population size.
    MaxAppeals int
    // EscalationFactor multiplies the validator-set size per appeal
    // (default 2, i.e. doubling).
    EscalationFactor int
    // MajorityFraction is the fraction of tallied validators that must be
    // strictly exceeded for acceptance (default 0.5).
    MajorityFraction float64
    // MaxArchive bounds retained finalized/failed sessions.
    MaxArchive int

    // Clock drives finality-window timers; the system clock when nil.
    Clock appeal.Clock
    // Rand makes leader/validator sampling deterministic when set (tests).
    Rand *rand.Rand
}

// Validate performs a minimal validation of Options. It does not start any
// background work and is safe to call before New.
func (o Options) Validate() error {
    if o.Executor == nil {
        return errors.New("engine: nil Executor")
    }
    if o.Registry == nil {
        return errors.New("engine: nil Registry")
    }
    if o.Logger == nil {
        return errors.New("engine: nil Logger")
    }
    if o.InitialValidators < 0 {
        return errors.New("engine: negative InitialValidators")
    }
    if o.MajorityFraction < 0 || o.MajorityFraction >= 1 {
        if o.MajorityFraction != 0 {
            return errors.New("engine: MajorityFraction must be in (0,1)")
        }
    }
    return nil
}

// DefaultInitialValidators is the first-round validator-set size when
// Options.InitialValidators is zero.
const DefaultInitialValidators = 4
