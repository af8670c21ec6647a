package policy

import "context"

// Judgment is one validator-side verdict about the leader's output.
type Judgment struct {
    // Equivalent (comparative) or Satisfied (non-comparative); a single flag
    // keeps the tally uniform across variants.
    Equivalent bool    `json:"equivalent"`
    Confidence float64 `json:"confidence,omitempty"`
    Reason     string  `json:"reason,omitempty"`
}

// Judge performs the model-backed judgment calls referenced by comparative
// and non-comparative policies. Implementations must be safe for concurrent
// use; the policies issue one call per validator in parallel.
type Judge interface {
    // Compare scores a candidate result against the leader's result per the
    // supplied closeness criterion.
    Compare(ctx context.Context, criterion string, leader, candidate []byte) (Judgment, error)
    // Assess decides whether the leader's single output satisfies the
    // supplied acceptance criterion.
    Assess(ctx context.Context, criterion string, value []byte) (Judgment, error)
}
