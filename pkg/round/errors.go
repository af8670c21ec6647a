package round

import "errors"

var (
    ErrInsufficientParticipants = errors.New("round: not enough participants to form a round")
    ErrConsensusNotReached      = errors.New("round: consensus not reached")
)
