package engine

import "errors"

var (
    ErrNotStarted  = errors.New("engine: not started")
    ErrClosed      = errors.New("engine: closed")
    ErrInvalidTask = errors.New("engine: invalid task")
)
