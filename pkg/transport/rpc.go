package transport

import "context"

// StatusFunc returns a JSON-encoded engine status payload for management
// /status. Using []byte avoids import cycles on engine types.
type StatusFunc func(ctx context.Context) ([]byte, error)

// SubmitRequest carries a task submission. Payload and policy parameters are
// forwarded verbatim to the engine.
type SubmitRequest struct {
    TaskID      string  `json:"taskId"`
    Payload     []byte  `json:"payload"`
    Policy      string  `json:"policy"`
    Criterion   string  `json:"criterion,omitempty"`
    Tolerance   float64 `json:"tolerance,omitempty"`
    ExecTimeout int64   `json:"execTimeoutMs,omitempty"`
}

// SubmitResponse returns the session handle assigned to the task.
type SubmitResponse struct {
    SessionID string `json:"sessionId"`
    Error     string `json:"error,omitempty"`
}

// SubmitFunc handles task submissions.
type SubmitFunc func(ctx context.Context, req SubmitRequest) (SubmitResponse, error)

// SessionRequest looks up a session by ID.
type SessionRequest struct {
    SessionID string `json:"sessionId"`
}

// SessionResponse carries a JSON-encoded session snapshot.
type SessionResponse struct {
    Status []byte `json:"status,omitempty"`
    Error  string `json:"error,omitempty"`
}

// SessionFunc handles session status lookups.
type SessionFunc func(ctx context.Context, req SessionRequest) (SessionResponse, error)

// AppealRequest challenges the latest outcome of a session.
type AppealRequest struct {
    SessionID string `json:"sessionId"`
}

// AppealResponse indicates whether the appeal was accepted.
type AppealResponse struct {
    Accepted bool   `json:"accepted"`
    Error    string `json:"error,omitempty"`
}

// AppealFunc handles appeals.
type AppealFunc func(ctx context.Context, req AppealRequest) (AppealResponse, error)

// RPCServer exposes the engine's management endpoints (submit, session,
// appeal, status) over the chosen protocol.
type RPCServer interface {
    Start(ctx context.Context, status StatusFunc, submit SubmitFunc, sess SessionFunc, appeal AppealFunc) error
    Addr() string
    Stop(ctx context.Context) error
}

// RPCClient performs management calls against a running engine node using the
// chosen protocol (HTTP/JSON or gRPC JSON codec).
type RPCClient interface {
    GetStatus(ctx context.Context, addr string) ([]byte, error)
    PostSubmit(ctx context.Context, addr string, req SubmitRequest) (SubmitResponse, error)
    PostSession(ctx context.Context, addr string, req SessionRequest) (SessionResponse, error)
    PostAppeal(ctx context.Context, addr string, req AppealRequest) (AppealResponse, error)
}
