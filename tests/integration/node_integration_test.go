//go:build integration
// +build integration

package integration

import (
    "context"
    "encoding/json"
    "fmt"
    "net"
    "sync/atomic"
    "testing"
    "time"

    "github.com/amirimatin/go-ndconsensus/pkg/bootstrap"
    "github.com/amirimatin/go-ndconsensus/pkg/engine"
    "github.com/amirimatin/go-ndconsensus/pkg/task"
    "github.com/amirimatin/go-ndconsensus/pkg/transport"
)

func freeAddr(t *testing.T) string {
    t.Helper()
    l, err := net.Listen("tcp", "127.0.0.1:0")
    if err != nil {
        t.Fatalf("listen: %v", err)
    }
    addr := l.Addr().String()
    _ = l.Close()
    return addr
}

func startNode(t *testing.T, exec func(ctx context.Context, tk task.Task) ([]byte, error)) (*bootstrap.Node, string) {
    t.Helper()
    addr := freeAddr(t)
    cfg := bootstrap.Config{
        NodeID:            "node-1",
        MgmtAddr:          addr,
        MgmtProto:         "http",
        RegistryKind:      "static",
        ParticipantsCSV:   "p1,p2,p3,p4,p5,p6,p7,p8,p9",
        ExecFunc:          exec,
        InitialValidators: 4,
        FinalityWindow:    500 * time.Millisecond,
    }
    ctx, cancel := context.WithCancel(context.Background())
    n, err := bootstrap.Run(ctx, cfg)
    if err != nil {
        cancel()
        t.Fatalf("run: %v", err)
    }
    t.Cleanup(func() {
        sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
        defer scancel()
        _ = n.Stop(sctx)
        cancel()
    })
    // wait for the management API to accept connections
    deadline := time.Now().Add(5 * time.Second)
    for time.Now().Before(deadline) {
        c, err := net.Dial("tcp", addr)
        if err == nil {
            _ = c.Close()
            return n, addr
        }
        time.Sleep(10 * time.Millisecond)
    }
    t.Fatalf("management API never came up on %s", addr)
    return nil, ""
}

func pollSession(t *testing.T, cli transport.RPCClient, addr, sessionID string, want string, timeout time.Duration) engine.SessionStatus {
    t.Helper()
    var last engine.SessionStatus
    deadline := time.Now().Add(timeout)
    for time.Now().Before(deadline) {
        resp, err := cli.PostSession(context.Background(), addr, transport.SessionRequest{SessionID: sessionID})
        if err == nil {
            if uerr := json.Unmarshal(resp.Status, &last); uerr != nil {
                t.Fatalf("status decode: %v", uerr)
            }
            if string(last.State) == want {
                return last
            }
        }
        time.Sleep(20 * time.Millisecond)
    }
    t.Fatalf("session %s never reached %s, last state %s", sessionID, want, last.State)
    return last
}

func TestSubmitToFinalizationOverHTTP(t *testing.T) {
    exec := func(ctx context.Context, tk task.Task) ([]byte, error) {
        return []byte(`{"verdict":"true"}`), nil
    }
    n, addr := startNode(t, exec)
    cli := n.RPCClient

    sresp, err := cli.PostSubmit(context.Background(), addr, transport.SubmitRequest{
        TaskID:  "claim-1",
        Payload: []byte(`{"claim":"water boils at 100C at sea level"}`),
        Policy:  string(task.PolicyStrict),
    })
    if err != nil {
        t.Fatalf("submit: %v", err)
    }
    if sresp.SessionID == "" {
        t.Fatalf("empty session id")
    }

    st := pollSession(t, cli, addr, sresp.SessionID, "finalized", 10*time.Second)
    if string(st.FinalValue) != `{"verdict":"true"}` {
        t.Fatalf("final value: %s", st.FinalValue)
    }
    if len(st.Rounds) != 1 {
        t.Fatalf("rounds: %d", len(st.Rounds))
    }

    data, err := cli.GetStatus(context.Background(), addr)
    if err != nil {
        t.Fatalf("status: %v", err)
    }
    var es engine.EngineStatus
    if err := json.Unmarshal(data, &es); err != nil {
        t.Fatalf("status decode: %v", err)
    }
    if !es.Running || es.Participants != 9 {
        t.Fatalf("engine status: %+v", es)
    }
}

func TestAppealEscalatesOverHTTP(t *testing.T) {
    var agree atomic.Bool
    var calls atomic.Int64
    exec := func(ctx context.Context, tk task.Task) ([]byte, error) {
        if agree.Load() {
            return []byte(`{"verdict":"true"}`), nil
        }
        n := calls.Add(1)
        return []byte(fmt.Sprintf(`{"verdict":"answer-%d"}`, n)), nil
    }
    n, addr := startNode(t, exec)
    cli := n.RPCClient

    sresp, err := cli.PostSubmit(context.Background(), addr, transport.SubmitRequest{
        TaskID:  "claim-2",
        Payload: []byte(`{"claim":"disputed"}`),
        Policy:  string(task.PolicyStrict),
    })
    if err != nil {
        t.Fatalf("submit: %v", err)
    }

    st := pollSession(t, cli, addr, sresp.SessionID, "finality_window_open", 10*time.Second)
    if st.Rounds[len(st.Rounds)-1].Outcome != "rejected" {
        t.Fatalf("round outcome: %s", st.Rounds[len(st.Rounds)-1].Outcome)
    }

    agree.Store(true)
    aresp, err := cli.PostAppeal(context.Background(), addr, transport.AppealRequest{SessionID: sresp.SessionID})
    if err != nil {
        t.Fatalf("appeal: %v", err)
    }
    if !aresp.Accepted {
        t.Fatalf("appeal rejected: %+v", aresp)
    }

    st = pollSession(t, cli, addr, sresp.SessionID, "finalized", 10*time.Second)
    if st.Appeals != 1 {
        t.Fatalf("appeals: %d", st.Appeals)
    }
    if len(st.Rounds) != 2 {
        t.Fatalf("rounds: %d", len(st.Rounds))
    }
    if got := st.Rounds[1].Validators; got != 8 {
        t.Fatalf("escalated validator count: %d", got)
    }
    if string(st.FinalValue) != `{"verdict":"true"}` {
        t.Fatalf("final value: %s", st.FinalValue)
    }
}

func TestAppealAfterFinalizationIsRejected(t *testing.T) {
    exec := func(ctx context.Context, tk task.Task) ([]byte, error) {
        return []byte(`"stable"`), nil
    }
    n, addr := startNode(t, exec)
    cli := n.RPCClient

    sresp, err := cli.PostSubmit(context.Background(), addr, transport.SubmitRequest{
        TaskID:  "claim-3",
        Payload: []byte(`{}`),
        Policy:  string(task.PolicyStrict),
    })
    if err != nil {
        t.Fatalf("submit: %v", err)
    }
    pollSession(t, cli, addr, sresp.SessionID, "finalized", 10*time.Second)

    aresp, err := cli.PostAppeal(context.Background(), addr, transport.AppealRequest{SessionID: sresp.SessionID})
    if err == nil {
        t.Fatalf("appeal after finalization must fail")
    }
    if aresp.Accepted {
        t.Fatalf("appeal accepted after finalization")
    }
}
