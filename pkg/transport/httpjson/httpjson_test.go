package httpjson

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net"
    "testing"
    "time"

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

func startServer(t *testing.T, submit transport.SubmitFunc, sess transport.SessionFunc, appeal transport.AppealFunc) (string, context.CancelFunc) {
    t.Helper()
    addr := freeAddr(t)
    ctx, cancel := context.WithCancel(context.Background())
    srv := NewServer(addr, nil)
    status := func(ctx context.Context) ([]byte, error) {
        return json.Marshal(map[string]any{"running": true})
    }
    if err := srv.Start(ctx, status, submit, sess, appeal); err != nil {
        cancel()
        t.Fatalf("start: %v", err)
    }
    // wait for the listener to accept
    deadline := time.Now().Add(2 * time.Second)
    for time.Now().Before(deadline) {
        c, err := net.Dial("tcp", addr)
        if err == nil {
            _ = c.Close()
            return addr, cancel
        }
        time.Sleep(5 * time.Millisecond)
    }
    cancel()
    t.Fatalf("server never came up on %s", addr)
    return "", nil
}

func TestRoundtrip(t *testing.T) {
    var gotSubmit transport.SubmitRequest
    submit := func(ctx context.Context, req transport.SubmitRequest) (transport.SubmitResponse, error) {
        gotSubmit = req
        return transport.SubmitResponse{SessionID: "sess-1"}, nil
    }
    sess := func(ctx context.Context, req transport.SessionRequest) (transport.SessionResponse, error) {
        if req.SessionID != "sess-1" {
            return transport.SessionResponse{Error: "unknown session"}, errors.New("unknown session")
        }
        return transport.SessionResponse{Status: []byte(`{"state":"finalized"}`)}, nil
    }
    appeal := func(ctx context.Context, req transport.AppealRequest) (transport.AppealResponse, error) {
        return transport.AppealResponse{Accepted: true}, nil
    }
    addr, cancel := startServer(t, submit, sess, appeal)
    defer cancel()

    cli := NewClient(2 * time.Second)
    ctx := context.Background()

    sresp, err := cli.PostSubmit(ctx, addr, transport.SubmitRequest{
        TaskID:  "t1",
        Payload: []byte(`{"prompt":"x"}`),
        Policy:  "strict",
    })
    if err != nil {
        t.Fatalf("submit: %v", err)
    }
    if sresp.SessionID != "sess-1" {
        t.Fatalf("session id: %q", sresp.SessionID)
    }
    if gotSubmit.TaskID != "t1" || gotSubmit.Policy != "strict" || string(gotSubmit.Payload) != `{"prompt":"x"}` {
        t.Fatalf("request lost in transit: %+v", gotSubmit)
    }

    qresp, err := cli.PostSession(ctx, addr, transport.SessionRequest{SessionID: "sess-1"})
    if err != nil {
        t.Fatalf("session: %v", err)
    }
    if string(qresp.Status) != `{"state":"finalized"}` {
        t.Fatalf("status: %s", qresp.Status)
    }

    aresp, err := cli.PostAppeal(ctx, addr, transport.AppealRequest{SessionID: "sess-1"})
    if err != nil {
        t.Fatalf("appeal: %v", err)
    }
    if !aresp.Accepted {
        t.Fatalf("appeal not accepted: %+v", aresp)
    }

    data, err := cli.GetStatus(ctx, addr)
    if err != nil {
        t.Fatalf("status: %v", err)
    }
    var st map[string]any
    if err := json.Unmarshal(data, &st); err != nil {
        t.Fatalf("status not JSON: %v", err)
    }
    if st["running"] != true {
        t.Fatalf("status payload: %v", st)
    }
}

func TestRemoteErrorSurfaces(t *testing.T) {
    sess := func(ctx context.Context, req transport.SessionRequest) (transport.SessionResponse, error) {
        resp := transport.SessionResponse{Error: fmt.Sprintf("session: unknown session %s", req.SessionID)}
        return resp, errors.New(resp.Error)
    }
    addr, cancel := startServer(t, nil, sess, nil)
    defer cancel()

    cli := NewClient(2 * time.Second)
    _, err := cli.PostSession(context.Background(), addr, transport.SessionRequest{SessionID: "nope"})
    if err == nil {
        t.Fatalf("expected remote error")
    }
    if got := err.Error(); got != "session: unknown session nope" {
        t.Fatalf("error message lost: %q", got)
    }
}
