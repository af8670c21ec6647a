package grpc

import (
    "context"
    "sync/atomic"
    "testing"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/credentials/insecure"
)

// countingDialer hands out lazy client connections; nothing is attempted on
// the wire until the first RPC, so no server is needed.
func countingDialer(dials *atomic.Int32) func(ctx context.Context, target string) (*grpc.ClientConn, error) {
    return func(ctx context.Context, target string) (*grpc.ClientConn, error) {
        dials.Add(1)
        return grpc.NewClient("passthrough:///"+target, grpc.WithTransportCredentials(insecure.NewCredentials()))
    }
}

func TestConnCache_SharesConnectionPerTarget(t *testing.T) {
    var dials atomic.Int32
    c := newConnCache(time.Minute, countingDialer(&dials))
    defer c.close()

    cc1, err := c.get(context.Background(), "node-a:9000")
    if err != nil {
        t.Fatalf("get: %v", err)
    }
    cc2, err := c.get(context.Background(), "node-a:9000")
    if err != nil {
        t.Fatalf("get again: %v", err)
    }
    if cc1 != cc2 {
        t.Fatalf("repeated gets must share one connection")
    }
    if _, err := c.get(context.Background(), "node-b:9000"); err != nil {
        t.Fatalf("get other target: %v", err)
    }
    if n := dials.Load(); n != 2 {
        t.Fatalf("dials=%d, want one per target", n)
    }
}

func TestConnCache_EvictsIdleOnAccess(t *testing.T) {
    var dials atomic.Int32
    c := newConnCache(time.Minute, countingDialer(&dials))
    defer c.close()

    if _, err := c.get(context.Background(), "node-a:9000"); err != nil {
        t.Fatalf("get: %v", err)
    }
    c.mu.Lock()
    c.conns["node-a:9000"].lastUsed = time.Now().Add(-2 * time.Minute)
    c.mu.Unlock()

    if _, err := c.get(context.Background(), "node-a:9000"); err != nil {
        t.Fatalf("get after idle: %v", err)
    }
    if n := dials.Load(); n != 2 {
        t.Fatalf("idle connection was not evicted: dials=%d", n)
    }
}

func TestConnCache_CloseDropsEverything(t *testing.T) {
    var dials atomic.Int32
    c := newConnCache(time.Minute, countingDialer(&dials))
    if _, err := c.get(context.Background(), "node-a:9000"); err != nil {
        t.Fatalf("get: %v", err)
    }
    c.close()

    c.mu.Lock()
    n := len(c.conns)
    c.mu.Unlock()
    if n != 0 {
        t.Fatalf("cache not emptied: %d entries", n)
    }
}
