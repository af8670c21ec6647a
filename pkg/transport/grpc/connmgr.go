package grpc

import (
    "context"
    "sync"
    "time"

    "google.golang.org/grpc"

    obsmetrics "github.com/amirimatin/go-ndconsensus/pkg/observability/metrics"
)

// connCache keeps one client connection per node address. grpc.ClientConn
// multiplexes calls and is safe for concurrent use, so callers share the
// cached connection directly; connections idle past ttl are closed lazily
// on the next cache access instead of by a background sweeper.
type connCache struct {
    ttl  time.Duration
    dial func(ctx context.Context, target string) (*grpc.ClientConn, error)

    mu    sync.Mutex
    conns map[string]*cachedConn
}

type cachedConn struct {
    cc       *grpc.ClientConn
    lastUsed time.Time
}

func newConnCache(ttl time.Duration, dial func(ctx context.Context, target string) (*grpc.ClientConn, error)) *connCache {
    if ttl <= 0 { ttl = 30 * time.Second }
    return &connCache{ttl: ttl, dial: dial, conns: make(map[string]*cachedConn)}
}

// get returns the cached connection for target, dialing one if none is live.
func (c *connCache) get(ctx context.Context, target string) (*grpc.ClientConn, error) {
    now := time.Now()

    c.mu.Lock()
    c.evictIdleLocked(now)
    if e, ok := c.conns[target]; ok {
        e.lastUsed = now
        cc := e.cc
        c.mu.Unlock()
        obsmetrics.GRPCConnReuse.Inc()
        return cc, nil
    }
    c.mu.Unlock()

    // Dial outside the lock; concurrent calls may race to dial the same
    // target, in which case the loser's connection is closed.
    cc, err := c.dial(ctx, target)
    if err != nil {
        return nil, err
    }

    c.mu.Lock()
    if e, ok := c.conns[target]; ok {
        e.lastUsed = now
        won := e.cc
        c.mu.Unlock()
        _ = cc.Close()
        obsmetrics.GRPCConnReuse.Inc()
        return won, nil
    }
    c.conns[target] = &cachedConn{cc: cc, lastUsed: now}
    c.mu.Unlock()
    obsmetrics.GRPCConnDials.Inc()
    obsmetrics.GRPCConnActive.Inc()
    return cc, nil
}

func (c *connCache) evictIdleLocked(now time.Time) {
    cutoff := now.Add(-c.ttl)
    for addr, e := range c.conns {
        if e.lastUsed.Before(cutoff) {
            _ = e.cc.Close()
            delete(c.conns, addr)
            obsmetrics.GRPCConnEvictions.Inc()
            obsmetrics.GRPCConnActive.Dec()
        }
    }
}

// close tears down every cached connection.
func (c *connCache) close() {
    c.mu.Lock()
    defer c.mu.Unlock()
    for addr, e := range c.conns {
        _ = e.cc.Close()
        delete(c.conns, addr)
        obsmetrics.GRPCConnActive.Dec()
    }
}
