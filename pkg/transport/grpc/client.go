package grpc

import (
    "context"
    "crypto/tls"
    "errors"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/backoff"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/credentials/insecure"
    "google.golang.org/grpc/keepalive"

    "github.com/amirimatin/go-ndconsensus/pkg/transport"
)

type Client struct {
    timeout time.Duration
    tlsCfg  *tls.Config
    conns   *connCache
}

func NewClient(timeout time.Duration) *Client {
    if timeout <= 0 { timeout = 3 * time.Second }
    c := &Client{timeout: timeout}
    c.conns = newConnCache(30*time.Second, c.dialCtx)
    return c
}

// UseTLS sets TLS config for the client.
func (c *Client) UseTLS(cfg *tls.Config) *Client { c.tlsCfg = cfg; return c }

// Close releases all pooled connections.
func (c *Client) Close() { c.conns.close() }

func (c *Client) dialCtx(ctx context.Context, target string) (*grpc.ClientConn, error) {
    // Use JSON codec and set content subtype accordingly.
    opts := []grpc.DialOption{
        grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
        grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig, MinConnectTimeout: 500 * time.Millisecond}),
        grpc.WithKeepaliveParams(keepalive.ClientParameters{Time: 20 * time.Second, Timeout: 5 * time.Second, PermitWithoutStream: true}),
        grpc.WithBlock(),
    }
    if c.tlsCfg != nil {
        opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(c.tlsCfg)))
    } else {
        opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
    }
    return grpc.DialContext(ctx, target, opts...)
}

func (c *Client) GetStatus(ctx context.Context, addr string) ([]byte, error) {
    cctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    cc, err := c.conns.get(cctx, addr)
    if err != nil { return nil, err }
    out := new(statusBlob)
    if err := cc.Invoke(cctx, "/ndc.v1.Management/GetStatus", &empty{}, out); err != nil { return nil, err }
    return out.Data, nil
}

func (c *Client) PostSubmit(ctx context.Context, addr string, req transport.SubmitRequest) (transport.SubmitResponse, error) {
    cctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    var resp transport.SubmitResponse
    cc, err := c.conns.get(cctx, addr)
    if err != nil { return resp, err }
    if err := cc.Invoke(cctx, "/ndc.v1.Management/Submit", &req, &resp); err != nil { return resp, err }
    if resp.Error != "" { return resp, errors.New(resp.Error) }
    return resp, nil
}

func (c *Client) PostSession(ctx context.Context, addr string, req transport.SessionRequest) (transport.SessionResponse, error) {
    cctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    var resp transport.SessionResponse
    cc, err := c.conns.get(cctx, addr)
    if err != nil { return resp, err }
    if err := cc.Invoke(cctx, "/ndc.v1.Management/Session", &req, &resp); err != nil { return resp, err }
    if resp.Error != "" { return resp, errors.New(resp.Error) }
    return resp, nil
}

func (c *Client) PostAppeal(ctx context.Context, addr string, req transport.AppealRequest) (transport.AppealResponse, error) {
    cctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    var resp transport.AppealResponse
    cc, err := c.conns.get(cctx, addr)
    if err != nil { return resp, err }
    if err := cc.Invoke(cctx, "/ndc.v1.Management/Appeal", &req, &resp); err != nil { return resp, err }
    if resp.Error != "" { return resp, errors.New(resp.Error) }
    return resp, nil
}

var _ transport.RPCClient = (*Client)(nil)
