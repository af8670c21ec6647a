package memberlist

import (
    "context"
    "encoding/json"
    "fmt"
    "log"
    "net"
    "strconv"
    "sync"
    "sync/atomic"
    "time"

    "github.com/hashicorp/memberlist"

    "github.com/amirimatin/go-ndconsensus/pkg/internal/logutil"
    "github.com/amirimatin/go-ndconsensus/pkg/observability/metrics"
    "github.com/amirimatin/go-ndconsensus/pkg/registry"
)

// Options configures the gossip-backed validator registry.
type Options struct {
    // NodeID is this participant's unique identifier.
    NodeID string

    // Bind is the gossip bind address in host:port form (e.g. ":7946").
    Bind string

    // Advertise is the advertised host:port peers use to reach this node.
    // If empty, memberlist derives it from Bind.
    Advertise string

    // Meta is optional participant metadata propagated through gossip
    // (e.g. executor capability, management address).
    Meta map[string]string

    // Logger is optional. If nil, log.Default() is used.
    Logger *log.Logger

    // Tuning parameters (optional). Zero means use defaults.
    ProbeInterval time.Duration
    ProbeTimeout  time.Duration
    SuspicionMult int
}

// Registry derives the eligible-participant population from a memberlist
// gossip pool: every live member is a participant, and the registry version
// advances whenever the membership view changes.
type Registry struct {
    mu      sync.RWMutex
    opts    Options
    ml      *memberlist.Memberlist
    closed  bool
    version atomic.Uint64
}

// New constructs a memberlist-backed registry. Call Start before sampling.
func New(opts Options) (*Registry, error) {
    if opts.NodeID == "" {
        return nil, fmt.Errorf("memberlist: empty NodeID")
    }
    if opts.Bind == "" {
        return nil, fmt.Errorf("memberlist: empty Bind address")
    }
    if opts.Logger == nil {
        opts.Logger = log.Default()
    }
    r := &Registry{opts: opts}
    r.version.Store(1)
    return r, nil
}

// Start creates and launches the underlying memberlist instance. The
// registry shuts down when ctx is canceled.
func (r *Registry) Start(ctx context.Context) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    if r.ml != nil {
        return nil
    }

    cfg := memberlist.DefaultLANConfig()
    cfg.Name = r.opts.NodeID
    host, portStr, err := net.SplitHostPort(r.opts.Bind)
    if err != nil {
        return fmt.Errorf("memberlist: invalid bind address %q: %w", r.opts.Bind, err)
    }
    port, err := parsePort(portStr)
    if err != nil {
        return err
    }
    cfg.BindAddr = host
    cfg.BindPort = port

    if r.opts.Advertise != "" {
        ahost, aportStr, err := net.SplitHostPort(r.opts.Advertise)
        if err != nil {
            return fmt.Errorf("memberlist: invalid advertise address %q: %w", r.opts.Advertise, err)
        }
        aport, err := parsePort(aportStr)
        if err != nil {
            return err
        }
        cfg.AdvertiseAddr = ahost
        cfg.AdvertisePort = aport
    }

    if r.opts.ProbeInterval > 0 {
        cfg.ProbeInterval = r.opts.ProbeInterval
    }
    if r.opts.ProbeTimeout > 0 {
        cfg.ProbeTimeout = r.opts.ProbeTimeout
    }
    if r.opts.SuspicionMult > 0 {
        cfg.SuspicionMult = r.opts.SuspicionMult
    }

    // Any change to the gossip view invalidates previously sampled
    // populations, so every event bumps the registry version.
    cfg.Events = &eventDelegate{reg: r}
    metaBytes, _ := json.Marshal(r.opts.Meta)
    cfg.Delegate = &nodeDelegate{meta: metaBytes}

    ml, err := memberlist.Create(cfg)
    if err != nil {
        return err
    }
    r.ml = ml

    go func() {
        <-ctx.Done()
        _ = r.Stop()
    }()

    return nil
}

// Join contacts seed participants to merge gossip pools.
func (r *Registry) Join(seeds []string) error {
    r.mu.RLock()
    ml := r.ml
    r.mu.RUnlock()
    if ml == nil {
        return fmt.Errorf("memberlist: not started")
    }
    if len(seeds) == 0 {
        return nil
    }
    _, err := ml.Join(seeds)
    return err
}

// Version implements registry.Registry.
func (r *Registry) Version() uint64 { return r.version.Load() }

// Participants maps the current live members to participant records.
func (r *Registry) Participants() []registry.ParticipantInfo {
    r.mu.RLock()
    defer r.mu.RUnlock()
    if r.ml == nil {
        return nil
    }
    nodes := r.ml.Members()
    out := make([]registry.ParticipantInfo, 0, len(nodes))
    for _, n := range nodes {
        out = append(out, toParticipant(n))
    }
    metrics.RegistryParticipants.Set(float64(len(out)))
    return out
}

// Local returns this node's own participant record.
func (r *Registry) Local() registry.ParticipantInfo {
    r.mu.RLock()
    defer r.mu.RUnlock()
    if r.ml == nil {
        return registry.ParticipantInfo{ID: r.opts.NodeID, Meta: r.opts.Meta}
    }
    return toParticipant(r.ml.LocalNode())
}

// Leave broadcasts a best-effort departure before shutdown.
func (r *Registry) Leave() error {
    r.mu.RLock()
    ml := r.ml
    r.mu.RUnlock()
    if ml == nil {
        return nil
    }
    _ = ml.Leave(time.Second)
    return nil
}

// Stop shuts down the gossip layer.
func (r *Registry) Stop() error {
    r.mu.Lock()
    defer r.mu.Unlock()
    if r.closed {
        return nil
    }
    r.closed = true
    if r.ml != nil {
        _ = r.ml.Shutdown()
        r.ml = nil
    }
    return nil
}

func (r *Registry) bump(n *memberlist.Node, what string) {
    v := r.version.Add(1)
    if n != nil {
        logutil.Infof(r.opts.Logger, "registry %s: participant=%s version=%d", what, n.Name, v)
    }
}

func toParticipant(n *memberlist.Node) registry.ParticipantInfo {
    meta := map[string]string{}
    if len(n.Meta) > 0 {
        _ = json.Unmarshal(n.Meta, &meta)
    }
    return registry.ParticipantInfo{
        ID:   n.Name,
        Addr: net.JoinHostPort(n.Addr.String(), strconv.Itoa(int(n.Port))),
        Meta: meta,
    }
}

// eventDelegate bumps the registry version on membership changes.
type eventDelegate struct {
    reg *Registry
}

func (d *eventDelegate) NotifyJoin(n *memberlist.Node)   { d.reg.bump(n, "join") }
func (d *eventDelegate) NotifyLeave(n *memberlist.Node)  { d.reg.bump(n, "leave") }
func (d *eventDelegate) NotifyUpdate(n *memberlist.Node) { d.reg.bump(n, "update") }

// nodeDelegate propagates static node metadata through gossip.
type nodeDelegate struct {
    meta []byte
}

func (d *nodeDelegate) NodeMeta(limit int) []byte {
    if len(d.meta) > limit {
        return d.meta[:limit]
    }
    return d.meta
}
func (d *nodeDelegate) NotifyMsg([]byte)                {}
func (d *nodeDelegate) GetBroadcasts(int, int) [][]byte { return nil }
func (d *nodeDelegate) LocalState(bool) []byte          { return nil }
func (d *nodeDelegate) MergeRemoteState([]byte, bool)   {}

func parsePort(s string) (int, error) {
    p, err := strconv.Atoi(s)
    if err != nil || p < 0 || p > 65535 {
        return 0, fmt.Errorf("memberlist: invalid port %q", s)
    }
    return p, nil
}

var _ registry.Registry = (*Registry)(nil)
