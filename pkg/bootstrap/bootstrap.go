package bootstrap

import (
    "context"
    "crypto/tls"
    "encoding/json"
    "errors"
    "log"
    "time"

    "github.com/amirimatin/go-ndconsensus/pkg/engine"
    "github.com/amirimatin/go-ndconsensus/pkg/executor"
    "github.com/amirimatin/go-ndconsensus/pkg/executor/llmexec"
    "github.com/amirimatin/go-ndconsensus/pkg/policy"
    "github.com/amirimatin/go-ndconsensus/pkg/policy/llmjudge"
    "github.com/amirimatin/go-ndconsensus/pkg/registry"
    mlreg "github.com/amirimatin/go-ndconsensus/pkg/registry/memberlist"
    "github.com/amirimatin/go-ndconsensus/pkg/registry/seeds"
    "github.com/amirimatin/go-ndconsensus/pkg/registry/static"
    tlsx "github.com/amirimatin/go-ndconsensus/pkg/security/tlsconfig"
    "github.com/amirimatin/go-ndconsensus/pkg/task"
    "github.com/amirimatin/go-ndconsensus/pkg/transport"
    mgmtgrpc "github.com/amirimatin/go-ndconsensus/pkg/transport/grpc"
    "github.com/amirimatin/go-ndconsensus/pkg/transport/httpjson"
)

// Config defines high-level inputs to assemble an engine node with sensible
// defaults. Applications embed the engine by providing this structure and
// calling Build/Run.
type Config struct {
    // Identity and membership
    NodeID  string
    MemBind string // membership bind host:port (registry=memberlist)
    MemAdv  string // optional advertise host:port

    // Management API (submit/session/appeal/status/metrics)
    MgmtAddr  string // host:port for management API (HTTP or gRPC)
    MgmtProto string // "http" (default) or "grpc"

    // Participant registry
    RegistryKind    string // "static" (default) or "memberlist"
    ParticipantsCSV string // registry=static: participant IDs
    SeedsCSV        string // registry=memberlist: seed addresses to join
    SeedsFile       string // registry=memberlist: file (or glob) with seed addresses
    SeedsDNS        string // registry=memberlist: DNS names (SRV or host) to resolve

    // Seeds overrides the CSV/file/DNS seed sources with a custom provider.
    Seeds seeds.Provider

    // Model backend for execution and judging
    OpenAIKey   string
    ExecModel   string
    JudgeModel  string // defaults to ExecModel
    BaseURL     string
    Temperature float32

    // Executor override. When set, the model backend is not used for
    // execution and OpenAIKey may be empty unless a judge is required.
    ExecFunc executor.Func

    // Consensus tuning (zero values take engine defaults)
    InitialValidators int
    RoundTimeout      time.Duration
    ExecTimeout       time.Duration
    FinalityWindow    time.Duration
    MaxAppeals        int
    EscalationFactor  int
    MajorityFraction  float64
    MaxArchive        int

    // TLS (optional) for management API
    TLSEnable     bool
    TLSCA         string
    TLSCert       string
    TLSKey        string
    TLSServerName string
    TLSSkipVerify bool

    // Logger (optional). If nil, log.Default() is used.
    Logger *log.Logger
}

// Node bundles a built engine with its registry and management surface.
type Node struct {
    Engine    *engine.Engine
    Registry  registry.Registry
    RPCServer transport.RPCServer
    RPCClient transport.RPCClient

    members *mlreg.Registry
    seedSrc seeds.Provider
    logger  *log.Logger
}

// Build assembles a Node from Config without starting it.
func Build(cfg Config) (*Node, error) {
    if cfg.Logger == nil { cfg.Logger = log.Default() }

    // Participant registry
    var (
        reg     registry.Registry
        members *mlreg.Registry
        seedSrc seeds.Provider
    )
    switch cfg.RegistryKind {
    case "memberlist":
        m, err := mlreg.New(mlreg.Options{NodeID: cfg.NodeID, Bind: cfg.MemBind, Advertise: cfg.MemAdv, Logger: cfg.Logger})
        if err != nil { return nil, err }
        members, reg = m, m
        seedSrc = seedProvider(cfg)
    default:
        ids := seeds.ParseCSV(cfg.ParticipantsCSV)
        if len(ids) == 0 {
            return nil, errors.New("bootstrap: static registry needs participants")
        }
        reg = static.New(ids...)
    }

    // Execution backend
    fn := cfg.ExecFunc
    if fn == nil {
        var err error
        fn, err = llmexec.New(llmexec.Config{
            APIKey:      cfg.OpenAIKey,
            Model:       cfg.ExecModel,
            BaseURL:     cfg.BaseURL,
            Temperature: cfg.Temperature,
            Logger:      cfg.Logger,
        })
        if err != nil { return nil, err }
    }
    exec := executor.New(fn, executor.Options{Timeout: cfg.ExecTimeout, Logger: cfg.Logger})

    // Judge (optional; comparative/non-comparative tasks need it)
    var judge policy.Judge
    if cfg.OpenAIKey != "" {
        model := cfg.JudgeModel
        if model == "" { model = cfg.ExecModel }
        j, err := llmjudge.New(llmjudge.Config{APIKey: cfg.OpenAIKey, Model: model, BaseURL: cfg.BaseURL, Logger: cfg.Logger})
        if err != nil { return nil, err }
        judge = j
    }

    eng, err := engine.New(engine.Options{
        Executor:          exec,
        Registry:          reg,
        Judge:             judge,
        Logger:            cfg.Logger,
        InitialValidators: cfg.InitialValidators,
        RoundTimeout:      cfg.RoundTimeout,
        FinalityWindow:    cfg.FinalityWindow,
        MaxAppeals:        cfg.MaxAppeals,
        EscalationFactor:  cfg.EscalationFactor,
        MajorityFraction:  cfg.MajorityFraction,
        MaxArchive:        cfg.MaxArchive,
    })
    if err != nil { return nil, err }

    // Management API
    var srv transport.RPCServer
    var cli transport.RPCClient
    var srvTLS, cliTLS *tls.Config
    if cfg.TLSEnable {
        topts := tlsx.Options{Enable: true, CAFile: cfg.TLSCA, CertFile: cfg.TLSCert, KeyFile: cfg.TLSKey, InsecureSkipVerify: cfg.TLSSkipVerify, ServerName: cfg.TLSServerName}
        // Prefer hot-reload configs to allow manual rotation by replacing files
        if s, err := topts.ServerHotReload(); err == nil { srvTLS = s } else { return nil, err }
        if c, err := topts.ClientHotReload(); err == nil { cliTLS = c } else { return nil, err }
    }
    if cfg.MgmtAddr != "" {
        switch cfg.MgmtProto {
        case "grpc":
            s := mgmtgrpc.NewServer(cfg.MgmtAddr)
            if srvTLS != nil { s.UseTLS(srvTLS) }
            c := mgmtgrpc.NewClient(3 * time.Second)
            if cliTLS != nil { c.UseTLS(cliTLS) }
            srv, cli = s, c
        default:
            s := httpjson.NewServer(cfg.MgmtAddr, cfg.Logger)
            if srvTLS != nil { s.UseTLS(srvTLS) }
            c := httpjson.NewClient(3 * time.Second)
            if cliTLS != nil { c.UseTLS(cliTLS) }
            srv, cli = s, c
        }
    }

    return &Node{Engine: eng, Registry: reg, RPCServer: srv, RPCClient: cli, members: members, seedSrc: seedSrc, logger: cfg.Logger}, nil
}

// seedProvider combines the configured seed sources; an explicit provider
// replaces them all.
func seedProvider(cfg Config) seeds.Provider {
    if cfg.Seeds != nil {
        return cfg.Seeds
    }
    var srcs []seeds.Provider
    if cfg.SeedsCSV != "" {
        srcs = append(srcs, seeds.Fixed(seeds.ParseCSV(cfg.SeedsCSV)...))
    }
    if cfg.SeedsFile != "" {
        srcs = append(srcs, seeds.FromFile(seeds.FileOptions{Path: cfg.SeedsFile}))
    }
    if names := seeds.ParseCSV(cfg.SeedsDNS); len(names) > 0 {
        srcs = append(srcs, seeds.FromDNS(seeds.DNSOptions{Names: names}))
    }
    if len(srcs) == 0 {
        return nil
    }
    return seeds.Combine(srcs...)
}

// Start launches membership (when gossip-backed), the engine and the
// management API. The context bounds the node's lifetime.
func (n *Node) Start(ctx context.Context) error {
    if n.members != nil {
        if err := n.members.Start(ctx); err != nil { return err }
        if n.seedSrc != nil {
            if addrs := n.seedSrc.Addrs(); len(addrs) > 0 {
                if err := n.members.Join(addrs); err != nil { return err }
            }
        }
    }
    if err := n.Engine.Start(ctx); err != nil { return err }
    if n.RPCServer != nil {
        return n.RPCServer.Start(ctx, n.statusFunc(), n.submitFunc(), n.sessionFunc(), n.appealFunc())
    }
    return nil
}

// Stop shuts the node down in reverse order of Start.
func (n *Node) Stop(ctx context.Context) error {
    var firstErr error
    if n.RPCServer != nil {
        if err := n.RPCServer.Stop(ctx); err != nil && firstErr == nil { firstErr = err }
    }
    if err := n.Engine.Stop(ctx); err != nil && firstErr == nil { firstErr = err }
    if n.members != nil {
        _ = n.members.Leave()
        if err := n.members.Stop(); err != nil && firstErr == nil { firstErr = err }
    }
    return firstErr
}

func (n *Node) statusFunc() transport.StatusFunc {
    return func(ctx context.Context) ([]byte, error) {
        return json.Marshal(n.Engine.Status())
    }
}

func (n *Node) submitFunc() transport.SubmitFunc {
    return func(ctx context.Context, req transport.SubmitRequest) (transport.SubmitResponse, error) {
        t := task.Task{
            ID:      req.TaskID,
            Payload: req.Payload,
            Policy:  task.PolicyKind(req.Policy),
            Params:  task.PolicyParams{Criterion: req.Criterion, Tolerance: req.Tolerance},
        }
        if req.ExecTimeout > 0 { t.ExecTimeout = time.Duration(req.ExecTimeout) * time.Millisecond }
        id, err := n.Engine.SubmitTask(ctx, t)
        if err != nil {
            return transport.SubmitResponse{Error: err.Error()}, err
        }
        return transport.SubmitResponse{SessionID: id}, nil
    }
}

func (n *Node) sessionFunc() transport.SessionFunc {
    return func(ctx context.Context, req transport.SessionRequest) (transport.SessionResponse, error) {
        st, err := n.Engine.SessionStatus(req.SessionID)
        if err != nil {
            return transport.SessionResponse{Error: err.Error()}, err
        }
        b, err := json.Marshal(st)
        if err != nil { return transport.SessionResponse{Error: err.Error()}, err }
        return transport.SessionResponse{Status: b}, nil
    }
}

func (n *Node) appealFunc() transport.AppealFunc {
    return func(ctx context.Context, req transport.AppealRequest) (transport.AppealResponse, error) {
        if err := n.Engine.FileAppeal(ctx, req.SessionID); err != nil {
            return transport.AppealResponse{Accepted: false, Error: err.Error()}, err
        }
        return transport.AppealResponse{Accepted: true}, nil
    }
}

// Run builds and starts a node, returning the instance for lifecycle control.
// The caller is responsible for calling Stop when finished.
func Run(ctx context.Context, cfg Config) (*Node, error) {
    n, err := Build(cfg)
    if err != nil { return nil, err }
    if err := n.Start(ctx); err != nil { return nil, err }
    return n, nil
}
