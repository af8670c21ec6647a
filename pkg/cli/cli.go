package cli

import (
    "context"
    "crypto/tls"
    "encoding/json"
    "fmt"
    "log"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/spf13/cobra"

    "github.com/amirimatin/go-ndconsensus/pkg/bootstrap"
    tracing "github.com/amirimatin/go-ndconsensus/pkg/observability/tracing"
    tlsx "github.com/amirimatin/go-ndconsensus/pkg/security/tlsconfig"
    "github.com/amirimatin/go-ndconsensus/pkg/transport"
    mgmtgrpc "github.com/amirimatin/go-ndconsensus/pkg/transport/grpc"
    httpjson "github.com/amirimatin/go-ndconsensus/pkg/transport/httpjson"
)

// AddAll attaches engine subcommands (run/submit/status/session/appeal) to the
// provided root command.
func AddAll(root *cobra.Command) {
    root.AddCommand(NewRunCmd())
    root.AddCommand(NewSubmitCmd())
    root.AddCommand(NewStatusCmd())
    root.AddCommand(NewSessionCmd())
    root.AddCommand(NewAppealCmd())
}

// NewConsensusCommand returns a parent command "consensus" containing the
// subcommands, for embedding into an application's own CLI.
func NewConsensusCommand() *cobra.Command {
    parent := &cobra.Command{Use: "consensus", Short: "consensus engine commands"}
    AddAll(parent)
    return parent
}

type tlsFlags struct {
    enable, skip                  bool
    ca, cert, key, serverName     string
}

func (f *tlsFlags) register(cmd *cobra.Command) {
    cmd.Flags().BoolVar(&f.enable, "tls-enable", false, "enable mTLS for management transport")
    cmd.Flags().StringVar(&f.ca, "tls-ca", "", "path to CA cert (PEM)")
    cmd.Flags().StringVar(&f.cert, "tls-cert", "", "path to client certificate (PEM)")
    cmd.Flags().StringVar(&f.key, "tls-key", "", "path to client private key (PEM)")
    cmd.Flags().BoolVar(&f.skip, "tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
    cmd.Flags().StringVar(&f.serverName, "tls-server-name", "", "expected server name (for TLS validation)")
}

func (f *tlsFlags) clientConfig() (*tls.Config, error) {
    if !f.enable { return nil, nil }
    topts := tlsx.Options{Enable: true, CAFile: f.ca, CertFile: f.cert, KeyFile: f.key, InsecureSkipVerify: f.skip, ServerName: f.serverName}
    return topts.Client()
}

func newRPCClient(proto string, timeout time.Duration, f *tlsFlags) (transport.RPCClient, error) {
    cliTLS, err := f.clientConfig()
    if err != nil { return nil, fmt.Errorf("tls client config: %w", err) }
    switch proto {
    case "grpc":
        cli := mgmtgrpc.NewClient(timeout)
        if cliTLS != nil { cli.UseTLS(cliTLS) }
        return cli, nil
    default:
        cli := httpjson.NewClient(timeout)
        if cliTLS != nil { cli.UseTLS(cliTLS) }
        return cli, nil
    }
}

// NewRunCmd returns the "run" command used to start an engine node.
func NewRunCmd() *cobra.Command {
    var (
        id, memBind, memAdv, joinCSV, mgmtAddr, mgmtProto string
        registryKind, participants, joinFile, joinDNS     string
        execModel, judgeModel, baseURL                    string
        temperature                                       float32
        initialValidators, maxAppeals, escalation         int
        roundTimeout, execTimeout, finalityWindow         time.Duration
        majority                                          float64
        traceEnable                                       bool
        tlsf                                              tlsFlags
    )
    cmd := &cobra.Command{
        Use:   "run",
        Short: "Run a consensus engine node",
        RunE: func(cmd *cobra.Command, args []string) error {
            if id == "" { return fmt.Errorf("missing -id") }
            ctx, cancel := signalContext()
            defer cancel()

            if traceEnable {
                shutdown, err := tracing.Setup(true)
                if err != nil {
                    log.Printf("tracing setup error: %v", err)
                } else {
                    defer func() { _ = shutdown(context.Background()) }()
                }
            }

            cfg := bootstrap.Config{
                NodeID:            id,
                MemBind:           memBind,
                MemAdv:            memAdv,
                MgmtAddr:          mgmtAddr,
                MgmtProto:         mgmtProto,
                RegistryKind:      registryKind,
                ParticipantsCSV:   participants,
                SeedsCSV:          joinCSV,
                SeedsFile:         joinFile,
                SeedsDNS:          joinDNS,
                OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
                ExecModel:         execModel,
                JudgeModel:        judgeModel,
                BaseURL:           baseURL,
                Temperature:       temperature,
                InitialValidators: initialValidators,
                RoundTimeout:      roundTimeout,
                ExecTimeout:       execTimeout,
                FinalityWindow:    finalityWindow,
                MaxAppeals:        maxAppeals,
                EscalationFactor:  escalation,
                MajorityFraction:  majority,
                TLSEnable:         tlsf.enable,
                TLSCA:             tlsf.ca,
                TLSCert:           tlsf.cert,
                TLSKey:            tlsf.key,
                TLSServerName:     tlsf.serverName,
                TLSSkipVerify:     tlsf.skip,
                Logger:            log.Default(),
            }
            node, err := bootstrap.Run(ctx, cfg)
            if err != nil { return err }
            defer func() { _ = node.Stop(context.Background()) }()

            fmt.Println("engine running. Press Ctrl+C to exit.")
            <-ctx.Done()
            return nil
        },
    }
    cmd.Flags().StringVar(&id, "id", "", "node id (required)")
    cmd.Flags().StringVar(&memBind, "mem-bind", ":7946", "membership bind addr (host:port)")
    cmd.Flags().StringVar(&memAdv, "mem-adv", "", "membership advertise addr (host:port, optional)")
    cmd.Flags().StringVar(&joinCSV, "join", "", "comma-separated seed nodes (host:port) for registry=memberlist")
    cmd.Flags().StringVar(&joinFile, "join-file", "", "file or glob with seed nodes for registry=memberlist")
    cmd.Flags().StringVar(&joinDNS, "join-dns", "", "comma-separated DNS names (SRV or host) resolving to seed nodes")
    cmd.Flags().StringVar(&mgmtAddr, "mgmt-addr", ":18080", "management address (tcp)")
    cmd.Flags().StringVar(&mgmtProto, "mgmt-proto", "http", "management RPC protocol: http|grpc")
    cmd.Flags().StringVar(&registryKind, "registry", "static", "participant registry: static|memberlist")
    cmd.Flags().StringVar(&participants, "participants", "", "comma-separated participant IDs for registry=static")
    cmd.Flags().StringVar(&execModel, "exec-model", "gpt-4o-mini", "model used for task execution")
    cmd.Flags().StringVar(&judgeModel, "judge-model", "", "model used for equivalence judging (defaults to exec-model)")
    cmd.Flags().StringVar(&baseURL, "base-url", "", "OpenAI-compatible API base URL (optional)")
    cmd.Flags().Float32Var(&temperature, "temperature", 0.7, "sampling temperature for execution")
    cmd.Flags().IntVar(&initialValidators, "validators", 4, "validator-set size of the first round")
    cmd.Flags().DurationVar(&roundTimeout, "round-timeout", 60*time.Second, "per-round deadline")
    cmd.Flags().DurationVar(&execTimeout, "exec-timeout", 30*time.Second, "per-participant execution deadline")
    cmd.Flags().DurationVar(&finalityWindow, "finality-window", 30*time.Second, "challenge window before finalization")
    cmd.Flags().IntVar(&maxAppeals, "max-appeals", 0, "appeal cap per session (0 derives from population)")
    cmd.Flags().IntVar(&escalation, "escalation", 2, "validator-set growth factor per appeal")
    cmd.Flags().Float64Var(&majority, "majority", 0.5, "fraction of tallied validators to strictly exceed")
    cmd.Flags().BoolVar(&traceEnable, "trace", false, "enable OpenTelemetry stdout tracing (dev)")
    tlsf.register(cmd)
    return cmd
}

// NewSubmitCmd returns the "submit" command.
func NewSubmitCmd() *cobra.Command {
    var (
        addr, mgmtProto, taskID, payload, policyKind, criterion string
        tolerance                                               float64
        timeout                                                 time.Duration
        tlsf                                                    tlsFlags
    )
    cmd := &cobra.Command{
        Use:   "submit",
        Short: "Submit a task for consensus execution",
        RunE: func(cmd *cobra.Command, args []string) error {
            if taskID == "" || payload == "" { return fmt.Errorf("missing required flags: -task and -payload") }
            client, err := newRPCClient(mgmtProto, timeout, &tlsf)
            if err != nil { return err }
            ctx, cancel := context.WithTimeout(context.Background(), timeout)
            defer cancel()
            resp, err := client.PostSubmit(ctx, addr, transport.SubmitRequest{
                TaskID:    taskID,
                Payload:   []byte(payload),
                Policy:    policyKind,
                Criterion: criterion,
                Tolerance: tolerance,
            })
            if err != nil { return fmt.Errorf("submit error: %w", err) }
            return json.NewEncoder(os.Stdout).Encode(resp)
        },
    }
    cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:18080", "management address of a node (host:port)")
    cmd.Flags().StringVar(&mgmtProto, "mgmt-proto", "http", "management RPC protocol: http|grpc")
    cmd.Flags().StringVar(&taskID, "task", "", "task ID (required, submission is idempotent per ID)")
    cmd.Flags().StringVar(&payload, "payload", "", "task payload as JSON (required)")
    cmd.Flags().StringVar(&policyKind, "policy", "strict", "equivalence policy: strict|comparative|noncomparative")
    cmd.Flags().StringVar(&criterion, "criterion", "", "closeness/acceptability criterion for judge-backed policies")
    cmd.Flags().Float64Var(&tolerance, "tolerance", 0, "numeric tolerance for the comparative policy")
    cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "request timeout")
    tlsf.register(cmd)
    return cmd
}

// NewStatusCmd returns the "status" command.
func NewStatusCmd() *cobra.Command {
    var (
        addr    string
        timeout time.Duration
    )
    cmd := &cobra.Command{
        Use:   "status",
        Short: "Fetch engine status as JSON",
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx, cancel := context.WithTimeout(context.Background(), timeout)
            defer cancel()
            client := httpjson.NewClient(timeout)
            data, err := client.GetStatus(ctx, addr)
            if err != nil { return fmt.Errorf("status error: %w", err) }
            os.Stdout.Write(data)
            if len(data) == 0 || data[len(data)-1] != '\n' { os.Stdout.Write([]byte("\n")) }
            return nil
        },
    }
    cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:18080", "management HTTP address of a node (host:port)")
    cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "request timeout")
    return cmd
}

// NewSessionCmd returns the "session" command.
func NewSessionCmd() *cobra.Command {
    var (
        addr, mgmtProto, sessionID string
        timeout                    time.Duration
        tlsf                       tlsFlags
    )
    cmd := &cobra.Command{
        Use:   "session",
        Short: "Fetch a session snapshot as JSON",
        RunE: func(cmd *cobra.Command, args []string) error {
            if sessionID == "" { return fmt.Errorf("missing required flag: -session") }
            client, err := newRPCClient(mgmtProto, timeout, &tlsf)
            if err != nil { return err }
            ctx, cancel := context.WithTimeout(context.Background(), timeout)
            defer cancel()
            resp, err := client.PostSession(ctx, addr, transport.SessionRequest{SessionID: sessionID})
            if err != nil { return fmt.Errorf("session error: %w", err) }
            os.Stdout.Write(resp.Status)
            if len(resp.Status) == 0 || resp.Status[len(resp.Status)-1] != '\n' { os.Stdout.Write([]byte("\n")) }
            return nil
        },
    }
    cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:18080", "management address of a node (host:port)")
    cmd.Flags().StringVar(&mgmtProto, "mgmt-proto", "http", "management RPC protocol: http|grpc")
    cmd.Flags().StringVar(&sessionID, "session", "", "session ID (required)")
    cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "request timeout")
    tlsf.register(cmd)
    return cmd
}

// NewAppealCmd returns the "appeal" command.
func NewAppealCmd() *cobra.Command {
    var (
        addr, mgmtProto, sessionID string
        timeout                    time.Duration
        tlsf                       tlsFlags
    )
    cmd := &cobra.Command{
        Use:   "appeal",
        Short: "Challenge the latest outcome of a session",
        RunE: func(cmd *cobra.Command, args []string) error {
            if sessionID == "" { return fmt.Errorf("missing required flag: -session") }
            client, err := newRPCClient(mgmtProto, timeout, &tlsf)
            if err != nil { return err }
            ctx, cancel := context.WithTimeout(context.Background(), timeout)
            defer cancel()
            resp, err := client.PostAppeal(ctx, addr, transport.AppealRequest{SessionID: sessionID})
            if err != nil { return fmt.Errorf("appeal error: %w", err) }
            return json.NewEncoder(os.Stdout).Encode(resp)
        },
    }
    cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:18080", "management address of a node (host:port)")
    cmd.Flags().StringVar(&mgmtProto, "mgmt-proto", "http", "management RPC protocol: http|grpc")
    cmd.Flags().StringVar(&sessionID, "session", "", "session ID (required)")
    cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "request timeout")
    tlsf.register(cmd)
    return cmd
}

func signalContext() (context.Context, context.CancelFunc) {
    ctx, cancel := context.WithCancel(context.Background())
    go func() {
        ch := make(chan os.Signal, 1)
        signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
        <-ch
        cancel()
    }()
    return ctx, cancel
}
