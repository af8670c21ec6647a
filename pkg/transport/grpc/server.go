package grpc

import (
    "context"
    "crypto/tls"
    "net"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/health"
    healthpb "google.golang.org/grpc/health/grpc_health_v1"
    "google.golang.org/grpc/keepalive"

    "github.com/amirimatin/go-ndconsensus/pkg/observability/tracing"
    "github.com/amirimatin/go-ndconsensus/pkg/transport"
)

// Server implements transport.RPCServer over gRPC using a JSON codec.
type Server struct {
    bind   string
    lis    net.Listener
    srv    *grpc.Server
    tlsCfg *tls.Config
}

func NewServer(bind string) *Server { return &Server{bind: bind} }

// UseTLS enables TLS for the gRPC server using the provided config.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

// internal request/response types used over gRPC JSON codec
type empty struct{}
type statusBlob struct{ Data []byte `json:"data"` }

// managementServer defines the methods we expose.
type managementServer interface {
    GetStatus(ctx context.Context, in *empty) (*statusBlob, error)
    Submit(ctx context.Context, in *transport.SubmitRequest) (*transport.SubmitResponse, error)
    Session(ctx context.Context, in *transport.SessionRequest) (*transport.SessionResponse, error)
    Appeal(ctx context.Context, in *transport.AppealRequest) (*transport.AppealResponse, error)
}

type mgmtImpl struct {
    status transport.StatusFunc
    submit transport.SubmitFunc
    sess   transport.SessionFunc
    appeal transport.AppealFunc
}

func (m *mgmtImpl) GetStatus(ctx context.Context, _ *empty) (*statusBlob, error) {
    ctx, end := tracing.StartSpan(ctx, "grpc.status")
    defer end()
    b, err := m.status(ctx)
    if err != nil { return nil, err }
    return &statusBlob{Data: b}, nil
}

func (m *mgmtImpl) Submit(ctx context.Context, in *transport.SubmitRequest) (*transport.SubmitResponse, error) {
    if in == nil { in = &transport.SubmitRequest{} }
    if m.submit == nil { return &transport.SubmitResponse{Error: "submit not supported"}, nil }
    ctx, end := tracing.StartSpan(ctx, "grpc.submit")
    defer end()
    out, err := m.submit(ctx, *in)
    if err != nil {
        if out.Error == "" { out.Error = err.Error() }
    }
    return &out, nil
}

func (m *mgmtImpl) Session(ctx context.Context, in *transport.SessionRequest) (*transport.SessionResponse, error) {
    if in == nil { in = &transport.SessionRequest{} }
    if m.sess == nil { return &transport.SessionResponse{Error: "session not supported"}, nil }
    ctx, end := tracing.StartSpan(ctx, "grpc.session")
    defer end()
    out, err := m.sess(ctx, *in)
    if err != nil {
        if out.Error == "" { out.Error = err.Error() }
    }
    return &out, nil
}

func (m *mgmtImpl) Appeal(ctx context.Context, in *transport.AppealRequest) (*transport.AppealResponse, error) {
    if in == nil { in = &transport.AppealRequest{} }
    if m.appeal == nil { return &transport.AppealResponse{Error: "appeal not supported"}, nil }
    ctx, end := tracing.StartSpan(ctx, "grpc.appeal")
    defer end()
    out, err := m.appeal(ctx, *in)
    if err != nil {
        if out.Error == "" { out.Error = err.Error() }
    }
    return &out, nil
}

// Service descriptor and handlers (hand-written, no codegen required)
var _Management_serviceDesc = grpc.ServiceDesc{
    ServiceName: "ndc.v1.Management",
    HandlerType: (*managementServer)(nil),
    Methods: []grpc.MethodDesc{
        {MethodName: "GetStatus", Handler: _Management_GetStatus_Handler},
        {MethodName: "Submit", Handler: _Management_Submit_Handler},
        {MethodName: "Session", Handler: _Management_Session_Handler},
        {MethodName: "Appeal", Handler: _Management_Appeal_Handler},
    },
}

func _Management_GetStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(empty)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(managementServer).GetStatus(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/ndc.v1.Management/GetStatus"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(managementServer).GetStatus(ctx, req.(*empty))
    }
    return interceptor(ctx, in, info, handler)
}

func _Management_Submit_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(transport.SubmitRequest)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(managementServer).Submit(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/ndc.v1.Management/Submit"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(managementServer).Submit(ctx, req.(*transport.SubmitRequest))
    }
    return interceptor(ctx, in, info, handler)
}

func _Management_Session_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(transport.SessionRequest)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(managementServer).Session(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/ndc.v1.Management/Session"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(managementServer).Session(ctx, req.(*transport.SessionRequest))
    }
    return interceptor(ctx, in, info, handler)
}

func _Management_Appeal_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(transport.AppealRequest)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(managementServer).Appeal(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/ndc.v1.Management/Appeal"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(managementServer).Appeal(ctx, req.(*transport.AppealRequest))
    }
    return interceptor(ctx, in, info, handler)
}

func (s *Server) Start(ctx context.Context, status transport.StatusFunc, submit transport.SubmitFunc, sess transport.SessionFunc, appeal transport.AppealFunc) error {
    lis, err := net.Listen("tcp", s.bind)
    if err != nil { return err }
    s.lis = lis
    // Force JSON codec to avoid requiring protobuf types
    var opts []grpc.ServerOption
    opts = append(opts, grpc.ForceServerCodec(jsonCodec{}))
    opts = append(opts, grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: 5 * time.Second, PermitWithoutStream: true}))
    opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{Time: 30 * time.Second, Timeout: 10 * time.Second}))
    if s.tlsCfg != nil { opts = append(opts, grpc.Creds(credentials.NewTLS(s.tlsCfg))) }
    srv := grpc.NewServer(opts...)
    s.srv = srv
    // Health service (always serving for now)
    healthSrv := health.NewServer()
    healthpb.RegisterHealthServer(srv, healthSrv)
    // Register management service
    srv.RegisterService(&_Management_serviceDesc, &mgmtImpl{status: status, submit: submit, sess: sess, appeal: appeal})

    go func() {
        <-ctx.Done()
        // Graceful stop with a small timeout fallback
        ch := make(chan struct{})
        go func() { srv.GracefulStop(); close(ch) }()
        select {
        case <-ch:
        case <-time.After(2 * time.Second):
            srv.Stop()
        }
    }()
    go func() { _ = srv.Serve(lis) }()
    return nil
}

func (s *Server) Addr() string { return s.bind }

func (s *Server) Stop(ctx context.Context) error {
    if s.srv == nil { return nil }
    ch := make(chan struct{})
    go func() { s.srv.GracefulStop(); close(ch) }()
    select {
    case <-ch:
    case <-ctx.Done():
        s.srv.Stop()
    }
    s.srv = nil
    if s.lis != nil { _ = s.lis.Close(); s.lis = nil }
    return nil
}

var _ transport.RPCServer = (*Server)(nil)
