package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"FightPool/internal/ingestion"
	"FightPool/internal/observability"
	"FightPool/internal/query"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

const (
	EscrowServiceName = "fightpool.v1.Escrow"
	AdminServiceName  = "fightpool.v1.Admin"
)

// JSONCodecName is the content subtype clients select with
// grpc.CallContentSubtype.
const JSONCodecName = "json"

// jsonCodec carries plain Go structs over gRPC as JSON.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return JSONCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// escrowServer is the handler type both service descriptors dispatch to.
type escrowServer interface {
	Execute(ctx context.Context, req *CommandRequest, source string) (*ingestion.CommandResult, error)
	GetConfig(ctx context.Context, req *Empty) (*query.ConfigResponse, error)
}

// unary builds a method descriptor around an API method.
func unary[Req, Resp any](service, method string, fn func(*API, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, grpcStatus(invalidArg("decode %s: %v", method, err))
			}
			call := func(ctx context.Context, req any) (any, error) {
				resp, err := fn(srv.(*API), ctx, req.(*Req))
				if err != nil {
					return nil, grpcStatus(err)
				}
				return resp, nil
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, call)
		},
	}
}

func execute(a *API, ctx context.Context, req *CommandRequest) (*ingestion.CommandResult, error) {
	return a.Execute(ctx, req, "grpc")
}

var escrowServiceDesc = grpc.ServiceDesc{
	ServiceName: EscrowServiceName,
	HandlerType: (*escrowServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(EscrowServiceName, "Execute", execute),
		unary(EscrowServiceName, "GetConfig", (*API).GetConfig),
		unary(EscrowServiceName, "GetMatch", (*API).GetMatch),
		unary(EscrowServiceName, "ListMatches", (*API).ListMatches),
		unary(EscrowServiceName, "GetBet", (*API).GetBet),
		unary(EscrowServiceName, "ListBets", (*API).ListBets),
		unary(EscrowServiceName, "ListBettorBets", (*API).ListBettorBets),
		unary(EscrowServiceName, "GetDistribution", (*API).GetDistribution),
		unary(EscrowServiceName, "GetBalance", (*API).GetBalance),
		unary(EscrowServiceName, "GetSettlements", (*API).GetSettlements),
		unary(EscrowServiceName, "GetJournalHistory", (*API).GetJournalHistory),
	},
	Metadata: "fightpool/v1/escrow",
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: AdminServiceName,
	HandlerType: (*escrowServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(AdminServiceName, "TakeSnapshot", (*API).TakeSnapshot),
		unary(AdminServiceName, "RebuildProjections", (*API).RebuildProjections),
		unary(AdminServiceName, "GetEventLogInfo", (*API).GetEventLogInfo),
		unary(AdminServiceName, "VerifyIntegrity", (*API).VerifyIntegrity),
	},
	Metadata: "fightpool/v1/admin",
}

// GRPCServer serves the escrow and admin services plus gRPC health.
type GRPCServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	addr       string
	logger     zerolog.Logger
}

func NewGRPCServer(addr string, api *API, metrics *observability.Metrics) *GRPCServer {
	logger := observability.NewLogger("grpc")
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(observeUnary(metrics, logger)))

	grpcServer.RegisterService(&escrowServiceDesc, api)
	grpcServer.RegisterService(&adminServiceDesc, api)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	reflection.Register(grpcServer)

	return &GRPCServer{
		grpcServer: grpcServer,
		health:     healthServer,
		addr:       addr,
		logger:     logger,
	}
}

// SetServing flips the escrow service's health status, e.g. on leadership
// changes.
func (s *GRPCServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(EscrowServiceName, st)
}

// Start serves until ctx is done.
func (s *GRPCServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("gRPC server shutting down")
		s.grpcServer.GracefulStop()
	}()

	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// observeUnary records request metrics and logs server-side failures.
func observeUnary(metrics *observability.Metrics, logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		if metrics != nil {
			metrics.QueryRequests.WithLabelValues(info.FullMethod, code.String()).Inc()
			metrics.QueryDuration.WithLabelValues(info.FullMethod).Observe(time.Since(start).Seconds())
		}
		if code == codes.Internal {
			logger.Error().Err(err).Str("method", info.FullMethod).Msg("request failed")
		}
		return resp, err
	}
}
