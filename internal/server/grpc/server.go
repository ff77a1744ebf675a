// Package grpc exposes the session service to internal callers over gRPC.
package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmitrijs2005/magiclink/internal/logging"
	"github.com/dmitrijs2005/magiclink/internal/server/services"
)

// Issuer issues magic-link tokens.
type Issuer interface {
	Issue(ctx context.Context, email string, opts services.IssueOptions) (string, error)
}

// Validator turns a presented token into a verdict.
type Validator interface {
	Validate(ctx context.Context, token string) services.Verdict
}

// Sessions rotates and revokes refresh tokens.
type Sessions interface {
	RedeemAndRotate(ctx context.Context, presented string) (*services.TokenPair, error)
	Revoke(ctx context.Context, token string) (bool, error)
}

type GRPCServer struct {
	address    string
	serviceKey string
	issuer    Issuer
	validator Validator
	sessions  Sessions
	logger    logging.Logger
}

var _ SessionServiceServer = (*GRPCServer)(nil)

// NewGRPCServer builds the server. Every SessionService call must carry
// serviceKey in metadata; an empty key rejects all of them.
func NewGRPCServer(a, serviceKey string, l logging.Logger, issuer Issuer, validator Validator, sessions Sessions) *GRPCServer {
	return &GRPCServer{
		address:    a,
		serviceKey: serviceKey,
		logger:     l.With("module", "grpc_server"),
		issuer:     issuer,
		validator:  validator,
		sessions:   sessions,
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.serviceKeyInterceptor, s.accessTokenInterceptor))

	RegisterSessionServiceServer(srv, s)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	go func() {
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping gRPC server...")
		hs.Shutdown()
		srv.GracefulStop()
	}()

	if s.serviceKey == "" {
		s.logger.Warn(ctx, "gRPC service key is not set, all SessionService calls will be rejected")
	}
	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
