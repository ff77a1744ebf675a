package grpc

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/magiclink/internal/common"
	"github.com/dmitrijs2005/magiclink/internal/server/services"
)

type ctxKey string

const verdictKey ctxKey = "verdict"

// protected lists methods that need a valid access token in metadata.
var protected = map[string]bool{
	methodWhoAmI: true,
}

// serviceKeyInterceptor admits SessionService calls only with the shared
// service key. Other services on the server, such as health, pass through.
func (s *GRPCServer) serviceKeyInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
		return handler(ctx, req)
	}

	presented := firstMetadata(ctx, common.ServiceKeyHeaderName)
	if presented == "" {
		return nil, status.Error(codes.Unauthenticated, "missing service key")
	}
	if s.serviceKey == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(s.serviceKey)) != 1 {
		return nil, status.Error(codes.Unauthenticated, "invalid service key")
	}

	return handler(ctx, req)
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !protected[info.FullMethod] {
		return handler(ctx, req)
	}

	accessToken := firstMetadata(ctx, common.AccessTokenHeaderName)
	if accessToken == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	v := s.validator.Validate(ctx, accessToken)
	if !v.Authenticated {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	return handler(context.WithValue(ctx, verdictKey, v), req)
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

func verdictFromContext(ctx context.Context) (services.Verdict, bool) {
	v, ok := ctx.Value(verdictKey).(services.Verdict)
	return v, ok
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Info(ctx, "grpc request",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start).String(),
	)
	return resp, err
}
