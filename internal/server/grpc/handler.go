package grpc

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dmitrijs2005/magiclink/internal/common"
	"github.com/dmitrijs2005/magiclink/internal/server/auth"
	"github.com/dmitrijs2005/magiclink/internal/server/services"
)

// IssueMagicLink returns the token for {email, purpose, prompt_id} to a
// caller holding the service key. The value is empty when the email has no
// user.
func (s *GRPCServer) IssueMagicLink(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error) {
	token, err := s.issuer.Issue(ctx, stringField(req, "email"), services.IssueOptions{
		Purpose:         auth.Purpose(stringField(req, "purpose")),
		BoundResourceID: stringField(req, "prompt_id"),
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidInput) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		s.logger.Error(ctx, "issue magic link", "error", err.Error())
		return nil, status.Error(codes.Internal, "internal error")
	}
	return wrapperspb.String(token), nil
}

func (s *GRPCServer) ValidateToken(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	return verdictStruct(s.validator.Validate(ctx, req.GetValue()))
}

func (s *GRPCServer) RefreshSession(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	pair, err := s.sessions.RedeemAndRotate(ctx, req.GetValue())
	if err != nil {
		if errors.Is(err, common.ErrRefreshTokenInvalid) {
			return nil, status.Error(codes.Unauthenticated, "refresh token invalid")
		}
		s.logger.Error(ctx, "rotate refresh token", "error", err.Error())
		return nil, status.Error(codes.Internal, "internal error")
	}

	return structpb.NewStruct(map[string]any{
		"access_token":       pair.AccessToken,
		"access_expires_at":  pair.AccessExpiresAt.UTC().Format(time.RFC3339),
		"refresh_token":      pair.RefreshToken,
		"refresh_expires_at": pair.RefreshExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *GRPCServer) RevokeRefreshToken(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	revoked, err := s.sessions.Revoke(ctx, req.GetValue())
	if err != nil {
		s.logger.Error(ctx, "revoke refresh token", "error", err.Error())
		return nil, status.Error(codes.Internal, "internal error")
	}
	return wrapperspb.Bool(revoked), nil
}

// WhoAmI returns the subject of the access token sent in metadata.
func (s *GRPCServer) WhoAmI(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	v, ok := verdictFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	return wrapperspb.String(v.Subject), nil
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func verdictStruct(v services.Verdict) (*structpb.Struct, error) {
	fields := map[string]any{"authenticated": v.Authenticated}
	if v.Authenticated {
		fields["subject"] = v.Subject
		fields["purpose"] = string(v.Purpose)
		if v.BoundResourceID != "" {
			fields["prompt_id"] = v.BoundResourceID
		}
	}
	return structpb.NewStruct(fields)
}
