package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dmitrijs2005/magiclink/internal/common"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "magiclink.v1.SessionService"

const (
	methodIssueMagicLink     = "/" + ServiceName + "/IssueMagicLink"
	methodValidateToken      = "/" + ServiceName + "/ValidateToken"
	methodRefreshSession     = "/" + ServiceName + "/RefreshSession"
	methodRevokeRefreshToken = "/" + ServiceName + "/RevokeRefreshToken"
	methodWhoAmI             = "/" + ServiceName + "/WhoAmI"
)

// SessionServiceServer is the server API for magiclink.v1.SessionService.
// Messages are protobuf well-known types, so no generated code is needed.
type SessionServiceServer interface {
	IssueMagicLink(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error)
	ValidateToken(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	RefreshSession(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	RevokeRefreshToken(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	WhoAmI(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
}

func RegisterSessionServiceServer(s grpc.ServiceRegistrar, srv SessionServiceServer) {
	s.RegisterService(&SessionServiceDesc, srv)
}

var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "IssueMagicLink", Handler: issueMagicLinkHandler},
		{MethodName: "ValidateToken", Handler: validateTokenHandler},
		{MethodName: "RefreshSession", Handler: refreshSessionHandler},
		{MethodName: "RevokeRefreshToken", Handler: revokeRefreshTokenHandler},
		{MethodName: "WhoAmI", Handler: whoAmIHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "magiclink/v1/session.proto",
}

func issueMagicLinkHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServiceServer).IssueMagicLink(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodIssueMagicLink}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionServiceServer).IssueMagicLink(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func validateTokenHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServiceServer).ValidateToken(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodValidateToken}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionServiceServer).ValidateToken(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func refreshSessionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServiceServer).RefreshSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRefreshSession}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionServiceServer).RefreshSession(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func revokeRefreshTokenHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServiceServer).RevokeRefreshToken(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRevokeRefreshToken}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionServiceServer).RevokeRefreshToken(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func whoAmIHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServiceServer).WhoAmI(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodWhoAmI}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionServiceServer).WhoAmI(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// SessionServiceClient calls magiclink.v1.SessionService over a connection.
type SessionServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSessionServiceClient(cc grpc.ClientConnInterface) *SessionServiceClient {
	return &SessionServiceClient{cc: cc}
}

func (c *SessionServiceClient) IssueMagicLink(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, methodIssueMagicLink, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SessionServiceClient) ValidateToken(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodValidateToken, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SessionServiceClient) RefreshSession(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodRefreshSession, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SessionServiceClient) RevokeRefreshToken(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, methodRevokeRefreshToken, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SessionServiceClient) WhoAmI(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, methodWhoAmI, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ServiceKey attaches the shared service key to every call. Pass it with
// grpc.WithPerRPCCredentials.
type ServiceKey string

func (k ServiceKey) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{common.ServiceKeyHeaderName: string(k)}, nil
}

// RequireTransportSecurity is false so loopback deployments can run without TLS.
func (k ServiceKey) RequireTransportSecurity() bool {
	return false
}
