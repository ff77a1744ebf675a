package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on inbound requests.
const AccessTokenHeaderName = "access_token"

// ServiceKeyHeaderName is the gRPC metadata key internal callers use to
// present the shared service key.
const ServiceKeyHeaderName = "service_key"

// Cookie names shared by the HTTP handlers and middleware.
const (
	AccessTokenCookieName  = "token"
	RefreshTokenCookieName = "refresh_token"
)

// TokenQueryParam is the URL query parameter a magic link carries its token in.
const TokenQueryParam = "token"
