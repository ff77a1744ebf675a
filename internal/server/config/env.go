package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names read by parseEnv.
const (
	EnvSecretKey       = "MAGICLINK_SECRET_KEY"
	EnvDatabaseDSN     = "MAGICLINK_DATABASE_DSN"
	EnvGRPCAddr        = "MAGICLINK_GRPC_ADDR"
	EnvHTTPAddr        = "MAGICLINK_HTTP_ADDR"
	EnvGRPCServiceKey  = "MAGICLINK_GRPC_SERVICE_KEY"
	EnvIssuer          = "MAGICLINK_ISSUER"
	EnvEntryTokenTTL   = "MAGICLINK_ENTRY_TOKEN_TTL"
	EnvAuthTokenTTL    = "MAGICLINK_AUTH_TOKEN_TTL"
	EnvRefreshTokenTTL = "MAGICLINK_REFRESH_TOKEN_TTL"
	EnvAppBaseURL      = "MAGICLINK_APP_BASE_URL"
	EnvCookieSecure    = "MAGICLINK_COOKIE_SECURE"
	EnvAllowedOrigins  = "MAGICLINK_ALLOWED_ORIGINS"
	EnvResendAPIKey    = "RESEND_API_KEY"
	EnvMailFrom        = "MAGICLINK_MAIL_FROM"
	EnvRateLimitRPS    = "MAGICLINK_RATE_LIMIT_RPS"
	EnvRateLimitBurst  = "MAGICLINK_RATE_LIMIT_BURST"
	EnvTrustedProxies  = "MAGICLINK_TRUSTED_PROXIES"
	EnvCleanupInterval = "MAGICLINK_CLEANUP_INTERVAL"
	EnvLogLevel        = "MAGICLINK_LOG_LEVEL"
)

// dotenvFile is loaded (when present) before reading the environment.
// Variables already set in the process environment win over the file.
var dotenvFile = ".env"

// parseEnv overlays values from the process environment. Malformed values
// panic, the same way a broken JSON file does.
func parseEnv(config *Config) {
	if _, err := os.Stat(dotenvFile); err == nil {
		if err := godotenv.Load(dotenvFile); err != nil {
			panic(fmt.Errorf("loading %s: %w", dotenvFile, err))
		}
	}

	lookupString(EnvSecretKey, &config.SecretKey)
	lookupString(EnvDatabaseDSN, &config.DatabaseDSN)
	lookupString(EnvGRPCAddr, &config.EndpointAddrGRPC)
	lookupString(EnvHTTPAddr, &config.EndpointAddrHTTP)
	lookupString(EnvGRPCServiceKey, &config.GRPCServiceKey)
	lookupString(EnvIssuer, &config.Issuer)
	lookupString(EnvAppBaseURL, &config.AppBaseURL)
	lookupString(EnvResendAPIKey, &config.ResendAPIKey)
	lookupString(EnvMailFrom, &config.MailFrom)
	lookupString(EnvLogLevel, &config.LogLevel)

	lookupDuration(EnvEntryTokenTTL, &config.EntryTokenTTL)
	lookupDuration(EnvAuthTokenTTL, &config.AuthTokenTTL)
	lookupDuration(EnvRefreshTokenTTL, &config.RefreshTokenTTL)
	lookupDuration(EnvCleanupInterval, &config.CleanupInterval)

	if v, ok := os.LookupEnv(EnvRateLimitRPS); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			panic(fmt.Errorf("%s: %w", EnvRateLimitRPS, err))
		}
		config.RateLimitRPS = f
	}

	if v, ok := os.LookupEnv(EnvRateLimitBurst); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(fmt.Errorf("%s: %w", EnvRateLimitBurst, err))
		}
		config.RateLimitBurst = n
	}

	if v, ok := os.LookupEnv(EnvCookieSecure); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			panic(fmt.Errorf("%s: %w", EnvCookieSecure, err))
		}
		config.CookieSecure = b
	}

	if v, ok := os.LookupEnv(EnvAllowedOrigins); ok && v != "" {
		config.AllowedOrigins = splitList(v)
	}

	if v, ok := os.LookupEnv(EnvTrustedProxies); ok && v != "" {
		config.TrustedProxies = splitList(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func lookupString(name string, dst *string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*dst = v
	}
}

func lookupDuration(name string, dst *time.Duration) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(fmt.Errorf("%s: %w", name, err))
	}
	*dst = d
}
