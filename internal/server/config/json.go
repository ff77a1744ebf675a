package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/magiclink/internal/flagx"
	"github.com/dmitrijs2005/magiclink/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations
// accept both "15m" style strings and integer nanoseconds. Pointer fields
// distinguish "absent" from "false"/"0".
type JsonConfig struct {
	EndpointAddrGRPC string         `json:"endpoint_addr_grpc"`
	EndpointAddrHTTP string         `json:"endpoint_addr_http"`
	GRPCServiceKey   string         `json:"grpc_service_key"`
	DatabaseDSN      string         `json:"database_dsn"`
	SecretKey        string         `json:"secret_key"`
	Issuer           string         `json:"issuer"`
	EntryTokenTTL    timex.Duration `json:"entry_token_ttl"`
	AuthTokenTTL     timex.Duration `json:"auth_token_ttl"`
	RefreshTokenTTL  timex.Duration `json:"refresh_token_ttl"`
	AppBaseURL       string         `json:"app_base_url"`
	CookieSecure     *bool          `json:"cookie_secure"`
	AllowedOrigins   []string       `json:"allowed_origins"`
	ResendAPIKey     string         `json:"resend_api_key"`
	MailFrom         string         `json:"mail_from"`
	RateLimitRPS     *float64       `json:"rate_limit_rps"`
	RateLimitBurst   *int           `json:"rate_limit_burst"`
	TrustedProxies   []string       `json:"trusted_proxies"`
	CleanupInterval  timex.Duration `json:"cleanup_interval"`
	LogLevel         string         `json:"log_level"`
}

// parseJson overlays values from the file named by -c/-config. Keys absent
// from the file leave the current value untouched. Unreadable files and
// invalid JSON panic, as they indicate a broken deployment.
func parseJson(config *Config) {
	path := flagx.ConfigPath(os.Args[1:])
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.GRPCServiceKey, c.GRPCServiceKey)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.Issuer, c.Issuer)
	setString(&config.AppBaseURL, c.AppBaseURL)
	setString(&config.ResendAPIKey, c.ResendAPIKey)
	setString(&config.MailFrom, c.MailFrom)
	setString(&config.LogLevel, c.LogLevel)

	if c.EntryTokenTTL.Duration > 0 {
		config.EntryTokenTTL = c.EntryTokenTTL.Duration
	}
	if c.AuthTokenTTL.Duration > 0 {
		config.AuthTokenTTL = c.AuthTokenTTL.Duration
	}
	if c.RefreshTokenTTL.Duration > 0 {
		config.RefreshTokenTTL = c.RefreshTokenTTL.Duration
	}
	if c.CleanupInterval.Duration > 0 {
		config.CleanupInterval = c.CleanupInterval.Duration
	}
	if c.CookieSecure != nil {
		config.CookieSecure = *c.CookieSecure
	}
	if len(c.AllowedOrigins) > 0 {
		config.AllowedOrigins = c.AllowedOrigins
	}
	if c.RateLimitRPS != nil {
		config.RateLimitRPS = *c.RateLimitRPS
	}
	if c.RateLimitBurst != nil {
		config.RateLimitBurst = *c.RateLimitBurst
	}
	if len(c.TrustedProxies) > 0 {
		config.TrustedProxies = c.TrustedProxies
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
