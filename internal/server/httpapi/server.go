package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/dmitrijs2005/magiclink/internal/logging"
	"github.com/dmitrijs2005/magiclink/internal/server/config"
	"github.com/dmitrijs2005/magiclink/internal/server/mailer"
	"github.com/dmitrijs2005/magiclink/internal/server/metrics"
)

const maxBodyBytes = 1 << 16

// Deps are the collaborators the HTTP API calls into. Pinger and Metrics
// are optional.
type Deps struct {
	Issuer    Issuer
	Validator Validator
	Sessions  Sessions
	Mailer    mailer.Sender
	Pinger    Pinger
	Metrics   *metrics.Metrics
}

type HTTPServer struct {
	address string
	handler http.Handler
	limiter *RateLimiter
	logger  logging.Logger
}

func NewHTTPServer(cfg *config.Config, l logging.Logger, deps Deps) *HTTPServer {
	logger := l.With("module", "http_server")

	trusted, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		// Validate already rejects this; fall back to peer addresses only
		logger.Error(context.Background(), "trusted proxies ignored", "error", err.Error())
		trusted = nil
	}
	limiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, trusted...)

	h := &handlers{
		issuer:    deps.Issuer,
		validator: deps.Validator,
		sessions:  deps.Sessions,
		mailer:    deps.Mailer,
		pinger:    deps.Pinger,
		cookies: cookieSettings{
			secure:     cfg.CookieSecure,
			accessTTL:  cfg.AuthTokenTTL,
			refreshTTL: cfg.RefreshTokenTTL,
		},
		logger: logger,
	}

	return &HTTPServer{
		address: cfg.EndpointAddrHTTP,
		handler: newRouter(h, limiter, deps.Metrics, cfg.AllowedOrigins, logger),
		limiter: limiter,
		logger:  logger,
	}
}

func newRouter(h *handlers, limiter *RateLimiter, m *metrics.Metrics, origins []string, logger logging.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /auth/magic-link", limiter.Middleware(http.HandlerFunc(h.requestMagicLink)))
	mux.HandleFunc("GET /auth/callback", h.callback)
	mux.HandleFunc("POST /auth/refresh", h.refresh)
	mux.HandleFunc("DELETE /auth/session", h.logout)
	mux.Handle("GET /auth/session", RequireSession(h.validator, http.HandlerFunc(h.session)))
	mux.HandleFunc("GET /healthz", h.healthz)
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	var handler http.Handler = mux
	if m != nil {
		handler = m.Instrument(handler)
	}
	handler = MaxBodyBytes(handler, maxBodyBytes)
	handler = SecurityHeaders(handler)
	handler = cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(handler)
	return Logging(logger, handler)
}

// Handler exposes the full middleware chain, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go s.limiter.Run(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "HTTP shutdown", "error", err.Error())
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
