package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/magiclink/internal/common"
	"github.com/dmitrijs2005/magiclink/internal/logging"
	"github.com/dmitrijs2005/magiclink/internal/server/auth"
	"github.com/dmitrijs2005/magiclink/internal/server/config"
	"github.com/dmitrijs2005/magiclink/internal/server/metrics"
	"github.com/dmitrijs2005/magiclink/internal/server/services"
)

type fakeIssuer struct {
	token   string
	err     error
	gotOpts services.IssueOptions
}

func (f *fakeIssuer) Issue(_ context.Context, _ string, opts services.IssueOptions) (string, error) {
	f.gotOpts = opts
	return f.token, f.err
}

func (f *fakeIssuer) Link(token string) string { return "https://postscript.ink/?token=" + token }

type fakeValidator map[string]services.Verdict

func (f fakeValidator) Validate(_ context.Context, token string) services.Verdict {
	return f[token]
}

type fakeSessions struct {
	pair       *services.TokenPair
	rotateErr  error
	revoked    bool
	started    string
	redeemed   string
	revokedArg string
}

func (f *fakeSessions) StartSession(_ context.Context, userID string) (*services.TokenPair, error) {
	f.started = userID
	return f.pair, nil
}

func (f *fakeSessions) RedeemAndRotate(_ context.Context, presented string) (*services.TokenPair, error) {
	f.redeemed = presented
	if f.rotateErr != nil {
		return nil, f.rotateErr
	}
	return f.pair, nil
}

func (f *fakeSessions) Revoke(_ context.Context, token string) (bool, error) {
	f.revokedArg = token
	return f.revoked, nil
}

type fakeMailer struct {
	to, link string
	err      error
}

func (f *fakeMailer) SendMagicLink(_ context.Context, to, link string) error {
	f.to, f.link = to, link
	return f.err
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

type fixture struct {
	issuer   *fakeIssuer
	sessions *fakeSessions
	mailer   *fakeMailer
	handler  http.Handler
}

func newFixture(t *testing.T, validator fakeValidator) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.RateLimitRPS = 100
	cfg.RateLimitBurst = 100

	f := &fixture{
		issuer: &fakeIssuer{},
		sessions: &fakeSessions{pair: &services.TokenPair{
			AccessToken:      "access-1",
			AccessExpiresAt:  time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC),
			RefreshToken:     "refresh-2",
			RefreshExpiresAt: time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC),
		}},
		mailer: &fakeMailer{},
	}
	srv := NewHTTPServer(cfg, logging.Discard(), Deps{
		Issuer:    f.issuer,
		Validator: validator,
		Sessions:  f.sessions,
		Mailer:    f.mailer,
		Pinger:    fakePinger{},
		Metrics:   metrics.New(prometheus.NewRegistry()),
	})
	f.handler = srv.Handler()
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func cookiesByName(rr *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rr.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestRequestMagicLink_SendsLink(t *testing.T) {
	f := newFixture(t, nil)
	f.issuer.token = "tok"

	body := `{"email":"user@example.com","purpose":"entry","prompt_id":"p1"}`
	rr := f.do(httptest.NewRequest(http.MethodPost, "/auth/magic-link", strings.NewReader(body)))

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.JSONEq(t, `{"status":"sent"}`, rr.Body.String())
	assert.Equal(t, services.IssueOptions{Purpose: auth.PurposeEntry, BoundResourceID: "p1"}, f.issuer.gotOpts)
	assert.Equal(t, "user@example.com", f.mailer.to)
	assert.Equal(t, "https://postscript.ink/?token=tok", f.mailer.link)
}

func TestRequestMagicLink_UnknownEmailLooksTheSame(t *testing.T) {
	f := newFixture(t, nil)

	rr := f.do(httptest.NewRequest(http.MethodPost, "/auth/magic-link", strings.NewReader(`{"email":"nobody@example.com"}`)))

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.JSONEq(t, `{"status":"sent"}`, rr.Body.String())
	assert.Empty(t, f.mailer.to)
}

func TestRequestMagicLink_MailFailureStillAccepted(t *testing.T) {
	f := newFixture(t, nil)
	f.issuer.token = "tok"
	f.mailer.err = errors.New("smtp down")

	rr := f.do(httptest.NewRequest(http.MethodPost, "/auth/magic-link", strings.NewReader(`{"email":"user@example.com"}`)))
	assert.Equal(t, http.StatusAccepted, rr.Code)
}

func TestRequestMagicLink_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"malformed json", `{"email":`, nil, http.StatusBadRequest},
		{"invalid options", `{"email":"user@example.com","purpose":"entry"}`, common.ErrInvalidInput, http.StatusBadRequest},
		{"directory failure", `{"email":"user@example.com"}`, errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.issuer.err = tt.err
			rr := f.do(httptest.NewRequest(http.MethodPost, "/auth/magic-link", strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestRequestMagicLink_RateLimited(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.RateLimitRPS = 0.001
	cfg.RateLimitBurst = 1

	srv := NewHTTPServer(cfg, logging.Discard(), Deps{Issuer: &fakeIssuer{}, Mailer: &fakeMailer{}})

	send := func(xff string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/magic-link", strings.NewReader(`{"email":"a@b.c"}`))
		req.RemoteAddr = "203.0.113.9:5555"
		if xff != "" {
			req.Header.Set("X-Forwarded-For", xff)
		}
		rr := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusAccepted, send(""))
	assert.Equal(t, http.StatusTooManyRequests, send(""))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.1"), "rotating X-Forwarded-For must not reset the budget")
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.2"))
}

func TestCallback_StartsSession(t *testing.T) {
	f := newFixture(t, fakeValidator{
		"good": {Authenticated: true, Subject: "U1", Purpose: auth.PurposeEntry, BoundResourceID: "p1"},
	})

	rr := f.do(httptest.NewRequest(http.MethodGet, "/auth/callback?token=good", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"authenticated":true,"subject":"U1","purpose":"entry","prompt_id":"p1"}`, rr.Body.String())
	assert.Equal(t, "U1", f.sessions.started)

	cookies := cookiesByName(rr)
	require.Contains(t, cookies, "token")
	require.Contains(t, cookies, "refresh_token")
	assert.Equal(t, "access-1", cookies["token"].Value)
	assert.Equal(t, int((8 * time.Hour).Seconds()), cookies["token"].MaxAge)
	assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), cookies["refresh_token"].MaxAge)
	assert.True(t, cookies["token"].HttpOnly)
	assert.True(t, cookies["token"].Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookies["token"].SameSite)
}

func TestCallback_InvalidToken(t *testing.T) {
	f := newFixture(t, fakeValidator{})

	rr := f.do(httptest.NewRequest(http.MethodGet, "/auth/callback?token=forged", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"authenticated":false}`, rr.Body.String())
	assert.Empty(t, f.sessions.started)
	assert.Empty(t, rr.Result().Cookies())
}

func TestRefresh_FromCookie(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: "refresh-1"})
	rr := f.do(req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "refresh-1", f.sessions.redeemed)

	var got tokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "access-1", got.AccessToken)
	assert.Equal(t, "refresh-2", got.RefreshToken)
	assert.Equal(t, "refresh-2", cookiesByName(rr)["refresh_token"].Value)
}

func TestRefresh_FromBody(t *testing.T) {
	f := newFixture(t, nil)

	rr := f.do(httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(`{"refresh_token":"refresh-1"}`)))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "refresh-1", f.sessions.redeemed)
}

func TestRefresh_InvalidClearsCookies(t *testing.T) {
	f := newFixture(t, nil)
	f.sessions.rotateErr = common.ErrRefreshTokenInvalid

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: "used"})
	rr := f.do(req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	cookies := cookiesByName(rr)
	require.Contains(t, cookies, "token")
	assert.Equal(t, -1, cookies["token"].MaxAge)
	assert.Equal(t, -1, cookies["refresh_token"].MaxAge)
}

func TestLogout(t *testing.T) {
	f := newFixture(t, nil)
	f.sessions.revoked = true

	req := httptest.NewRequest(http.MethodDelete, "/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: "refresh-1"})
	rr := f.do(req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"revoked":true}`, rr.Body.String())
	assert.Equal(t, "refresh-1", f.sessions.revokedArg)
	assert.Equal(t, -1, cookiesByName(rr)["refresh_token"].MaxAge)
}

func TestLogout_WithoutToken(t *testing.T) {
	f := newFixture(t, nil)

	rr := f.do(httptest.NewRequest(http.MethodDelete, "/auth/session", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"revoked":false}`, rr.Body.String())
	assert.Empty(t, f.sessions.revokedArg)
}

func TestSession_RequiresValidToken(t *testing.T) {
	f := newFixture(t, fakeValidator{
		"access-1": {Authenticated: true, Subject: "U1", Purpose: auth.PurposeAuth},
	})

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
		req.Header.Set("Authorization", "Bearer access-1")
		rr := f.do(req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"authenticated":true,"subject":"U1","purpose":"auth"}`, rr.Body.String())
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
		req.AddCookie(&http.Cookie{Name: "token", Value: "access-1"})
		assert.Equal(t, http.StatusOK, f.do(req).Code)
	})

	t.Run("missing", func(t *testing.T) {
		rr := f.do(httptest.NewRequest(http.MethodGet, "/auth/session", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.JSONEq(t, `{"authenticated":false}`, rr.Body.String())
	})
}

func TestHealthzAndMetrics(t *testing.T) {
	f := newFixture(t, nil)

	rr := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `http_requests_total{method="GET",path="GET /healthz",status="200"} 1`)
}

func TestHealthz_Unavailable(t *testing.T) {
	h := &handlers{pinger: fakePinger{err: errors.New("down")}, logger: logging.Discard()}
	rr := httptest.NewRecorder()
	h.healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestCORS_AllowedOrigin(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/auth/refresh", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := f.do(req)

	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}
