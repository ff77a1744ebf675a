// Package httpapi is the browser-facing JSON API: magic-link requests,
// the link callback, refresh rotation and logout.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/magiclink/internal/common"
	"github.com/dmitrijs2005/magiclink/internal/logging"
	"github.com/dmitrijs2005/magiclink/internal/server/auth"
	"github.com/dmitrijs2005/magiclink/internal/server/mailer"
	"github.com/dmitrijs2005/magiclink/internal/server/services"
)

// Issuer issues magic-link tokens and turns them into links.
type Issuer interface {
	Issue(ctx context.Context, email string, opts services.IssueOptions) (string, error)
	Link(token string) string
}

// Validator turns a presented token into a verdict.
type Validator interface {
	Validate(ctx context.Context, token string) services.Verdict
}

// Sessions manages refresh-token backed sessions.
type Sessions interface {
	StartSession(ctx context.Context, userID string) (*services.TokenPair, error)
	RedeemAndRotate(ctx context.Context, presented string) (*services.TokenPair, error)
	Revoke(ctx context.Context, token string) (bool, error)
}

// Pinger reports backend health. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type handlers struct {
	issuer    Issuer
	validator Validator
	sessions  Sessions
	mailer    mailer.Sender
	pinger    Pinger
	cookies   cookieSettings
	logger    logging.Logger
}

type magicLinkRequest struct {
	Email    string `json:"email"`
	Purpose  string `json:"purpose,omitempty"`
	PromptID string `json:"prompt_id,omitempty"`
}

type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	Subject       string `json:"subject,omitempty"`
	Purpose       string `json:"purpose,omitempty"`
	PromptID      string `json:"prompt_id,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func verdictResponse(v services.Verdict) sessionResponse {
	return sessionResponse{
		Authenticated: v.Authenticated,
		Subject:       v.Subject,
		Purpose:       string(v.Purpose),
		PromptID:      v.BoundResourceID,
	}
}

// requestMagicLink answers 202 for every well-formed request whether or not
// the email belongs to a user.
func (h *handlers) requestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req magicLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	token, err := h.issuer.Issue(ctx, req.Email, services.IssueOptions{
		Purpose:         auth.Purpose(req.Purpose),
		BoundResourceID: req.PromptID,
	})
	switch {
	case errors.Is(err, common.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error(ctx, "issue magic link", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if token != "" {
		if err := h.mailer.SendMagicLink(ctx, req.Email, h.issuer.Link(token)); err != nil {
			h.logger.Error(ctx, "send magic link", "error", err.Error())
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *handlers) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	v := h.validator.Validate(ctx, r.URL.Query().Get(common.TokenQueryParam))
	if !v.Authenticated {
		writeJSON(w, http.StatusUnauthorized, sessionResponse{})
		return
	}

	pair, err := h.sessions.StartSession(ctx, v.Subject)
	if err != nil {
		h.logger.Error(ctx, "start session", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.cookies.setSession(w, pair)
	writeJSON(w, http.StatusOK, verdictResponse(v))
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	presented, err := refreshToken(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pair, err := h.sessions.RedeemAndRotate(ctx, presented)
	switch {
	case errors.Is(err, common.ErrRefreshTokenInvalid):
		h.cookies.clearSession(w)
		writeError(w, http.StatusUnauthorized, "refresh token invalid")
		return
	case err != nil:
		h.logger.Error(ctx, "rotate refresh token", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.cookies.setSession(w, pair)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:      pair.AccessToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	presented, err := refreshToken(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	revoked := false
	if presented != "" {
		revoked, err = h.sessions.Revoke(ctx, presented)
		if err != nil {
			h.logger.Error(ctx, "revoke refresh token", "error", err.Error())
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	h.cookies.clearSession(w)
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": revoked})
}

func (h *handlers) session(w http.ResponseWriter, r *http.Request) {
	v, _ := VerdictFromContext(r.Context())
	writeJSON(w, http.StatusOK, verdictResponse(v))
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.PingContext(r.Context()); err != nil {
			h.logger.Warn(r.Context(), "health check failed", "error", err.Error())
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// refreshToken reads the refresh token from its cookie, falling back to a
// JSON body. An empty body is not an error.
func refreshToken(r *http.Request) (string, error) {
	if c, err := r.Cookie(common.RefreshTokenCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		return "", err
	}
	return req.RefreshToken, nil
}
