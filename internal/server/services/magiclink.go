package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/magiclink/internal/common"
	"github.com/dmitrijs2005/magiclink/internal/server/auth"
	"github.com/dmitrijs2005/magiclink/internal/server/config"
	"github.com/dmitrijs2005/magiclink/internal/server/models"
)

// IssueOptions selects what a magic link is for. A zero value issues a
// general auth link. BoundResourceID is only accepted together with
// PurposeEntry; purpose is never inferred from it.
type IssueOptions struct {
	Purpose         auth.Purpose
	BoundResourceID string
}

// MagicLinkService issues single-purpose magic-link tokens.
type MagicLinkService struct {
	options
	dir      Directory
	codec    *auth.Codec
	entryTTL time.Duration
	authTTL  time.Duration
	baseURL  string
}

func NewMagicLinkService(dir Directory, codec *auth.Codec, cfg *config.Config, opts ...Option) *MagicLinkService {
	return &MagicLinkService{
		options:  buildOptions("magic_link_service", opts),
		dir:      dir,
		codec:    codec,
		entryTTL: cfg.EntryTokenTTL,
		authTTL:  cfg.AuthTokenTTL,
		baseURL:  strings.TrimRight(cfg.AppBaseURL, "/"),
	}
}

// Issue returns a token for the user registered under email.
//
// An unknown email yields ("", nil), the same shape a caller sees for any
// other "nothing to send" outcome. Invalid options yield common.ErrInvalidInput.
func (s *MagicLinkService) Issue(ctx context.Context, email string, opts IssueOptions) (string, error) {
	purpose := opts.Purpose
	if purpose == "" {
		purpose = auth.PurposeAuth
	}

	switch {
	case !purpose.Valid():
		return "", fmt.Errorf("%w: unknown purpose %q", common.ErrInvalidInput, purpose)
	case purpose == auth.PurposeEntry && opts.BoundResourceID == "":
		return "", fmt.Errorf("%w: entry link requires a bound resource", common.ErrInvalidInput)
	case purpose == auth.PurposeAuth && opts.BoundResourceID != "":
		return "", fmt.Errorf("%w: auth link cannot carry a bound resource", common.ErrInvalidInput)
	}

	email = models.NormalizeEmail(email)
	if email == "" {
		return "", fmt.Errorf("%w: email is empty", common.ErrInvalidInput)
	}

	user, err := s.dir.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Debug(ctx, "magic link requested for unknown email")
			return "", nil
		}
		return "", fmt.Errorf("directory lookup: %w", err)
	}

	token, err := s.codec.Encode(auth.Claims{
		Subject:         user.ID,
		Purpose:         purpose,
		BoundResourceID: opts.BoundResourceID,
	}, s.ttl(purpose))
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}

	s.recorder.MagicLinkIssued(string(purpose))
	s.logger.Info(ctx, "magic link issued", "user_id", user.ID, "purpose", purpose)

	return token, nil
}

// Link builds the URL a recipient follows: {AppBaseURL}/?token=<token>.
func (s *MagicLinkService) Link(token string) string {
	return s.baseURL + "/?" + url.Values{common.TokenQueryParam: {token}}.Encode()
}

// TTL reports the fixed lifetime for purpose.
func (s *MagicLinkService) TTL(purpose auth.Purpose) time.Duration {
	return s.ttl(purpose)
}

func (s *MagicLinkService) ttl(purpose auth.Purpose) time.Duration {
	if purpose == auth.PurposeEntry {
		return s.entryTTL
	}
	return s.authTTL
}
