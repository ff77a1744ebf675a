package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/magiclink/internal/common"
	"github.com/dmitrijs2005/magiclink/internal/server/auth"
)

// Verdict is the result of validating a token. The zero value is the
// single negative verdict; it never says why a token was rejected.
type Verdict struct {
	Authenticated   bool
	Subject         string
	Purpose         auth.Purpose
	BoundResourceID string
}

// SessionService validates presented tokens.
type SessionService struct {
	options
	dir   Directory
	codec *auth.Codec
}

func NewSessionService(dir Directory, codec *auth.Codec, opts ...Option) *SessionService {
	return &SessionService{
		options: buildOptions("session_service", opts),
		dir:     dir,
		codec:   codec,
	}
}

// Validate checks the token signature and expiry, then confirms the
// subject still exists. It never returns an error: every failure,
// including lookup failures, is a negative verdict.
func (s *SessionService) Validate(ctx context.Context, token string) Verdict {
	v, err := s.validate(ctx, token)
	if err != nil {
		s.recorder.SessionValidated(ResultRejected)
		switch {
		case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrPrincipalNotFound):
			s.logger.Debug(ctx, "token rejected", "reason", err.Error())
		default:
			s.logger.Error(ctx, "token rejected on lookup failure", "error", err.Error())
		}
		return Verdict{}
	}
	s.recorder.SessionValidated(ResultAuthenticated)
	return v
}

func (s *SessionService) validate(ctx context.Context, token string) (Verdict, error) {
	if token == "" {
		return Verdict{}, common.ErrInvalidToken
	}

	claims, err := s.codec.Decode(token)
	if err != nil {
		return Verdict{}, err
	}

	if _, err := s.dir.FindByID(ctx, claims.Subject); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return Verdict{}, common.ErrPrincipalNotFound
		}
		return Verdict{}, err
	}

	return Verdict{
		Authenticated:   true,
		Subject:         claims.Subject,
		Purpose:         claims.Purpose,
		BoundResourceID: claims.BoundResourceID,
	}, nil
}
