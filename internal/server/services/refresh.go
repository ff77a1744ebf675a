package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/magiclink/internal/common"
	"github.com/dmitrijs2005/magiclink/internal/dbx"
	"github.com/dmitrijs2005/magiclink/internal/ids"
	"github.com/dmitrijs2005/magiclink/internal/server/auth"
	"github.com/dmitrijs2005/magiclink/internal/server/config"
	"github.com/dmitrijs2005/magiclink/internal/server/models"
	"github.com/dmitrijs2005/magiclink/internal/server/repositories/repomanager"
)

// refreshTokenBytes is the entropy of an opaque refresh token.
const refreshTokenBytes = 32

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// IssuedRefreshToken is a freshly stored refresh token. Token is only ever
// available here; storage keeps its digest.
type IssuedRefreshToken struct {
	ID        string
	Token     string
	ExpiresAt time.Time
}

// RefreshService stores, rotates and revokes refresh tokens.
type RefreshService struct {
	options
	db         *sql.DB
	repos      repomanager.RepositoryManager
	codec      *auth.Codec
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewRefreshService builds the service. Access tokens minted on refresh are
// auth-purpose tokens with the auth link lifetime.
func NewRefreshService(db *sql.DB, repos repomanager.RepositoryManager, codec *auth.Codec, cfg *config.Config, opts ...Option) *RefreshService {
	return &RefreshService{
		options:    buildOptions("refresh_service", opts),
		db:         db,
		repos:      repos,
		codec:      codec,
		accessTTL:  cfg.AuthTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
	}
}

// IssueRefreshToken stores a new refresh token for userID.
func (s *RefreshService) IssueRefreshToken(ctx context.Context, userID string) (*IssuedRefreshToken, error) {
	return s.issue(ctx, s.db, userID)
}

// StartSession mints an access token and a refresh token after a successful
// primary authentication (a validated magic link).
func (s *RefreshService) StartSession(ctx context.Context, userID string) (*TokenPair, error) {
	var pair *TokenPair
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		pair, err = s.generateTokenPair(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "session started", "user_id", userID)
	return pair, nil
}

// RedeemAndRotate exchanges a refresh token for a new access token and a
// new refresh token. The presented token is deleted in the same statement
// that reads it, so it can be redeemed at most once even under concurrent
// calls. Absent, expired, already redeemed or orphaned tokens fail with
// common.ErrRefreshTokenInvalid; expired and orphaned records are deleted.
func (s *RefreshService) RedeemAndRotate(ctx context.Context, presented string) (*TokenPair, error) {
	if presented == "" {
		s.recorder.RefreshRotated(ResultInvalid)
		return nil, common.ErrRefreshTokenInvalid
	}

	var (
		pair    *TokenPair
		invalid bool
	)

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		record, err := s.repos.RefreshTokens(tx).Consume(ctx, common.HashToken(presented))
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				invalid = true
				return nil
			}
			return fmt.Errorf("error consuming refresh token: %w", err)
		}

		// returning nil commits the delete of a stale record
		if record.Expired(s.now()) {
			s.logger.Debug(ctx, "expired refresh token removed", "id", record.ID)
			invalid = true
			return nil
		}

		if _, err := s.repos.Users(tx).FindByID(ctx, record.UserID); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				invalid = true
				return nil
			}
			return fmt.Errorf("error resolving token owner: %w", err)
		}

		pair, err = s.generateTokenPair(ctx, tx, record.UserID)
		return err
	})

	switch {
	case err != nil:
		s.recorder.RefreshRotated(ResultError)
		return nil, err
	case invalid:
		s.recorder.RefreshRotated(ResultInvalid)
		return nil, common.ErrRefreshTokenInvalid
	}

	s.recorder.RefreshRotated(ResultRotated)
	return pair, nil
}

// Revoke deletes the refresh token. It reports whether anything was deleted;
// revoking an unknown or already revoked token is not an error.
func (s *RefreshService) Revoke(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	deleted, err := s.repos.RefreshTokens(s.db).Delete(ctx, common.HashToken(token))
	if err != nil {
		return false, fmt.Errorf("error revoking refresh token: %w", err)
	}
	if deleted {
		s.logger.Info(ctx, "refresh token revoked")
	}
	return deleted, nil
}

// CleanupExpired deletes every expired refresh token.
func (s *RefreshService) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.repos.RefreshTokens(s.db).DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("error deleting expired refresh tokens: %w", err)
	}
	return n, nil
}

func (s *RefreshService) issue(ctx context.Context, db dbx.DBTX, userID string) (*IssuedRefreshToken, error) {
	token, err := common.MakeRandToken(refreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("error generating refresh token: %w", err)
	}

	now := s.now()
	record := &models.RefreshToken{
		ID:        ids.NewAt(now),
		UserID:    userID,
		TokenHash: common.HashToken(token),
		ExpiresAt: now.Add(s.refreshTTL),
	}
	if err := s.repos.RefreshTokens(db).Create(ctx, record); err != nil {
		return nil, fmt.Errorf("error storing refresh token: %w", err)
	}

	return &IssuedRefreshToken{ID: record.ID, Token: token, ExpiresAt: record.ExpiresAt}, nil
}

func (s *RefreshService) generateTokenPair(ctx context.Context, db dbx.DBTX, userID string) (*TokenPair, error) {
	access, err := s.codec.Encode(auth.Claims{Subject: userID, Purpose: auth.PurposeAuth}, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("error minting access token: %w", err)
	}

	refresh, err := s.issue(ctx, db, userID)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  s.now().Add(s.accessTTL),
		RefreshToken:     refresh.Token,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}
