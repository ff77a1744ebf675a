// Package devcli generates magic links from the command line for local
// development and manual testing.
package devcli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/magiclink/internal/common"
	"github.com/dmitrijs2005/magiclink/internal/server/auth"
	"github.com/dmitrijs2005/magiclink/internal/server/models"
	"github.com/dmitrijs2005/magiclink/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/magiclink/internal/server/services"
)

// Request describes the link to generate.
type Request struct {
	Email    string
	Purpose  string
	PromptID string
	// Create registers the email first when no user has it.
	Create bool
}

// Result is a generated link and the data it was built from.
type Result struct {
	Email    string
	Purpose  auth.Purpose
	PromptID string
	Token    string
	Link     string
}

type Generator struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	issuer *services.MagicLinkService
}

func NewGenerator(db *sql.DB, repos repomanager.RepositoryManager, issuer *services.MagicLinkService) *Generator {
	return &Generator{db: db, repos: repos, issuer: issuer}
}

// Generate issues a token for req and builds its link.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	email := models.NormalizeEmail(req.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", common.ErrInvalidInput)
	}

	if req.Create {
		if err := g.ensureUser(ctx, email); err != nil {
			return nil, err
		}
	}

	purpose := auth.Purpose(req.Purpose)
	if purpose == "" {
		purpose = auth.PurposeAuth
	}

	token, err := g.issuer.Issue(ctx, email, services.IssueOptions{Purpose: purpose, BoundResourceID: req.PromptID})
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, fmt.Errorf("no user with email %s (pass -create to add one)", email)
	}

	return &Result{
		Email:    email,
		Purpose:  purpose,
		PromptID: req.PromptID,
		Token:    token,
		Link:     g.issuer.Link(token),
	}, nil
}

func (g *Generator) ensureUser(ctx context.Context, email string) error {
	users := g.repos.Users(g.db)
	_, err := users.FindByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return fmt.Errorf("user lookup: %w", err)
	}
	if _, err := users.Create(ctx, &models.User{Email: email}); err != nil {
		return fmt.Errorf("user create: %w", err)
	}
	return nil
}

// Print writes r to w. Decorated output is meant for a terminal; otherwise
// only the link is printed so the output can be piped.
func Print(w io.Writer, r *Result, decorated bool) {
	if !decorated {
		fmt.Fprintln(w, r.Link)
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Magic Link ===")
	fmt.Fprintf(w, "Email: %s\n", r.Email)
	fmt.Fprintf(w, "Purpose: %s\n", r.Purpose)
	if r.PromptID != "" {
		fmt.Fprintf(w, "Prompt ID: %s\n", r.PromptID)
	}
	fmt.Fprintf(w, "\nToken: %s\n", r.Token)
	fmt.Fprintf(w, "\nURL: %s\n", r.Link)
	fmt.Fprintln(w, "==================")
}
