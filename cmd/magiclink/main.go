// Command magiclink prints a magic link for a user, for local testing.
//
//	magiclink -email user@example.com [-purpose entry -prompt p1] [-create]
//
// Server settings (DSN, secret, base URL) come from the same sources as the
// server: JSON file, environment and flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/dmitrijs2005/magiclink/internal/devcli"
	"github.com/dmitrijs2005/magiclink/internal/flagx"
	"github.com/dmitrijs2005/magiclink/internal/logging"
	"github.com/dmitrijs2005/magiclink/internal/server/auth"
	"github.com/dmitrijs2005/magiclink/internal/server/config"
	"github.com/dmitrijs2005/magiclink/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/magiclink/internal/server/secret"
	"github.com/dmitrijs2005/magiclink/internal/server/services"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "magiclink:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var req devcli.Request

	fs := flag.NewFlagSet("magiclink", flag.ContinueOnError)
	fs.StringVar(&req.Email, "email", "", "user email")
	fs.StringVar(&req.Purpose, "purpose", string(auth.PurposeAuth), "link purpose: auth or entry")
	fs.StringVar(&req.PromptID, "prompt", "", "prompt id bound to an entry link")
	fs.BoolVar(&req.Create, "create", false, "create the user when missing")

	args := flagx.FilterArgs(os.Args[1:], []string{"-email", "-purpose", "-prompt", "-create"})
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	keys, err := secret.New(cfg.SecretKey)
	if err != nil {
		return err
	}
	codec := auth.NewCodec(keys, auth.WithIssuer(cfg.Issuer))

	db, err := repomanager.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		return err
	}

	issuer := services.NewMagicLinkService(services.NewRepositoryDirectory(db, repos), codec, cfg,
		services.WithLogger(logging.Discard()))

	res, err := devcli.NewGenerator(db, repos, issuer).Generate(ctx, req)
	if err != nil {
		return err
	}

	devcli.Print(os.Stdout, res, term.IsTerminal(int(os.Stdout.Fd())))
	return nil
}
