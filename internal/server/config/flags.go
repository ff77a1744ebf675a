package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/magiclink/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., "127.0.0.1:50051")
//	-h string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   HMAC signing secret
//	-i string   token issuer
//	-e int      entry link validity, minutes
//	-t int      auth link validity, minutes
//	-r int      refresh token validity, minutes
//	-u string   application base URL used in magic links
//
// Only the flags above are taken from os.Args (see flagx.FilterArgs), so the
// JSON config flag and flags owned by other components do not collide.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-h", "-d", "-s", "-i", "-e", "-t", "-r", "-u"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.EndpointAddrHTTP, "h", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "signing secret")
	fs.StringVar(&config.Issuer, "i", config.Issuer, "token issuer")

	entryTTL := fs.Int("e", int(config.EntryTokenTTL.Minutes()), "entry link validity (in minutes)")
	authTTL := fs.Int("t", int(config.AuthTokenTTL.Minutes()), "auth link validity (in minutes)")
	refreshTTL := fs.Int("r", int(config.RefreshTokenTTL.Minutes()), "refresh token validity (in minutes)")

	fs.StringVar(&config.AppBaseURL, "u", config.AppBaseURL, "application base URL")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.EntryTokenTTL = time.Duration(*entryTTL) * time.Minute
	config.AuthTokenTTL = time.Duration(*authTTL) * time.Minute
	config.RefreshTokenTTL = time.Duration(*refreshTTL) * time.Minute
}
