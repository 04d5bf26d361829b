// Command admintoken issues a short-lived administrative bearer token signed
// with the configured JWT key.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/privacydesk/internal/auth"
	"github.com/breatheroute/privacydesk/internal/config"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	adminID := flag.String("admin", "", "administrator identifier (token subject)")
	role := flag.String("role", auth.RoleAdmin, "role claim")
	ttl := flag.Duration("ttl", auth.DefaultTokenExpiry, "token lifetime")
	flag.Parse()

	if *adminID == "" {
		flag.Usage()
		os.Exit(2)
	}

	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	token, expiresAt, err := auth.NewJWTService(auth.JWTConfig{
		SigningKey: cfg.JWT.SigningKey,
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
	}).IssueToken(*adminID, *role, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to issue token")
	}

	log.Info().
		Str("admin", *adminID).
		Str("role", *role).
		Str("expires_at", expiresAt.Format(time.RFC3339)).
		Msg("token issued")
	fmt.Println(token)
}
