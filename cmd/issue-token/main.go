// Command issue-token prints a signed bearer token for local testing.
//
//	go run ./cmd/issue-token -roles admin,driver
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/citybus/internal/auth"
	"github.com/kirinyoku/citybus/internal/config"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	userFlag := flag.String("user", "", "user id (uuid); random when empty")
	rolesFlag := flag.String("roles", auth.RoleUser, "comma separated roles")
	ttlFlag := flag.Duration("ttl", 0, "token lifetime; JWT_TTL when zero")
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	userID := uuid.New()
	if *userFlag != "" {
		userID, err = uuid.Parse(*userFlag)
		if err != nil {
			logger.Error("invalid user id", "error", err)
			os.Exit(1)
		}
	}

	var roles []string
	for _, r := range strings.Split(*rolesFlag, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}

	ttl := cfg.Auth.TokenTTL
	if *ttlFlag > 0 {
		ttl = *ttlFlag
	}

	token, err := auth.NewTokens(cfg.Auth.Secret, cfg.Auth.Issuer, ttl).Issue(userID, roles...)
	if err != nil {
		logger.Error("failed to sign token", "error", err)
		os.Exit(1)
	}

	logger.Info("token issued",
		slog.String("user_id", userID.String()),
		slog.Any("roles", roles),
		slog.Time("expires_at", time.Now().Add(ttl)))

	fmt.Println(token)
}
