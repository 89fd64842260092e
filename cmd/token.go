/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/spf13/cobra"

	"github.com/seckatie/smartbookmark/internal/core/auth"
	"github.com/seckatie/smartbookmark/internal/core/db"
	"github.com/seckatie/smartbookmark/internal/logger"
)

// LocalProvider is the identity provider recorded for users created with the
// token command.
const LocalProvider = "local"

// tokenCmd mints a session without going through a sign-in provider. It
// writes the token to stdout so it can be captured:
//
//	export SMARTBOOKMARK_TOKEN=$(smartbookmark token --email me@example.com)
var tokenCmd = &cobra.Command{
	Use:          "token",
	Short:        "Create a session token for a local user",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runToken(cmd)
	},
}

func init() {
	tokenCmd.Flags().StringP("email", "e", "", "Email address of the local user (required)")
	tokenCmd.Flags().String("name", "", "Display name for a new user")
	tokenCmd.Flags().Duration("ttl", 0, "Session lifetime (default from config)")
	_ = tokenCmd.MarkFlagRequired("email")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.SessionSecret == "" {
		return errNoSessionSecret
	}

	email, _ := cmd.Flags().GetString("email")
	name, _ := cmd.Flags().GetString("name")
	ttl, _ := cmd.Flags().GetDuration("ttl")
	if ttl <= 0 {
		ttl = cfg.SessionTTL
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("invalid email %q", email)
	}

	log := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer func() { _ = log.Sync() }()

	database, err := initDB(cfg.DBPath, log)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	sessions, err := auth.NewSessions(cfg.SessionSecret, ttl)
	if err != nil {
		return err
	}

	s, err := issueLocalSession(cmd.Context(), database, sessions, email, name)
	if err != nil {
		return err
	}

	log.Info("session issued",
		logger.String("owner_id", s.OwnerID),
		logger.String("expires_at", s.ExpiresAt.Format(time.RFC3339)))
	_, err = fmt.Fprintln(cmd.OutOrStdout(), s.Token)
	return err
}

func issueLocalSession(ctx context.Context, database *db.DB, sessions *auth.Sessions, email, name string) (auth.Session, error) {
	if email == "" {
		return auth.Session{}, errors.New("email is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	user, err := database.UpsertUser(ctx, db.Identity{
		Provider: LocalProvider,
		Subject:  email,
		Email:    email,
		Name:     name,
	})
	if err != nil {
		return auth.Session{}, fmt.Errorf("failed to save user: %w", err)
	}
	return sessions.Issue(user.ID, user.Email)
}
