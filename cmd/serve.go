/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seckatie/smartbookmark/internal/config"
	"github.com/seckatie/smartbookmark/internal/core"
	"github.com/seckatie/smartbookmark/internal/core/auth"
	"github.com/seckatie/smartbookmark/internal/core/feed"
	"github.com/seckatie/smartbookmark/internal/core/web"
	"github.com/seckatie/smartbookmark/internal/logger"
	redisconn "github.com/seckatie/smartbookmark/internal/redis"
)

// serveCmd starts the server. It is also what the root command runs.
var serveCmd = &cobra.Command{
	Use:          "serve",
	Short:        "Run the web dashboard, JSON API and change feed",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

var errNoSessionSecret = errors.New("session_secret is required (set SMARTBOOKMARK_SESSION_SECRET)")

func init() {
	addServeFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("addr", "a", ":8080", "Address to listen on")
}

func titleOptions(cfg *config.Config, log logger.Logger) core.TitleOptions {
	opts := core.TitleOptions{
		Timeout:           cfg.TitleTimeout,
		Render:            cfg.TitleRender,
		ChromePath:        cfg.TitleChromePath,
		AllowPrivateHosts: cfg.TitleAllowPrivate,
		Log:               log,
	}
	log.Info("title lookups configured",
		logger.Bool("render", opts.Render),
		logger.String("chrome_path", opts.ChromePath),
		logger.Bool("allow_private_hosts", opts.AllowPrivateHosts),
		logger.Duration("timeout", opts.Timeout))
	if opts.AllowPrivateHosts {
		log.Warn("title lookups may reach private networks")
	}
	return opts
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.SessionSecret == "" {
		return errNoSessionSecret
	}

	log := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer func() { _ = log.Sync() }()
	log.Debugf("configuration: %+v", cfg.Redacted())

	database, err := initDB(cfg.DBPath, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Warn("failed to close database", logger.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := feed.NewHub(log.With(logger.String("component", "feed")), cfg.FeedBuffer)
	hub.Attach(database)

	if cfg.RedisAddr != "" {
		rdb, err := redisconn.Connect(ctx, redisconn.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			DB:             cfg.RedisDB,
			ConnectTimeout: cfg.RedisConnectTimeout,
		}, log)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()

		bridge := feed.NewRedisBridge(rdb, hub, log.With(logger.String("component", "feed-bridge")))
		go func() {
			if err := bridge.Run(ctx); err != nil {
				log.Error("feed bridge stopped", logger.Error(err))
			}
		}()
	}

	sessions, err := auth.NewSessions(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		return err
	}

	providers, err := buildProviders(ctx, cfg)
	if err != nil {
		return err
	}
	if len(providers) == 0 {
		log.Warn("no sign-in provider configured; mint sessions with the token command")
	}

	server, err := web.NewServer(web.Options{
		Addr:          cfg.ListenAddr,
		DB:            database,
		Hub:           hub,
		Sessions:      sessions,
		Providers:     providers,
		Titles:        titleOptions(cfg, log.With(logger.String("component", "titles"))),
		SecureCookies: cfg.SecureCookies,
		SyncPolicy:    cfg.SyncPolicy,
		Log:           log,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		hub.Close()
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", logger.Duration("timeout", cfg.ShutdownTimeout))
	// Feed handlers only return once their subscription ends.
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return <-errCh
}

func buildProviders(ctx context.Context, cfg *config.Config) ([]auth.Provider, error) {
	if !cfg.OIDCEnabled() {
		return nil, nil
	}
	p, err := auth.NewOIDCProvider(ctx, auth.ProviderConfig{
		Name:         cfg.OIDCProviderName,
		Issuer:       cfg.OIDCIssuer,
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		RedirectURL:  callbackURL(cfg.BaseURL, cfg.OIDCProviderName),
	})
	if err != nil {
		return nil, err
	}
	return []auth.Provider{p}, nil
}

func callbackURL(baseURL, provider string) string {
	if provider == "" {
		provider = "google"
	}
	return strings.TrimRight(baseURL, "/") + "/auth/" + provider + "/callback"
}
