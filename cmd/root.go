/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seckatie/smartbookmark/internal/client"
	"github.com/seckatie/smartbookmark/internal/config"
	"github.com/seckatie/smartbookmark/internal/core/db"
	"github.com/seckatie/smartbookmark/internal/logger"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "smartbookmark",
	Short: "A personal bookmark manager that stays in sync across every open window",
	Long: `smartbookmark keeps a private list of bookmarks per signed-in user.

Running it without a subcommand starts the server: a web dashboard, a JSON
API and a websocket change feed. Every open dashboard or "smartbookmark
watch" session keeps a local copy of the list and applies changes from the
feed as they happen, so edits made anywhere show up everywhere.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringP("db", "d", "smartbookmark.db", "Path to the SQLite database file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "Server URL used by client commands")
	rootCmd.PersistentFlags().String("token", "", "Session token used by client commands (default $SMARTBOOKMARK_TOKEN)")

	addServeFlags(rootCmd)
}

// loadConfig reads the config file and environment, then applies any flag
// the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	overrides := map[string]*string{
		"db":        &cfg.DBPath,
		"log-level": &cfg.LogLevel,
		"server":    &cfg.ServerURL,
		"addr":      &cfg.ListenAddr,
	}
	for name, dst := range overrides {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		*dst = f.Value.String()
	}
	return cfg, cfg.Validate()
}

func initDB(path string, log logger.Logger) (*db.DB, error) {
	database, err := db.NewSQLiteDB(path, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	if err := database.Migrate(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Debug("database migrated", logger.String("path", path))
	return database, nil
}

// newClient builds an API client from --server and --token (or
// SMARTBOOKMARK_TOKEN).
func newClient(cmd *cobra.Command, cfg *config.Config, log logger.Logger) (*client.Client, error) {
	token, err := cmd.Flags().GetString("token")
	if err != nil {
		return nil, err
	}
	if token == "" {
		token = os.Getenv("SMARTBOOKMARK_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("no session token: run %q and pass the result with --token or SMARTBOOKMARK_TOKEN", "smartbookmark token --email you@example.com")
	}
	return client.New(cfg.ServerURL, token, client.WithLogger(log))
}
