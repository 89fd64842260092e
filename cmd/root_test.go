/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/seckatie/smartbookmark/internal/logger"
)

// resetFlags puts every flag of c and its subcommands back to its default so
// tests that run rootCmd do not leak into each other.
func resetFlags(t *testing.T) {
	t.Helper()
	var reset func(c *cobra.Command)
	reset = func(c *cobra.Command) {
		for _, fs := range []*pflag.FlagSet{c.Flags(), c.PersistentFlags()} {
			fs.VisitAll(func(f *pflag.Flag) {
				_ = f.Value.Set(f.DefValue)
				f.Changed = false
			})
		}
		for _, sub := range c.Commands() {
			reset(sub)
		}
	}
	t.Cleanup(func() {
		reset(rootCmd)
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
	})
}

func TestRootCmd_Flags(t *testing.T) {
	tests := []struct {
		name         string
		flagName     string
		defaultValue string
		persistent   bool
	}{
		{
			name:         "db flag has correct default",
			flagName:     "db",
			defaultValue: "smartbookmark.db",
			persistent:   true,
		},
		{
			name:         "config flag defaults to empty",
			flagName:     "config",
			defaultValue: "",
			persistent:   true,
		},
		{
			name:         "log-level flag has correct default",
			flagName:     "log-level",
			defaultValue: "info",
			persistent:   true,
		},
		{
			name:         "server flag has correct default",
			flagName:     "server",
			defaultValue: "http://localhost:8080",
			persistent:   true,
		},
		{
			name:         "addr flag has correct default",
			flagName:     "addr",
			defaultValue: ":8080",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var flag string
			var err error

			if tt.persistent {
				flag, err = rootCmd.PersistentFlags().GetString(tt.flagName)
			} else {
				flag, err = rootCmd.Flags().GetString(tt.flagName)
			}

			if err != nil {
				t.Fatalf("Failed to get flag %s: %v", tt.flagName, err)
			}

			if flag != tt.defaultValue {
				t.Errorf("Flag %s: got %v, want %v", tt.flagName, flag, tt.defaultValue)
			}
		})
	}
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	want := []string{"serve", "token", "watch", "open", "version"}
	for _, name := range want {
		found := false
		for _, cmd := range rootCmd.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected %s subcommand to be registered", name)
		}
	}
}

func TestRootCmd_UsageOutput(t *testing.T) {
	resetFlags(t)
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)

	// Test that usage doesn't error
	err := rootCmd.Usage()
	if err != nil {
		t.Errorf("Usage() returned error: %v", err)
	}

	output := buf.String()
	if output == "" {
		t.Error("Expected usage output, got empty string")
	}
}

func TestRootCmd_CommandMetadata(t *testing.T) {
	if rootCmd.Use != "smartbookmark" {
		t.Errorf("Expected Use to be 'smartbookmark', got %s", rootCmd.Use)
	}

	if rootCmd.Short == "" {
		t.Error("Expected Short description to be set")
	}

	if rootCmd.Long == "" {
		t.Error("Expected Long description to be set")
	}
}

func newFlagCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "test"}
	c.Flags().String("config", "", "")
	c.Flags().String("db", "smartbookmark.db", "")
	c.Flags().String("log-level", "info", "")
	c.Flags().String("server", "http://localhost:8080", "")
	c.Flags().String("addr", ":8080", "")
	if err := c.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	return c
}

func TestLoadConfig(t *testing.T) {
	t.Run("flags override environment", func(t *testing.T) {
		t.Setenv("SMARTBOOKMARK_DB_PATH", "/from/env.db")
		t.Setenv("SMARTBOOKMARK_LISTEN_ADDR", ":9000")

		cfg, err := loadConfig(newFlagCommand(t, "--db", "/from/flag.db"))
		if err != nil {
			t.Fatalf("loadConfig() error = %v", err)
		}
		if cfg.DBPath != "/from/flag.db" {
			t.Errorf("expected flag db path, got %q", cfg.DBPath)
		}
		if cfg.ListenAddr != ":9000" {
			t.Errorf("expected env listen addr to survive, got %q", cfg.ListenAddr)
		}
	})

	t.Run("unset flags keep defaults", func(t *testing.T) {
		cfg, err := loadConfig(newFlagCommand(t))
		if err != nil {
			t.Fatalf("loadConfig() error = %v", err)
		}
		if cfg.DBPath != "smartbookmark.db" || cfg.LogLevel != "info" {
			t.Errorf("unexpected config: %+v", cfg.Redacted())
		}
	})

	t.Run("invalid flag value is rejected", func(t *testing.T) {
		if _, err := loadConfig(newFlagCommand(t, "--log-level", "loud")); err == nil {
			t.Error("expected error for unknown log level")
		}
	})

	t.Run("missing config file", func(t *testing.T) {
		if _, err := loadConfig(newFlagCommand(t, "--config", "/does/not/exist.yaml")); err == nil {
			t.Error("expected error for missing config file")
		}
	})
}

func TestCallbackURL(t *testing.T) {
	tests := []struct {
		base, provider, want string
	}{
		{"http://localhost:8080", "google", "http://localhost:8080/auth/google/callback"},
		{"https://bm.example.com/", "google", "https://bm.example.com/auth/google/callback"},
		{"https://bm.example.com", "", "https://bm.example.com/auth/google/callback"},
	}
	for _, tt := range tests {
		if got := callbackURL(tt.base, tt.provider); got != tt.want {
			t.Errorf("callbackURL(%q, %q) = %q, want %q", tt.base, tt.provider, got, tt.want)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	resetFlags(t)
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("smartbookmark dev")) {
		t.Errorf("unexpected version output %q", buf.String())
	}
}

func TestServeRequiresSecret(t *testing.T) {
	resetFlags(t)
	t.Setenv("SMARTBOOKMARK_SESSION_SECRET", "")
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"serve", "--db", t.TempDir() + "/x.db"})
	if err := rootCmd.Execute(); err != errNoSessionSecret {
		t.Errorf("expected errNoSessionSecret, got %v", err)
	}
}

func TestTitleOptions(t *testing.T) {
	t.Setenv("SMARTBOOKMARK_TITLE_RENDER", "true")
	t.Setenv("SMARTBOOKMARK_TITLE_CHROME_PATH", "/opt/chromium/chrome")

	cfg, err := loadConfig(newFlagCommand(t))
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	opts := titleOptions(cfg, logger.Nop())
	if !opts.Render || opts.ChromePath != "/opt/chromium/chrome" {
		t.Errorf("expected render with chrome path, got %+v", opts)
	}
	if opts.AllowPrivateHosts {
		t.Error("expected private hosts to be refused by default")
	}
	if opts.Timeout != cfg.TitleTimeout {
		t.Errorf("Timeout = %v, want %v", opts.Timeout, cfg.TitleTimeout)
	}
}
