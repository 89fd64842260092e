package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.SyncPolicy != "feed-only" {
		t.Errorf("SyncPolicy = %q, want feed-only", cfg.SyncPolicy)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
	if cfg.OIDCEnabled() {
		t.Error("OIDC should be disabled without client credentials")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "smartbookmark.yaml")
	content := `
listen_addr: ":9090"
db_path: /var/lib/smartbookmark/data.db
log_level: debug
pretty_log: false
session_ttl: 2h
sync_policy: apply-confirmed
oidc_client_id: client
oidc_client_secret: secret
redis_addr: localhost:6379
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"listen addr", cfg.ListenAddr, ":9090"},
		{"db path", cfg.DBPath, "/var/lib/smartbookmark/data.db"},
		{"log level", cfg.LogLevel, "debug"},
		{"pretty log", cfg.PrettyLog, false},
		{"session ttl", cfg.SessionTTL, 2 * time.Hour},
		{"sync policy", cfg.SyncPolicy, "apply-confirmed"},
		{"redis addr", cfg.RedisAddr, "localhost:6379"},
		{"untouched default", cfg.TitleTimeout, 10 * time.Second},
		{"oidc enabled", cfg.OIDCEnabled(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(dir, "nope.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(path, []byte("listen_addr: [unterminated"), 0o600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("invalid policy", func(t *testing.T) {
		t.Setenv("SMARTBOOKMARK_SYNC_POLICY", "optimistic")
		_, err := Load("")
		if !errors.Is(err, ErrInvalidPolicy) {
			t.Errorf("expected ErrInvalidPolicy, got %v", err)
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		t.Setenv("SMARTBOOKMARK_LOG_LEVEL", "chatty")
		_, err := Load("")
		if !errors.Is(err, ErrInvalidLogLevel) {
			t.Errorf("expected ErrInvalidLogLevel, got %v", err)
		}
	})
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "smartbookmark.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: \":9090\"\nredis_db: 1\ntitle_chrome_path: /opt/chrome\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("SMARTBOOKMARK_LISTEN_ADDR", ":7070")
	t.Setenv("SMARTBOOKMARK_REDIS_DB", "3")
	t.Setenv("SMARTBOOKMARK_TITLE_RENDER", "true")
	t.Setenv("SMARTBOOKMARK_TITLE_CHROME_PATH", "/usr/bin/chromium")
	t.Setenv("SMARTBOOKMARK_SHUTDOWN_TIMEOUT", "1m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenAddr != ":7070" {
		t.Errorf("ListenAddr = %q, want :7070", cfg.ListenAddr)
	}
	if cfg.RedisDB != 3 {
		t.Errorf("RedisDB = %d, want 3", cfg.RedisDB)
	}
	if !cfg.TitleRender {
		t.Error("TitleRender should be true")
	}
	if cfg.TitleChromePath != "/usr/bin/chromium" {
		t.Errorf("TitleChromePath = %q, want /usr/bin/chromium", cfg.TitleChromePath)
	}
	if cfg.TitleAllowPrivate {
		t.Error("TitleAllowPrivate should default to false")
	}
	if cfg.ShutdownTimeout != time.Minute {
		t.Errorf("ShutdownTimeout = %v, want 1m", cfg.ShutdownTimeout)
	}
}

func TestEnvHelpersFallBack(t *testing.T) {
	tests := []struct {
		name  string
		value string
		check func(t *testing.T)
	}{
		{"int", "not_a_number", func(t *testing.T) {
			if got := getenvInt("TEST_FALLBACK", 7); got != 7 {
				t.Errorf("getenvInt() = %d, want 7", got)
			}
		}},
		{"bool", "maybe", func(t *testing.T) {
			if got := mustBool("TEST_FALLBACK", true); !got {
				t.Error("mustBool() should fall back to true")
			}
		}},
		{"duration", "soon", func(t *testing.T) {
			if got := mustDuration("TEST_FALLBACK", time.Second); got != time.Second {
				t.Errorf("mustDuration() = %v, want 1s", got)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SMARTBOOKMARK_TEST_FALLBACK", tt.value)
			tt.check(t)
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.SessionSecret = "s3cret"
	cfg.OIDCClientSecret = "oidc"
	cfg.RedisPassword = "pw"

	r := cfg.Redacted()
	for _, v := range []string{r.SessionSecret, r.OIDCClientSecret, r.RedisPassword} {
		if v != redacted {
			t.Errorf("secret not redacted: %q", v)
		}
	}
	if r.RedisUser != "" {
		t.Errorf("empty RedisUser should stay empty, got %q", r.RedisUser)
	}
	if cfg.SessionSecret != "s3cret" {
		t.Error("Redacted() must not modify the original")
	}
	if strings.Contains(strings.Join([]string{r.SessionSecret, r.RedisPassword}, ""), "s3cret") {
		t.Error("redacted copy leaks the secret")
	}
}
