package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "SMARTBOOKMARK_"

const redacted = "***REDACTED***"

type Config struct {
	ListenAddr      string        `yaml:"listen_addr"`      // ex: ":8080"
	BaseURL         string        `yaml:"base_url"`         // public URL, used for OAuth callbacks
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // ex: 5s
	DBPath          string        `yaml:"db_path"`

	LogLevel  string `yaml:"log_level"`  // "debug" | "info" | "warn" | "error"
	PrettyLog bool   `yaml:"pretty_log"` // true => zap dev (color), false => zap prod (JSON)

	// Sessions and sign-in
	SessionSecret       string        `yaml:"session_secret"`
	SessionTTL          time.Duration `yaml:"session_ttl"`
	SecureCookies       bool          `yaml:"secure_cookies"`
	OIDCIssuer          string        `yaml:"oidc_issuer"`
	OIDCClientID        string        `yaml:"oidc_client_id"`
	OIDCClientSecret    string        `yaml:"oidc_client_secret"`
	OIDCProviderName    string        `yaml:"oidc_provider"`
	FeedBuffer          int           `yaml:"feed_buffer"`
	TitleTimeout        time.Duration `yaml:"title_timeout"`
	TitleRender         bool          `yaml:"title_render"`        // render pages in headless Chrome before reading titles
	TitleChromePath     string        `yaml:"title_chrome_path"`   // Chrome/Chromium binary for title_render, empty means search PATH
	TitleAllowPrivate   bool          `yaml:"title_allow_private"` // let title lookups reach loopback and private networks
	SyncPolicy          string        `yaml:"sync_policy"`         // "feed-only" | "apply-confirmed"
	ServerURL           string        `yaml:"server_url"`          // where CLI clients reach the server
	RedisAddr           string        `yaml:"redis_addr"`          // optional, enables cross-process feed fan-out
	RedisUser           string        `yaml:"redis_user"`
	RedisPassword       string        `yaml:"redis_password"`
	RedisDB             int           `yaml:"redis_db"`
	RedisConnectTimeout time.Duration `yaml:"redis_connect_timeout"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		ListenAddr:          ":8080",
		BaseURL:             "http://localhost:8080",
		ShutdownTimeout:     5 * time.Second,
		DBPath:              "smartbookmark.db",
		LogLevel:            "info",
		PrettyLog:           true,
		SessionTTL:          7 * 24 * time.Hour,
		OIDCIssuer:          "https://accounts.google.com",
		OIDCProviderName:    "google",
		FeedBuffer:          64,
		TitleTimeout:        10 * time.Second,
		SyncPolicy:          "feed-only",
		ServerURL:           "http://localhost:8080",
		RedisConnectTimeout: 30 * time.Second,
	}
}

// Load builds the configuration from defaults, the optional YAML file at path
// and SMARTBOOKMARK_* environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.loadEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	c.ListenAddr = getenv("LISTEN_ADDR", c.ListenAddr)
	c.BaseURL = getenv("BASE_URL", c.BaseURL)
	c.ShutdownTimeout = mustDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.DBPath = getenv("DB_PATH", c.DBPath)

	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	c.PrettyLog = mustBool("PRETTY_LOG", c.PrettyLog)

	c.SessionSecret = getenv("SESSION_SECRET", c.SessionSecret)
	c.SessionTTL = mustDuration("SESSION_TTL", c.SessionTTL)
	c.SecureCookies = mustBool("SECURE_COOKIES", c.SecureCookies)
	c.OIDCIssuer = getenv("OIDC_ISSUER", c.OIDCIssuer)
	c.OIDCClientID = getenv("OIDC_CLIENT_ID", c.OIDCClientID)
	c.OIDCClientSecret = getenv("OIDC_CLIENT_SECRET", c.OIDCClientSecret)
	c.OIDCProviderName = getenv("OIDC_PROVIDER", c.OIDCProviderName)

	c.FeedBuffer = getenvInt("FEED_BUFFER", c.FeedBuffer)
	c.TitleTimeout = mustDuration("TITLE_TIMEOUT", c.TitleTimeout)
	c.TitleRender = mustBool("TITLE_RENDER", c.TitleRender)
	c.TitleChromePath = getenv("TITLE_CHROME_PATH", c.TitleChromePath)
	c.TitleAllowPrivate = mustBool("TITLE_ALLOW_PRIVATE", c.TitleAllowPrivate)
	c.SyncPolicy = getenv("SYNC_POLICY", c.SyncPolicy)
	c.ServerURL = getenv("SERVER_URL", c.ServerURL)

	c.RedisAddr = getenv("REDIS_ADDR", c.RedisAddr)
	c.RedisUser = getenv("REDIS_USERNAME", c.RedisUser)
	c.RedisPassword = getenv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getenvInt("REDIS_DB", c.RedisDB)
	c.RedisConnectTimeout = mustDuration("REDIS_CONNECT_TIMEOUT", c.RedisConnectTimeout)
}

var (
	ErrInvalidPolicy   = errors.New("config: sync_policy must be feed-only or apply-confirmed")
	ErrInvalidLogLevel = errors.New("config: unknown log_level")
)

// Validate checks values that cannot be fixed by falling back to a default.
func (c *Config) Validate() error {
	switch c.SyncPolicy {
	case "feed-only", "apply-confirmed":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPolicy, c.SyncPolicy)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	return nil
}

// OIDCEnabled reports whether external sign-in is configured.
func (c *Config) OIDCEnabled() bool {
	return c.OIDCClientID != "" && c.OIDCClientSecret != ""
}

// Redacted returns a copy that is safe to log.
func (c *Config) Redacted() Config {
	cp := *c
	for _, s := range []*string{&cp.SessionSecret, &cp.OIDCClientSecret, &cp.RedisPassword, &cp.RedisUser} {
		if *s != "" {
			*s = redacted
		}
	}
	return cp
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(envPrefix + key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(envPrefix + key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
