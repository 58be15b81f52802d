package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const appName = "kohen"

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
	Gemini  GeminiConfig
	Auth    AuthConfig
	Outbox  OutboxConfig
}

type ServerConfig struct {
	Port           int
	AllowedOrigins string // comma-separated
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

type AuthConfig struct {
	JWTSecret      string
	ProviderSecret string
	SessionTTL     time.Duration
	ResetURL       string
}

type OutboxConfig struct {
	PollInterval time.Duration
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           4100,
			AllowedOrigins: "*",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Gemini: GeminiConfig{
			Model:   "gemini-2.5-flash",
			Timeout: 60 * time.Second,
		},
		Auth: AuthConfig{
			SessionTTL: 720 * time.Hour,
			ResetURL:   "http://localhost:4100/reset-password",
		},
		Outbox: OutboxConfig{
			PollInterval: time.Second,
		},
	}
}

// Origins returns the allowed CORS origins as a list.
func (c ServerConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/kohen/config.json, an optional .env file in the working
// directory, KOHEN_* environment variables and the local secrets file at
// $XDG_DATA_HOME/kohen/secrets.json, in increasing order of precedence for
// everything except secrets, which come from the environment first.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	return loadWith(openSettings(settingsPath()), fileSecrets{path: secretsFilePath()})
}

// secretReader abstracts the local secret store for testing.
type secretReader interface {
	Get(account string) (string, error)
}

func loadWith(b settingsStore, secrets secretReader) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	for _, s := range specs {
		if !s.secret || s.extract(cfg).(string) != "" {
			continue
		}
		if v, err := secrets.Get(s.account); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	return cfg, nil
}

// RequireGemini reports a missing Gemini API key.
func (c Config) RequireGemini() error {
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("missing required config: Gemini API key. " +
			"Set it via environment variable KOHEN_GEMINI_API_KEY or in a .env file")
	}
	return nil
}

// EnsureJWTSecret generates and persists a session signing secret on first
// start, so sessions survive restarts.
func EnsureJWTSecret(cfg *Config) error {
	if cfg.Auth.JWTSecret != "" {
		return nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	secret := hex.EncodeToString(buf)
	if err := setSecret(secretsFilePath(), accountJWTSecret, secret); err != nil {
		return fmt.Errorf("persisting JWT secret: %w", err)
	}
	cfg.Auth.JWTSecret = secret
	return nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return appName + "-data"
		}
	}
	return filepath.Join(dir, appName)
}
