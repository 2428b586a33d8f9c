package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Document store backends.
const (
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "THRIVEUP_"

// Config represents the global ~/.thriveup/config.toml.
type Config struct {
	DefaultSession string         `toml:"default_session"`
	Backend        string         `toml:"backend"`
	BatchSize      int            `toml:"batch_size"`
	MetricsAddr    string         `toml:"metrics_addr"`
	LogLevel       string         `toml:"log_level"`
	Firebase       FirebaseConfig `toml:"firebase"`
	Auth           AuthConfig     `toml:"auth"`
	AMQP           AMQPConfig     `toml:"amqp"`
}

type FirebaseConfig struct {
	ProjectID       string `toml:"project_id"`
	CredentialsFile string `toml:"credentials_file"`
}

// AuthConfig selects how the signed-in user is found: a fixed UserID, a
// Firebase IDToken, or a DevToken signed with DevSecret.
type AuthConfig struct {
	UserID    string `toml:"user_id"`
	IDToken   string `toml:"id_token"`
	DevToken  string `toml:"dev_token"`
	DevSecret string `toml:"dev_secret"`
}

type AMQPConfig struct {
	URL      string `toml:"url"`
	Exchange string `toml:"exchange"`
}

// Defaults returns the configuration used for unset values.
func Defaults() *Config {
	return &Config{
		DefaultSession: "default",
		Backend:        BackendFirestore,
		BatchSize:      10,
		LogLevel:       "info",
		AMQP:           AMQPConfig{Exchange: "thriveup.events"},
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Resolve builds the effective configuration: defaults, then the file at
// path when it exists, then the .env files, then THRIVEUP_* variables.
func Resolve(path string, dotenv ...string) (*Config, error) {
	cfg := Defaults()
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := LoadDotEnv(dotenv...); err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables already set. Missing files are
// skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with THRIVEUP_* environment variables.
func ApplyEnv(cfg *Config) error {
	strs := map[string]*string{
		"DEFAULT_SESSION":           &cfg.DefaultSession,
		"BACKEND":                   &cfg.Backend,
		"METRICS_ADDR":              &cfg.MetricsAddr,
		"LOG_LEVEL":                 &cfg.LogLevel,
		"FIREBASE_PROJECT_ID":       &cfg.Firebase.ProjectID,
		"FIREBASE_CREDENTIALS_FILE": &cfg.Firebase.CredentialsFile,
		"USER_ID":                   &cfg.Auth.UserID,
		"ID_TOKEN":                  &cfg.Auth.IDToken,
		"DEV_TOKEN":                 &cfg.Auth.DevToken,
		"DEV_SECRET":                &cfg.Auth.DevSecret,
		"AMQP_URL":                  &cfg.AMQP.URL,
		"AMQP_EXCHANGE":             &cfg.AMQP.Exchange,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv(EnvPrefix + "BATCH_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sBATCH_SIZE: %w", EnvPrefix, err)
		}
		cfg.BatchSize = n
	}
	return nil
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFirestore, BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.BatchSize < 1 || c.BatchSize > 30 {
		return fmt.Errorf("batch_size must be between 1 and 30, got %d", c.BatchSize)
	}
	if c.Auth.DevToken != "" && c.Auth.DevSecret == "" {
		return errors.New("auth.dev_token requires auth.dev_secret")
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
