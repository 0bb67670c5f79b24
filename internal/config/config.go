package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// StoreDriver selects the event store: "mongo", or "memory" for local runs.
	StoreDriver     string        `env:"STORE_DRIVER" envDefault:"mongo"`
	MongoDBURI      string        `env:"MONGODB_URI"`
	MongoDBPassword string        `env:"MONGODB_PASSWORD"`
	MongoDBName     string        `env:"MONGODB_DATABASE" envDefault:"attendance"`
	StorageTimeout  time.Duration `env:"STORAGE_TIMEOUT" envDefault:"10s"`

	SupabaseURL     string `env:"SUPABASE_URL,required,notEmpty"`
	SupabaseAnonKey string `env:"SUPABASE_URL_ANON_KEY,required,notEmpty"`

	// JWKSURL defaults to the Supabase project's published keys.
	JWKSURL   string `env:"JWKS_URL"`
	JWTSecret string `env:"JWT_SECRET"`

	// CredentialSecret keys every check-in credential. Changing it revokes all of them.
	CredentialSecret string `env:"CREDENTIAL_SECRET,required,notEmpty"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreMongo:
		if c.MongoDBURI == "" {
			return errors.New("MONGODB_URI is required when STORE_DRIVER=mongo")
		}
		if strings.Contains(c.MongoDBURI, "<password>") && c.MongoDBPassword == "" {
			return errors.New("MONGODB_PASSWORD is required by MONGODB_URI")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q (expected mongo or memory)", c.StoreDriver)
	}
	if c.StorageTimeout <= 0 {
		return errors.New("STORAGE_TIMEOUT must be positive")
	}
	if len(c.CredentialSecret) < 32 && c.IsProduction() {
		return errors.New("CREDENTIAL_SECRET must be at least 32 bytes in production")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// SlogLevel parses LOG_LEVEL, falling back to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
