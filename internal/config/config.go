package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Port     string `env:"AIDEALS_PORT" envDefault:"8090"`
	DBPath   string `env:"AIDEALS_DB_PATH" envDefault:"aideals.db"`
	LogLevel string `env:"AIDEALS_LOG_LEVEL" envDefault:"info"`
	// BaseURL is the storefront origin used for checkout redirects and email links.
	BaseURL string `env:"AIDEALS_BASE_URL" envDefault:"http://localhost:5173"`

	JWTSecret string `env:"AIDEALS_JWT_SECRET,required,notEmpty"`
	// CredentialKey is the master secret that wraps per-credential keys.
	CredentialKey string `env:"AIDEALS_CREDENTIAL_KEY,required,notEmpty"`

	SweepInterval time.Duration `env:"AIDEALS_SWEEP_INTERVAL" envDefault:"1m"`

	Stripe Stripe `envPrefix:"STRIPE_"`
	Email  Email  `envPrefix:"RESEND_"`
	Push   Push   `envPrefix:"VAPID_"`
	S3     S3     `envPrefix:"EXPORT_S3_"`
}

type Stripe struct {
	SecretKey     string `env:"SECRET_KEY"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
	Currency      string `env:"CURRENCY" envDefault:"usd"`
}

type Email struct {
	APIKey    string `env:"API_KEY"`
	FromEmail string `env:"FROM_EMAIL" envDefault:"AI DEALS <orders@aideals.app>"`
}

type Push struct {
	PublicKey  string `env:"PUBLIC_KEY"`
	PrivateKey string `env:"PRIVATE_KEY"`
	Subscriber string `env:"SUBSCRIBER" envDefault:"mailto:ops@aideals.app"`
}

type S3 struct {
	Endpoint  string `env:"ENDPOINT"`
	Bucket    string `env:"BUCKET"`
	Region    string `env:"REGION" envDefault:"auto"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
}

// Load reads an optional .env file and then parses the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return parse(env.Options{})
}

// FromMap parses configuration from the given variables only.
func FromMap(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("AIDEALS_SWEEP_INTERVAL must be positive, got %s", cfg.SweepInterval)
	}
	return &cfg, nil
}

// StripeEnabled reports whether checkout and webhooks can be served.
func (c *Config) StripeEnabled() bool {
	return c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret != ""
}

func (c *Config) PushEnabled() bool {
	return c.Push.PublicKey != "" && c.Push.PrivateKey != ""
}

func (c *Config) ArchiveEnabled() bool {
	return c.S3.Bucket != "" && c.S3.AccessKey != "" && c.S3.SecretKey != ""
}
