// Package config defines the global configuration for the CopyForge
// entitlement engine. Configuration is loaded once at process start and is
// immutable thereafter, following 12-Factor principles: values come from the
// OS environment, optionally seeded from a .env file for local development.
//
// Any missing required value or invalid format fails startup immediately.
package config

import (
	"time"

	"copyforge/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server    ServerConfig
	Database  DatabaseConfig
	Billing   BillingConfig
	Generator GeneratorConfig
	Documents DocumentsConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// AppBaseURL is the dashboard origin used for checkout/portal redirect
	// defaults (no trailing slash).
	AppBaseURL string `envconfig:"APP_BASE_URL" default:"http://localhost:3000" validate:"required,url"`
}

// DatabaseConfig holds connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// BillingConfig holds the payment provider credentials and the per-plan
// price identifiers used when creating checkout sessions and when mapping
// subscription events back to plans.
type BillingConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`

	PriceIDPro        string `envconfig:"STRIPE_PRICE_PRO" default:"price_pro_monthly"`
	PriceIDAgency     string `envconfig:"STRIPE_PRICE_AGENCY" default:"price_agency_monthly"`
	PriceIDEnterprise string `envconfig:"STRIPE_PRICE_ENTERPRISE" default:"price_enterprise_monthly"`
}

// PriceToPlan returns the mapping from configured Stripe price IDs to plans.
// Used when interpreting subscription items on lifecycle events.
func (b BillingConfig) PriceToPlan() map[string]types.Plan {
	return map[string]types.Plan{
		b.PriceIDPro:        types.PlanPro,
		b.PriceIDAgency:     types.PlanAgency,
		b.PriceIDEnterprise: types.PlanEnterprise,
	}
}

// PlanToPrice returns the mapping from plans to configured price IDs.
// FREE has no price; it is absent from the map.
func (b BillingConfig) PlanToPrice() map[types.Plan]string {
	return map[types.Plan]string{
		types.PlanPro:        b.PriceIDPro,
		types.PlanAgency:     b.PriceIDAgency,
		types.PlanEnterprise: b.PriceIDEnterprise,
	}
}

// GeneratorConfig holds the external AI generation provider settings.
// The provider is an opaque collaborator; this engine only needs an endpoint
// and a credential to call it.
type GeneratorConfig struct {
	BaseURL string        `envconfig:"GENERATOR_BASE_URL" default:"https://api.generation.example"`
	APIKey  SecretString  `envconfig:"GENERATOR_API_KEY"`
	Timeout time.Duration `envconfig:"GENERATOR_TIMEOUT" default:"60s"`
}

// DocumentsConfig holds the document service settings. Document storage
// lives in a separate service; this engine only authorizes and meters
// creation before delegating.
type DocumentsConfig struct {
	BaseURL string        `envconfig:"DOCUMENTS_BASE_URL" default:"https://api.documents.example"`
	APIKey  SecretString  `envconfig:"DOCUMENTS_API_KEY"`
	Timeout time.Duration `envconfig:"DOCUMENTS_TIMEOUT" default:"15s"`
}

// RateLimitConfig holds per-policy window/max overrides. Each policy is an
// independent budget keyed by client address; the limiter state lives in
// process memory and resets on restart.
type RateLimitConfig struct {
	GeneralMax    int           `envconfig:"RATE_LIMIT_GENERAL_MAX" default:"300"`
	GeneralWindow time.Duration `envconfig:"RATE_LIMIT_GENERAL_WINDOW" default:"1m"`

	AuthMax    int           `envconfig:"RATE_LIMIT_AUTH_MAX" default:"10"`
	AuthWindow time.Duration `envconfig:"RATE_LIMIT_AUTH_WINDOW" default:"15m"`

	PasswordResetMax    int           `envconfig:"RATE_LIMIT_PASSWORD_RESET_MAX" default:"5"`
	PasswordResetWindow time.Duration `envconfig:"RATE_LIMIT_PASSWORD_RESET_WINDOW" default:"1h"`

	GenerationMax    int           `envconfig:"RATE_LIMIT_GENERATION_MAX" default:"20"`
	GenerationWindow time.Duration `envconfig:"RATE_LIMIT_GENERATION_WINDOW" default:"1m"`

	DocumentMax    int           `envconfig:"RATE_LIMIT_DOCUMENT_MAX" default:"30"`
	DocumentWindow time.Duration `envconfig:"RATE_LIMIT_DOCUMENT_WINDOW" default:"1m"`
}
