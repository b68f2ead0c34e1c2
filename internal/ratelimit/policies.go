package ratelimit

import (
	"time"

	"copyforge/internal/config"
)

// Policy names. An address's budget under one policy is unrelated to its
// budget under any other.
const (
	PolicyGeneral        = "general"
	PolicyAuth           = "auth"
	PolicyPasswordReset  = "password_reset"
	PolicyGeneration     = "generation"
	PolicyDocumentCreate = "document_create"
)

// Policies bundles the named policies the API applies, built from
// configuration overrides at startup.
//
// Auth and PasswordReset have no routes in this service today; identity
// endpoints live in the upstream gateway. They are defined here so all
// traffic policies share one configuration surface when those endpoints
// are fronted through this chassis.
type Policies struct {
	General        Policy
	Auth           Policy
	PasswordReset  Policy
	Generation     Policy
	DocumentCreate Policy
}

// NewPolicies builds the policy set from configuration.
func NewPolicies(cfg config.RateLimitConfig) Policies {
	return Policies{
		General: Policy{
			Name:   PolicyGeneral,
			Window: orDefault(cfg.GeneralWindow, time.Minute),
			Max:    orDefaultMax(cfg.GeneralMax, 300),
		},
		Auth: Policy{
			Name:              PolicyAuth,
			Window:            orDefault(cfg.AuthWindow, 15*time.Minute),
			Max:               orDefaultMax(cfg.AuthMax, 10),
			CountFailuresOnly: true,
		},
		PasswordReset: Policy{
			Name:   PolicyPasswordReset,
			Window: orDefault(cfg.PasswordResetWindow, time.Hour),
			Max:    orDefaultMax(cfg.PasswordResetMax, 5),
		},
		Generation: Policy{
			Name:   PolicyGeneration,
			Window: orDefault(cfg.GenerationWindow, time.Minute),
			Max:    orDefaultMax(cfg.GenerationMax, 20),
		},
		DocumentCreate: Policy{
			Name:   PolicyDocumentCreate,
			Window: orDefault(cfg.DocumentWindow, time.Minute),
			Max:    orDefaultMax(cfg.DocumentMax, 30),
		},
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func orDefaultMax(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}
