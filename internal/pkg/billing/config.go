package billing

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/JonasWeber/NomadBase/internal/pkg/env"
)

const (
	defaultSignatureToleranceSeconds = 300
	defaultProcessTimeoutSeconds     = 10
)

// Config carries the billing secrets and timing knobs. Both secrets come
// from the environment and must never be logged.
type Config struct {
	WebhookSecret      string `validate:"required"`
	APIKey             string `validate:"required"`
	SignatureTolerance time.Duration
	ProcessTimeout     time.Duration
}

// LoadConfigFromEnv builds and validates the billing configuration. It is
// called once at process start; a missing secret is a startup failure, not
// something to discover on the first webhook.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		WebhookSecret:      env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		APIKey:             env.GetEnv("STRIPE_API_KEY", ""),
		SignatureTolerance: envSeconds("STRIPE_WEBHOOK_TOLERANCE_SECONDS", defaultSignatureToleranceSeconds),
		ProcessTimeout:     envSeconds("BILLING_PROCESS_TIMEOUT_SECONDS", defaultProcessTimeoutSeconds),
	}

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("billing config: %w", err)
	}
	return cfg, nil
}

func envSeconds(key string, def int) time.Duration {
	raw := env.GetEnv(key, "")
	if raw == "" {
		return time.Duration(def) * time.Second
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return time.Duration(def) * time.Second
	}
	return time.Duration(n) * time.Second
}
