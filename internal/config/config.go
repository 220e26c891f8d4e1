// Package config assembles the service configuration from environment
// variables plus an optional YAML policy file. The scoring policy is loaded
// and validated once at startup; a policy the engine would refuse keeps the
// service from coming up at all.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/trustvault/internal/trustscore"
)

// Config is the fully resolved service configuration.
type Config struct {
	ListenAddr  string
	LogLevel    string
	DatabaseDSN string
	RedisAddr   string

	// InferenceGatewayURL is the base URL of the ML gateway that performs
	// face comparison, liveness analysis, and document OCR.
	InferenceGatewayURL string

	JWTSecret   string
	JWTAudience string
	// APIKeyDigests are SHA-256 hex digests of accepted API keys. Raw keys
	// never appear in configuration.
	APIKeyDigests []string

	Webhook WebhookConfig

	// Policy is the scoring policy: defaults overlaid with the policy file
	// named by TRUSTVAULT_POLICY_FILE, if any.
	Policy trustscore.Policy
}

// WebhookConfig describes the outbound event delivery targets.
type WebhookConfig struct {
	URLs        []string
	Secret      string
	Timeout     time.Duration
	MaxAttempts int
}

// Load resolves configuration from the environment and the optional policy
// file, then validates the policy.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:          getEnv("LISTEN_ADDR", ":8080"),
		LogLevel:            os.Getenv("LOG_LEVEL"),
		DatabaseDSN:         getEnv("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=trustvault port=5432 sslmode=disable"),
		RedisAddr:           getEnv("REDIS_ADDR", "redis:6379"),
		InferenceGatewayURL: getEnv("INFERENCE_GATEWAY_URL", "http://inference-gateway:8000"),
		JWTSecret:           getEnv("JWT_SECRET", "dev-secret"),
		JWTAudience:         os.Getenv("JWT_AUDIENCE"),
		APIKeyDigests:       splitList(os.Getenv("API_KEY_DIGESTS")),
		Webhook: WebhookConfig{
			URLs:        splitList(os.Getenv("WEBHOOK_URLS")),
			Secret:      os.Getenv("WEBHOOK_SECRET"),
			Timeout:     10 * time.Second,
			MaxAttempts: 3,
		},
	}

	policy, err := LoadPolicy(os.Getenv("TRUSTVAULT_POLICY_FILE"))
	if err != nil {
		return nil, err
	}
	cfg.Policy = policy

	return cfg, nil
}

// LoadPolicy returns the default scoring policy overlaid with the YAML file
// at path when one is given. The result is validated; an unusable policy is
// returned as the engine's ConfigurationError.
func LoadPolicy(path string) (trustscore.Policy, error) {
	policy := trustscore.DefaultPolicy()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return policy, fmt.Errorf("reading policy file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &policy); err != nil {
			return policy, fmt.Errorf("parsing policy file %s: %w", path, err)
		}
	}
	if err := policy.Validate(); err != nil {
		return policy, err
	}
	return policy, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
