package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "admin", "password", "secret", "klum", "klumsiland",
}

type Config struct {
	// Env selects the deployment environment; "production" enables the
	// stricter checks in Validate and HSTS.
	Env         string `env:"APP_ENV" envDefault:"development"`
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// AccessCodeSingleUse switches access-code redemption from "any number of
	// sessions per code" to "exactly one session per code".
	AccessCodeSingleUse bool   `env:"ACCESS_CODE_SINGLE_USE" envDefault:"false"`
	AdminBootstrapCode  string `env:"ADMIN_BOOTSTRAP_CODE"`
	AdminAPIKeyHash     string `env:"ADMIN_API_KEY_HASH"`

	AIBaseURL        string `env:"AI_BASE_URL" envDefault:"https://api.openai.com"`
	AIAPIKey         string `env:"AI_API_KEY"`
	AIModel          string `env:"AI_MODEL" envDefault:"gpt-4"`
	AIImageSize      string `env:"AI_IMAGE_SIZE" envDefault:"1024x1024"`
	AITimeoutSeconds int    `env:"AI_TIMEOUT_SECONDS" envDefault:"60"`

	StoryWindow            int `env:"STORY_WINDOW" envDefault:"20"`
	PresenceTTLSeconds     int `env:"PRESENCE_TTL_SECONDS" envDefault:"90"`
	LoginRateLimitPerMin   int `env:"LOGIN_RATE_LIMIT_PER_MIN" envDefault:"5"`
	MessageRateLimitPerMin int `env:"MESSAGE_RATE_LIMIT_PER_MIN" envDefault:"60"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

func (c *Config) AITimeout() time.Duration {
	return time.Duration(c.AITimeoutSeconds) * time.Second
}

func (c *Config) PresenceTTL() time.Duration {
	return time.Duration(c.PresenceTTLSeconds) * time.Second
}

func (c *Config) AIEnabled() bool {
	return c.AIAPIKey != ""
}

func (c *Config) Validate(isProduction bool) error {
	if c.AdminAPIKeyHash != "" {
		if !strings.HasPrefix(c.AdminAPIKeyHash, "$2a$") &&
			!strings.HasPrefix(c.AdminAPIKeyHash, "$2b$") &&
			!strings.HasPrefix(c.AdminAPIKeyHash, "$2y$") {
			return fmt.Errorf("ADMIN_API_KEY_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <key>)")
		}
	}

	if c.StoryWindow <= 0 {
		return fmt.Errorf("STORY_WINDOW must be positive")
	}
	if c.PresenceTTLSeconds <= 0 {
		return fmt.Errorf("PRESENCE_TTL_SECONDS must be positive")
	}

	if isProduction {
		if c.AdminBootstrapCode != "" {
			if err := validateSecret("ADMIN_BOOTSTRAP_CODE", c.AdminBootstrapCode); err != nil {
				return err
			}
		}

		if c.AdminAPIKeyHash == "" {
			log.Warn().Msg("ADMIN_API_KEY_HASH is empty in production: code issuance only requires an admin session")
		}
		if !c.AIEnabled() {
			log.Warn().Msg("AI_API_KEY is empty in production: story and image generation return fallbacks")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 8 {
		return fmt.Errorf("%s must be at least 8 characters in production", name)
	}
	for _, weak := range knownWeakSecrets {
		if strings.EqualFold(value, weak) {
			return fmt.Errorf("%s is a known weak default; set a strong value in production", name)
		}
	}
	return nil
}

// Load reads an optional .env file and then parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
