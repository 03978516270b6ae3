// Package config provides environment-driven configuration for the service.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/cliplens/cliplens/internal/pipeline"
)

// Config holds everything the service needs at startup. Required keys fail
// fast at load time; optional collaborators (actor token, database) degrade
// to fallbacks when absent.
type Config struct {
	Port int `validate:"min=1,max=65535"`

	// LLM + transcription keys.
	GeminiAPIKey    string `validate:"required"`
	GeminiModel     string
	OpenAIAPIKey    string `validate:"required"`
	TranscribeModel string

	// Scraping. Without a token the page scraper is used instead of the
	// hosted actor.
	ApifyToken   string
	ApifyActorID string
	UseBrowser   bool

	// Auth.
	JWTSecret          string `validate:"required,min=16"`
	JWTExpirationHours int    `validate:"min=1"`
	AccessPasswordHash string `validate:"required"`

	// Optional persistence.
	DatabaseURL string

	// Pipeline limits.
	MaxMediaBytes      int64 `validate:"min=1"`
	MaxTranscriptChars int   `validate:"min=1"`

	Verbose bool
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               envInt("PORT", 8080),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        os.Getenv("GEMINI_MODEL"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		TranscribeModel:    os.Getenv("TRANSCRIBE_MODEL"),
		ApifyToken:         os.Getenv("APIFY_TOKEN"),
		ApifyActorID:       os.Getenv("APIFY_ACTOR_ID"),
		UseBrowser:         envBool("USE_BROWSER", true),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTExpirationHours: envInt("JWT_EXPIRATION_HOURS", 24),
		AccessPasswordHash: os.Getenv("ACCESS_PASSWORD_HASH"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		MaxMediaBytes:      envInt64("MAX_MEDIA_BYTES", pipeline.DefaultMaxMediaBytes),
		MaxTranscriptChars: envInt("MAX_TRANSCRIPT_CHARS", pipeline.DefaultMaxTranscriptChars),
		Verbose:            envBool("VERBOSE", false),
	}

	if err := validator.New().Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range errs {
				return nil, fmt.Errorf("config error: %s failed %q validation", fe.Field(), fe.Tag())
			}
		}
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// HasDatabase reports whether persistence is configured.
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// HasApify reports whether the hosted scraping actor is configured.
func (c *Config) HasApify() bool {
	return c.ApifyToken != ""
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
