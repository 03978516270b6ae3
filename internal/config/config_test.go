package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliplens/cliplens/internal/pipeline"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Setenv("OPENAI_API_KEY", "oai-key")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("ACCESS_PASSWORD_HASH", "$2a$10$abcdefghijklmnopqrstuv")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 24, cfg.JWTExpirationHours)
	assert.Equal(t, int64(pipeline.DefaultMaxMediaBytes), cfg.MaxMediaBytes)
	assert.Equal(t, pipeline.DefaultMaxTranscriptChars, cfg.MaxTranscriptChars)
	assert.True(t, cfg.UseBrowser)
	assert.False(t, cfg.Verbose)
	assert.False(t, cfg.HasApify())
	assert.False(t, cfg.HasDatabase())
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9999")
	t.Setenv("APIFY_TOKEN", "apify-token")
	t.Setenv("DATABASE_URL", "postgres://localhost/cliplens")
	t.Setenv("MAX_MEDIA_BYTES", "1048576")
	t.Setenv("MAX_TRANSCRIPT_CHARS", "4000")
	t.Setenv("USE_BROWSER", "false")
	t.Setenv("VERBOSE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Port)
	assert.True(t, cfg.HasApify())
	assert.True(t, cfg.HasDatabase())
	assert.Equal(t, int64(1048576), cfg.MaxMediaBytes)
	assert.Equal(t, 4000, cfg.MaxTranscriptChars)
	assert.False(t, cfg.UseBrowser)
	assert.True(t, cfg.Verbose)
}

func TestLoad_MissingRequiredKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GEMINI_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GeminiAPIKey")
}

func TestLoad_ShortJWTSecretRejected(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_SECRET", "short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWTSecret")
}

func TestLoad_BadNumbersFallBackToDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "not-a-number")
	t.Setenv("MAX_MEDIA_BYTES", "huge")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, int64(pipeline.DefaultMaxMediaBytes), cfg.MaxMediaBytes)
}
