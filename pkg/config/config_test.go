package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DIALOGFLOW_PROJECT_ID", "nonprofit-site")

	cfg := Load()

	assert.Equal(t, "8081", cfg.Server.Port)
	assert.Equal(t, "en-US", cfg.Dialogflow.LanguageCode)
	assert.Equal(t, []string{"en-US"}, cfg.Dialogflow.Languages)
	assert.Equal(t, 10*time.Second, cfg.Dialogflow.Timeout)
	assert.Equal(t, 256, cfg.Chat.MaxMessageLength)
	assert.Equal(t, "memory", cfg.Session.Store)
	assert.False(t, cfg.Features.EnableHistory)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DIALOGFLOW_PROJECT_ID", "p")
	t.Setenv("DIALOGFLOW_LANGUAGES", "en-US, es ,")
	t.Setenv("DIALOGFLOW_TIMEOUT", "3s")
	t.Setenv("SESSION_STORE", "Redis")
	t.Setenv("RATE_LIMIT", "0.5")

	cfg := Load()

	assert.Equal(t, []string{"en-US", "es"}, cfg.Dialogflow.Languages)
	assert.Equal(t, 3*time.Second, cfg.Dialogflow.Timeout)
	assert.Equal(t, "redis", cfg.Session.Store)
	assert.InDelta(t, 0.5, cfg.Security.RateLimit, 0.0001)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("DIALOGFLOW_TIMEOUT", "soon")
	t.Setenv("CHAT_MAX_MESSAGE_LENGTH", "many")

	cfg := Load()

	assert.Equal(t, 10*time.Second, cfg.Dialogflow.Timeout)
	assert.Equal(t, 256, cfg.Chat.MaxMessageLength)
}

func TestValidateReportsAllProblems(t *testing.T) {
	t.Setenv("DIALOGFLOW_PROJECT_ID", "")
	t.Setenv("SESSION_STORE", "disk")
	t.Setenv("APP_ENV", "production")
	t.Setenv("SESSION_SECRET", "")

	err := Load().Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "DIALOGFLOW_PROJECT_ID")
	assert.Contains(t, err.Error(), "SESSION_STORE")
	assert.Contains(t, err.Error(), "SESSION_SECRET")
}

func TestDSN(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Host = "db"
	cfg.Database.Port = "5433"
	cfg.Database.User = "u"
	cfg.Database.Password = "p"
	cfg.Database.Name = "chat"
	cfg.Database.SSLMode = "require"

	assert.Equal(t, "host=db port=5433 user=u password=p dbname=chat sslmode=require", cfg.DSN())
}

func TestVaultSettings(t *testing.T) {
	t.Setenv("DIALOGFLOW_PROJECT_ID", "p")
	t.Setenv("VAULT_ENABLED", "true")
	t.Setenv("VAULT_ADDR", "")

	cfg := Load()

	assert.True(t, cfg.Vault.Enabled)
	assert.Equal(t, "secret", cfg.Vault.Mount)
	assert.Equal(t, "chat-bridge", cfg.Vault.Path)
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VAULT_ADDR")

	t.Setenv("VAULT_ADDR", "http://vault:8200")
	t.Setenv("VAULT_TOKEN", "root")
	t.Setenv("APP_ENV", "production")
	t.Setenv("SESSION_SECRET", "")
	assert.NoError(t, Load().Validate(), "the session secret may come from vault")
}
