package secrets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nonprofit-site/backend/pkg/logger"
)

func newVaultServer(t *testing.T, reads *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/secret/data/chat-bridge", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(reads, 1)
		assert.Equal(t, "test-token", r.Header.Get("X-Vault-Token"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"data": {
				"data": {"session-secret": "from-vault"},
				"metadata": {"created_time": "2024-05-01T10:00:00Z", "version": 3}
			}
		}`))
	})
	mux.HandleFunc("/v1/secret/data/missing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errors":[]}`))
	})
	mux.HandleFunc("/v1/sys/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"initialized":true,"sealed":false,"standby":false,"version":"1.16.0"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestManagerReadsVaultFirst(t *testing.T) {
	var reads int32
	srv := newVaultServer(t, &reads)
	t.Setenv("SESSION_SECRET", "from-env")
	t.Setenv("REDIS_PASSWORD", "redis-env")

	m, err := NewManager(VaultConfig{
		Enabled: true,
		Address: srv.URL,
		Token:   "test-token",
		Path:    "chat-bridge",
	}, logger.Discard())
	require.NoError(t, err)
	ctx := context.Background()

	value, err := m.GetSecret(ctx, KeySessionSecret)
	require.NoError(t, err)
	assert.Equal(t, "from-vault", value)

	_, err = m.GetSecret(ctx, KeySessionSecret)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&reads), "second read is cached")

	value, err = m.GetSecret(ctx, KeyRedisPassword)
	require.NoError(t, err)
	assert.Equal(t, "redis-env", value)

	assert.Equal(t, "fallback", m.GetSecretWithDefault(ctx, KeyDBPassword, "fallback"))
	assert.NoError(t, m.Ping(ctx))
}

func TestManagerMissingVaultEntryFallsBackToEnv(t *testing.T) {
	var reads int32
	srv := newVaultServer(t, &reads)
	t.Setenv("DIALOGFLOW_CREDENTIALS", `{"type":"service_account"}`)

	m, err := NewManager(VaultConfig{Enabled: true, Address: srv.URL, Token: "test-token", Path: "missing"}, logger.Discard())
	require.NoError(t, err)

	value, err := m.GetSecret(context.Background(), KeyDialogflowCredentials)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"service_account"}`, value)
}

func TestManagerDisabledUsesEnvironment(t *testing.T) {
	t.Setenv("SESSION_SECRET", "from-env")

	m, err := NewManager(VaultConfig{}, logger.Discard())
	require.NoError(t, err)
	ctx := context.Background()

	value, err := m.GetSecret(ctx, KeySessionSecret)
	require.NoError(t, err)
	assert.Equal(t, "from-env", value)

	_, err = m.GetSecret(ctx, "no-such-secret")
	assert.ErrorIs(t, err, ErrSecretNotFound)
	assert.NoError(t, m.Ping(ctx))
}

func TestNewManagerRequiresAddressAndToken(t *testing.T) {
	_, err := NewManager(VaultConfig{Enabled: true, Token: "t"}, logger.Discard())
	assert.ErrorIs(t, err, ErrNoVaultAddress)

	_, err = NewManager(VaultConfig{Enabled: true, Address: "http://vault:8200"}, logger.Discard())
	assert.ErrorIs(t, err, ErrNoVaultToken)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "DIALOGFLOW_CREDENTIALS", EnvKey("dialogflow-credentials"))
	assert.Equal(t, "DB_PASSWORD", EnvKey("db.password"))
}
