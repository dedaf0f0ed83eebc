package router

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nonprofit-site/backend/ai"
	"nonprofit-site/backend/pkg/config"
	"nonprofit-site/backend/pkg/di"
	"nonprofit-site/backend/pkg/logger"
)

type stubDetector struct {
	mu      sync.Mutex
	queries []ai.Query
}

func (s *stubDetector) DetectIntent(_ context.Context, q ai.Query) (ai.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	return ai.Answer{FulfillmentText: "Hello from the agent", Intent: "Default Welcome Intent"}, nil
}

func setupRouter(t *testing.T, env map[string]string) (*Router, *stubDetector) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	t.Setenv("DIALOGFLOW_PROJECT_ID", "nonprofit-site")
	t.Setenv("SESSION_SECRET", "router-test-secret")
	t.Setenv("SESSION_STORE", "memory")
	t.Setenv("ENABLE_HISTORY", "false")
	t.Setenv("ENABLE_TRACING", "false")
	t.Setenv("VAULT_ENABLED", "false")
	t.Setenv("ALLOWED_ORIGINS", "https://example.org")
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg := config.Load()
	require.NoError(t, cfg.Validate())

	detector := &stubDetector{}
	container, err := di.New(context.Background(), cfg, logger.Discard(), di.Options{Detector: detector, Version: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { container.Close(context.Background()) })

	container.Health.RunChecks(context.Background())

	r := New(container)
	r.SetupRoutes()
	return r, detector
}

func do(r *Router, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vv := range header {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	return w
}

func TestChatRoundTrip(t *testing.T) {
	r, detector := setupRouter(t, nil)

	w := do(r, http.MethodPost, "/chatbot", `{"message":"hello"}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"message":"Hello from the agent"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Contains(t, w.Header().Get("Set-Cookie"), "chat_session=")

	detector.mu.Lock()
	defer detector.mu.Unlock()
	require.Len(t, detector.queries, 1)
	assert.Equal(t, "hello", detector.queries[0].Text)
	assert.Equal(t, "en-US", detector.queries[0].LanguageCode)
}

func TestRequestsAreValidated(t *testing.T) {
	r, detector := setupRouter(t, map[string]string{"MAX_BODY_SIZE": "64"})

	w := do(r, http.MethodPost, "/chatbot", `{"text":"hello"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"The request could not be understood."}`, w.Body.String())

	big := `{"message":"` + strings.Repeat("a", 200) + `"}`
	w = do(r, http.MethodPost, "/chatbot", big, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	detector.mu.Lock()
	defer detector.mu.Unlock()
	assert.Empty(t, detector.queries)
}

func TestRateLimitedClients(t *testing.T) {
	r, _ := setupRouter(t, map[string]string{"RATE_LIMIT": "0.001", "RATE_LIMIT_BURST": "2"})

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/chatbot", `{"message":"hi"}`, nil).Code)
	}
	w := do(r, http.MethodPost, "/chatbot", `{"message":"hi"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"error"`)
}

func TestOperationalRoutes(t *testing.T) {
	r, _ := setupRouter(t, nil)

	w := do(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"session_store"`)
	assert.Contains(t, w.Body.String(), `"websocket_connections":0`)
	assert.Contains(t, w.Body.String(), `"total_requests":0`)

	w = do(r, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")

	w = do(r, http.MethodGet, "/api/docs/openapi.json", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"/chatbot"`)
}

func TestCORS(t *testing.T) {
	r, _ := setupRouter(t, nil)

	w := do(r, http.MethodOptions, "/chatbot", "", http.Header{"Origin": []string{"https://example.org"}})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://example.org", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = do(r, http.MethodOptions, "/chatbot", "", http.Header{"Origin": []string{"https://evil.test"}})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
