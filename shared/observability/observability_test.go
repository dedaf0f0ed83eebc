package observability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupExportsMetricsAndSpans(t *testing.T) {
	ctx := context.Background()
	var spans bytes.Buffer

	tel, err := Setup(ctx, Options{
		ServiceName: "chat-bridge-test",
		Version:     "test",
		Metrics:     true,
		Tracing:     true,
		TraceWriter: &spans,
	})
	require.NoError(t, err)
	require.NotNil(t, tel.MetricsHandler())

	counter, err := otel.Meter("observability-test").Int64Counter("bridge.test.calls")
	require.NoError(t, err)
	counter.Add(ctx, 2)

	_, span := otel.Tracer("observability-test").Start(ctx, "detect-intent")
	span.End()

	w := httptest.NewRecorder()
	tel.MetricsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bridge_test_calls_total")
	assert.Contains(t, w.Body.String(), "go_goroutines")

	require.NoError(t, tel.Shutdown(ctx))
	assert.Contains(t, spans.String(), "detect-intent")
	assert.Contains(t, spans.String(), "chat-bridge-test")
}

func TestSetupWithEverythingDisabled(t *testing.T) {
	tel, err := Setup(context.Background(), Options{ServiceName: "chat-bridge-test"})
	require.NoError(t, err)

	assert.Nil(t, tel.MetricsHandler())
	assert.NoError(t, tel.Shutdown(context.Background()))
}
