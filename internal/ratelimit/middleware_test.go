package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credtrust/pkg/testutil"
)

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (Result, error) {
	return Result{}, errors.New("redis down")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serve(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/credentials/C-1/verify", nil)
	return testutil.DoRequest(h, testutil.WithClient(req, ip, "test-agent"))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestPerIP(t *testing.T) {
	m := NewMiddleware(NewInMemoryStore(), discardLogger())
	h := m.PerIP("verify", 2, time.Minute)(okHandler())

	first := serve(h, "10.0.0.1")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, first.Header().Get("X-RateLimit-Reset"))

	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1").Code)

	blocked := serve(h, "10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))

	var body ExceededResponse
	require.NoError(t, json.Unmarshal(blocked.Body.Bytes(), &body))
	assert.Equal(t, "rate_limit_exceeded", body.Error)
	assert.Positive(t, body.RetryAfter)

	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.2").Code)
}

func TestPerIPDisabled(t *testing.T) {
	m := NewMiddleware(NewInMemoryStore(), discardLogger(), WithDisabled(true))
	h := m.PerIP("verify", 1, time.Minute)(okHandler())
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1").Code)
	}

	zero := NewMiddleware(NewInMemoryStore(), discardLogger()).PerIP("verify", 0, time.Minute)(okHandler())
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(zero, "10.0.0.1").Code)
	}
}

func TestPerIPFailsOpen(t *testing.T) {
	h := NewMiddleware(failingStore{}, discardLogger()).PerIP("verify", 1, time.Minute)(okHandler())
	rec := serve(h, "10.0.0.1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}
