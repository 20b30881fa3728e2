//go:build !integration

package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestServer_Handler(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	t.Run("should report liveness regardless of dependencies", func(t *testing.T) {
		srv := NewServer(0, map[string]Pinger{"postgres": down}, newTestLogger())

		rec, body := get(t, srv.Handler(), "/healthz")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("should be ready when every dependency answers", func(t *testing.T) {
		srv := NewServer(0, map[string]Pinger{"postgres": ok, "redis": ok}, newTestLogger())

		rec, body := get(t, srv.Handler(), "/readyz")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ready", body["status"])
	})

	t.Run("should name the failing dependency when not ready", func(t *testing.T) {
		srv := NewServer(0, map[string]Pinger{"postgres": ok, "redis": down}, newTestLogger())

		rec, body := get(t, srv.Handler(), "/readyz")

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		failing, _ := body["failing"].(map[string]any)
		assert.Equal(t, "connection refused", failing["redis"])
		assert.NotContains(t, failing, "postgres")
	})

	t.Run("should expose prometheus metrics", func(t *testing.T) {
		srv := NewServer(0, nil, newTestLogger())

		rec, _ := get(t, srv.Handler(), "/metrics")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "go_goroutines")
	})
}

func TestServer_Run(t *testing.T) {
	t.Run("should stop cleanly when the context is cancelled", func(t *testing.T) {
		srv := NewServer(0, nil, newTestLogger())
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)

		go func() { done <- srv.Run(ctx) }()
		cancel()

		assert.NoError(t, <-done)
	})
}
