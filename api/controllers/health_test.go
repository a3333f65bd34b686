package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomline/erp-backend/pkg/config"
	"github.com/loomline/erp-backend/pkg/logger"
)

type stubPinger struct {
	err   error
	calls int
}

func (s *stubPinger) Ping(context.Context) error {
	s.calls++
	return s.err
}

func testConfig() *config.Config {
	return &config.Config{App: config.AppConfig{Env: "dev"}}
}

func TestHealthLive(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthLive(testConfig())(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dev", rec.Header().Get(envHeader))
	assert.Contains(t, rec.Body.String(), `"live"`)
}

func TestHealthReadyAllChecksPass(t *testing.T) {
	db, cache := &stubPinger{}, &stubPinger{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	rec := httptest.NewRecorder()

	HealthReady(testConfig(), logg,
		ReadinessCheck{Name: "database", Pinger: db},
		ReadinessCheck{Name: "redis", Pinger: cache},
	)(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, db.calls)
	assert.Equal(t, 1, cache.calls)
}

func TestHealthReadyStopsAtFirstFailure(t *testing.T) {
	db := &stubPinger{err: errors.New("connection refused")}
	cache := &stubPinger{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	rec := httptest.NewRecorder()

	HealthReady(testConfig(), logg,
		ReadinessCheck{Name: "database", Pinger: db},
		ReadinessCheck{Name: "redis", Pinger: cache},
	)(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"check":"database"`)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.Zero(t, cache.calls)
}
