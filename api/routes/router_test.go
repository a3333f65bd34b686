package routes

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomline/erp-backend/api/middleware"
	"github.com/loomline/erp-backend/internal/stages"
	"github.com/loomline/erp-backend/pkg/config"
	"github.com/loomline/erp-backend/pkg/db/models"
	"github.com/loomline/erp-backend/pkg/enums"
	"github.com/loomline/erp-backend/pkg/logger"
	"github.com/loomline/erp-backend/pkg/metrics"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type memoryCache struct {
	mu      sync.Mutex
	data    map[string]string
	pingErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string]string{}}
}

func (m *memoryCache) Ping(context.Context) error {
	return m.pingErr
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key], _ = value.(string)
	return nil
}

func (m *memoryCache) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key], _ = value.(string)
	return true, nil
}

func (m *memoryCache) IdempotencyKey(scope, id string) string {
	return "test:idempotency:" + scope + ":" + id
}

func (m *memoryCache) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

type countingStageService struct {
	mu     sync.Mutex
	starts int
}

func (s *countingStageService) stage(id uuid.UUID, status enums.StageStatus) *models.ProductionStage {
	return &models.ProductionStage{ID: id, StageName: enums.StageCutting, Status: status}
}

func (s *countingStageService) GetStage(_ context.Context, id uuid.UUID) (*models.ProductionStage, error) {
	return s.stage(id, enums.StageStatusPending), nil
}

func (s *countingStageService) StartStage(_ context.Context, id uuid.UUID) (*models.ProductionStage, error) {
	s.mu.Lock()
	s.starts++
	s.mu.Unlock()
	return s.stage(id, enums.StageStatusInProgress), nil
}

func (s *countingStageService) HoldStage(context.Context, uuid.UUID) (*models.ProductionStage, error) {
	panic("not implemented")
}

func (s *countingStageService) ResumeStage(context.Context, uuid.UUID) (*models.ProductionStage, error) {
	panic("not implemented")
}

func (s *countingStageService) SkipStage(context.Context, uuid.UUID) (*models.ProductionStage, error) {
	panic("not implemented")
}

func (s *countingStageService) CompleteStage(context.Context, uuid.UUID, stages.CompleteInput) (*stages.CompletionResult, error) {
	panic("not implemented")
}

func testConfig() *config.Config {
	return &config.Config{App: config.AppConfig{Env: "dev"}}
}

func newTestRouter(cache *memoryCache, dbErr error, gatherer prometheus.Gatherer, stageSvc stages.Service) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	return NewRouter(testConfig(), logg, stubPinger{err: dbErr}, cache, stubPinger{}, gatherer, Services{Stages: stageSvc})
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter(newMemoryCache(), nil, nil, &countingStageService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyFailsWhenRedisDown(t *testing.T) {
	cache := newMemoryCache()
	cache.pingErr = errors.New("dial tcp: refused")
	router := newTestRouter(cache, nil, nil, &countingStageService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"check":"redis"`)
}

func TestReadyFailsWhenChallanBreakerOpen(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	router := NewRouter(testConfig(), logg, stubPinger{}, newMemoryCache(),
		stubPinger{err: errors.New("challan circuit breaker is open")}, nil, Services{Stages: &countingStageService{}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"check":"challan"`)
}

func TestMutatingRouteRequiresIdempotencyKey(t *testing.T) {
	svc := &countingStageService{}
	router := newTestRouter(newMemoryCache(), nil, nil, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/stages/"+uuid.NewString()+"/start", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, svc.starts)
}

func TestReadRouteSkipsIdempotency(t *testing.T) {
	router := newTestRouter(newMemoryCache(), nil, nil, &countingStageService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stages/"+uuid.NewString(), nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRepeatedStartIsReplayed(t *testing.T) {
	svc := &countingStageService{}
	cache := newMemoryCache()
	router := newTestRouter(cache, nil, nil, svc)
	path := "/api/v1/stages/" + uuid.NewString() + "/start"

	var bodies []string
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set(middleware.IdempotencyHeader, "start-1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		if i == 1 {
			assert.Equal(t, "true", rec.Header().Get("Idempotent-Replayed"))
		}
		bodies = append(bodies, rec.Body.String())
	}

	assert.Equal(t, 1, svc.starts)
	assert.Equal(t, bodies[0], bodies[1])
	assert.Len(t, cache.data, 1)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	workflow := metrics.NewWorkflowMetrics(reg)
	workflow.ObserveTransition("start", "pending", "in_progress")
	router := newTestRouter(newMemoryCache(), nil, reg, &countingStageService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "loomline_"), rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(newMemoryCache(), nil, nil, &countingStageService{})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/stages/"+uuid.NewString()+"/start", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", middleware.IdempotencyHeader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
