package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/loomline/erp-backend/pkg/errors"
)

type memoryIdempotencyStore struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryIdempotencyStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.values[key], m.ttls[key] = value.(string), ttl
	return nil
}

func (m *memoryIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, taken := m.values[key]; taken {
		return false, nil
	}
	return true, m.Set(ctx, key, value, ttl)
}

func (m *memoryIdempotencyStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memoryIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "test:" + scope + ":" + id
}

// guardedRouter mounts handler on the workflow routes behind Idempotency so
// chi resolves real route patterns.
func guardedRouter(store *memoryIdempotencyStore, handler http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stages/{stageId}", handler)
		r.Group(func(r chi.Router) {
			r.Use(Idempotency(store, nil))
			r.Post("/production-orders", handler)
			r.Post("/stages/{stageId}/complete", handler)
			r.Post("/stages/{stageId}/start", handler)
		})
	})
	return r
}

func send(t *testing.T, h http.Handler, method, path, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCodeOf(t *testing.T, rec *httptest.ResponseRecorder) pkgerrors.Code {
	t.Helper()
	var envelope struct {
		Error struct {
			Code pkgerrors.Code `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Error.Code
}

func TestRouteTTLSelection(t *testing.T) {
	tests := map[string]struct {
		method, pattern string
		want            time.Duration
		guarded         bool
	}{
		"order create":     {http.MethodPost, "/api/v1/production-orders", criticalIdempotencyTTL, true},
		"complete":         {http.MethodPost, "/api/v1/stages/{stageId}/complete", criticalIdempotencyTTL, true},
		"receive":          {http.MethodPost, "/api/v1/stages/{stageId}/receive", criticalIdempotencyTTL, true},
		"hold":             {http.MethodPost, "/api/v1/stages/{stageId}/hold", defaultIdempotencyTTL, true},
		"rejection line":   {http.MethodPost, "/api/v1/stages/{stageId}/rejections", defaultIdempotencyTTL, true},
		"outsourcing flag": {http.MethodPut, "/api/v1/stages/{stageId}/outsourcing", defaultIdempotencyTTL, true},
		"read":             {http.MethodGet, "/api/v1/stages/{stageId}", 0, false},
		"wrong method":     {http.MethodPost, "/api/v1/stages/{stageId}/outsourcing", 0, false},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ttl, guarded := routeTTL(tt.method, tt.pattern)
			assert.Equal(t, tt.guarded, guarded)
			assert.Equal(t, tt.want, ttl)
		})
	}
}

func TestIdempotencyRequiresKey(t *testing.T) {
	called := false
	h := guardedRouter(newMemoryIdempotencyStore(), func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := send(t, h, http.MethodPost, "/api/v1/stages/s1/complete", "", `{"processed":"10"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, pkgerrors.CodeValidation, errorCodeOf(t, rec))
	assert.False(t, called)
}

func TestIdempotencyReplaysFinishedResponse(t *testing.T) {
	store := newMemoryIdempotencyStore()
	calls := 0
	h := guardedRouter(store, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":{"status":"COMPLETED"}}`))
	})

	first := send(t, h, http.MethodPost, "/api/v1/stages/s1/complete", "k1", `{"processed":"10"}`)
	second := send(t, h, http.MethodPost, "/api/v1/stages/s1/complete", "k1", `{"processed":"10"}`)

	assert.Equal(t, 1, calls)
	assert.Empty(t, first.Header().Get(replayedHeader))
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get(replayedHeader))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	key := store.IdempotencyKey("POST|/api/v1/stages/s1/complete", "k1")
	assert.Equal(t, criticalIdempotencyTTL, store.ttls[key])
}

func TestIdempotencyKeyScopedToPath(t *testing.T) {
	calls := 0
	h := guardedRouter(newMemoryIdempotencyStore(), func(w http.ResponseWriter, r *http.Request) { calls++ })

	send(t, h, http.MethodPost, "/api/v1/stages/s1/start", "same", `{}`)
	send(t, h, http.MethodPost, "/api/v1/stages/s2/start", "same", `{}`)
	assert.Equal(t, 2, calls)
}

func TestIdempotencyRejectsChangedBody(t *testing.T) {
	h := guardedRouter(newMemoryIdempotencyStore(), func(w http.ResponseWriter, r *http.Request) {})

	send(t, h, http.MethodPost, "/api/v1/stages/s1/complete", "k2", `{"processed":"10"}`)
	rec := send(t, h, http.MethodPost, "/api/v1/stages/s1/complete", "k2", `{"processed":"11"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, pkgerrors.CodeIdempotency, errorCodeOf(t, rec))
}

func TestIdempotencyRefusesDuplicateWhileRunning(t *testing.T) {
	store := newMemoryIdempotencyStore()
	var h http.Handler
	var duplicate *httptest.ResponseRecorder
	h = guardedRouter(store, func(w http.ResponseWriter, r *http.Request) {
		if duplicate == nil {
			duplicate = send(t, h, http.MethodPost, "/api/v1/stages/s1/complete", "k3", `{}`)
		}
	})

	send(t, h, http.MethodPost, "/api/v1/stages/s1/complete", "k3", `{}`)
	require.NotNil(t, duplicate)
	assert.Equal(t, http.StatusConflict, duplicate.Code)
	assert.Equal(t, pkgerrors.CodeConflict, errorCodeOf(t, duplicate))
}

func TestIdempotencyReleasesKeyAfterServerError(t *testing.T) {
	calls := 0
	h := guardedRouter(newMemoryIdempotencyStore(), func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
		}
	})

	first := send(t, h, http.MethodPost, "/api/v1/production-orders", "k4", `{}`)
	second := send(t, h, http.MethodPost, "/api/v1/production-orders", "k4", `{}`)

	assert.Equal(t, http.StatusBadGateway, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotencyStoresClientErrors(t *testing.T) {
	calls := 0
	h := guardedRouter(newMemoryIdempotencyStore(), func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusConflict)
	})

	send(t, h, http.MethodPost, "/api/v1/stages/s1/start", "k5", `{}`)
	rec := send(t, h, http.MethodPost, "/api/v1/stages/s1/start", "k5", `{}`)

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(replayedHeader))
}

func TestIdempotencyIgnoresReads(t *testing.T) {
	called := false
	h := guardedRouter(newMemoryIdempotencyStore(), func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := send(t, h, http.MethodGet, "/api/v1/stages/s1", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}
