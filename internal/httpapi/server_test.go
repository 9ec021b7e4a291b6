package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/queryd/internal/agent"
	"github.com/kestrelworks/queryd/internal/cache"
	"github.com/kestrelworks/queryd/internal/config"
	"github.com/kestrelworks/queryd/internal/logging"
	"github.com/kestrelworks/queryd/internal/pipeline"
	"github.com/kestrelworks/queryd/internal/pool"
	"github.com/kestrelworks/queryd/internal/query"
	"github.com/kestrelworks/queryd/internal/services"
)

func newTestServer(t *testing.T, cfg config.ServerConfig) *Server {
	t.Helper()
	logger := logging.NewTestLogger().Logger

	p, err := pool.NewCoordinator(agent.NewLocalFactory(nil),
		pool.Config{IdleThreshold: time.Hour}, logger)
	require.NoError(t, err)

	exec, err := pipeline.NewExecutor(p, pipeline.Config{
		StageTimeout:    2 * time.Second,
		MaxAlternatives: 2,
	}, logger)
	require.NoError(t, err)

	c := cache.New()
	orch, err := query.NewOrchestrator(query.Options{
		Cache:    c,
		Pipeline: exec,
		CacheTTL: time.Minute,
		Logger:   logger,
	})
	require.NoError(t, err)

	reg := services.NewRegistry(services.Options{
		Cache:        c,
		Pool:         p,
		Orchestrator: orch,
	})

	srv, err := NewServer(reg, cfg, logger)
	require.NoError(t, err)
	return srv
}

func postJSON(t *testing.T, srv *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleBasicQuery(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{})

	rec := postJSON(t, srv, "/api/v1/queries",
		`{"query":"What is the capital of France?","user_id":"u1","max_tokens":100,"confidence_threshold":0.8}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result query.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.Answer)
	assert.NotEmpty(t, result.Sources)
	assert.False(t, result.CacheHit)

	rec = postJSON(t, srv, "/api/v1/queries",
		`{"query":"What is the capital of France?","user_id":"u1","max_tokens":100,"confidence_threshold":0.8}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.CacheHit)
}

func TestHandleBasicQuery_ValidationError(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{})

	rec := postJSON(t, srv, "/api/v1/queries", `{"query":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Error)
}

func TestHandleBasicQuery_MalformedBody(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{})

	rec := postJSON(t, srv, "/api/v1/queries", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleComprehensiveQuery(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{})

	rec := postJSON(t, srv, "/api/v1/queries/comprehensive",
		`{"query":"Compare renewable energy and fossil fuels","user_id":"u1","confidence_threshold":0.5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result query.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotNil(t, result.Quality)
	assert.NotEmpty(t, result.SourceBreakdown)
}

func TestHandleQueryStatus(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{})

	rec := postJSON(t, srv, "/api/v1/queries",
		`{"query":"why does the sky appear blue","user_id":"u1","confidence_threshold":0.5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result query.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queries/"+result.QueryID+"/status", nil)
	statusRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(statusRec, req)
	require.Equal(t, http.StatusOK, statusRec.Code)

	var info query.StatusInfo
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &info))
	assert.Equal(t, query.StatusCompleted, info.Status)
}

func TestHandleQueryStatus_NotFound(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queries/unknown/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{RateLimit: 1, RateBurst: 1})

	first := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	second := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, second)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
