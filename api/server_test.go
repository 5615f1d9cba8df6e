package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpupo63/realestate-site-backend/config"
	"github.com/rpupo63/realestate-site-backend/errs"
	"github.com/rpupo63/realestate-site-backend/models"
)

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var health struct {
		Status      string  `json:"status"`
		Environment string  `json:"environment"`
		Uptime      float64 `json:"uptime"`
	}
	decodeEnvelope(t, rec, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, config.EnvTest, health.Environment)

	sqlDB, err := env.db.GetDB().DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	rec = env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, errs.CodeServiceUnavailable, decodeEnvelope(t, rec, nil).Error.Code)
}

func TestSecurityAndCORSHeaders(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = env.do(http.MethodOptions, "/api/projects", nil,
		withHeader("Origin", "http://localhost:3000"),
		withHeader("Access-Control-Request-Method", http.MethodPost),
		withHeader("Access-Control-Request-Headers", "Authorization"))
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = env.do(http.MethodOptions, "/api/projects", nil,
		withHeader("Origin", "https://evil.example"),
		withHeader("Access-Control-Request-Method", http.MethodPost))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodGet, "/api/projects", nil)

	rec := env.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "realestate_http_requests_total")
	assert.Contains(t, rec.Body.String(), `path="/api/projects`)
}

func TestSystemInfo(t *testing.T) {
	env := newTestEnv(t)
	_, editor := env.createUser(models.RoleEditor)

	rec := env.do(http.MethodGet, "/api/system/info", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/api/system/info", nil, withBearer(editor))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var info systemInfo
	decodeEnvelope(t, rec, &info)
	assert.Equal(t, config.EnvTest, info.Environment)
	assert.Equal(t, "ok", info.Database.Status)
	assert.Equal(t, "sqlite", info.Database.Dialect)
	assert.Positive(t, info.Goroutines)

	rec = env.do(http.MethodPost, "/api/system/cleanup-temp", nil, withBearer(editor))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRecoversFromPanics(t *testing.T) {
	r := chi.NewRouter()
	r.Use(LogInternalServerErrors)
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, errs.CodeInternal, decodeEnvelope(t, rec, nil).Error.Code)
}

func TestGetRoutePattern(t *testing.T) {
	var pattern string
	r := chi.NewRouter()
	r.Get("/api/projects/{identifier}", func(w http.ResponseWriter, r *http.Request) {
		pattern = getRoutePattern(r)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/projects/ocean-view", nil))
	assert.Equal(t, "/api/projects/{identifier}", pattern)

	assert.Equal(t, "unmatched", getRoutePattern(httptest.NewRequest(http.MethodGet, "/", nil)))
}
