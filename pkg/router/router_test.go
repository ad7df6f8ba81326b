package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"textreply/backend/internal/models"
	"textreply/backend/internal/repository/repotest"
	"textreply/backend/pkg/config"
	"textreply/backend/pkg/di"
	"textreply/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Load()
	cfg.Redis.URL = ""
	cfg.JWT.Secret = "router-test-secret"
	cfg.Facebook.VerifyToken = "verify-me"
	cfg.Security.AllowedOrigins = []string{"http://app.example"}
	cfg.Security.RateLimit = 1000
	cfg.Security.RateLimitBurst = 1000
	cfg.OpenAPI.SchemaPath = ""

	c, err := di.New(cfg, repotest.NewDB(t), logger.Nop())
	require.NoError(t, err)
	c.Health.RunChecks(context.Background())
	t.Cleanup(func() { _ = c.Close() })

	r := New(c)
	r.SetupRoutes()
	return r
}

func serve(r *Router, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	return w
}

func TestRootRoute(t *testing.T) {
	r := newTestRouter(t)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "TextReply API", body["name"])
	assert.Equal(t, "running", body["status"])
}

func TestHealthRoutes(t *testing.T) {
	r := newTestRouter(t)

	for _, path := range []string{"/health", "/api/health"} {
		w := serve(r, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Contains(t, w.Body.String(), `"database"`, path)
	}
}

func TestPagesRequireAuthentication(t *testing.T) {
	r := newTestRouter(t)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/pages/connected", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPagesAcceptIssuedToken(t *testing.T) {
	r := newTestRouter(t)

	user, err := r.Container.Users.Upsert(context.Background(), &models.User{
		FacebookID:  "fb-router",
		Name:        "Router Tester",
		AccessToken: "user-token",
	})
	require.NoError(t, err)
	token, err := r.Container.JWTService.GenerateToken(user.ID, user.FacebookID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/pages/connected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookVerifyRoute(t *testing.T) {
	r := newTestRouter(t)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1158201444", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1158201444", w.Body.String())

	w = serve(r, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=1", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCORS(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/pages", nil)
	req.Header.Set("Origin", "http://app.example")
	w := serve(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/pages", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = serve(r, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsRoute(t *testing.T) {
	r := newTestRouter(t)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOpenAPIValidationRejectsMissingPageID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.Load()
	cfg.Redis.URL = ""
	cfg.JWT.Secret = "router-test-secret"
	cfg.OpenAPI.SchemaPath = "../../api/openapi.yaml"

	c, err := di.New(cfg, repotest.NewDB(t), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	r := New(c)
	r.SetupRoutes()

	req := httptest.NewRequest(http.MethodPost, "/api/pages/connect", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := serve(r, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/docs/openapi.yaml", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOversizedWebhookIsAcknowledged(t *testing.T) {
	r := newTestRouter(t)
	limit := r.Container.Config.Security.MaxBodySize

	body := `{"object":"page","entry":[{"id":"` + strings.Repeat("P", int(limit)) + `"}]}`
	w := serve(r, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}
