package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"textreply/backend/pkg/errors"
	"textreply/backend/pkg/jwt"
	"textreply/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthEngine(svc *jwt.Service, query bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(errors.ErrorHandler())

	auth := JWTAuthMiddleware(svc, logger.Nop())
	if query {
		auth = JWTQueryAuthMiddleware(svc, logger.Nop())
	}
	r.GET("/private", auth, func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	return r
}

func TestJWTAuthMiddleware(t *testing.T) {
	svc := jwt.NewService("secret", 0)
	token, err := svc.GenerateToken("acc-1", "fb-1")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"invalid token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusOK},
	}

	r := newAuthEngine(svc, false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "acc-1", w.Body.String())
			}
		})
	}
}

func TestJWTQueryAuthMiddleware(t *testing.T) {
	svc := jwt.NewService("secret", 0)
	token, err := svc.GenerateToken("acc-2", "fb-2")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	newAuthEngine(svc, true).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private?token="+token, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "acc-2", w.Body.String())

	w = httptest.NewRecorder()
	newAuthEngine(svc, false).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private?token="+token, nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(logger.Nop(), RateLimiterOptions{
		Limit: 0.001,
		Burst: 2,
		KeyFunc: func(c *gin.Context) string {
			return "fixed"
		},
	})

	r := gin.New()
	r.Use(errors.ErrorHandler())
	r.GET("/", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}
