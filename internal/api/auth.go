package api

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"

	"textreply/backend/internal/service"
	"textreply/backend/pkg/logger"
	"textreply/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	stateCookie    = "oauth_state"
	stateCookieTTL = 600 // seconds
)

// AuthHandler handles Facebook login and the current account
type AuthHandler struct {
	service      *service.AuthService
	frontendURL  string
	secureCookie bool
	logger       *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(service *service.AuthService, frontendURL string, secureCookie bool, logger *logger.Logger) *AuthHandler {
	return &AuthHandler{
		service:      service,
		frontendURL:  strings.TrimRight(frontendURL, "/"),
		secureCookie: secureCookie,
		logger:       logger,
	}
}

// Start redirects to the Facebook consent dialog
func (h *AuthHandler) Start(c *gin.Context) {
	state := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, state, stateCookieTTL, service.CallbackPath, "", h.secureCookie, true)
	c.Redirect(http.StatusTemporaryRedirect, h.service.AuthCodeURL(state))
}

// Callback completes the login and hands the session token to the frontend
func (h *AuthHandler) Callback(c *gin.Context) {
	log := logger.FromGin(c)

	code := c.Query("code")
	if code == "" {
		c.Redirect(http.StatusFound, h.frontendURL+"?error=no_code")
		return
	}

	expected, err := c.Cookie(stateCookie)
	c.SetCookie(stateCookie, "", -1, service.CallbackPath, "", h.secureCookie, true)
	if err != nil || subtle.ConstantTimeCompare([]byte(expected), []byte(c.Query("state"))) != 1 {
		log.Warn("OAuth state mismatch")
		c.Redirect(http.StatusFound, h.frontendURL+"?error=auth_failed")
		return
	}

	token, _, err := h.service.Login(c.Request.Context(), code)
	if err != nil {
		log.LogError(err, "Facebook login failed")
		c.Redirect(http.StatusFound, h.frontendURL+"?error=auth_failed")
		return
	}

	c.Redirect(http.StatusFound, h.frontendURL+"/dashboard?token="+url.QueryEscape(token))
}

// Me returns the current authenticated account
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.service.CurrentUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, err, "Failed to retrieve user")
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user.ToResponse()})
}
