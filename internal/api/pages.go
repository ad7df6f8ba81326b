package api

import (
	"net/http"

	"textreply/backend/internal/models"
	"textreply/backend/internal/service"
	apperrors "textreply/backend/pkg/errors"
	"textreply/backend/pkg/logger"
	"textreply/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// LiveServer streams a page's new messages over a websocket
type LiveServer interface {
	Serve(c *gin.Context, pageID string)
}

// PagesHandler handles the connected page management endpoints
type PagesHandler struct {
	service *service.PageService
	live    LiveServer
	logger  *logger.Logger
}

// NewPagesHandler creates a new pages handler
func NewPagesHandler(service *service.PageService, live LiveServer, logger *logger.Logger) *PagesHandler {
	return &PagesHandler{
		service: service,
		live:    live,
		logger:  logger,
	}
}

// ConnectRequest is the body of POST /api/pages/connect
type ConnectRequest struct {
	PageID string `json:"pageId" binding:"required"`
}

// SettingsRequest is the body of PUT /api/pages/:id/context. Absent fields are left unchanged.
type SettingsRequest struct {
	SystemPrompt *string `json:"systemPrompt"`
	Context      *string `json:"context"`
}

type pageBrief struct {
	ID       string `json:"id"`
	PageID   string `json:"pageId"`
	Name     string `json:"name"`
	IsActive bool   `json:"isActive"`
}

// List returns the Facebook pages the account can connect
func (h *PagesHandler) List(c *gin.Context) {
	pages, err := h.service.ListManageable(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, err, "Failed to fetch pages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"pages": pages})
}

// Connected returns the account's connected pages
func (h *PagesHandler) Connected(c *gin.Context) {
	pages, err := h.service.ListConnected(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, err, "Failed to fetch connected pages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"pages": pages})
}

// Connect subscribes a page and starts auto-replying on it
func (h *PagesHandler) Connect(c *gin.Context) {
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewBadRequestError(apperrors.CodeValidation, "pageId is required"))
		c.Abort()
		return
	}

	page, err := h.service.Connect(c.Request.Context(), middleware.UserID(c), req.PageID)
	if err != nil {
		fail(c, err, "Failed to connect page")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Page connected successfully!",
		"page": pageBrief{
			ID:       page.ID,
			PageID:   page.PageID,
			Name:     page.Name,
			IsActive: page.IsActive,
		},
	})
}

// UpdateContext changes the page's system prompt and knowledge base
func (h *PagesHandler) UpdateContext(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewBadRequestError(apperrors.CodeValidation, "Invalid request format"))
		c.Abort()
		return
	}

	page, err := h.service.UpdateSettings(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.SystemPrompt, req.Context)
	if err != nil {
		fail(c, err, "Failed to update settings")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Settings updated successfully",
		"systemPrompt": page.SystemPrompt,
		"context":      page.Context,
	})
}

// Toggle switches auto-reply on or off
func (h *PagesHandler) Toggle(c *gin.Context) {
	active, err := h.service.Toggle(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		fail(c, err, "Failed to toggle page")
		return
	}

	message := "Auto-reply disabled"
	if active {
		message = "Auto-reply enabled"
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "isActive": active})
}

// Conversations lists the page's conversations
func (h *PagesHandler) Conversations(c *gin.Context) {
	conversations, err := h.service.Conversations(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		fail(c, err, "Failed to fetch conversations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// Messages lists one conversation's messages
func (h *PagesHandler) Messages(c *gin.Context) {
	messages, err := h.service.Messages(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("conversationId"))
	if err != nil {
		fail(c, err, "Failed to fetch messages")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// Disconnect removes the page and its history
func (h *PagesHandler) Disconnect(c *gin.Context) {
	if err := h.service.Disconnect(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		fail(c, err, "Failed to disconnect page")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Page disconnected successfully"})
}

// Live streams the page's new messages to a dashboard socket
func (h *PagesHandler) Live(c *gin.Context) {
	page, err := h.service.Owned(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		fail(c, err, "Failed to open live feed")
		return
	}
	h.live.Serve(c, page.ID)
}

// RegisterRoutes mounts the page endpoints on an authenticated group
func (h *PagesHandler) RegisterRoutes(pages *gin.RouterGroup) {
	pages.GET("", h.List)
	pages.GET("/connected", h.Connected)
	pages.POST("/connect", h.Connect)
	pages.PUT("/:id/context", h.UpdateContext)
	pages.PUT("/:id/toggle", h.Toggle)
	pages.GET("/:id/conversations", h.Conversations)
	pages.GET("/:id/conversations/:conversationId/messages", h.Messages)
	pages.DELETE("/:id", h.Disconnect)
}
