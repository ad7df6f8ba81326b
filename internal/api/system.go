package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ServiceName is reported by the root endpoint
const ServiceName = "TextReply API"

// SystemHandler serves the service banner
type SystemHandler struct {
	version string
	now     func() time.Time
}

// RootResponse represents the root endpoint response structure
type RootResponse struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(version string) *SystemHandler {
	return &SystemHandler{version: version, now: time.Now}
}

// Root reports that the API is up
func (h *SystemHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, RootResponse{
		Name:      ServiceName,
		Version:   h.version,
		Status:    "running",
		Timestamp: h.now().UTC(),
	})
}
