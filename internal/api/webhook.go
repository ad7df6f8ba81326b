package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"textreply/backend/internal/facebook"
	"textreply/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// DeliveryHandler processes a decoded webhook delivery
type DeliveryHandler interface {
	HandleDelivery(ctx context.Context, payload *facebook.WebhookPayload)
}

// WebhookConfig configures the Messenger webhook endpoint
type WebhookConfig struct {
	VerifyToken       string
	AppSecret         string
	ValidateSignature bool
	// MaxBodySize caps how much of a delivery is read; 0 means no cap.
	MaxBodySize int64
}

// WebhookHandler receives Messenger webhook calls
type WebhookHandler struct {
	pipeline DeliveryHandler
	cfg      WebhookConfig
	logger   *logger.Logger
	inflight sync.WaitGroup
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(pipeline DeliveryHandler, cfg WebhookConfig, logger *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		pipeline: pipeline,
		cfg:      cfg,
		logger:   logger,
	}
}

// Verify answers Facebook's subscription handshake
func (h *WebhookHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && h.cfg.VerifyToken != "" && token == h.cfg.VerifyToken {
		h.logger.Info("Webhook verified")
		c.String(http.StatusOK, challenge)
		return
	}

	h.logger.Warn("Webhook verification failed", "mode", mode)
	c.String(http.StatusForbidden, "Forbidden")
}

// Receive acknowledges a delivery and processes it in the background
func (h *WebhookHandler) Receive(c *gin.Context) {
	log := logger.FromGin(c)

	// Facebook retries anything but 200, so unreadable or oversized bodies are
	// acknowledged and dropped.
	reader := io.Reader(c.Request.Body)
	if h.cfg.MaxBodySize > 0 {
		reader = io.LimitReader(c.Request.Body, h.cfg.MaxBodySize+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		log.Warn("Failed to read webhook body", "error", err.Error())
		c.String(http.StatusOK, "OK")
		return
	}
	if h.cfg.MaxBodySize > 0 && int64(len(body)) > h.cfg.MaxBodySize {
		log.Warn("Dropping oversized webhook body", "limit", h.cfg.MaxBodySize)
		c.String(http.StatusOK, "OK")
		return
	}

	if h.cfg.ValidateSignature && !facebook.VerifySignature(h.cfg.AppSecret, body, c.GetHeader(facebook.SignatureHeader)) {
		log.Warn("Rejected webhook with invalid signature")
		c.String(http.StatusForbidden, "Forbidden")
		return
	}

	c.String(http.StatusOK, "OK")

	var payload facebook.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn("Ignoring undecodable webhook body", "error", err.Error())
		return
	}
	if !payload.IsPage() {
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error("Webhook processing panicked", "panic", r)
			}
		}()
		h.pipeline.HandleDelivery(ctx, &payload)
	}()
}

// Wait blocks until every delivery accepted so far has been processed.
func (h *WebhookHandler) Wait() {
	h.inflight.Wait()
}
