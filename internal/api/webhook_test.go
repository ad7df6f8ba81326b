package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"textreply/backend/internal/facebook"
	"textreply/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPipeline struct {
	mu         sync.Mutex
	deliveries []*facebook.WebhookPayload
}

func (p *recordingPipeline) HandleDelivery(_ context.Context, payload *facebook.WebhookPayload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deliveries = append(p.deliveries, payload)
}

func (p *recordingPipeline) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.deliveries)
}

func newWebhookEngine(cfg WebhookConfig) (*gin.Engine, *WebhookHandler, *recordingPipeline) {
	gin.SetMode(gin.TestMode)
	pipeline := &recordingPipeline{}
	h := NewWebhookHandler(pipeline, cfg, logger.Nop())

	r := gin.New()
	r.GET("/webhook", h.Verify)
	r.POST("/webhook", h.Receive)
	return r, h, pipeline
}

const messageBody = `{"object":"page","entry":[{"id":"P1","time":1,"messaging":[{"sender":{"id":"S1"},"recipient":{"id":"P1"},"timestamp":1,"message":{"mid":"m-1","text":"Hi"}}]}]}`

func TestWebhookVerify(t *testing.T) {
	r, _, _ := newWebhookEngine(WebhookConfig{VerifyToken: "secret-token"})

	tests := []struct {
		name   string
		mode   string
		token  string
		status int
		body   string
	}{
		{name: "matching token", mode: "subscribe", token: "secret-token", status: http.StatusOK, body: "challenge-42"},
		{name: "wrong token", mode: "subscribe", token: "nope", status: http.StatusForbidden},
		{name: "wrong mode", mode: "unsubscribe", token: "secret-token", status: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := url.Values{
				"hub.mode":         {tt.mode},
				"hub.verify_token": {tt.token},
				"hub.challenge":    {"challenge-42"},
			}
			req := httptest.NewRequest(http.MethodGet, "/webhook?"+q.Encode(), nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestWebhookVerifyRequiresConfiguredToken(t *testing.T) {
	r, _, _ := newWebhookEngine(WebhookConfig{})

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=&hub.challenge=x", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func post(r *gin.Engine, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookReceiveAcknowledgesAndDispatches(t *testing.T) {
	r, h, pipeline := newWebhookEngine(WebhookConfig{})

	w := post(r, messageBody, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	h.Wait()
	require.Equal(t, 1, pipeline.count())
	got := pipeline.deliveries[0]
	require.Len(t, got.Entry, 1)
	assert.Equal(t, "P1", got.Entry[0].ID)
	assert.Equal(t, "Hi", got.Entry[0].Messaging[0].Message.Text)
}

func TestWebhookReceiveIgnoresOtherObjects(t *testing.T) {
	r, h, pipeline := newWebhookEngine(WebhookConfig{})

	assert.Equal(t, http.StatusOK, post(r, `{"object":"user","entry":[]}`, nil).Code)
	assert.Equal(t, http.StatusOK, post(r, `not json`, nil).Code)

	h.Wait()
	assert.Zero(t, pipeline.count())
}

func TestWebhookReceiveChecksSignature(t *testing.T) {
	r, h, pipeline := newWebhookEngine(WebhookConfig{AppSecret: "app-secret", ValidateSignature: true})

	w := post(r, messageBody, map[string]string{facebook.SignatureHeader: "sha256=deadbeef"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = post(r, messageBody, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = post(r, messageBody, map[string]string{
		facebook.SignatureHeader: facebook.Sign("app-secret", []byte(messageBody)),
	})
	assert.Equal(t, http.StatusOK, w.Code)

	h.Wait()
	assert.Equal(t, 1, pipeline.count())
}

func TestWebhookReceiveAcknowledgesOversizedBody(t *testing.T) {
	r, h, pipeline := newWebhookEngine(WebhookConfig{MaxBodySize: int64(len(messageBody)) - 1})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(messageBody)))
	h.Wait()

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	assert.Zero(t, pipeline.count())
}

func TestWebhookReceiveAcceptsBodyAtLimit(t *testing.T) {
	r, h, pipeline := newWebhookEngine(WebhookConfig{MaxBodySize: int64(len(messageBody))})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(messageBody)))
	h.Wait()

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, pipeline.count())
}
