package facebook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the HMAC of the raw webhook body.
const SignatureHeader = "X-Hub-Signature-256"

// WebhookPayload is one webhook delivery
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the events of one page
type Entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging"`
}

// Party is a sender or recipient reference
type Party struct {
	ID string `json:"id"`
}

// MessagingEvent is a single Messenger event. Message is nil for read
// receipts, deliveries and postbacks.
type MessagingEvent struct {
	Sender    Party         `json:"sender"`
	Recipient Party         `json:"recipient"`
	Timestamp int64         `json:"timestamp"`
	Message   *EventMessage `json:"message,omitempty"`
}

// EventMessage is the message body of an event
type EventMessage struct {
	Mid    string `json:"mid"`
	Text   string `json:"text"`
	IsEcho bool   `json:"is_echo,omitempty"`
}

// IsPage reports whether the delivery concerns pages.
func (p *WebhookPayload) IsPage() bool {
	return p.Object == "page"
}

// IsInboundText reports whether the event is a user-authored text message.
// Echoes of the page's own replies are excluded.
func (e MessagingEvent) IsInboundText() bool {
	return e.Message != nil && e.Message.Text != "" && !e.Message.IsEcho
}

// VerifySignature checks header ("sha256=<hex>") against the HMAC-SHA256 of body.
func VerifySignature(appSecret string, body []byte, header string) bool {
	if appSecret == "" {
		return false
	}
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the header value Facebook would send for body.
func Sign(appSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
