package facebook

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDelivery(t *testing.T) {
	raw := `{
		"object": "page",
		"entry": [{
			"id": "P1",
			"time": 1700000000,
			"messaging": [
				{"sender": {"id": "S1"}, "recipient": {"id": "P1"}, "message": {"mid": "m.1", "text": "Hi"}},
				{"sender": {"id": "P1"}, "recipient": {"id": "S1"}, "message": {"mid": "m.2", "text": "Hello", "is_echo": true}},
				{"sender": {"id": "S1"}, "recipient": {"id": "P1"}, "message": {"mid": "m.3"}},
				{"sender": {"id": "S1"}, "recipient": {"id": "P1"}, "read": {"watermark": 1}}
			]
		}]
	}`

	var p WebhookPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.True(t, p.IsPage())
	require.Len(t, p.Entry, 1)

	events := p.Entry[0].Messaging
	require.Len(t, events, 4)
	assert.True(t, events[0].IsInboundText())
	assert.False(t, events[1].IsInboundText(), "echo")
	assert.False(t, events[2].IsInboundText(), "attachment without text")
	assert.False(t, events[3].IsInboundText(), "read receipt")
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"object":"page"}`)
	header := Sign("app-secret", body)

	assert.True(t, VerifySignature("app-secret", body, header))
	assert.False(t, VerifySignature("other-secret", body, header))
	assert.False(t, VerifySignature("app-secret", []byte(`{"object":"user"}`), header))
	assert.False(t, VerifySignature("app-secret", body, ""))
	assert.False(t, VerifySignature("app-secret", body, "sha256=zz"))
	assert.False(t, VerifySignature("", body, header))
}
