package secrets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvManager(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")
	m := EnvManager{}

	v, err := m.GetSecret(context.Background(), "gemini_api_key")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	assert.Equal(t, "fallback", m.GetSecretWithDefault(context.Background(), "missing-key", "fallback"))
}

func TestNewVaultManagerValidates(t *testing.T) {
	_, err := NewVaultManager(VaultConfig{Token: "t"}, nil)
	assert.ErrorIs(t, err, ErrNoVaultAddress)

	_, err = NewVaultManager(VaultConfig{Address: "http://vault"}, nil)
	assert.ErrorIs(t, err, ErrNoVaultToken)
}

func TestVaultManagerReadsKV2(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/secret/data/textreply", r.URL.Path)
		assert.Equal(t, "root-token", r.Header.Get("X-Vault-Token"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"data":     map[string]any{"jwt_secret": "from-vault"},
				"metadata": map[string]any{"version": 1},
			},
		})
	}))
	t.Cleanup(srv.Close)

	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("FB_APP_SECRET", "")
	m, err := NewVaultManager(VaultConfig{
		Address:     srv.URL,
		Token:       "root-token",
		Mount:       "secret",
		SecretsPath: "textreply",
		MaxRetries:  1,
	}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	assert.Equal(t, "from-vault", m.GetSecretWithDefault(ctx, "jwt_secret", "default"))
	assert.Equal(t, "from-env", m.GetSecretWithDefault(ctx, "gemini_api_key", "default"))
	assert.Equal(t, "default", m.GetSecretWithDefault(ctx, "fb_app_secret", "default"))
	assert.Equal(t, int32(1), calls.Load(), "secret is read once and cached")
}
