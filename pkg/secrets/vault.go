package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"textreply/backend/pkg/logger"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig holds configuration for Vault client
type VaultConfig struct {
	Address     string
	Token       string
	Namespace   string
	Mount       string // KV v2 mount, e.g. "secret"
	SecretsPath string // path of the secret under the mount
	Timeout     time.Duration
	MaxRetries  int
}

// VaultManager reads one KV v2 secret and serves its fields as named secrets.
// Keys missing from Vault fall back to the environment.
type VaultManager struct {
	client *vault.Client
	config VaultConfig
	env    EnvManager
	log    *logger.Logger

	mu       sync.Mutex
	data     map[string]any
	loadedAt time.Time
	cacheTTL time.Duration
}

// NewVaultManager creates a new Vault manager instance
func NewVaultManager(config VaultConfig, log *logger.Logger) (*VaultManager, error) {
	if config.Address == "" {
		return nil, ErrNoVaultAddress
	}
	if config.Token == "" {
		return nil, ErrNoVaultToken
	}
	if config.Mount == "" {
		config.Mount = "secret"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if log == nil {
		log = logger.Nop()
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = config.Address
	vaultConfig.Timeout = config.Timeout
	vaultConfig.MaxRetries = config.MaxRetries

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(config.Token)
	if config.Namespace != "" {
		client.SetNamespace(config.Namespace)
	}

	return &VaultManager{
		client:   client,
		config:   config,
		log:      log,
		cacheTTL: 5 * time.Minute,
	}, nil
}

// GetSecret retrieves a secret from Vault, with fallback to environment variable
func (m *VaultManager) GetSecret(ctx context.Context, key string) (string, error) {
	data, err := m.load(ctx)
	if err != nil {
		return "", err
	}

	if value, ok := data[key].(string); ok && value != "" {
		return value, nil
	}

	m.log.Debug("Secret not found in Vault, falling back to environment", "key", key)
	return m.env.GetSecret(ctx, key)
}

// GetSecretWithDefault retrieves a secret with a default value if not found
func (m *VaultManager) GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	value, err := m.GetSecret(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrSecretNotFound) {
			m.log.Warn("Failed to get secret, using default value", "key", key, "error", err.Error())
		}
		return defaultValue
	}
	return value
}

func (m *VaultManager) load(ctx context.Context) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data != nil && time.Since(m.loadedAt) < m.cacheTTL {
		return m.data, nil
	}

	secret, err := m.client.KVv2(m.config.Mount).Get(ctx, m.config.SecretsPath)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			m.data, m.loadedAt = map[string]any{}, time.Now()
			return m.data, nil
		}
		return nil, fmt.Errorf("failed to read secret %s/%s: %w", m.config.Mount, m.config.SecretsPath, err)
	}

	m.data = map[string]any{}
	if secret != nil && secret.Data != nil {
		m.data = secret.Data
	}
	m.loadedAt = time.Now()
	return m.data, nil
}
