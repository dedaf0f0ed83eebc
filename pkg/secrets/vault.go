package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"

	"nonprofit-site/backend/pkg/logger"
)

var (
	ErrNoVaultToken   = errors.New("no vault token provided")
	ErrNoVaultAddress = errors.New("no vault address provided")
)

// VaultConfig holds configuration for the Vault client
type VaultConfig struct {
	Enabled    bool
	Address    string
	Token      string
	Namespace  string
	Mount      string
	Path       string
	Timeout    time.Duration
	MaxRetries int
	CacheTTL   time.Duration
}

// Manager reads secrets from one Vault KV v2 entry and falls back to environment
// variables. With Vault disabled it only reads the environment.
type Manager struct {
	client *vault.Client
	config VaultConfig
	cache  map[string]string
	mu     sync.RWMutex
	log    *logger.Logger
}

// NewManager creates a secrets manager
func NewManager(config VaultConfig, log *logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.GetGlobal()
	}
	if config.Mount == "" {
		config.Mount = "secret"
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Minute
	}

	m := &Manager{
		config: config,
		cache:  make(map[string]string),
		log:    log,
	}
	if !config.Enabled {
		return m, nil
	}

	if config.Address == "" {
		return nil, ErrNoVaultAddress
	}
	if config.Token == "" {
		return nil, ErrNoVaultToken
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = config.Address
	if config.Timeout > 0 {
		vaultConfig.Timeout = config.Timeout
	}
	vaultConfig.MaxRetries = config.MaxRetries

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(config.Token)
	if config.Namespace != "" {
		client.SetNamespace(config.Namespace)
	}
	m.client = client

	return m, nil
}

// GetSecret retrieves a secret from Vault, with fallback to the environment
func (m *Manager) GetSecret(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	cached, found := m.cache[key]
	m.mu.RUnlock()
	if found {
		return cached, nil
	}

	if m.client == nil {
		value, err := fromEnvironment(key)
		return m.remember(key, value, err)
	}

	value, err := m.getFromVault(ctx, key)
	if errors.Is(err, ErrSecretNotFound) {
		m.log.Debug("secret not in vault, falling back to environment", "key", key)
		value, err = fromEnvironment(key)
	}
	return m.remember(key, value, err)
}

// GetSecretWithDefault retrieves a secret with a default value if not found
func (m *Manager) GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	value, err := m.GetSecret(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrSecretNotFound) {
			m.log.Warn("failed to get secret, using default value", "key", key, "error", err.Error())
		}
		return defaultValue
	}
	return value
}

func (m *Manager) getFromVault(ctx context.Context, key string) (string, error) {
	secret, err := m.client.KVv2(m.config.Mount).Get(ctx, m.config.Path)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("failed to read %s/%s from vault: %w", m.config.Mount, m.config.Path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", ErrSecretNotFound
	}

	value, ok := secret.Data[key].(string)
	if !ok || value == "" {
		return "", ErrSecretNotFound
	}
	return value, nil
}

func (m *Manager) remember(key, value string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.cache[key] = value
	m.mu.Unlock()
	return value, nil
}

// Run clears the cache every CacheTTL so rotated secrets are picked up, until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.CacheTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			m.cache = make(map[string]string)
			m.mu.Unlock()
			m.log.Debug("secret cache cleared")
		}
	}
}

// Ping reports whether Vault answers. It is a no-op when Vault is disabled.
func (m *Manager) Ping(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	if _, err := m.client.Sys().HealthWithContext(ctx); err != nil {
		return fmt.Errorf("vault health: %w", err)
	}
	return nil
}
