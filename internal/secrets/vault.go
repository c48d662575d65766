// Package secrets loads server credentials from HashiCorp Vault (KV v2).
package secrets

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"bytebuddy/config"
	"bytebuddy/internal/logging"
)

// ServerSecrets represents the server credentials stored in Vault
type ServerSecrets struct {
	JWTSecret        string `json:"jwt_secret"`
	DatabasePassword string `json:"database_password"`
	MongoURI         string `json:"mongo_uri"`
	RedisPassword    string `json:"redis_password"`
}

// Client wraps the HashiCorp Vault client. When Vault is disabled it keeps
// secrets in process memory only.
type Client struct {
	client *api.Client
	config config.VaultConfig
	mu     sync.RWMutex
	cached *ServerSecrets
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Load reads the server secrets, serving repeated calls from memory
func (c *Client) Load(ctx context.Context) (*ServerSecrets, error) {
	c.mu.RLock()
	if c.cached != nil {
		s := *c.cached
		c.mu.RUnlock()
		return &s, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return nil, fmt.Errorf("server secrets not found and vault is disabled")
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.dataPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read server secrets from vault: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("server secrets not found at %s", c.dataPath())
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	s := &ServerSecrets{
		JWTSecret:        getString(data, "jwt_secret"),
		DatabasePassword: getString(data, "database_password"),
		MongoURI:         getString(data, "mongo_uri"),
		RedisPassword:    getString(data, "redis_password"),
	}

	c.mu.Lock()
	c.cached = s
	c.mu.Unlock()

	out := *s
	return &out, nil
}

// Store writes the server secrets
func (c *Client) Store(ctx context.Context, s ServerSecrets) error {
	if c.config.Enabled {
		payload := map[string]interface{}{
			"data": map[string]interface{}{
				"jwt_secret":        s.JWTSecret,
				"database_password": s.DatabasePassword,
				"mongo_uri":         s.MongoURI,
				"redis_password":    s.RedisPassword,
			},
		}
		if _, err := c.client.Logical().WriteWithContext(ctx, c.dataPath(), payload); err != nil {
			return fmt.Errorf("failed to store server secrets in vault: %w", err)
		}
	}

	c.mu.Lock()
	c.cached = &s
	c.mu.Unlock()
	return nil
}

// Apply overlays the non-empty secrets onto cfg. With Vault disabled it is
// a no-op.
func (c *Client) Apply(ctx context.Context, cfg *config.Config) error {
	if !c.config.Enabled {
		return nil
	}

	s, err := c.Load(ctx)
	if err != nil {
		return err
	}

	if s.JWTSecret != "" {
		cfg.Auth.JWTSecret = s.JWTSecret
	}
	if s.DatabasePassword != "" {
		cfg.Database.Password = s.DatabasePassword
	}
	if s.MongoURI != "" {
		cfg.Mongo.URI = s.MongoURI
	}
	if s.RedisPassword != "" {
		cfg.Redis.Password = s.RedisPassword
	}

	logging.WithComponent("secrets").Info("Loaded server secrets from Vault", "path", c.dataPath())
	return nil
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

// dataPath returns the KV v2 data path of the server secrets
func (c *Client) dataPath() string {
	return fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
