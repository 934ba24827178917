package vault

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"
)

// Credentials are the exchange API credentials kept in Vault.
type Credentials struct {
	APIKey    string
	SecretKey string
}

// Config holds the Vault connection parameters
type Config struct {
	Address    string
	Token      string
	MountPath  string // KV v2 mount, e.g. "secret"
	SecretPath string // path under the mount, e.g. "trading/exchange"
}

// Client reads exchange credentials from a KV v2 secret engine.
type Client struct {
	client *api.Client
	cfg    Config
	logger zerolog.Logger
}

func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "vault").Logger(),
	}, nil
}

// ExchangeCredentials reads the API key pair from the configured secret.
func (c *Client) ExchangeCredentials(ctx context.Context) (*Credentials, error) {
	secret, err := c.client.KVv2(c.cfg.MountPath).Get(ctx, c.cfg.SecretPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read exchange credentials: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no credentials at %s/%s", c.cfg.MountPath, c.cfg.SecretPath)
	}

	apiKey, _ := secret.Data["api_key"].(string)
	secretKey, _ := secret.Data["secret_key"].(string)
	if apiKey == "" || secretKey == "" {
		return nil, fmt.Errorf("credentials at %s/%s are incomplete", c.cfg.MountPath, c.cfg.SecretPath)
	}

	c.logger.Info().Str("path", c.cfg.SecretPath).Msg("Exchange credentials loaded from Vault")
	return &Credentials{APIKey: apiKey, SecretKey: secretKey}, nil
}
