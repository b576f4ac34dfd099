package vault

import (
	"context"
	"fmt"
	"log"

	vault "github.com/hashicorp/vault/api"

	"ufo-trading-engine/config"
)

// BrokerCredentials are the bridge login secrets stored in Vault.
type BrokerCredentials struct {
	Login    string
	Password string
	Server   string
}

// Client reads broker credentials from a Vault KV v2 mount.
type Client struct {
	api        *vault.Client
	mountPath  string
	secretPath string
}

// NewClient connects to Vault and verifies the token. Disabled configuration
// returns a nil client; callers fall back to config-file credentials.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address
	if cfg.TLSEnabled && cfg.CACert != "" {
		if err := vaultCfg.ConfigureTLS(&vault.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("configuring vault TLS: %w", err)
		}
	}

	api, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("creating vault client: %w", err)
	}
	api.SetToken(cfg.Token)

	if _, err := api.Auth().Token().LookupSelf(); err != nil {
		return nil, fmt.Errorf("vault token invalid: %w", err)
	}

	log.Printf("[VAULT] Connected to %s", cfg.Address)
	return &Client{
		api:        api,
		mountPath:  cfg.MountPath,
		secretPath: cfg.SecretPath,
	}, nil
}

// GetBrokerCredentials reads the broker login from the configured secret.
func (c *Client) GetBrokerCredentials(ctx context.Context) (BrokerCredentials, error) {
	if c == nil {
		return BrokerCredentials{}, fmt.Errorf("vault not configured")
	}

	secret, err := c.api.KVv2(c.mountPath).Get(ctx, c.secretPath)
	if err != nil {
		return BrokerCredentials{}, fmt.Errorf("reading secret %s: %w", c.secretPath, err)
	}

	creds := BrokerCredentials{
		Login:    stringField(secret.Data, "login"),
		Password: stringField(secret.Data, "password"),
		Server:   stringField(secret.Data, "server"),
	}
	if creds.Login == "" || creds.Password == "" {
		return BrokerCredentials{}, fmt.Errorf("secret %s missing login or password", c.secretPath)
	}
	return creds, nil
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
