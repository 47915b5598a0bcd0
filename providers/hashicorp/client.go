package hashicorp

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/hashicorp/vault/api"
	"github.com/hengadev/fieldcrypt"
)

// ClientConfig holds the settings used to build a Vault client.
type ClientConfig struct {
	// Address is the Vault server address, e.g. "https://vault.example.com:8200".
	Address string
	// Namespace selects an HCP Vault or Enterprise namespace.
	Namespace string
	// Token authenticates directly. It takes precedence over AppRole.
	Token string
	// RoleID and SecretID authenticate with AppRole when Token is empty.
	RoleID   string
	SecretID string
}

// ClientConfigFromEnv reads VAULT_ADDR, VAULT_NAMESPACE, VAULT_TOKEN,
// VAULT_ROLE_ID and VAULT_SECRET_ID.
func ClientConfigFromEnv() ClientConfig {
	return ClientConfig{
		Address:   os.Getenv("VAULT_ADDR"),
		Namespace: os.Getenv("VAULT_NAMESPACE"),
		Token:     os.Getenv("VAULT_TOKEN"),
		RoleID:    os.Getenv("VAULT_ROLE_ID"),
		SecretID:  os.Getenv("VAULT_SECRET_ID"),
	}
}

// NewClient creates an authenticated Vault client.
//
// Authentication priority:
//  1. Token, when set
//  2. AppRole, when RoleID and SecretID are both set
//  3. otherwise an error wrapping fieldcrypt.ErrInvalidConfiguration
//
// The client is shared by KVStore and TransitWrapper.
func NewClient(ctx context.Context, cfg ClientConfig) (*api.Client, error) {
	config := api.DefaultConfig()
	if cfg.Address != "" {
		config.Address = cfg.Address
	}
	if config.Address == "" {
		return nil, fmt.Errorf("%w: Vault address is required", fieldcrypt.ErrInvalidConfiguration)
	}
	config.HttpClient.Transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Vault client: %w", fieldcrypt.ErrKeyStoreUnavailable, err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	if cfg.Token != "" {
		client.SetToken(cfg.Token)
		return client, nil
	}

	if cfg.RoleID != "" && cfg.SecretID != "" {
		resp, err := client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]any{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to login with AppRole: %w", fieldcrypt.ErrKeyStoreUnavailable, err)
		}
		if resp == nil || resp.Auth == nil {
			return nil, fmt.Errorf("%w: no auth info returned from AppRole login", fieldcrypt.ErrKeyStoreUnavailable)
		}
		client.SetToken(resp.Auth.ClientToken)
		return client, nil
	}

	return nil, fmt.Errorf("%w: no Vault authentication method configured (set a token or RoleID+SecretID)",
		fieldcrypt.ErrInvalidConfiguration)
}
