package hashicorp

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/hashicorp/vault/api"
	"github.com/hengadev/fieldcrypt"
)

// DefaultTransitMount is the mount path of the Transit engine.
const DefaultTransitMount = "transit"

// TransitWrapper implements fieldcrypt.KeyWrapper with the Vault Transit
// engine. Wrapped keys are Vault ciphertexts ("vault:v1:...").
type TransitWrapper struct {
	client  *api.Client
	mount   string
	keyName string
}

var _ fieldcrypt.KeyWrapper = (*TransitWrapper)(nil)

// NewTransitWrapper creates a TransitWrapper using the Transit key keyName.
// An empty mount selects DefaultTransitMount.
//
// The Transit engine must be enabled in Vault before use:
//
//	vault secrets enable transit
func NewTransitWrapper(client *api.Client, mount, keyName string) (*TransitWrapper, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: Vault client is required", fieldcrypt.ErrInvalidConfiguration)
	}
	if keyName == "" {
		return nil, fmt.Errorf("%w: transit key name cannot be empty", fieldcrypt.ErrInvalidConfiguration)
	}
	if mount = strings.Trim(mount, "/"); mount == "" {
		mount = DefaultTransitMount
	}
	return &TransitWrapper{client: client, mount: mount, keyName: keyName}, nil
}

// KeyName returns the Transit key used for wrapping.
func (t *TransitWrapper) KeyName() string {
	return t.keyName
}

// CreateKey creates the Transit key as aes256-gcm96. Creating an existing key
// is a no-op in Vault.
func (t *TransitWrapper) CreateKey(ctx context.Context) error {
	_, err := t.client.Logical().WriteWithContext(ctx, fmt.Sprintf("%s/keys/%s", t.mount, t.keyName), map[string]any{
		"type": "aes256-gcm96",
	})
	if err != nil {
		return fmt.Errorf("%w: failed to create transit key '%s': %w", fieldcrypt.ErrKeyStoreUnavailable, t.keyName, err)
	}
	return nil
}

// Wrap encrypts key with the Transit key.
func (t *TransitWrapper) Wrap(ctx context.Context, key []byte) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("%w: key to wrap is empty", fieldcrypt.ErrInvalidKey)
	}

	// Transit expects base64-encoded plaintext
	resp, err := t.client.Logical().WriteWithContext(ctx, fmt.Sprintf("%s/encrypt/%s", t.mount, t.keyName), map[string]any{
		"plaintext": base64.StdEncoding.EncodeToString(key),
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to encrypt with transit key '%s': %w", fieldcrypt.ErrEncryptionFailed, t.keyName, err)
	}
	if resp == nil || resp.Data == nil {
		return "", fmt.Errorf("%w: no response from Vault Transit encrypt", fieldcrypt.ErrEncryptionFailed)
	}
	ciphertext, ok := resp.Data["ciphertext"].(string)
	if !ok || ciphertext == "" {
		return "", fmt.Errorf("%w: ciphertext not found in response", fieldcrypt.ErrEncryptionFailed)
	}
	return ciphertext, nil
}

// Unwrap decrypts a ciphertext produced by Wrap.
func (t *TransitWrapper) Unwrap(ctx context.Context, wrapped string) ([]byte, error) {
	if !strings.HasPrefix(wrapped, "vault:") {
		return nil, fmt.Errorf("%w: not a Vault transit ciphertext", fieldcrypt.ErrInvalidFormat)
	}

	resp, err := t.client.Logical().WriteWithContext(ctx, fmt.Sprintf("%s/decrypt/%s", t.mount, t.keyName), map[string]any{
		"ciphertext": wrapped,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decrypt with transit key '%s': %w", fieldcrypt.ErrDecryptionFailed, t.keyName, err)
	}
	if resp == nil || resp.Data == nil {
		return nil, fmt.Errorf("%w: no response from Vault Transit decrypt", fieldcrypt.ErrDecryptionFailed)
	}
	encoded, ok := resp.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: plaintext not found in response", fieldcrypt.ErrDecryptionFailed)
	}
	plaintext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode plaintext: %w", fieldcrypt.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}
