// Package hashicorp provides HashiCorp Vault integration for fieldcrypt.
//
// It implements two fieldcrypt interfaces:
//   - fieldcrypt.KeyStore: per-column keys stored in the KV v2 engine (KVStore)
//   - fieldcrypt.KeyWrapper: keys wrapped by the Transit engine (TransitWrapper)
//
// Both can be combined so column keys are stored in KV already encrypted by a
// Transit key that never leaves Vault.
//
// # Setup
//
//	vault secrets enable transit
//	vault secrets enable -path=secret kv-v2
//	vault write -f transit/keys/fieldcrypt type=aes256-gcm96
//
// # Vault Policies Required
//
//	path "transit/encrypt/fieldcrypt" {
//	  capabilities = ["update"]
//	}
//	path "transit/decrypt/fieldcrypt" {
//	  capabilities = ["update"]
//	}
//	path "secret/data/fieldcrypt/*" {
//	  capabilities = ["create", "read", "update"]
//	}
//	path "secret/metadata/fieldcrypt/*" {
//	  capabilities = ["list", "read"]
//	}
//
// # Authentication
//
// NewClient accepts a token or AppRole credentials. ClientConfigFromEnv reads
// them from VAULT_ADDR, VAULT_NAMESPACE, VAULT_TOKEN, VAULT_ROLE_ID and
// VAULT_SECRET_ID.
//
// # Usage Example
//
//	client, err := hashicorp.NewClient(ctx, hashicorp.ClientConfigFromEnv())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store, _ := hashicorp.NewKVStore(client, "", "")
//	wrapper, _ := hashicorp.NewTransitWrapper(client, "", "fieldcrypt")
//
//	engine, err := fieldcrypt.New(
//	    fieldcrypt.WithKey(os.Getenv("FIELDCRYPT_KEY")),
//	    fieldcrypt.WithKeyStore(store),
//	    fieldcrypt.WithKeyWrapper(wrapper),
//	)
//
// Keys are stored at "secret/data/fieldcrypt/{table}/{field}". KV v2 keeps the
// version history, so keys replaced by RotateKey remain recoverable.
//
// # Error Handling
//
//   - fieldcrypt.ErrKeyNotFound: no key stored for the column
//   - fieldcrypt.ErrKeyStoreUnavailable: Vault unreachable, denied, or login failed
//   - fieldcrypt.ErrEncryptionFailed / ErrDecryptionFailed: Transit failures
//   - fieldcrypt.ErrInvalidConfiguration: missing address, credentials or names
package hashicorp
