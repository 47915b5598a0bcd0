package hashicorp

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/hengadev/fieldcrypt"
)

const (
	// DefaultMount is the mount path of the KV v2 engine.
	DefaultMount = "secret"
	// DefaultPrefix is the folder under the mount holding column keys.
	DefaultPrefix = "fieldcrypt"
)

// KVStore implements fieldcrypt.KeyStore on the Vault KV v2 engine.
//
// Each column key lives at "{mount}/data/{prefix}/{table}/{field}" with the
// fields "key" and "updated_at". KV v2 keeps the previous versions, so a
// rotated key can still be recovered from Vault.
type KVStore struct {
	client *api.Client
	mount  string
	prefix string
}

var _ fieldcrypt.KeyStore = (*KVStore)(nil)

// NewKVStore creates a KVStore. Empty mount and prefix select DefaultMount
// and DefaultPrefix.
//
// The KV v2 engine must be enabled in Vault before use:
//
//	vault secrets enable -path=secret kv-v2
func NewKVStore(client *api.Client, mount, prefix string) (*KVStore, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: Vault client is required", fieldcrypt.ErrInvalidConfiguration)
	}
	if mount = strings.Trim(mount, "/"); mount == "" {
		mount = DefaultMount
	}
	if prefix = strings.Trim(prefix, "/"); prefix == "" {
		prefix = DefaultPrefix
	}
	return &KVStore{client: client, mount: mount, prefix: prefix}, nil
}

// StoragePath returns the KV v2 data path of table.field.
func (k *KVStore) StoragePath(table, field string) string {
	return path.Join(k.mount, "data", k.prefix, table, field)
}

func (k *KVStore) metadataPath(parts ...string) string {
	return path.Join(append([]string{k.mount, "metadata", k.prefix}, parts...)...)
}

// Get reads the key of table.field. A missing secret is reported with
// fieldcrypt.ErrKeyNotFound.
func (k *KVStore) Get(ctx context.Context, table, field string) (string, error) {
	record, err := k.read(ctx, table, field)
	if err != nil {
		return "", err
	}
	return record.Key, nil
}

// Put writes a new version of the key of table.field.
func (k *KVStore) Put(ctx context.Context, table, field, key string) error {
	if table == "" || field == "" {
		return fmt.Errorf("%w: table and field are required", fieldcrypt.ErrInvalidConfiguration)
	}
	data := map[string]any{
		"data": map[string]any{
			"key":        key,
			"updated_at": time.Now().UTC().Format(time.RFC3339),
		},
	}
	if _, err := k.client.Logical().WriteWithContext(ctx, k.StoragePath(table, field), data); err != nil {
		return fmt.Errorf("%w: failed to store key for '%s.%s' in Vault KV: %w",
			fieldcrypt.ErrKeyStoreUnavailable, table, field, err)
	}
	return nil
}

// List returns every stored key, sorted by table then field.
func (k *KVStore) List(ctx context.Context) ([]fieldcrypt.KeyRecord, error) {
	tables, err := k.listNames(ctx, k.metadataPath())
	if err != nil {
		return nil, err
	}

	var records []fieldcrypt.KeyRecord
	for _, table := range tables {
		if !strings.HasSuffix(table, "/") {
			continue
		}
		table = strings.TrimSuffix(table, "/")
		fields, err := k.listNames(ctx, k.metadataPath(table))
		if err != nil {
			return nil, err
		}
		for _, field := range fields {
			if strings.HasSuffix(field, "/") {
				continue
			}
			record, err := k.read(ctx, table, field)
			if err != nil {
				return nil, err
			}
			records = append(records, record)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Table != records[j].Table {
			return records[i].Table < records[j].Table
		}
		return records[i].Field < records[j].Field
	})
	return records, nil
}

func (k *KVStore) read(ctx context.Context, table, field string) (fieldcrypt.KeyRecord, error) {
	secret, err := k.client.Logical().ReadWithContext(ctx, k.StoragePath(table, field))
	if err != nil {
		return fieldcrypt.KeyRecord{}, fmt.Errorf("%w: failed to read key for '%s.%s' from Vault KV: %w",
			fieldcrypt.ErrKeyStoreUnavailable, table, field, err)
	}
	if secret == nil || secret.Data == nil {
		return fieldcrypt.KeyRecord{}, fmt.Errorf("%w: '%s.%s'", fieldcrypt.ErrKeyNotFound, table, field)
	}

	// KV v2 wraps the payload in a "data" key; a deleted version has it nil.
	data, ok := secret.Data["data"].(map[string]any)
	if !ok || data == nil {
		return fieldcrypt.KeyRecord{}, fmt.Errorf("%w: '%s.%s'", fieldcrypt.ErrKeyNotFound, table, field)
	}
	key, ok := data["key"].(string)
	if !ok || key == "" {
		return fieldcrypt.KeyRecord{}, fmt.Errorf("%w: invalid KV v2 secret format for '%s.%s'",
			fieldcrypt.ErrInvalidFormat, table, field)
	}

	record := fieldcrypt.KeyRecord{Table: table, Field: field, Key: key}
	if raw, ok := data["updated_at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			record.UpdatedAt = ts
		}
	}
	return record, nil
}

func (k *KVStore) listNames(ctx context.Context, p string) ([]string, error) {
	secret, err := k.client.Logical().ListWithContext(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list %s: %w", fieldcrypt.ErrKeyStoreUnavailable, p, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}
	raw, _ := secret.Data["keys"].([]any)
	names := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			names = append(names, s)
		}
	}
	return names, nil
}
