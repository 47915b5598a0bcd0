package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hengadev/fieldcrypt"
	"github.com/hengadev/fieldcrypt/providers/awskms"
	"github.com/hengadev/fieldcrypt/providers/hashicorp"
	"github.com/hengadev/fieldcrypt/providers/sqlstore"
)

// keyFlags select the key store and the optional key wrapper.
type keyFlags struct {
	store        string
	dbPath       string
	dbTable      string
	vaultMount   string
	vaultPrefix  string
	wrap         string
	kmsKey       string
	kmsRegion    string
	transitMount string
	transitKey   string
}

func registerKeyFlags(fs *flag.FlagSet) *keyFlags {
	kf := &keyFlags{}
	fs.StringVar(&kf.store, "store", "sqlite", "Key store: sqlite or vault")
	fs.StringVar(&kf.dbPath, "db", "fieldcrypt-keys.db", "SQLite database file of the sqlite store")
	fs.StringVar(&kf.dbTable, "db-table", sqlstore.DefaultTable, "Table of the sqlite store")
	fs.StringVar(&kf.vaultMount, "vault-mount", hashicorp.DefaultMount, "KV v2 mount of the vault store")
	fs.StringVar(&kf.vaultPrefix, "vault-prefix", hashicorp.DefaultPrefix, "Path prefix of the vault store")
	fs.StringVar(&kf.wrap, "wrap", "none", "Key wrapper: none, kms or transit")
	fs.StringVar(&kf.kmsKey, "kms-key", "", "AWS KMS key ID, ARN or alias/name")
	fs.StringVar(&kf.kmsRegion, "kms-region", "", "AWS region of the KMS key")
	fs.StringVar(&kf.transitMount, "transit-mount", hashicorp.DefaultTransitMount, "Vault transit mount")
	fs.StringVar(&kf.transitKey, "transit-key", "fieldcrypt", "Vault transit key name")
	return kf
}

// keyBackend is an opened key store with its optional wrapper.
type keyBackend struct {
	store   fieldcrypt.KeyStore
	wrapper fieldcrypt.KeyWrapper
	close   func()
}

func (b *keyBackend) options() []fieldcrypt.Option {
	opts := []fieldcrypt.Option{fieldcrypt.WithKeyStore(b.store)}
	if b.wrapper != nil {
		opts = append(opts, fieldcrypt.WithKeyWrapper(b.wrapper))
	}
	return opts
}

// open connects to the store and wrapper. Vault settings come from the
// VAULT_* environment variables.
func (kf *keyFlags) open(ctx context.Context) (*keyBackend, error) {
	b := &keyBackend{close: func() {}}

	switch strings.ToLower(kf.store) {
	case "sqlite":
		db, err := sqlstore.OpenSQLite(kf.dbPath)
		if err != nil {
			return nil, fmt.Errorf("open key database: %w", err)
		}
		b.close = func() { db.Close() }
		store, err := sqlstore.New(db, sqlstore.WithTable(kf.dbTable))
		if err == nil {
			err = store.Migrate(ctx)
		}
		if err != nil {
			b.close()
			return nil, err
		}
		b.store = store

	case "vault":
		client, err := hashicorp.NewClient(ctx, hashicorp.ClientConfigFromEnv())
		if err != nil {
			return nil, err
		}
		store, err := hashicorp.NewKVStore(client, kf.vaultMount, kf.vaultPrefix)
		if err != nil {
			return nil, err
		}
		b.store = store

	default:
		return nil, usageError("-store must be sqlite or vault, got %q", kf.store)
	}

	wrapper, err := kf.openWrapper(ctx)
	if err != nil {
		b.close()
		return nil, err
	}
	b.wrapper = wrapper
	return b, nil
}

func (kf *keyFlags) openWrapper(ctx context.Context) (fieldcrypt.KeyWrapper, error) {
	switch strings.ToLower(kf.wrap) {
	case "", "none":
		return nil, nil
	case "kms":
		return awskms.New(ctx, awskms.Config{KeyID: kf.kmsKey, Region: kf.kmsRegion})
	case "transit":
		client, err := hashicorp.NewClient(ctx, hashicorp.ClientConfigFromEnv())
		if err != nil {
			return nil, err
		}
		return hashicorp.NewTransitWrapper(client, kf.transitMount, kf.transitKey)
	default:
		return nil, usageError("-wrap must be none, kms or transit, got %q", kf.wrap)
	}
}

// keysCommand manages per-column keys:
//
//	fieldcrypt keys list
//	fieldcrypt keys set -column user.phone -value <key>
//	fieldcrypt keys rotate -column user.phone
func keysCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		return usageError("keys requires an action: list, set or rotate")
	}
	action, args := args[0], args[1:]
	switch action {
	case "list", "set", "rotate":
	default:
		return usageError("unknown keys action %q, want list, set or rotate", action)
	}

	fs := flag.NewFlagSet("keys "+action, flag.ContinueOnError)
	fs.SetOutput(stderr)
	ef := registerEngineFlags(fs)
	kf := registerKeyFlags(fs)
	column := fs.String("column", "", "Column as table.field")
	value := fs.String("value", "", "Key to store (set only)")
	show := fs.Bool("show", false, "Print the new key (rotate only)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var table, field string
	if action != "list" {
		var ok bool
		table, field, ok = strings.Cut(*column, ".")
		if !ok || table == "" || field == "" {
			return usageError("-column must be table.field")
		}
		if action == "set" && *value == "" {
			return usageError("-value is required")
		}
	}

	backend, err := kf.open(ctx)
	if err != nil {
		return err
	}
	defer backend.close()

	engine, err := ef.engine(stderr, backend.options()...)
	if err != nil {
		return err
	}

	switch action {
	case "list":
		return listKeys(ctx, engine, backend.store, stdout)
	case "set":
		if err := engine.StoreKey(ctx, table, field, *value); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "stored key for %s.%s\n", table, field)
	case "rotate":
		key, err := engine.RotateKey(ctx, table, field)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "rotated key for %s.%s at %s\n", table, field, time.Now().UTC().Format(time.RFC3339))
		if *show {
			fmt.Fprintln(stdout, key)
		}
	}
	return nil
}

// listKeys prints the columns with stored keys and a fingerprint of each
// key. Keys themselves are never printed.
func listKeys(ctx context.Context, engine *fieldcrypt.Engine, store fieldcrypt.KeyStore, stdout io.Writer) error {
	if _, err := engine.LoadKeys(ctx); err != nil {
		return err
	}
	records, err := store.List(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tALGORITHM\tFINGERPRINT\tUPDATED")
	for _, rec := range records {
		column := engine.Context(rec.Table, rec.Field)
		fmt.Fprintf(tw, "%s.%s\t%s\t%s\t%s\n",
			rec.Table, rec.Field,
			column.Algorithm(),
			fingerprint(column.Key()),
			rec.UpdatedAt.UTC().Format(time.RFC3339),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d keys\n", len(records))
	return nil
}

func fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:4])
}
