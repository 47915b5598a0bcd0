package fieldcrypt

import (
	"context"
	"fmt"

	"github.com/hengadev/fieldcrypt/internal/fcerr"
	"github.com/hengadev/fieldcrypt/internal/strategy"
)

// EncryptionContext binds one column to its algorithm and key. It is cheap to
// create and holds no state of its own; keys are resolved on every call so
// rotations are picked up.
type EncryptionContext struct {
	engine    *Engine
	table     string
	field     string
	algorithm string
	enabled   bool
}

// Context returns the encryption context of table.field. The algorithm is
// the one registered for the field, else the default algorithm. A field that
// is not registered is still processed; registration only matters for SQL
// rewriting and map parameters.
func (e *Engine) Context(table, field string) *EncryptionContext {
	c := &EncryptionContext{
		engine:    e,
		table:     table,
		field:     field,
		algorithm: e.strategies.DefaultAlgorithm(),
		enabled:   e.cfg.Enabled,
	}
	if spec, ok := e.registry.Spec(table, field); ok {
		if spec.Algorithm != "" {
			c.algorithm = spec.Algorithm
		}
		c.enabled = c.enabled && spec.Enabled
	}
	return c
}

// UsingAlgorithm returns a copy of c using algorithm.
func (c *EncryptionContext) UsingAlgorithm(algorithm string) *EncryptionContext {
	copied := *c
	copied.algorithm = algorithm
	return &copied
}

func (c *EncryptionContext) Table() string     { return c.table }
func (c *EncryptionContext) Field() string     { return c.field }
func (c *EncryptionContext) Algorithm() string { return c.algorithm }
func (c *EncryptionContext) Enabled() bool     { return c.enabled }

// Key returns the current key of the column.
func (c *EncryptionContext) Key() string {
	return c.engine.keys.KeyFor(c.table, c.field)
}

// Encrypt returns the ciphertext of plaintext. On failure plaintext is
// returned together with the error. A disabled context returns its input.
func (c *EncryptionContext) Encrypt(plaintext string) (string, error) {
	return c.apply(fcerr.Encrypt, plaintext)
}

// Decrypt returns the plaintext of ciphertext. On failure ciphertext is
// returned together with the error.
func (c *EncryptionContext) Decrypt(ciphertext string) (string, error) {
	return c.apply(fcerr.Decrypt, ciphertext)
}

func (c *EncryptionContext) apply(action fcerr.Action, value string) (string, error) {
	if !c.enabled || value == "" {
		return value, nil
	}
	st, err := c.engine.strategies.Find(c.algorithm)
	if err != nil {
		return value, fmt.Errorf("%s.%s: %w", c.table, c.field, err)
	}

	var failure error
	out := strategy.Apply(st, action, value, c.Key(), func(err error) {
		failure = fcerr.NewFieldError(c.table+"."+c.field, action, err)
	})
	if failure != nil {
		c.engine.hook.OnCryptoFailure(context.Background(), action.String(), st.Algorithm(), failure, map[string]any{
			"table": c.table,
			"field": c.field,
		})
	}
	return out, failure
}
