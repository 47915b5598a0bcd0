// Package strategy holds the reversible text transformations used to protect
// column values, and the ordered set they are looked up from.
package strategy

import (
	"github.com/hengadev/fieldcrypt/internal/fcerr"
)

// Strategy is one named, reversible transformation of text values.
//
// Empty input must be returned unchanged by both directions. Ciphertext is
// standard base64 so it survives text columns and query placeholders.
type Strategy interface {
	// Algorithm returns the canonical name of the algorithm, e.g. "AES".
	Algorithm() string

	// Supports reports whether the strategy handles the given algorithm
	// name. Matching is case-insensitive.
	Supports(name string) bool

	Encrypt(plaintext, key string) (string, error)
	Decrypt(ciphertext, key string) (string, error)
}

// Apply runs s in the direction given by action and fails open: when the
// transformation errors, value is returned unchanged and report is called with
// the error. Callers that ignore report can only detect failure by comparing
// input and output.
func Apply(s Strategy, action fcerr.Action, value, key string, report func(error)) string {
	if s == nil || value == "" {
		return value
	}

	var (
		out string
		err error
	)
	switch action {
	case fcerr.Encrypt:
		out, err = s.Encrypt(value, key)
	case fcerr.Decrypt:
		out, err = s.Decrypt(value, key)
	default:
		return value
	}

	if err != nil {
		if report != nil {
			report(err)
		}
		return value
	}
	return out
}
