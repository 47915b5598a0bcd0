package processor

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/hengadev/fieldcrypt/internal/fcerr"
)

const (
	StructTag  = "fieldcrypt"
	TagEncrypt = "encrypt"

	OptAlgorithm = "algorithm"
	OptEnabled   = "enabled"
	OptStrategy  = "strategy"

	// ColumnTag names the column when it differs from the snake_case field name.
	ColumnTag = "db"
)

// TagOptions is the parsed form of `fieldcrypt:"encrypt,algorithm=DES,enabled=false,strategy=name"`.
type TagOptions struct {
	Algorithm string
	Strategy  string
	Enabled   bool
}

// ParseTag parses a fieldcrypt tag. The first element must be "encrypt";
// options may follow in any order.
func ParseTag(tag string) (TagOptions, error) {
	opts := TagOptions{Enabled: true}
	parts := strings.Split(strings.TrimSpace(tag), ",")
	if strings.TrimSpace(parts[0]) != TagEncrypt {
		return opts, fcerr.NewInvalidFormatError(fmt.Sprintf("tag %q", tag), "'"+TagEncrypt+"' followed by options")
	}

	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return opts, fcerr.NewInvalidFormatError(fmt.Sprintf("tag option %q", part), "key=value")
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case OptAlgorithm:
			opts.Algorithm = value
		case OptStrategy:
			opts.Strategy = value
		case OptEnabled:
			enabled, err := strconv.ParseBool(value)
			if err != nil {
				return opts, fcerr.NewInvalidFormatError(fmt.Sprintf("tag option %q", part), "a boolean")
			}
			opts.Enabled = enabled
		default:
			return opts, fcerr.NewInvalidFormatError(fmt.Sprintf("tag option %q", key),
				fmt.Sprintf("one of %s, %s, %s", OptAlgorithm, OptEnabled, OptStrategy))
		}
	}
	return opts, nil
}

// columnName returns the db tag name, or the snake_case form of fieldName.
func columnName(dbTag, fieldName string) string {
	if name, _, _ := strings.Cut(dbTag, ","); name != "" && name != "-" {
		return name
	}
	return SnakeCase(fieldName)
}

// SnakeCase converts a Go identifier: PhoneNumber -> phone_number,
// UserID -> user_id, HTTPServer -> http_server.
func SnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// InferTable derives a table name from a type name by dropping an Entity,
// Model or DTO suffix and lowercasing.
func InferTable(typeName string) string {
	for _, suffix := range []string{"Entity", "Model", "DTO"} {
		if trimmed, ok := strings.CutSuffix(typeName, suffix); ok && trimmed != "" {
			typeName = trimmed
			break
		}
	}
	return strings.ToLower(typeName)
}
