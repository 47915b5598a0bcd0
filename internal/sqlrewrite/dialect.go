package sqlrewrite

import "strings"

// Dialect names the database-side functions used in rewritten statements.
type Dialect struct {
	Name     string
	Encrypt  string // (plaintext, key) -> binary
	Decrypt  string // (binary, key) -> binary
	Encode   string // binary -> base64 text
	Decode   string // base64 text -> binary
	CastType string

	// BackslashEscapes is set when the database treats '\' inside string
	// literals as an escape character.
	BackslashEscapes bool

	// AESKeySize is the number of bytes the database's AES_ENCRYPT folds
	// the key string into (XOR over every AESKeySize bytes). The engine's AES
	// strategy derives keys the same way so both modes agree.
	AESKeySize int
}

// MySQL is the default dialect.
var MySQL = Dialect{
	Name:             "mysql",
	Encrypt:          "AES_ENCRYPT",
	Decrypt:          "AES_DECRYPT",
	Encode:           "TO_BASE64",
	Decode:           "FROM_BASE64",
	CastType:         "CHAR",
	BackslashEscapes: true,
	AESKeySize:       16,
}

// MySQLAES256 is MySQL with block_encryption_mode set to aes-256-ecb.
var MySQLAES256 = Dialect{
	Name:             "mysql-aes256",
	Encrypt:          "AES_ENCRYPT",
	Decrypt:          "AES_DECRYPT",
	Encode:           "TO_BASE64",
	Decode:           "FROM_BASE64",
	CastType:         "CHAR",
	BackslashEscapes: true,
	AESKeySize:       32,
}

// SQLite expects the functions registered by providers/sqlitefunc.
var SQLite = Dialect{
	Name:       "sqlite",
	Encrypt:    "AES_ENCRYPT",
	Decrypt:    "AES_DECRYPT",
	Encode:     "TO_BASE64",
	Decode:     "FROM_BASE64",
	CastType:   "TEXT",
	AESKeySize: 16,
}

// DialectByName returns the dialect called name, case-insensitively.
func DialectByName(name string) (Dialect, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mysql", "mariadb":
		return MySQL, true
	case "mysql-aes256":
		return MySQLAES256, true
	case "sqlite", "sqlite3":
		return SQLite, true
	default:
		return Dialect{}, false
	}
}

// Literal quotes s as a SQL string literal.
func (d Dialect) Literal(s string) string {
	if d.BackslashEscapes {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (d Dialect) decryptExpr(ref, key, alias string) string {
	return "CAST(" + d.Decrypt + "(" + d.Decode + "(" + ref + "), " + d.Literal(key) + ") AS " + d.CastType + ") AS " + alias
}

func (d Dialect) encryptExpr(key string) string {
	return d.Encode + "(" + d.Encrypt + "(?, " + d.Literal(key) + "))"
}
