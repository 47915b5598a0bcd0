// Package sqlitefunc registers MySQL-compatible AES_ENCRYPT, AES_DECRYPT,
// TO_BASE64 and FROM_BASE64 functions on SQLite connections so statements
// rewritten by fieldcrypt in DB mode run against SQLite.
//
//	db, err := sqlitefunc.Open("file:app.db")
//	engine, _ := fieldcrypt.New(fieldcrypt.WithMode(fieldcrypt.ModeDB), fieldcrypt.WithDialect("sqlite"))
//	wrapped := engine.WrapDB(db)
//
// The functions follow MySQL's default block_encryption_mode, aes-128-ecb:
// the key string is XOR-folded into 16 bytes, as AES_ENCRYPT does. Their
// output equals the engine's AES strategy for the sqlite dialect, so values
// written in DB mode can be read in POJO mode and the other way around.
package sqlitefunc

import (
	"database/sql"
	"encoding/base64"
	"strconv"
	"strings"
	"sync"

	"github.com/hengadev/fieldcrypt/internal/strategy"
	"github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver registered by RegisterDriver.
const DriverName = "sqlite3_fieldcrypt"

var registerOnce sync.Once

// aes128 is the aes-128-ecb cipher AES_ENCRYPT and AES_DECRYPT emulate.
var aes128 = strategy.NewAES()

// RegisterDriver registers DriverName once and returns it.
func RegisterDriver() string {
	registerOnce.Do(func() {
		sql.Register(DriverName, &sqlite3.SQLiteDriver{ConnectHook: Register})
	})
	return DriverName
}

// Open opens dsn with the functions available on every connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open(RegisterDriver(), dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Register adds the functions to conn. It can be used as, or called from,
// a sqlite3.SQLiteDriver ConnectHook.
func Register(conn *sqlite3.SQLiteConn) error {
	funcs := []struct {
		name string
		impl any
	}{
		{"AES_ENCRYPT", aesEncrypt},
		{"AES_DECRYPT", aesDecrypt},
		{"TO_BASE64", toBase64},
		{"FROM_BASE64", fromBase64},
	}
	for _, f := range funcs {
		if err := conn.RegisterFunc(f.name, f.impl, true); err != nil {
			return err
		}
	}
	return nil
}

// aesEncrypt mirrors MySQL: NULL in, NULL out.
func aesEncrypt(value, key any) (any, error) {
	if value == nil || key == nil {
		return nil, nil
	}
	ciphertext, err := aes128.Seal(bytesOf(value), string(bytesOf(key)))
	if err != nil {
		return nil, err
	}
	return ciphertext, nil
}

// aesDecrypt returns NULL for undecryptable input, as MySQL does.
func aesDecrypt(value, key any) any {
	if value == nil || key == nil {
		return nil
	}
	plaintext, err := aes128.Open(bytesOf(value), string(bytesOf(key)))
	if err != nil {
		return nil
	}
	return plaintext
}

func toBase64(value any) any {
	if value == nil {
		return nil
	}
	return base64.StdEncoding.EncodeToString(bytesOf(value))
}

// fromBase64 ignores line breaks and returns NULL for invalid input.
func fromBase64(value any) any {
	if value == nil {
		return nil
	}
	cleaned := strings.NewReplacer("\n", "", "\r", "", " ", "").Replace(string(bytesOf(value)))
	raw, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil
	}
	return raw
}

func bytesOf(value any) []byte {
	switch v := value.(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	case int64:
		return []byte(strconv.FormatInt(v, 10))
	case float64:
		return []byte(strconv.FormatFloat(v, 'g', -1, 64))
	case bool:
		if v {
			return []byte("1")
		}
		return []byte("0")
	default:
		return nil
	}
}
