package fieldcrypt

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
)

// Value returns a driver.Valuer that encrypts plaintext when the statement is
// executed. It lets POJO-mode code bind encrypted values without touching the
// source struct:
//
//	phone := engine.Context("user", "phone")
//	db.ExecContext(ctx, "INSERT INTO user (phone) VALUES (?)", phone.Value(u.Phone))
//
// Under the fail_closed policy an encryption failure aborts the statement.
func (c *EncryptionContext) Value(plaintext string) driver.Valuer {
	return encryptedValue{ctx: c, plaintext: plaintext}
}

// Scanner returns a sql.Scanner that decrypts the scanned column into dst.
// NULL leaves dst empty.
//
//	var phone string
//	row.Scan(engine.Context("user", "phone").Scanner(&phone))
func (c *EncryptionContext) Scanner(dst *string) sql.Scanner {
	return &decryptingScanner{ctx: c, dst: dst}
}

type encryptedValue struct {
	ctx       *EncryptionContext
	plaintext string
}

func (v encryptedValue) Value() (driver.Value, error) {
	out, err := v.ctx.Encrypt(v.plaintext)
	if err != nil && v.ctx.engine.policy == FailClosed {
		return nil, err
	}
	return out, nil
}

type decryptingScanner struct {
	ctx *EncryptionContext
	dst *string
}

func (s *decryptingScanner) Scan(src any) error {
	if s.dst == nil {
		return fmt.Errorf("%w: scan destination is nil", ErrNilPointer)
	}
	var raw string
	switch v := src.(type) {
	case nil:
		*s.dst = ""
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("%w: cannot scan %T into an encrypted text column", ErrUnsupportedType, src)
	}

	out, err := s.ctx.Decrypt(raw)
	if err != nil && s.ctx.engine.policy == FailClosed {
		return err
	}
	*s.dst = out
	return nil
}
