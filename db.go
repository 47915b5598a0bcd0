package fieldcrypt

import (
	"context"
	"database/sql"
)

// DB routes statements through the engine's dispatcher before handing them
// to the wrapped *sql.DB. It adds no pooling or transactions of its own.
//
// In DB mode the SQL text is rewritten and arguments are passed through as
// plaintext. In POJO mode use ExecParam to encrypt a parameter object before
// binding it, and Decrypt on scanned results.
type DB struct {
	db     *sql.DB
	engine *Engine
}

// WrapDB returns db wrapped by the engine.
func (e *Engine) WrapDB(db *sql.DB) *DB {
	return &DB{db: db, engine: e}
}

// Unwrap returns the underlying database handle.
func (d *DB) Unwrap() *sql.DB { return d.db }

func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	u := NewUnit(query, nil)
	if err := d.engine.dispatcher.Before(ctx, u); err != nil {
		return nil, err
	}
	return d.db.ExecContext(ctx, u.SQL, args...)
}

func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	u := NewUnit(query, nil)
	if err := d.engine.dispatcher.Before(ctx, u); err != nil {
		return nil, err
	}
	return d.db.QueryContext(ctx, u.SQL, args...)
}

// QueryRowContext cannot return dispatch errors through *sql.Row; they are
// logged and the statement runs as given.
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	u := NewUnit(query, nil)
	if err := d.engine.dispatcher.Before(ctx, u); err != nil {
		d.engine.logger.Warn("dispatch failed, running statement unmodified", "unit", u.ID.String(), "error", err)
	}
	return d.db.QueryRowContext(ctx, u.SQL, args...)
}

// ExecParam executes an INSERT or UPDATE whose arguments come from param.
// In POJO mode param is encrypted in place first, then bind is called to
// read the arguments, so bind must read param's fields when it runs:
//
//	db.ExecParam(ctx, "INSERT INTO user (name, phone) VALUES (?, ?)", u,
//	    func() []any { return []any{u.Name, u.Phone} })
//
// param is left encrypted afterwards; call Decrypt to restore it.
func (d *DB) ExecParam(ctx context.Context, query string, param any, bind func() []any) (sql.Result, error) {
	u := NewUnit(query, param)
	if err := d.engine.dispatcher.Before(ctx, u); err != nil {
		return nil, err
	}
	var args []any
	if bind != nil {
		args = bind()
	}
	return d.db.ExecContext(ctx, u.SQL, args...)
}

// Decrypt decrypts scanned results in POJO mode. query is the statement that
// produced them and is used to resolve the table of map results. It does
// nothing in DB mode.
func (d *DB) Decrypt(ctx context.Context, query string, result any) error {
	return d.engine.dispatcher.After(ctx, NewUnit(query, nil), result)
}
