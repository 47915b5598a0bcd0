package fieldcrypt

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hengadev/fieldcrypt/internal/config"
	"github.com/hengadev/fieldcrypt/internal/fcerr"
	"github.com/hengadev/fieldcrypt/internal/sqlrewrite"
)

// Mode selects where encryption happens.
type Mode string

const (
	// ModeDB rewrites SQL so the database encrypts and decrypts with its AES
	// functions. Parameters and results are plaintext in the application.
	ModeDB Mode = config.ModeDB
	// ModePOJO encrypts parameter objects before INSERT and UPDATE and
	// decrypts result objects in the application.
	ModePOJO Mode = config.ModePOJO
)

// FailurePolicy decides what Before and After do with crypto errors.
type FailurePolicy string

const (
	// FailOpen logs the error and lets the statement run with the values
	// that could not be transformed. This is the default.
	FailOpen FailurePolicy = config.FailOpen
	// FailClosed returns the error so the statement is not run.
	FailClosed FailurePolicy = config.FailClosed
)

// RewriteResult is the outcome of rewriting one statement.
type RewriteResult = sqlrewrite.Result

// StatementKind is taken from the leading keyword of a statement.
type StatementKind = sqlrewrite.Kind

const (
	KindOther  = sqlrewrite.KindOther
	KindSelect = sqlrewrite.KindSelect
	KindInsert = sqlrewrite.KindInsert
	KindUpdate = sqlrewrite.KindUpdate
	KindDelete = sqlrewrite.KindDelete
)

// Unit is one statement on its way to the database.
type Unit struct {
	ID   uuid.UUID
	SQL  string
	Kind StatementKind
	// Table overrides the table resolved from Param's type or the statement.
	Table string
	// Param is the parameter object of POJO mode: a pointer to a struct, a
	// FieldProvider, a map of column values or a slice of them.
	Param any
	// Rewritten is set by Before when SQL was changed.
	Rewritten bool
}

// NewUnit creates a unit with a fresh ID.
func NewUnit(sql string, param any) *Unit {
	return &Unit{
		ID:    uuid.New(),
		SQL:   sql,
		Kind:  sqlrewrite.Classify(sql),
		Param: param,
	}
}

// Dispatcher routes statements to the SQL rewriter or the object rewriter
// depending on the engine mode.
type Dispatcher struct {
	engine *Engine
	logger Logger
}

// Before prepares u for execution. In DB mode u.SQL is rewritten. In POJO mode
// u.Param is encrypted in place for INSERT and UPDATE statements.
func (d *Dispatcher) Before(ctx context.Context, u *Unit) error {
	if u == nil || !d.engine.cfg.Enabled {
		return nil
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.Kind = sqlrewrite.Classify(u.SQL)

	switch d.engine.mode {
	case ModeDB:
		res := d.engine.rewriter.ProcessContext(ctx, u.SQL)
		u.SQL = res.SQL
		u.Rewritten = res.Changed
		if res.Changed {
			d.logger.Debug("statement rewritten", "unit", u.ID.String(), "kind", u.Kind.String())
		}
		return nil

	case ModePOJO:
		if u.Param == nil || (u.Kind != KindInsert && u.Kind != KindUpdate) {
			return nil
		}
		start := time.Now()
		err := d.engine.processor.Apply(ctx, u.Param, d.tableOf(u), fcerr.Encrypt)
		return d.settle(ctx, u, "before", err, start)
	}
	return nil
}

// After finishes u. In POJO mode result is decrypted in place; DB mode has
// nothing to do because the database already returned plaintext.
func (d *Dispatcher) After(ctx context.Context, u *Unit, result any) error {
	if u == nil || result == nil || !d.engine.cfg.Enabled || d.engine.mode != ModePOJO {
		return nil
	}
	start := time.Now()
	err := d.engine.processor.Apply(ctx, result, d.tableOf(u), fcerr.Decrypt)
	return d.settle(ctx, u, "after", err, start)
}

// tableOf returns the explicit table, else the statement's target table when
// it is registered. Struct parameters resolve their own table when this is
// empty.
func (d *Dispatcher) tableOf(u *Unit) string {
	if u.Table != "" {
		return u.Table
	}
	target := sqlrewrite.TargetTable(u.SQL)
	if target != "" && d.engine.registry.HasEncryptedFields(target) {
		return target
	}
	return ""
}

// settle applies the failure policy to err.
func (d *Dispatcher) settle(ctx context.Context, u *Unit, stage string, err error, start time.Time) error {
	if err == nil {
		return nil
	}
	d.engine.hook.OnError(ctx, "dispatch."+stage, err, map[string]any{
		"unit":     u.ID.String(),
		"kind":     u.Kind.String(),
		"duration": time.Since(start).String(),
	})
	if d.engine.policy == FailClosed {
		return err
	}
	d.logger.Warn("continuing with untransformed values",
		"unit", u.ID.String(),
		"stage", stage,
		"error", err,
	)
	return nil
}
