package mysqlr

import (
	"context"
	"database/sql"
	"errors"
)

// Syntax identifies which form of "insert ... on duplicate key update" the
// server understands.
type Syntax int

const (
	// AliasSyntax names the inserted row ("as vals") and references new values
	// as vals.col. Requires MySQL 8.0.19 or later.
	AliasSyntax Syntax = iota
	// ValuesSyntax references new values as VALUES(col). Understood by older
	// MySQL releases and by MariaDB.
	ValuesSyntax
)

// Config defines limits and behavior tweaks for a Handler.
type Config struct {
	// MaxParams limits the number of placeholders a single batched insert may
	// carry. Larger batches are split.
	// If = 0 (or omitted), the MySQL protocol limit (65535) is used.
	// If < 0, it's treated as "unlimited".
	MaxParams int
	// Retry is the policy used by (*Handler).Retry. Zero fields fall back to
	// DefaultRetryPolicy.
	Retry RetryPolicy
}

// Row is an ordered, fixed-arity tuple of column values. A nil Row returned
// by FetchOne means the result was empty.
type Row []any

// Record is a row keyed by column name.
type Record = map[string]any

// conn abstracts *sql.Conn so the handler can be driven by test doubles.
type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	Raw(f func(driverConn any) error) error
	Close() error
}

const maxParamsMySQL = 65535 // placeholders per prepared statement

var (
	ErrClosed        = errors.New("mysqlr: handler is closed")
	ErrUnknownTable  = errors.New("mysqlr: table not found in information_schema")
	ErrTooManyParams = errors.New("mysqlr: too many parameters")
	ErrRowArity      = errors.New("mysqlr: row arity does not match statement")
	ErrEmptyVersion  = errors.New("mysqlr: server returned an empty version")
)

// first returns the first value, or nil for an absent row.
func (r Row) first() any {
	if len(r) == 0 {
		return nil
	}
	return r[0]
}

// String returns the string representation of the syntax.
func (s Syntax) String() string {
	switch s {
	case AliasSyntax:
		return "alias"
	case ValuesSyntax:
		return "values"
	default:
		return "unknown"
	}
}

// defaultConfig merges user config with the MySQL defaults.
func defaultConfig(config ...Config) Config {
	c := Config{}

	if len(config) > 0 {
		c = config[0]
	}

	if c.MaxParams == 0 {
		c.MaxParams = maxParamsMySQL
	}
	c.Retry = c.Retry.withDefaults()

	return c
}
