package mysqlr

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gandaldf/mysqlr/metrics"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// Handler runs statements over a single MySQL connection.
//
// A Handler is either open or closed. Every operation on a closed Handler
// returns ErrClosed; Close may be called any number of times.
// A Handler is NOT safe for concurrent use.
type Handler struct {
	db      *sql.DB
	conn    conn
	opts    Options
	config  Config
	builder Builder
	logger  *zap.Logger
	syntax  *Syntax // forced by WithSyntax; nil means detect
	closed  bool
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithConfig sets limits and the retry policy.
func WithConfig(c Config) Option {
	return func(h *Handler) { h.config = defaultConfig(c) }
}

// WithSyntax skips server version detection and uses s.
func WithSyntax(s Syntax) Option {
	return func(h *Handler) { h.syntax = &s }
}

// Open connects to the server described by opts and holds one connection
// until Close. Connection failures are logged at error level with the
// password redacted and returned as is; they are never retried here.
func Open(ctx context.Context, opts Options, options ...Option) (*Handler, error) {
	h := newHandler(opts, options)
	h.logger.Debug("opening connection", zap.Object("options", opts))

	connector, err := mysql.NewConnector(opts.mysqlConfig())
	if err != nil {
		h.logConnectError(err)
		return nil, err
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)

	if err := h.attach(ctx, db); err != nil {
		h.logConnectError(err)
		return nil, err
	}
	return h, nil
}

// New wraps an existing database handle, typically a test double. The handle
// is closed by Close like one opened by Open.
func New(ctx context.Context, db *sql.DB, opts Options, options ...Option) (*Handler, error) {
	h := newHandler(opts, options)
	h.logger.Debug("using provided database handle", zap.Object("options", opts))
	if err := h.attach(ctx, db); err != nil {
		h.logConnectError(err)
		return nil, err
	}
	return h, nil
}

// WithHandler opens a Handler, passes it to fn and closes it on every path.
// Database errors returned by fn are logged at error level with the password
// redacted before being returned.
func WithHandler(ctx context.Context, opts Options, fn func(*Handler) error, options ...Option) (err error) {
	h, err := Open(ctx, opts, options...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := h.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		if err != nil && isDatabaseError(err) {
			h.logger.Error("database error",
				zap.Error(err),
				zap.Object("options", h.opts),
				zap.Stack("stack"))
		}
	}()
	return fn(h)
}

func newHandler(opts Options, options []Option) *Handler {
	h := &Handler{
		opts:   opts,
		config: defaultConfig(),
		logger: zap.NewNop(),
	}
	for _, o := range options {
		o(h)
	}
	return h
}

// attach takes one connection out of db and settles the upsert syntax.
func (h *Handler) attach(ctx context.Context, db *sql.DB) error {
	c, err := db.Conn(ctx)
	if err != nil {
		return withCloseErrors(err, db.Close())
	}
	h.db = db
	h.conn = c

	syntax := AliasSyntax
	if h.syntax != nil {
		syntax = *h.syntax
	} else {
		var version string
		if err := c.QueryRowContext(ctx, "select version()").Scan(&version); err != nil {
			return withCloseErrors(err, c.Close(), db.Close())
		}
		syntax = SyntaxForVersion(version)
		h.logger.Debug("detected server version", zap.String("version", version), zap.Stringer("syntax", syntax))
	}
	h.builder = Builder{Syntax: syntax, Placeholder: "?", Logger: h.logger}
	return nil
}

// withCloseErrors returns err itself unless closing also failed, so callers
// can still compare against the driver error.
func withCloseErrors(err error, closeErrs ...error) error {
	if cerr := errors.Join(closeErrs...); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}

func (h *Handler) logConnectError(err error) {
	h.logger.Error("database connection failed",
		zap.Error(err),
		zap.Object("options", h.opts),
		zap.Stack("stack"))
}

// Close releases the connection and the database handle. Closing a closed
// Handler is a no-op.
func (h *Handler) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.logger.Debug("closing connection")
	return errors.Join(h.conn.Close(), h.db.Close())
}

// Syntax returns the upsert syntax chosen when the connection was opened.
func (h *Handler) Syntax() Syntax { return h.builder.Syntax }

// Builder returns the statement builder matching this connection.
func (h *Handler) Builder() Builder { return h.builder }

// Execute runs a single statement.
func (h *Handler) Execute(ctx context.Context, statement string, args ...any) error {
	return h.exec(ctx, "execute", statement, args)
}

// ExecuteMulti runs a script of ";"-separated statements. The driver reads
// every result before returning.
func (h *Handler) ExecuteMulti(ctx context.Context, script string) error {
	return h.exec(ctx, "execute_multi", script, nil)
}

func (h *Handler) exec(ctx context.Context, op, statement string, args []any) error {
	if h.closed {
		return ErrClosed
	}
	h.logger.Debug("executing statement", zap.String("statement", statement), zap.Any("params", args))
	start := time.Now()
	_, err := h.conn.ExecContext(ctx, statement, args...)
	return h.finish(ctx, op, statement, start, err)
}

// ExecuteMany runs statement once per row.
//
// A plain "insert ... values (...)" is sent as one multi-row insert (split
// only when it would exceed Config.MaxParams). Any other statement is
// prepared once and executed for each row.
func (h *Handler) ExecuteMany(ctx context.Context, statement string, rows []Row) error {
	if h.closed {
		return ErrClosed
	}
	if len(rows) == 0 {
		return nil
	}
	h.logger.Debug("executing statement with multiple rows", zap.String("statement", statement), zap.Int("rows", len(rows)))

	vs, ok := splitValues(statement)
	if !ok {
		return h.executePrepared(ctx, statement, rows)
	}
	per, err := vs.rowsPerBatch(h.config.MaxParams)
	if err != nil {
		return &StatementError{Statement: statement, Err: err}
	}
	if per < 0 {
		per = len(rows)
	}
	for off := 0; off < len(rows); off += per {
		batch := rows[off:min(off+per, len(rows))]
		args, err := vs.flatten(batch, off)
		if err != nil {
			return &StatementError{Statement: statement, Err: err}
		}
		q := vs.expand(len(batch))
		start := time.Now()
		_, err = h.conn.ExecContext(ctx, q, args...)
		if err := h.finish(ctx, "execute_many", statement, start, err); err != nil {
			return err
		}
		metrics.RecordRows("execute_many", int64(len(batch)))
	}
	return nil
}

// executePrepared is the fallback of ExecuteMany for statements that cannot
// be expanded into a multi-row insert.
func (h *Handler) executePrepared(ctx context.Context, statement string, rows []Row) error {
	start := time.Now()
	err := func() error {
		stmt, err := h.conn.PrepareContext(ctx, statement)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, r...); err != nil {
				return err
			}
		}
		return nil
	}()
	if err := h.finish(ctx, "execute_many", statement, start, err); err != nil {
		return err
	}
	metrics.RecordRows("execute_many", int64(len(rows)))
	return nil
}

// ExecuteManyChunked runs ExecuteMany over consecutive chunks of at most
// chunkSize rows. A chunkSize <= 0 sends all rows at once.
func (h *Handler) ExecuteManyChunked(ctx context.Context, statement string, rows []Row, chunkSize int) error {
	if chunkSize <= 0 {
		return h.ExecuteMany(ctx, statement, rows)
	}
	for off := 0; off < len(rows); off += chunkSize {
		if err := h.ExecuteMany(ctx, statement, rows[off:min(off+chunkSize, len(rows))]); err != nil {
			return err
		}
	}
	return nil
}

// FetchOne returns the first row of the result. An empty result is not an
// error: the returned Row is nil and err is nil.
func (h *Handler) FetchOne(ctx context.Context, statement string, args ...any) (Row, error) {
	var row Row
	err := h.query(ctx, "fetch_one", statement, args, func(rows *sql.Rows) error {
		_, kinds, err := columnKinds(rows)
		if err != nil {
			return err
		}
		if !rows.Next() {
			return rows.Err()
		}
		row, err = scanRow(rows, kinds)
		return err
	})
	if err != nil {
		return nil, err
	}
	if row == nil {
		h.logger.Debug("no row found", zap.String("statement", statement))
		return nil, nil
	}
	h.logger.Debug("fetched row", zap.Any("row", row))
	return row, nil
}

// FetchAll returns every row of the result as positional tuples.
func (h *Handler) FetchAll(ctx context.Context, statement string, args ...any) ([]Row, error) {
	var out []Row
	err := h.query(ctx, "fetch_all", statement, args, func(rows *sql.Rows) (err error) {
		out, err = scanRows(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	h.logger.Debug("fetched rows", zap.Int("count", len(out)))
	metrics.RecordRows("fetch_all", int64(len(out)))
	return out, nil
}

// FetchAllRecords returns every row of the result keyed by column name.
func (h *Handler) FetchAllRecords(ctx context.Context, statement string, args ...any) ([]Record, error) {
	var out []Record
	err := h.query(ctx, "fetch_all", statement, args, func(rows *sql.Rows) (err error) {
		out, err = scanRecords(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	h.logger.Debug("fetched records", zap.Int("count", len(out)))
	metrics.RecordRows("fetch_all", int64(len(out)))
	return out, nil
}

// query runs statement and hands the open result to scan. The result is
// closed before query returns, on every path.
func (h *Handler) query(ctx context.Context, op, statement string, args []any, scan func(*sql.Rows) error) error {
	if h.closed {
		return ErrClosed
	}
	h.logger.Debug("querying", zap.String("statement", statement), zap.Any("params", args))
	start := time.Now()
	err := func() error {
		rows, err := h.conn.QueryContext(ctx, statement, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		return scan(rows)
	}()
	return h.finish(ctx, op, statement, start, err)
}

// finish records the outcome of a statement, attaches the statement to
// driver errors and, with RaiseOnWarnings, turns warnings into an error.
func (h *Handler) finish(ctx context.Context, op, statement string, start time.Time, err error) error {
	metrics.RecordStatement(op, err, time.Since(start))
	if err != nil {
		h.logger.Debug("statement failed", zap.String("op", op), zap.Error(err))
		return &StatementError{Statement: statement, Err: err}
	}
	if h.opts.RaiseOnWarnings {
		return h.checkWarnings(ctx, statement)
	}
	return nil
}

func (h *Handler) checkWarnings(ctx context.Context, statement string) error {
	rows, err := h.conn.QueryContext(ctx, "show warnings")
	if err != nil {
		return &StatementError{Statement: "show warnings", Err: err}
	}
	defer rows.Close()

	var ws []Warning
	for rows.Next() {
		var w Warning
		if err := rows.Scan(&w.Level, &w.Code, &w.Message); err != nil {
			return &StatementError{Statement: "show warnings", Err: err}
		}
		ws = append(ws, w)
	}
	if err := rows.Err(); err != nil {
		return &StatementError{Statement: "show warnings", Err: err}
	}
	if len(ws) > 0 {
		h.logger.Debug("statement produced warnings", zap.String("statement", statement), zap.Int("count", len(ws)))
		return &WarningsError{Statement: statement, Warnings: ws}
	}
	return nil
}

// InsertOnDuplicateKeyUpdate upserts rows into table. Columns in keys are not
// updated on conflict; a non-empty onDup replaces the generated update clause.
func (h *Handler) InsertOnDuplicateKeyUpdate(ctx context.Context, table string, cols, keys []string, rows []Row, onDup string) error {
	h.logger.Debug("inserting with on duplicate key update", zap.String("table", table))
	return h.ExecuteMany(ctx, h.builder.BuildUpsert(table, cols, keys, onDup), rows)
}

// InsertSelectOnDuplicateKeyUpdate upserts the rows of tableFrom into
// tableInto through colmap.
func (h *Handler) InsertSelectOnDuplicateKeyUpdate(ctx context.Context, tableFrom, tableInto string, colmap []ColumnPair, keys []string) error {
	h.logger.Debug("inserting from table", zap.String("table_from", tableFrom), zap.String("table_into", tableInto))
	return h.Execute(ctx, h.builder.BuildInsertSelectUpsert(tableFrom, tableInto, colmap, keys))
}

// Truncate empties table in a single multi-statement batch. foreignKeyChecks
// sets foreign_key_checks for the truncate itself; afterwards checks are
// always switched back on, also when the batch fails.
func (h *Handler) Truncate(ctx context.Context, table string, foreignKeyChecks bool) error {
	if h.closed {
		return ErrClosed
	}
	fkc := 0
	if foreignKeyChecks {
		fkc = 1
	}
	script := fmt.Sprintf("set foreign_key_checks=%d;truncate table %s;set foreign_key_checks=1", fkc, table)
	err := h.ExecuteMulti(ctx, script)
	if err != nil {
		if rerr := h.Execute(ctx, "set foreign_key_checks=1"); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}
	return err
}

// ResetAutoIncrement sets the auto_increment counter of table to max(col)+1
// and returns the counter as reported by the server.
//
// Not safe with concurrent writers: a row inserted between reading max(col)
// and altering the table is not accounted for. Use it for administration.
func (h *Handler) ResetAutoIncrement(ctx context.Context, table, col string) (int64, error) {
	row, err := h.FetchOne(ctx, fmt.Sprintf("select max(%s) from %s", col, table))
	if err != nil {
		return 0, err
	}
	maxVal, err := toInt64(row.first())
	if err != nil {
		return 0, err
	}
	if err := h.Execute(ctx, fmt.Sprintf("alter table %s auto_increment = %d", table, maxVal+1)); err != nil {
		return 0, err
	}
	if h.builder.Syntax == AliasSyntax {
		// information_schema caches table statistics on 8.0
		if err := h.Execute(ctx, "set session information_schema_stats_expiry=0"); err != nil {
			return 0, err
		}
	}
	row, err = h.FetchOne(ctx,
		"select auto_increment from information_schema.tables where table_schema = database() and table_name = ?", table)
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return toInt64(row[0])
}

// Retry runs op under the handler's retry policy. Retries are logged at warn
// level. When the connection was lost, a fresh one is taken from the
// database handle before the next attempt.
func (h *Handler) Retry(ctx context.Context, op func(context.Context) error) error {
	p := h.config.Retry
	onRetry := p.OnRetry
	lost := false
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		h.logger.Warn("retrying after transient error",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		lost = lost || isConnectionLost(err)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
	}
	_, err := Retry(ctx, p, func(ctx context.Context) (struct{}, error) {
		if lost {
			if err := h.reconnect(ctx); err != nil {
				return struct{}{}, err
			}
			lost = false
		}
		return struct{}{}, op(ctx)
	})
	return err
}

// reconnect replaces the held connection. A failure is reported as a bad
// connection so Retry keeps trying.
func (h *Handler) reconnect(ctx context.Context) error {
	if h.closed {
		return ErrClosed
	}
	h.logger.Debug("reconnecting")
	// report the old connection as bad so the pool discards it
	_ = h.conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = h.conn.Close()
	c, err := h.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("mysqlr: reconnect: %w", errors.Join(err, driver.ErrBadConn))
	}
	h.conn = c
	return nil
}

// isConnectionLost reports whether err means the held connection is gone.
func isConnectionLost(err error) bool {
	if errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var me *mysql.MySQLError
	return errors.As(err, &me) && (me.Number == CrServerLost || me.Number == CrServerLostExtended)
}

// toInt64 converts a scanned numeric value. NULL counts as 0.
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("mysqlr: cannot convert %T to int64", v)
	}
}
