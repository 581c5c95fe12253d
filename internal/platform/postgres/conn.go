package postgres

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"
	"github.com/phrazzld/pgscope/internal/scope"
)

// Conn adapts a dedicated *sql.Conn to scope.Conn. Statements run inside the
// current transaction when there is one. Conn is not safe for concurrent use.
type Conn struct {
	conn *sql.Conn
	opts *sql.TxOptions
	tx   *sql.Tx
}

// Ensure Conn implements scope.Conn interface
var _ scope.Conn = (*Conn)(nil)

// NewConn wraps conn. Top-level transactions are started with opts, which
// may be nil for the server defaults.
func NewConn(conn *sql.Conn, opts *sql.TxOptions) *Conn {
	return &Conn{conn: conn, opts: opts}
}

// InTransaction implements scope.Conn.
func (c *Conn) InTransaction() bool {
	return c.tx != nil
}

// BeginTransaction implements scope.Conn.
func (c *Conn) BeginTransaction(ctx context.Context) error {
	if c.tx != nil {
		return ErrTransactionInProgress
	}
	if c.opts != nil {
		if err := checkIsolationLevel(c.opts.Isolation); err != nil {
			return err
		}
	}

	tx, err := c.conn.BeginTx(ctx, c.opts)
	if err != nil {
		return MapError(err)
	}
	c.tx = tx
	return nil
}

// Commit implements scope.Conn.
func (c *Conn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return ErrNoTransaction
	}
	tx := c.tx
	c.tx = nil
	return MapError(tx.Commit())
}

// Rollback implements scope.Conn.
func (c *Conn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return ErrNoTransaction
	}
	tx := c.tx
	c.tx = nil
	return MapError(tx.Rollback())
}

// Execute implements scope.Conn. Arguments are bound by pgx on the client
// using the simple protocol, because PostgreSQL does not accept parameters
// in utility statements such as SET.
func (c *Conn) Execute(ctx context.Context, query string, args ...any) error {
	if len(args) > 0 {
		args = append([]any{pgx.QueryExecModeSimpleProtocol}, args...)
	}

	var err error
	if c.tx != nil {
		_, err = c.tx.ExecContext(ctx, query, args...)
	} else {
		_, err = c.conn.ExecContext(ctx, query, args...)
	}
	return MapError(err)
}

// QueryRow runs a query that returns at most one row, inside the current
// transaction when there is one.
func (c *Conn) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	if c.tx != nil {
		return c.tx.QueryRowContext(ctx, query, args...)
	}
	return c.conn.QueryRowContext(ctx, query, args...)
}

// close abandons any open transaction and releases the connection.
func (c *Conn) close() error {
	if c.tx != nil {
		// The caller is discarding the connection; the rollback result is moot.
		_ = c.tx.Rollback()
		c.tx = nil
	}
	return c.conn.Close()
}
