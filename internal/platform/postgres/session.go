package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/pgscope/internal/platform/logger"
	"github.com/phrazzld/pgscope/internal/scope"
)

// Session is one logical connection: a dedicated pooled connection plus a
// stable identity under which its scopes are registered. The identity
// survives Reconnect so that stale registry entries can be purged.
//
// A Session must not be used from more than one goroutine at a time.
type Session struct {
	id   scope.ConnID
	db   *sql.DB
	reg  *scope.Registry
	opts *sql.TxOptions

	mu   sync.Mutex
	conn *Conn
}

// Ensure Session can drive scope.Run
var _ scope.Beginner = (*Session)(nil)

// OpenSession reserves a connection from db. Top-level transactions begun
// on the session use opts, which may be nil.
func OpenSession(ctx context.Context, db *sql.DB, reg *scope.Registry, opts *sql.TxOptions) (*Session, error) {
	raw, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	s := &Session{
		id:   scope.NewConnID(),
		db:   db,
		reg:  reg,
		opts: opts,
		conn: NewConn(raw, opts),
	}
	logger.FromContext(ctx).Debug("session opened", slog.String("conn_id", s.id.String()))
	return s, nil
}

// ID returns the session's connection identity.
func (s *Session) ID() scope.ConnID {
	return s.id
}

// Conn returns the current underlying connection, or nil once closed.
func (s *Session) Conn() *Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Begin opens a scope on the session: a transaction if none is in progress,
// otherwise a savepoint.
func (s *Session) Begin(ctx context.Context) (*scope.Scope, error) {
	conn := s.Conn()
	if conn == nil {
		return nil, ErrSessionClosed
	}
	return scope.Begin(ctx, s.reg, conn, s.id)
}

// Exec runs a statement on the session, inside the current transaction if
// there is one.
func (s *Session) Exec(ctx context.Context, query string, args ...any) error {
	conn := s.Conn()
	if conn == nil {
		return ErrSessionClosed
	}
	return conn.Execute(ctx, query, args...)
}

// Reconnect replaces the underlying connection while keeping the session's
// identity. Every scope open on the old connection is dropped from the
// registry without issuing SQL.
func (s *Session) Reconnect(ctx context.Context) error {
	raw, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}

	s.mu.Lock()
	old := s.conn
	s.conn = NewConn(raw, s.opts)
	s.mu.Unlock()

	// Close failures on the old connection are logged by abandon.
	_ = s.abandon(ctx, old)
	return nil
}

// Close purges the session's scopes from the registry and returns the
// connection to the pool. Closing twice is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	old := s.conn
	s.conn = nil
	s.mu.Unlock()

	if old == nil {
		return nil
	}
	return s.abandon(ctx, old)
}

// abandon forgets every scope registered for the session and closes conn.
func (s *Session) abandon(ctx context.Context, conn *Conn) error {
	dropped := s.reg.PurgeConnection(s.id)
	log := logger.FromContext(ctx).With(slog.String("conn_id", s.id.String()))
	if dropped > 0 {
		log.Warn("abandoned open transactions", slog.Int("transactions", dropped))
	}

	if conn == nil {
		return nil
	}
	if err := conn.close(); err != nil {
		log.Error("failed to close connection", slog.String("error", err.Error()))
		return fmt.Errorf("failed to close connection: %w", err)
	}
	log.Debug("connection released")
	return nil
}
