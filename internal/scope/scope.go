package scope

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/pgscope/internal/platform/logger"
)

// Scope is one open transaction or savepoint. It borrows its connection and
// must only be used through the pointer returned by Begin; it contains a
// mutex, so go vet reports any copy.
type Scope struct {
	reg    *Registry
	conn   Conn
	connID ConnID
	tx     TxID
	sp     SavepointID

	mu        sync.Mutex
	finalized bool
}

// Begin opens a scope on conn. If conn has no transaction in progress a new
// top-level transaction is started; otherwise a savepoint is created inside
// the connection's current transaction.
func Begin(ctx context.Context, reg *Registry, conn Conn, connID ConnID) (*Scope, error) {
	e := reg.lock(connID)
	defer e.mu.Unlock()

	log := logger.FromContext(ctx).With(slog.String("conn_id", connID.String()))

	if !conn.InTransaction() {
		tx := reg.NextTxID()
		if err := conn.BeginTransaction(ctx); err != nil {
			log.Error("failed to begin transaction",
				slog.Uint64("tx_id", uint64(tx)),
				slog.String("error", err.Error()))
			return nil, newDatabaseError(ErrTransactionControl, "begin", "BEGIN", err)
		}
		e.registerTransaction(tx)
		log.Debug("transaction started", slog.Uint64("tx_id", uint64(tx)))
		return &Scope{reg: reg, conn: conn, connID: connID, tx: tx}, nil
	}

	tx, ok := e.current()
	if !ok {
		return nil, fmt.Errorf("%w: connection %s", ErrNoOpenTransaction, connID)
	}
	sp := reg.NextSavepointID()
	stmt := savepointStmt("SAVEPOINT", sp)
	if err := conn.Execute(ctx, stmt); err != nil {
		log.Error("failed to create savepoint",
			slog.Uint64("tx_id", uint64(tx)),
			slog.Uint64("savepoint_id", uint64(sp)),
			slog.String("error", err.Error()))
		return nil, newDatabaseError(ErrTransactionControl, "savepoint", stmt, err)
	}
	e.registerSavepoint(tx, sp)
	log.Debug("savepoint created",
		slog.Uint64("tx_id", uint64(tx)),
		slog.Uint64("savepoint_id", uint64(sp)))
	return &Scope{reg: reg, conn: conn, connID: connID, tx: tx, sp: sp}, nil
}

// ConnID returns the identity of the connection the scope lives on.
func (s *Scope) ConnID() ConnID { return s.connID }

// TxID returns the transaction the scope belongs to.
func (s *Scope) TxID() TxID { return s.tx }

// SavepointID returns the scope's savepoint, or zero for a top-level scope.
func (s *Scope) SavepointID() SavepointID { return s.sp }

// IsSavepoint reports whether the scope is a savepoint.
func (s *Scope) IsSavepoint() bool { return s.sp != 0 }

// Finalized reports whether Commit or Rollback has taken effect or found the
// scope already closed.
func (s *Scope) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized
}

// Open reports whether the registry still has the scope open. A scope can be
// closed without being finalized, e.g. when an enclosing scope ended first.
func (s *Scope) Open() bool {
	if s.sp == 0 {
		return s.reg.HasOpenTransaction(s.connID, s.tx)
	}
	return s.reg.HasOpenSavepoint(s.connID, s.tx, s.sp)
}

// Commit commits the transaction or releases the savepoint. It returns false
// without issuing any SQL if the scope is already closed.
func (s *Scope) Commit(ctx context.Context) (bool, error) {
	return s.finish(ctx, "commit")
}

// Rollback rolls back the transaction or rolls back to the savepoint. It
// returns false without issuing any SQL if the scope is already closed.
func (s *Scope) Rollback(ctx context.Context) (bool, error) {
	return s.finish(ctx, "rollback")
}

// Close rolls the scope back unless it has already been finalized. It never
// fails; errors are logged.
func (s *Scope) Close(ctx context.Context) {
	issued, err := s.Rollback(ctx)
	if err != nil {
		logger.FromContext(ctx).Error("failed to roll back abandoned scope",
			s.attrs(slog.String("error", err.Error()))...)
		return
	}
	if issued {
		logger.FromContext(ctx).Debug("rolled back abandoned scope", s.attrs()...)
	}
}

func (s *Scope) finish(ctx context.Context, op string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return false, nil
	}

	log := logger.FromContext(ctx)

	// A purged connection has no entry; finishing must not recreate it.
	e := s.reg.lockExisting(s.connID)
	if e == nil {
		s.finalized = true
		log.Debug("scope already closed", s.attrs(slog.String("op", op))...)
		return false, nil
	}
	defer e.mu.Unlock()

	if !e.isOpen(s.tx, s.sp) {
		s.finalized = true
		log.Debug("scope already closed", s.attrs(slog.String("op", op))...)
		return false, nil
	}

	if s.sp != 0 {
		verb := "RELEASE SAVEPOINT"
		if op == "rollback" {
			verb = "ROLLBACK TO SAVEPOINT"
		}
		stmt := savepointStmt(verb, s.sp)
		if err := s.conn.Execute(ctx, stmt); err != nil {
			log.Error("savepoint statement failed",
				s.attrs(slog.String("statement", stmt), slog.String("error", err.Error()))...)
			return false, newDatabaseError(ErrTransactionControl, op, stmt, err)
		}
		e.closeSavepointsFrom(s.tx, s.sp)
		s.finalized = true
		log.Debug("savepoint finalized", s.attrs(slog.String("op", op))...)
		return true, nil
	}

	var err error
	stmt := "COMMIT"
	if op == "commit" {
		err = s.conn.Commit(ctx)
	} else {
		stmt = "ROLLBACK"
		err = s.conn.Rollback(ctx)
	}
	// The driver transaction is over whether or not the call succeeded.
	e.closeTransaction(s.tx)
	s.finalized = true
	if err != nil {
		log.Error("failed to finish transaction",
			s.attrs(slog.String("op", op), slog.String("error", err.Error()))...)
		return false, newDatabaseError(ErrTransactionControl, op, stmt, err)
	}
	log.Debug("transaction finalized", s.attrs(slog.String("op", op))...)
	return true, nil
}

// attrs returns the scope's identifying log attributes followed by extra.
func (s *Scope) attrs(extra ...any) []any {
	return append([]any{
		slog.String("conn_id", s.connID.String()),
		slog.Uint64("tx_id", uint64(s.tx)),
		slog.Uint64("savepoint_id", uint64(s.sp)),
	}, extra...)
}

// savepointStmt renders a savepoint statement. Names are purely numeric so
// interpolation is safe.
func savepointStmt(verb string, sp SavepointID) string {
	return fmt.Sprintf("%s sp%d", verb, sp)
}
