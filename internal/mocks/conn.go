package mocks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/phrazzld/pgscope/internal/scope"
)

// ConnCall records one interaction with a MockConn.
type ConnCall struct {
	Method string // "BeginTransaction", "Commit", "Rollback" or "Execute"
	Query  string // Statement text for Execute
	Args   []any  // Bound arguments for Execute
}

// String renders the call the way it would reach the database.
func (c ConnCall) String() string {
	switch c.Method {
	case "BeginTransaction":
		return "BEGIN"
	case "Commit":
		return "COMMIT"
	case "Rollback":
		return "ROLLBACK"
	}
	if len(c.Args) == 0 {
		return c.Query
	}
	return fmt.Sprintf("%s %v", c.Query, c.Args)
}

// MockConn is an in-memory scope.Conn that tracks whether a transaction is
// in progress and records every call. Each Fn field, when set, can fail the
// corresponding call; a failing BeginTransaction leaves no transaction open.
type MockConn struct {
	BeginFn    func(ctx context.Context) error
	CommitFn   func(ctx context.Context) error
	RollbackFn func(ctx context.Context) error
	ExecuteFn  func(ctx context.Context, query string, args ...any) error

	mu    sync.Mutex
	inTx  bool
	calls []ConnCall
}

// Ensure MockConn implements scope.Conn interface
var _ scope.Conn = (*MockConn)(nil)

// NewMockConn creates a MockConn with no transaction in progress.
func NewMockConn() *MockConn {
	return &MockConn{}
}

// InTransaction implements scope.Conn.
func (m *MockConn) InTransaction() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inTx
}

// SetInTransaction forces the reported transaction state.
func (m *MockConn) SetInTransaction(inTx bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inTx = inTx
}

// BeginTransaction implements scope.Conn.
func (m *MockConn) BeginTransaction(ctx context.Context) error {
	m.record(ConnCall{Method: "BeginTransaction"})
	if m.BeginFn != nil {
		if err := m.BeginFn(ctx); err != nil {
			return err
		}
	}
	m.SetInTransaction(true)
	return nil
}

// Commit implements scope.Conn. The transaction ends even if CommitFn fails.
func (m *MockConn) Commit(ctx context.Context) error {
	m.record(ConnCall{Method: "Commit"})
	m.SetInTransaction(false)
	if m.CommitFn != nil {
		return m.CommitFn(ctx)
	}
	return nil
}

// Rollback implements scope.Conn. The transaction ends even if RollbackFn fails.
func (m *MockConn) Rollback(ctx context.Context) error {
	m.record(ConnCall{Method: "Rollback"})
	m.SetInTransaction(false)
	if m.RollbackFn != nil {
		return m.RollbackFn(ctx)
	}
	return nil
}

// Execute implements scope.Conn.
func (m *MockConn) Execute(ctx context.Context, query string, args ...any) error {
	m.record(ConnCall{Method: "Execute", Query: query, Args: args})
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, query, args...)
	}
	return nil
}

// Calls returns a copy of the recorded calls in order.
func (m *MockConn) Calls() []ConnCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ConnCall(nil), m.calls...)
}

// Statements returns the recorded calls rendered as SQL.
func (m *MockConn) Statements() []string {
	calls := m.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

// Count returns how many recorded calls used method.
func (m *MockConn) Count(method string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// CountPrefix returns how many executed statements start with prefix.
func (m *MockConn) CountPrefix(prefix string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Method == "Execute" && strings.HasPrefix(c.Query, prefix) {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls but keeps the transaction state.
func (m *MockConn) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *MockConn) record(c ConnCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}
