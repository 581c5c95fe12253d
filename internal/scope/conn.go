package scope

import (
	"context"

	"github.com/google/uuid"
)

// Conn is the database connection a scope borrows. Implementations are not
// expected to be safe for concurrent use; the registry serializes scope
// operations per connection identity.
type Conn interface {
	// InTransaction reports whether a top-level transaction is in progress.
	InTransaction() bool
	BeginTransaction(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	// Execute runs a statement. Arguments, when present, are bound by the
	// driver and never interpolated into query.
	Execute(ctx context.Context, query string, args ...any) error
}

// ConnID identifies one logical connection. It outlives any particular
// Conn value so the registry can be cleaned up after a reconnect.
type ConnID = uuid.UUID

// NewConnID returns a fresh random connection identity.
func NewConnID() ConnID {
	return uuid.New()
}
