// Package scope tracks nested transaction scopes (top-level transactions and
// the savepoints inside them) for many logical database connections.
//
// A Registry is the single source of truth for which scopes are still open.
// It is created once by whatever owns the connections and passed to Begin.
// Each Scope returned by Begin is finalized exactly once by Commit or
// Rollback; Close rolls back a scope that was never finalized and is meant
// to be deferred:
//
//	s, err := scope.Begin(ctx, reg, conn, connID)
//	if err != nil {
//	    return err
//	}
//	defer s.Close(ctx)
//	// ... work ...
//	_, err = s.Commit(ctx)
//
// Beginning a scope on a connection that is already inside a transaction
// creates a savepoint. Finalizing a savepoint also closes every savepoint
// created after it.
package scope
