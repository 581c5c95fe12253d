// Package mocks provides centralized mock implementations for testing.
//
// MockConn stands in for a database connection behind scope.Conn. It keeps
// track of whether a transaction is in progress, records every call in
// order and lets a test fail any individual call:
//
//	conn := mocks.NewMockConn()
//	conn.ExecuteFn = func(ctx context.Context, query string, args ...any) error {
//	    return errors.New("savepoint failed")
//	}
//	// ... exercise code ...
//	assert.Equal(t, []string{"BEGIN", "SAVEPOINT sp1"}, conn.Statements())
package mocks
