//go:build integration

// Package testdb provides utilities for tests that need a real PostgreSQL
// database.
//
// Tests call GetTestDBWithT, which skips the test when no database URL is
// configured, applies the embedded migrations once per process and closes
// the handle when the test ends:
//
//	func TestSomething(t *testing.T) {
//	    db := testdb.GetTestDBWithT(t)
//	    // ...
//	}
//
// # Environment Variables
//
// - DATABASE_URL: Primary connection string
// - PGSCOPE_TEST_DB_URL: Alternative connection string
package testdb
