// Package postgres connects the scope package to PostgreSQL through
// database/sql and the pgx driver.
//
// Conn adapts a dedicated *sql.Conn to scope.Conn. Session pairs such a
// connection with a stable identity and purges the shared registry when the
// connection is replaced or closed. The package also classifies driver
// errors by SQLSTATE and parses configured isolation levels.
package postgres
