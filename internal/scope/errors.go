package scope

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by this package wraps exactly one
// of ErrUsage or ErrDatabase.
var (
	// ErrUsage marks a contract violation by the caller. It is never the
	// result of a database round trip and retrying will not help.
	ErrUsage = errors.New("scope usage error")

	// ErrDatabase marks a failure reported by the driver while issuing a
	// transaction-control or SET LOCAL statement.
	ErrDatabase = errors.New("database error")

	// ErrScopeClosed is returned when operating on a scope that is no longer
	// registered as open.
	ErrScopeClosed = fmt.Errorf("%w: scope already closed", ErrUsage)

	// ErrInvalidSettingName is returned by SetLocal when the setting name
	// contains characters outside letters, digits, underscore, dot and
	// whitespace.
	ErrInvalidSettingName = fmt.Errorf("%w: invalid setting name", ErrUsage)

	// ErrNoOpenTransaction is returned when the connection reports an active
	// transaction that the registry does not know about, so there is no
	// transaction to attach a savepoint to.
	ErrNoOpenTransaction = fmt.Errorf("%w: no registered transaction on connection", ErrUsage)

	// ErrTransactionControl covers BEGIN, COMMIT, ROLLBACK and the savepoint
	// statements.
	ErrTransactionControl = fmt.Errorf("%w: transaction control failed", ErrDatabase)

	// ErrSetLocal covers failures of SET LOCAL.
	ErrSetLocal = fmt.Errorf("%w: set local failed", ErrDatabase)

	// ErrInvalidIsolationLevel is returned when an isolation level supplied
	// by a caller is not one the database accepts.
	ErrInvalidIsolationLevel = fmt.Errorf("%w: invalid isolation level", ErrDatabase)
)

// DatabaseError wraps a driver error with the statement that produced it.
type DatabaseError struct {
	Kind      error  // One of the ErrDatabase kinds
	Op        string // Scope operation, e.g. "begin", "commit"
	Statement string // SQL text or driver action that failed
	Err       error  // Original driver error
}

// Error implements the error interface for DatabaseError.
func (e *DatabaseError) Error() string {
	return fmt.Sprintf("%s: %s (%s): %v", e.Kind, e.Op, e.Statement, e.Err)
}

// Unwrap exposes both the kind and the driver error to errors.Is/errors.As.
func (e *DatabaseError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// newDatabaseError builds a DatabaseError of the given kind. A driver error
// that already reports an invalid isolation level keeps that kind.
func newDatabaseError(kind error, op, statement string, err error) *DatabaseError {
	if errors.Is(err, ErrInvalidIsolationLevel) {
		kind = ErrInvalidIsolationLevel
	}
	return &DatabaseError{
		Kind:      kind,
		Op:        op,
		Statement: statement,
		Err:       err,
	}
}

// IsUsageError reports whether err is a caller contract violation.
func IsUsageError(err error) bool {
	return errors.Is(err, ErrUsage)
}

// IsDatabaseError reports whether err originated in the driver.
func IsDatabaseError(err error) bool {
	return errors.Is(err, ErrDatabase)
}

// IsInvalidIsolationLevel reports whether err is a rejected isolation level.
func IsInvalidIsolationLevel(err error) bool {
	return errors.Is(err, ErrInvalidIsolationLevel)
}
