package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes relevant to transaction scopes.
const (
	// invalidSavepointCode is reported for RELEASE/ROLLBACK TO of an unknown savepoint
	invalidSavepointCode = "3B001"

	// inFailedTransactionCode is reported for any statement after an error, until rollback
	inFailedTransactionCode = "25P02"

	// serializationFailureCode is reported when a serializable transaction must be retried
	serializationFailureCode = "40001"

	// deadlockDetectedCode is reported when the transaction was chosen as a deadlock victim
	deadlockDetectedCode = "40P01"

	// undefinedObjectCode is reported by SET for an unknown configuration parameter
	undefinedObjectCode = "42704"

	// invalidParameterValueCode is reported by SET for a value the parameter rejects
	invalidParameterValueCode = "22023"
)

// Errors reported by the connection adapter. Driver errors are wrapped, so
// errors.As still reaches the underlying *pgconn.PgError.
var (
	ErrInvalidSavepoint      = errors.New("invalid savepoint")
	ErrInFailedTransaction   = errors.New("current transaction is aborted")
	ErrSerializationFailure  = errors.New("serialization failure")
	ErrDeadlock              = errors.New("deadlock detected")
	ErrUnknownSetting        = errors.New("unknown configuration parameter")
	ErrInvalidSettingValue   = errors.New("invalid configuration parameter value")
	ErrTransactionInProgress = errors.New("transaction already in progress")
	ErrNoTransaction         = errors.New("no transaction in progress")
	ErrSessionClosed         = errors.New("session closed")
)

// MapError classifies a driver error by SQLSTATE. Errors without a specific
// mapping are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case invalidSavepointCode:
		return fmt.Errorf("%w: %w", ErrInvalidSavepoint, err)
	case inFailedTransactionCode:
		return fmt.Errorf("%w: %w", ErrInFailedTransaction, err)
	case serializationFailureCode:
		return fmt.Errorf("%w: %w", ErrSerializationFailure, err)
	case deadlockDetectedCode:
		return fmt.Errorf("%w: %w", ErrDeadlock, err)
	case undefinedObjectCode:
		return fmt.Errorf("%w: %w", ErrUnknownSetting, err)
	case invalidParameterValueCode:
		return fmt.Errorf("%w: %w", ErrInvalidSettingValue, err)
	}

	return err
}

// IsInvalidSavepoint checks if the given error is a PostgreSQL invalid savepoint error.
func IsInvalidSavepoint(err error) bool {
	return hasCode(err, invalidSavepointCode)
}

// IsInFailedTransaction checks if the given error was raised inside an aborted transaction.
func IsInFailedTransaction(err error) bool {
	return hasCode(err, inFailedTransactionCode)
}

// IsSerializationFailure checks if the given error is a PostgreSQL serialization failure.
// The enclosing top-level transaction must be rolled back and run again.
func IsSerializationFailure(err error) bool {
	return hasCode(err, serializationFailureCode)
}

// IsDeadlock checks if the given error is a PostgreSQL deadlock error.
func IsDeadlock(err error) bool {
	return hasCode(err, deadlockDetectedCode)
}

// IsUndefinedParameter checks if SET rejected an unknown configuration parameter.
func IsUndefinedParameter(err error) bool {
	return hasCode(err, undefinedObjectCode)
}

// IsInvalidParameterValue checks if SET rejected the value of a configuration parameter.
func IsInvalidParameterValue(err error) bool {
	return hasCode(err, invalidParameterValueCode)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
