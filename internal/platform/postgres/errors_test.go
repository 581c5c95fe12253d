package postgres_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/pgscope/internal/platform/postgres"
	"github.com/stretchr/testify/assert"
)

// Mock PgError creation helper
func newPgError(code string) *pgconn.PgError {
	return &pgconn.PgError{
		Severity: "ERROR",
		Code:     code,
		Message:  "error message",
	}
}

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{"invalid savepoint", newPgError("3B001"), postgres.ErrInvalidSavepoint},
		{"failed transaction", newPgError("25P02"), postgres.ErrInFailedTransaction},
		{"serialization failure", newPgError("40001"), postgres.ErrSerializationFailure},
		{"deadlock", newPgError("40P01"), postgres.ErrDeadlock},
		{"unknown setting", newPgError("42704"), postgres.ErrUnknownSetting},
		{"invalid setting value", newPgError("22023"), postgres.ErrInvalidSettingValue},
		{"wrapped pg error", fmt.Errorf("exec: %w", newPgError("40001")), postgres.ErrSerializationFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mapped := postgres.MapError(tt.err)

			assert.ErrorIs(t, mapped, tt.expected)
			var pgErr *pgconn.PgError
			assert.ErrorAs(t, mapped, &pgErr, "original driver error is preserved")
		})
	}
}

func TestMapError_Passthrough(t *testing.T) {
	t.Parallel()

	assert.NoError(t, postgres.MapError(nil))

	plain := errors.New("plain error")
	assert.Same(t, plain, postgres.MapError(plain))

	unmapped := newPgError("23505")
	assert.Equal(t, error(unmapped), postgres.MapError(unmapped))
}

func TestCodeHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		check func(error) bool
		code  string
	}{
		{"IsInvalidSavepoint", postgres.IsInvalidSavepoint, "3B001"},
		{"IsInFailedTransaction", postgres.IsInFailedTransaction, "25P02"},
		{"IsSerializationFailure", postgres.IsSerializationFailure, "40001"},
		{"IsDeadlock", postgres.IsDeadlock, "40P01"},
		{"IsUndefinedParameter", postgres.IsUndefinedParameter, "42704"},
		{"IsInvalidParameterValue", postgres.IsInvalidParameterValue, "22023"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.True(t, tt.check(newPgError(tt.code)))
			assert.True(t, tt.check(fmt.Errorf("wrapped: %w", newPgError(tt.code))))
			assert.False(t, tt.check(newPgError("XX000")))
			assert.False(t, tt.check(errors.New("not a pg error")))
			assert.False(t, tt.check(nil))
		})
	}
}
