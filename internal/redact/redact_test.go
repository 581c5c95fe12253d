package redact_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/phrazzld/pgscope/internal/redact"
	"github.com/stretchr/testify/assert"
)

func TestRedactString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "no sensitive data",
			input:    "RELEASE SAVEPOINT sp3 failed",
			expected: "RELEASE SAVEPOINT sp3 failed",
		},
		{
			name:     "database connection string",
			input:    "failed to connect to postgres://app:hunter2@db:5432/app",
			expected: "failed to connect to postgres://[REDACTED_CREDENTIAL]@db:5432/app",
		},
		{
			name:     "keyword dsn password",
			input:    "cannot parse host=db user=app password=hunter2 dbname=app",
			expected: "cannot parse host=db user=app password=[REDACTED_CREDENTIAL] dbname=app",
		},
		{
			name:     "quoted keyword dsn password",
			input:    "password='two words' sslmode=disable",
			expected: "password=[REDACTED_CREDENTIAL] sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, redact.String(tt.input))
		})
	}
}

func TestRedactError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", redact.Error(nil))

	err := fmt.Errorf("failed to ping database: %w",
		errors.New("dial postgresql://app:hunter2@db/app: refused"))
	assert.Equal(t,
		"failed to ping database: dial postgresql://[REDACTED_CREDENTIAL]@db/app: refused",
		redact.Error(err))
}

func TestRedactDatabaseURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "postgres://app:xxxxx@db:5432/app?sslmode=disable",
		redact.DatabaseURL("postgres://app:hunter2@db:5432/app?sslmode=disable"))
	assert.Equal(t, "postgres://app@db/app", redact.DatabaseURL("postgres://app@db/app"))
	assert.Equal(t, "postgres://db/app", redact.DatabaseURL("postgres://db/app"))
}
