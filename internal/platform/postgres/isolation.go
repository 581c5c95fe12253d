package postgres

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/phrazzld/pgscope/internal/config"
	"github.com/phrazzld/pgscope/internal/scope"
)

// isolationLevels lists the levels PostgreSQL accepts, keyed by the names
// used in configuration.
var isolationLevels = map[string]sql.IsolationLevel{
	"default":          sql.LevelDefault,
	"read_uncommitted": sql.LevelReadUncommitted,
	"read_committed":   sql.LevelReadCommitted,
	"repeatable_read":  sql.LevelRepeatableRead,
	"serializable":     sql.LevelSerializable,
}

// ParseIsolationLevel converts a level name such as "repeatable_read" or
// "REPEATABLE READ" to a sql.IsolationLevel. An empty name means the
// server default.
func ParseIsolationLevel(name string) (sql.IsolationLevel, error) {
	key := strings.ToLower(strings.Join(strings.Fields(name), "_"))
	if key == "" {
		return sql.LevelDefault, nil
	}
	level, ok := isolationLevels[key]
	if !ok {
		return sql.LevelDefault, fmt.Errorf("%w: %q", scope.ErrInvalidIsolationLevel, name)
	}
	return level, nil
}

// checkIsolationLevel rejects database/sql levels PostgreSQL has no
// equivalent for, such as sql.LevelSnapshot.
func checkIsolationLevel(level sql.IsolationLevel) error {
	for _, supported := range isolationLevels {
		if level == supported {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", scope.ErrInvalidIsolationLevel, level)
}

// TxOptions builds the options sessions use for top-level transactions.
func TxOptions(cfg config.DatabaseConfig) (*sql.TxOptions, error) {
	level, err := ParseIsolationLevel(cfg.IsolationLevel)
	if err != nil {
		return nil, err
	}
	return &sql.TxOptions{Isolation: level, ReadOnly: cfg.ReadOnly}, nil
}
