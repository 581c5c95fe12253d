package scope

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/phrazzld/pgscope/internal/platform/logger"
)

// settingNamePattern restricts setting names, which cannot be bound as
// parameters and are therefore interpolated.
var settingNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.\s]+$`)

// SetLocal sets a configuration parameter for the remainder of the current
// transaction (SET LOCAL). The value is always passed as a bound argument.
func (s *Scope) SetLocal(ctx context.Context, name, value string) error {
	if !settingNamePattern.MatchString(name) || strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: %q", ErrInvalidSettingName, name)
	}

	stmt := "SET LOCAL " + name + " TO $1"
	if strings.EqualFold(strings.Join(strings.Fields(name), " "), "TIME ZONE") {
		stmt = "SET LOCAL TIME ZONE $1"
	}

	e := s.reg.lockExisting(s.connID)
	if e == nil {
		return fmt.Errorf("%w: set local %s", ErrScopeClosed, name)
	}
	defer e.mu.Unlock()

	if !e.isOpen(s.tx, s.sp) {
		return fmt.Errorf("%w: set local %s", ErrScopeClosed, name)
	}

	if err := s.conn.Execute(ctx, stmt, value); err != nil {
		logger.FromContext(ctx).Error("failed to set local parameter",
			s.attrs(slog.String("setting", name), slog.String("error", err.Error()))...)
		return newDatabaseError(ErrSetLocal, "set local", stmt, err)
	}
	logger.FromContext(ctx).Debug("local parameter set",
		s.attrs(slog.String("setting", name))...)
	return nil
}
