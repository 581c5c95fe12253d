package scope

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/pgscope/internal/platform/logger"
)

// Beginner opens scopes on a single logical connection.
type Beginner interface {
	Begin(ctx context.Context) (*Scope, error)
}

// ScopeFn is a function that executes within a scope.
// The scope is committed if the function returns nil, or rolled back if it
// returns an error or panics.
type ScopeFn func(ctx context.Context, s *Scope) error

// Run executes fn within a new scope opened by b. Calling Run again from
// inside fn on the same connection nests a savepoint.
func Run(ctx context.Context, b Beginner, fn ScopeFn) error {
	// Get logger from context or use default
	log := logger.FromContext(ctx)

	// Begin a transaction or savepoint, whichever the connection needs
	s, err := b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin scope: %w", err)
	}

	// Set up defer to handle panics and roll back the scope if needed
	defer func() {
		if p := recover(); p != nil {
			// Attempt to roll back the scope in case of panic
			if _, rbErr := s.Rollback(ctx); rbErr != nil {
				log.Error("failed to roll back scope after panic",
					slog.String("error", rbErr.Error()),
					slog.Any("panic", p))
			} else {
				log.Error("rolled back scope after panic",
					slog.Any("panic", p))
			}
			// Re-panic to maintain the behavior
			// ALLOW-PANIC: Propagating caught panic from scope
			panic(p)
		}
	}()

	// Execute the provided function within the scope
	if err := fn(ctx, s); err != nil {
		// If the function returns an error, roll back the scope
		if _, rbErr := s.Rollback(ctx); rbErr != nil {
			log.Error("failed to roll back scope",
				slog.String("rollback_error", rbErr.Error()),
				slog.String("original_error", err.Error()))
			// Return the combined errors to provide complete information
			return fmt.Errorf(
				"error rolling back scope: %v (original error: %w)",
				rbErr,
				err,
			)
		}
		log.Debug("rolled back scope due to error",
			slog.String("error", err.Error()))
		// Return the original error
		return err
	}

	// If the function executed successfully, commit the scope
	if _, err := s.Commit(ctx); err != nil {
		// A savepoint that failed to release is still open
		s.Close(ctx)
		return fmt.Errorf("failed to commit scope: %w", err)
	}

	log.Debug("scope committed successfully")
	return nil
}
