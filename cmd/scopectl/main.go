// Package main implements scopectl, a command-line tool that runs SQL
// statements inside a transaction scope on PostgreSQL. Each statement can
// optionally run in its own savepoint so that a failing statement is undone
// without losing the others.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/phrazzld/pgscope/internal/config"
	"github.com/phrazzld/pgscope/internal/platform/logger"
	"github.com/phrazzld/pgscope/internal/platform/postgres"
	"github.com/phrazzld/pgscope/internal/redact"
	"github.com/phrazzld/pgscope/internal/scope"
	"github.com/spf13/pflag"
)

// errDryRun forces the top-level scope to roll back after a successful run.
var errDryRun = errors.New("dry run")

// options holds the command-line flags.
type options struct {
	configPath string
	settings   []string
	savepoints bool
	dryRun     bool
	migrate    bool
	statements []string
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "scopectl: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts); err != nil {
		// Driver errors can echo the connection string.
		log.Fatalf("scopectl: %s", redact.Error(err))
	}
}

// parseFlags reads flags and positional statements from args.
func parseFlags(args []string) (*options, error) {
	fs := pflag.NewFlagSet("scopectl", pflag.ContinueOnError)
	opts := &options{}
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to a config file (default: ./config.*)")
	fs.StringArrayVarP(&opts.settings, "set", "s", nil, "SET LOCAL name=value for the transaction (repeatable)")
	fs.BoolVar(&opts.savepoints, "savepoint", false, "run each statement in its own savepoint")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "roll back instead of committing")
	fs.BoolVar(&opts.migrate, "migrate", false, "apply embedded migrations before running")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.statements = fs.Args()
	if len(opts.statements) == 0 && !opts.migrate {
		return nil, errors.New("no statements given")
	}
	return opts, nil
}

// parseSetting splits a name=value flag.
func parseSetting(raw string) (string, string, error) {
	name, value, ok := strings.Cut(raw, "=")
	if !ok || strings.TrimSpace(name) == "" {
		return "", "", fmt.Errorf("invalid setting %q, want name=value", raw)
	}
	return strings.TrimSpace(name), value, nil
}

// initializeApp loads configuration and sets up logging.
func initializeApp(opts *options) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFrom(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	l.Info("configuration loaded",
		"database_url", redact.DatabaseURL(cfg.Database.URL),
		"log_level", cfg.Log.Level,
		"isolation_level", cfg.Database.IsolationLevel,
		"read_only", cfg.Database.ReadOnly)
	return cfg, l, nil
}

func run(ctx context.Context, opts *options) error {
	cfg, l, err := initializeApp(opts)
	if err != nil {
		return err
	}
	ctx = logger.WithLogger(ctx, l)

	txOpts, err := postgres.TxOptions(cfg.Database)
	if err != nil {
		return err
	}

	db, err := postgres.OpenDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if opts.migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		l.Info("migrations applied")
	}
	if len(opts.statements) == 0 {
		return nil
	}

	reg := scope.NewRegistry()
	sess, err := postgres.OpenSession(ctx, db, reg, txOpts)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close(ctx) }()

	failed := 0
	err = scope.Run(ctx, sess, func(ctx context.Context, top *scope.Scope) error {
		for _, raw := range opts.settings {
			name, value, err := parseSetting(raw)
			if err != nil {
				return err
			}
			if err := top.SetLocal(ctx, name, value); err != nil {
				return err
			}
		}

		for i, stmt := range opts.statements {
			if !opts.savepoints {
				if err := sess.Exec(ctx, stmt); err != nil {
					return fmt.Errorf("statement %d: %w", i+1, err)
				}
				continue
			}

			err := scope.Run(ctx, sess, func(ctx context.Context, _ *scope.Scope) error {
				return sess.Exec(ctx, stmt)
			})
			if err != nil {
				failed++
				l.Warn("statement rolled back",
					slog.Int("statement", i+1),
					slog.String("error", err.Error()))
			}
		}

		if opts.dryRun {
			return errDryRun
		}
		return nil
	})

	switch {
	case errors.Is(err, errDryRun):
		fmt.Printf("dry run: %d statement(s) executed, %d rolled back, transaction rolled back\n",
			len(opts.statements)-failed, failed)
		return nil
	case err != nil:
		return err
	}

	fmt.Printf("%d statement(s) committed, %d rolled back\n", len(opts.statements)-failed, failed)
	return nil
}
