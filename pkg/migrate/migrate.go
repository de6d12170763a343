// Package migrate applies, inspects and authors the goose SQL migrations.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/autevo/filmtechos-backend/pkg/logger"
)

// DefaultDir is where create and validate look when run from the repository root.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Embedded returns the migrations compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Commands lists what Runner.Exec accepts.
var Commands = map[string]string{
	"up":      "apply all pending migrations",
	"down":    "roll back the latest migration",
	"redo":    "roll back and re-apply the latest migration",
	"status":  "print applied and pending migrations",
	"version": "migrate up or down to -version",
}

// CommandNames returns the Commands keys in a stable order.
func CommandNames() []string {
	names := make([]string, 0, len(Commands))
	for name := range Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Runner struct {
	provider *goose.Provider
	logg     *logger.Logger
}

func NewRunner(db *sql.DB, migrations fs.FS, logg *logger.Logger) (*Runner, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if migrations == nil {
		migrations = Embedded()
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider, logg: logg}, nil
}

// Exec runs one command. target is only read by "version".
func (r *Runner) Exec(ctx context.Context, command string, target int64) error {
	switch command {
	case "up":
		results, err := r.provider.Up(ctx)
		r.report(ctx, results...)
		return wrap(command, err)
	case "down":
		result, err := r.provider.Down(ctx)
		r.report(ctx, result)
		return wrap(command, err)
	case "redo":
		down, err := r.provider.Down(ctx)
		r.report(ctx, down)
		if err != nil {
			return wrap(command, err)
		}
		up, err := r.provider.UpByOne(ctx)
		r.report(ctx, up)
		return wrap(command, err)
	case "status":
		return r.status(ctx)
	case "version":
		return r.migrateTo(ctx, target)
	default:
		return fmt.Errorf("unknown migrate command %q (expected %s)", command, strings.Join(CommandNames(), "|"))
	}
}

func (r *Runner) migrateTo(ctx context.Context, target int64) error {
	if target <= 0 {
		return errors.New("target version is required")
	}
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read db version: %w", err)
	}
	switch {
	case current < target:
		results, err := r.provider.UpTo(ctx, target)
		r.report(ctx, results...)
		return wrap(fmt.Sprintf("up-to %d", target), err)
	case current > target:
		results, err := r.provider.DownTo(ctx, target)
		r.report(ctx, results...)
		return wrap(fmt.Sprintf("down-to %d", target), err)
	}
	return nil
}

func (r *Runner) status(ctx context.Context) error {
	rows, err := r.provider.Status(ctx)
	if err != nil {
		return wrap("status", err)
	}
	for _, row := range rows {
		fields := map[string]any{"version": row.Source.Version, "state": string(row.State)}
		if !row.AppliedAt.IsZero() {
			fields["applied_at"] = row.AppliedAt
		}
		r.logg.Info(r.logg.WithFields(ctx, fields), "migrate.status")
	}
	return nil
}

func (r *Runner) report(ctx context.Context, results ...*goose.MigrationResult) {
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		r.logg.Info(r.logg.WithFields(ctx, map[string]any{
			"version":     res.Source.Version,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		}), "migrate.applied")
	}
}

func wrap(command string, err error) error {
	if err == nil || errors.Is(err, goose.ErrNoNextVersion) {
		return nil
	}
	return fmt.Errorf("goose %s: %w", command, err)
}
