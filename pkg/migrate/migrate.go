package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/furnishly-backend/pkg/logger"
)

const DefaultDir = "pkg/migrate/migrations"

// Open returns a lib/pq handle; cmd/migrate keeps migrations off the gorm pool.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("dsn is required")
	}
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return conn, nil
}

// Runner applies the SQL files of one directory and logs every step.
type Runner struct {
	provider *goose.Provider
	logg     *logger.Logger
}

// NewRunner reads migrations from dir for a Postgres database.
func NewRunner(db *sql.DB, dir string, logg *logger.Logger) (*Runner, error) {
	if dir == "" {
		return nil, errors.New("dir is required")
	}
	return newRunner(db, goose.DialectPostgres, os.DirFS(dir), logg)
}

func newRunner(db *sql.DB, dialect goose.Dialect, fsys fs.FS, logg *logger.Logger) (*Runner, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	return &Runner{provider: provider, logg: logg}, nil
}

// Run executes up, down, redo or status.
func (r *Runner) Run(ctx context.Context, command string) error {
	switch command {
	case "up":
		results, err := r.provider.Up(ctx)
		r.logResults(ctx, results...)
		return wrap("up", err)
	case "down":
		result, err := r.provider.Down(ctx)
		r.logResults(ctx, result)
		return wrap("down", err)
	case "redo":
		result, err := r.provider.Down(ctx)
		r.logResults(ctx, result)
		if err != nil {
			return wrap("redo", err)
		}
		result, err = r.provider.UpByOne(ctx)
		r.logResults(ctx, result)
		return wrap("redo", err)
	case "status":
		return r.status(ctx)
	}
	return fmt.Errorf("unknown migrate command %q", command)
}

// To moves the schema up or down until target (YYYYMMDDHHMMSS) is the
// current version.
func (r *Runner) To(ctx context.Context, target string) error {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil || version < 0 {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", target)
	}
	current, err := r.Version(ctx)
	if err != nil {
		return err
	}

	var results []*goose.MigrationResult
	switch {
	case version > current:
		results, err = r.provider.UpTo(ctx, version)
	case version < current:
		results, err = r.provider.DownTo(ctx, version)
	}
	r.logResults(ctx, results...)
	return wrap("migrate to "+target, err)
}

func (r *Runner) Version(ctx context.Context) (int64, error) {
	version, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (r *Runner) status(ctx context.Context) error {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return wrap("status", err)
	}
	for _, st := range statuses {
		fields := map[string]any{"version": st.Source.Version, "file": st.Source.Path, "state": string(st.State)}
		if st.State == goose.StateApplied {
			fields["applied_at"] = st.AppliedAt
		}
		r.logg.Info(r.logg.WithFields(ctx, fields), "migrations.status")
	}
	return nil
}

func (r *Runner) logResults(ctx context.Context, results ...*goose.MigrationResult) {
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		r.logg.Info(r.logg.WithFields(ctx, map[string]any{
			"version":     res.Source.Version,
			"file":        res.Source.Path,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		}), "migrations.applied")
	}
}

func wrap(op string, err error) error {
	switch {
	case err == nil, errors.Is(err, goose.ErrNoNextVersion):
		return nil
	}
	return fmt.Errorf("goose %s: %w", op, err)
}
