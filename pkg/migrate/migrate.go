// Package migrate applies the warehouse schema with goose. The SQL files are
// compiled into every binary; -dir on cmd/migrate overrides them from disk.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where new migrations are written.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the embedded migration set.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Source returns the embedded set for an empty dir, else the directory on disk.
func Source(dir string) fs.FS {
	if dir == "" {
		return Migrations()
	}
	return os.DirFS(dir)
}

func newProvider(db *sql.DB, fsys fs.FS) (*goose.Provider, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider, nil
}

// Up applies every pending migration and returns how many ran.
func Up(ctx context.Context, db *sql.DB, fsys fs.FS) (int, error) {
	provider, err := newProvider(db, fsys)
	if err != nil {
		return 0, err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return len(results), fmt.Errorf("goose up: %w", err)
	}
	return len(results), nil
}

// Run executes up, down or status, writing one line per migration touched to out.
func Run(ctx context.Context, db *sql.DB, fsys fs.FS, command string, out io.Writer) error {
	provider, err := newProvider(db, fsys)
	if err != nil {
		return err
	}

	switch command {
	case "up":
		results, err := provider.Up(ctx)
		for _, res := range results {
			fmt.Fprintf(out, "applied %d %s (%s)\n", res.Source.Version, res.Source.Path, res.Duration)
		}
		if err != nil {
			return fmt.Errorf("goose up: %w", err)
		}
	case "down":
		res, err := provider.Down(ctx)
		if err != nil {
			return fmt.Errorf("goose down: %w", err)
		}
		fmt.Fprintf(out, "rolled back %d %s\n", res.Source.Version, res.Source.Path)
	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			return fmt.Errorf("goose status: %w", err)
		}
		for _, st := range statuses {
			fmt.Fprintf(out, "%-8s %d %s\n", st.State, st.Source.Version, st.Source.Path)
		}
	default:
		return fmt.Errorf("unsupported migration command %q", command)
	}
	return nil
}

// MigrateToVersion moves the schema up or down until it matches targetVersion.
func MigrateToVersion(ctx context.Context, db *sql.DB, fsys fs.FS, targetVersion string) error {
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	provider, err := newProvider(db, fsys)
	if err != nil {
		return err
	}

	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current < target:
		if _, err := provider.UpTo(ctx, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
	case current > target:
		if _, err := provider.DownTo(ctx, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
	}
	return nil
}
