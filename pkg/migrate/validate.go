package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks the migrations in dir on disk.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	return ValidateFS(os.DirFS(dir))
}

// ValidateFS checks file names, versions and goose annotations. Each version
// must be a real UTC timestamp, unique, and each file needs Up and Down
// sections with balanced StatementBegin/StatementEnd markers.
func ValidateFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	seen := map[string]string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		version := m[1]
		if _, err := time.Parse(versionLayout, version); err != nil {
			return fmt.Errorf("migration %q: version is not a timestamp: %w", name, err)
		}
		if prev, ok := seen[version]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name)
		}
		seen[version] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %q: %w", name, err)
		}
		if err := checkAnnotations(string(body)); err != nil {
			return fmt.Errorf("migration %q: %w", name, err)
		}
	}

	if len(seen) == 0 {
		return fmt.Errorf("no migrations found")
	}
	return nil
}

func checkAnnotations(sql string) error {
	up := strings.Index(sql, "-- +goose Up")
	down := strings.Index(sql, "-- +goose Down")
	switch {
	case up < 0:
		return fmt.Errorf(`missing "-- +goose Up"`)
	case down < 0:
		return fmt.Errorf(`missing "-- +goose Down"`)
	case down < up:
		return fmt.Errorf("down section precedes up")
	}
	begins := strings.Count(sql, "-- +goose StatementBegin")
	ends := strings.Count(sql, "-- +goose StatementEnd")
	if begins != ends {
		return fmt.Errorf("%d StatementBegin markers but %d StatementEnd", begins, ends)
	}
	return nil
}
