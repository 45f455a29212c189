package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9]+`)

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %[1]s
-- +goose StatementEnd
`

func sanitizeName(name string) string {
	safe := nameSanitizeRe.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(safe, "_")
}

// CreateSQLMigration writes an empty goose migration to
// <dir>/<YYYYMMDDHHMMSS>_<name>.sql. The version is the current UTC second,
// bumped past the newest existing version so files stay ordered.
func CreateSQLMigration(dir string, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := sanitizeName(name)
	if safe == "" {
		return "", fmt.Errorf("name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	version := time.Now().UTC().Truncate(time.Second)
	if latest, ok := latestVersion(os.DirFS(dir)); ok && !version.After(latest) {
		version = latest.Add(time.Second)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", version.Format(versionLayout), safe))
	if err := os.WriteFile(path, []byte(fmt.Sprintf(migrationTemplate, safe)), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}

func latestVersion(fsys fs.FS) (time.Time, bool) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return time.Time{}, false
	}
	var latest time.Time
	found := false
	for _, entry := range entries {
		m := sqlFileRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		v, err := time.Parse(versionLayout, m[1])
		if err != nil {
			continue
		}
		if !found || v.After(latest) {
			latest, found = v, true
		}
	}
	return latest, found
}
