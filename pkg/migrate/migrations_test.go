package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
)

func TestValidateFSAcceptsShippedMigrations(t *testing.T) {
	if err := ValidateFS(Migrations()); err != nil {
		t.Fatalf("shipped migrations invalid: %v", err)
	}
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("on-disk migrations invalid: %v", err)
	}
}

func TestGoldMigrationKeysTotalsByInvoice(t *testing.T) {
	matches, err := fs.Glob(Migrations(), "*_create_gold_tables.sql")
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no gold migration file found")
	}
	data, err := fs.ReadFile(Migrations(), matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS gold_invoice_items",
		"CREATE TABLE IF NOT EXISTS gold_invoice_totals",
		"invoice_id TEXT PRIMARY KEY",
		"reviewed_timestamp TIMESTAMP NOT NULL",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Vendor Column!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_vendor_column.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("created migration does not validate: %v", err)
	}
}

func TestCreateSQLMigrationOrdersAfterFutureVersion(t *testing.T) {
	dir := t.TempDir()
	future := "29991231235959_far_future.sql"
	if err := os.WriteFile(filepath.Join(dir, future), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	path, err := CreateSQLMigration(dir, "next")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if filepath.Base(path) != "30000101000000_next.sql" {
		t.Fatalf("expected version after the newest file, got %s", filepath.Base(path))
	}
}

func TestValidateFSRejectsBadFiles(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name": {
			"001_init.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"not a timestamp": {
			"20251399000000_init.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"missing down": {
			"20250101000000_init.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		},
		"unbalanced statement": {
			"20250101000000_init.sql": {Data: []byte("-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n")},
		},
		"empty": {},
	}
	for name, fsys := range cases {
		if err := ValidateFS(fsys); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
