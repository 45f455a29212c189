// Package dbtest opens isolated in-memory sqlite warehouses for repository tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// schema mirrors pkg/migrate/migrations in the sqlite dialect.
var schema = []string{
	`CREATE TABLE transact_items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  invoice_id TEXT NOT NULL,
  product_name TEXT,
  quantity NUMERIC,
  unit_price NUMERIC,
  total_price NUMERIC
);`,
	`CREATE TABLE transact_totals (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  invoice_id TEXT NOT NULL,
  invoice_date DATE,
  subtotal NUMERIC,
  tax NUMERIC,
  total NUMERIC
);`,
	`CREATE TABLE docai_invoice_items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  invoice_id TEXT NOT NULL,
  product_name TEXT,
  quantity NUMERIC,
  unit_price NUMERIC,
  total_price NUMERIC
);`,
	`CREATE TABLE docai_invoice_totals (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  invoice_id TEXT NOT NULL,
  invoice_date DATE,
  subtotal NUMERIC,
  tax NUMERIC,
  total NUMERIC,
  file_name TEXT
);`,
	`CREATE TABLE reconcile_results_items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  invoice_id TEXT NOT NULL,
  review_status TEXT NOT NULL DEFAULT 'Pending Review',
  item_mismatch_details TEXT,
  last_reconciled_timestamp DATETIME,
  reviewed_by TEXT,
  reviewed_timestamp DATETIME,
  notes TEXT,
  corrected_invoice_number TEXT
);`,
	`CREATE TABLE reconcile_results_totals (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  invoice_id TEXT NOT NULL,
  review_status TEXT NOT NULL DEFAULT 'Pending Review',
  item_mismatch_details TEXT,
  last_reconciled_timestamp DATETIME,
  reviewed_by TEXT,
  reviewed_timestamp DATETIME,
  notes TEXT,
  corrected_invoice_number TEXT
);`,
	`CREATE TABLE gold_invoice_items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  invoice_id TEXT NOT NULL,
  product_name TEXT,
  quantity NUMERIC,
  unit_price NUMERIC,
  total_price NUMERIC,
  reviewed_by TEXT NOT NULL,
  reviewed_timestamp DATETIME NOT NULL,
  notes TEXT
);`,
	`CREATE TABLE gold_invoice_totals (
  invoice_id TEXT PRIMARY KEY,
  invoice_date DATE,
  subtotal NUMERIC,
  tax NUMERIC,
  total NUMERIC,
  reviewed_by TEXT NOT NULL,
  reviewed_timestamp DATETIME NOT NULL,
  notes TEXT
);`,
	`CREATE TABLE staged_documents (
  file_name TEXT PRIMARY KEY,
  object_path TEXT NOT NULL,
  content_type TEXT NOT NULL,
  size_bytes INTEGER NOT NULL,
  uploaded_by TEXT NOT NULL,
  uploaded_at DATETIME NOT NULL
);`,
	`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
}

// Open returns a private in-memory warehouse with every table created.
// The pool is pinned to one connection so transactions and plain reads
// observe the same database.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}

// DropTable removes a table so tests can simulate a failing source.
func DropTable(t *testing.T, conn *gorm.DB, table string) {
	t.Helper()
	if err := conn.Exec("DROP TABLE " + table).Error; err != nil {
		t.Fatalf("drop %s: %v", table, err)
	}
}
