package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base provides a shared foundation for warehouse repositories.
type Base struct {
	db *gorm.DB
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Table scopes a context-bound session to a named table, for the tables that
// share one row shape.
func (b Base) Table(ctx context.Context, name string) *gorm.DB {
	return b.DB(ctx).Table(name)
}

// WithTx returns a Base bound to tx so repository methods join the caller's transaction.
func (b Base) WithTx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}
