package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// pgDiagnostics is the server-side detail either Postgres driver attaches.
type pgDiagnostics struct {
	State      string
	Constraint string
	Table      string
	Detail     string
	Message    string
}

func postgresDiagnostics(err error) (pgDiagnostics, bool) {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return pgDiagnostics{
			State:      pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}, true
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return pgDiagnostics{
			State:      string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}, true
	}
	return pgDiagnostics{}, false
}

// LogFields flattens err into structured log fields, leaving the message
// itself to the logger. Verbose adds the unwrapped chain and any Postgres
// diagnostics. None of it is fit for clients.
func LogFields(err error, verbose bool) map[string]any {
	fields := map[string]any{}
	if err == nil {
		return fields
	}
	if typed := As(err); typed != nil {
		fields["error_code"] = typed.Code()
		fields["retryable"] = MetadataFor(typed.Code()).Retryable
	}
	if !verbose {
		return fields
	}

	var chain []string
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T: %v", e, e))
	}
	fields["error_chain"] = chain

	if pg, ok := postgresDiagnostics(err); ok {
		for key, value := range map[string]string{
			"pg_code":       pg.State,
			"pg_constraint": pg.Constraint,
			"pg_table":      pg.Table,
			"pg_detail":     pg.Detail,
			"pg_message":    pg.Message,
		} {
			if value != "" {
				fields[key] = value
			}
		}
	}
	return fields
}
