package errors

import "strings"

// ClassifyDB maps a Postgres SQLSTATE found in err's chain to a Code.
// Anything without a recognised SQLSTATE gets fallback.
//
//	23505, 40001, 40P01, 55P03  concurrent writer   -> CONFLICT
//	22xxx, 23502, 23514         bad reviewer input  -> VALIDATION_ERROR
//	08xxx, 57P01, 53xxx         warehouse down/full -> DEPENDENCY_ERROR
func ClassifyDB(err error, fallback Code) Code {
	pg, ok := postgresDiagnostics(err)
	if !ok {
		return fallback
	}
	state := pg.State
	switch {
	case state == "23505", state == "40001", state == "40P01", state == "55P03":
		return CodeConflict
	case strings.HasPrefix(state, "22"), state == "23502", state == "23514":
		return CodeValidation
	case strings.HasPrefix(state, "08"), strings.HasPrefix(state, "53"), state == "57P01":
		return CodeDependency
	default:
		return fallback
	}
}
