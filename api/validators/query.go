package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/invoice-review/pkg/errors"
)

func ParseQueryBool(r *http.Request, key string, defaultVal bool) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be a boolean").WithDetails(map[string]any{"field": key})
	}
	return value, nil
}

// QueryString returns the trimmed value or defaultVal when absent.
func QueryString(r *http.Request, key, defaultVal string) string {
	if raw := strings.TrimSpace(r.URL.Query().Get(key)); raw != "" {
		return raw
	}
	return defaultVal
}
