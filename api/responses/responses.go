// Package responses writes the JSON envelopes every endpoint returns:
// {"data": ...} on success and {"error": {code, message, details}} on failure.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	pkgerrors "github.com/angelmondragon/invoice-review/pkg/errors"
	"github.com/angelmondragon/invoice-review/pkg/logger"
)

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func WriteSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, SuccessEnvelope{Data: data})
}

// WritePNG writes a rendered page bitmap. Pages change with viewer state,
// so they are never cached.
func WritePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// WriteError maps err onto its code's HTTP status. Untyped errors become
// INTERNAL_ERROR with a generic message. Client errors are logged at warn;
// server errors are logged at error with the full chain.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	apiErr := APIError{Code: string(typed.Code()), Message: meta.PublicMessage}
	if typed.Code() != pkgerrors.CodeInternal && typed.Message() != "" {
		apiErr.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}

	logError(ctx, logg, meta.HTTPStatus, err)
	writeJSON(w, meta.HTTPStatus, ErrorEnvelope{Error: apiErr})
}

func logError(ctx context.Context, logg *logger.Logger, status int, err error) {
	serverSide := status >= http.StatusInternalServerError
	fields := pkgerrors.LogFields(err, serverSide)
	fields["status"] = status
	ctx = logg.WithFields(ctx, fields)
	if serverSide {
		logg.Error(ctx, "request.error", err)
		return
	}
	logg.Warn(logg.WithField(ctx, "error", err.Error()), "request.rejected")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
