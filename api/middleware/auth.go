package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/invoice-review/api/responses"
	pkgAuth "github.com/angelmondragon/invoice-review/pkg/auth"
	"github.com/angelmondragon/invoice-review/pkg/config"
	pkgerrors "github.com/angelmondragon/invoice-review/pkg/errors"
	"github.com/angelmondragon/invoice-review/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the reviewer identity.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, pkgAuth.ErrTokenExpired) {
					msg = "review session expired, request a new token"
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg))
				return
			}

			ctx := context.WithValue(r.Context(), ctxReviewer, claims.StampName())
			ctx = context.WithValue(ctx, ctxRole, claims.Role.String())
			ctx = context.WithValue(ctx, ctxSessionID, claims.SessionID())

			ctx = logg.WithFields(ctx, map[string]any{
				"reviewer":   claims.StampName(),
				"session_id": claims.SessionID(),
				"actor_role": claims.Role.String(),
			})

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
