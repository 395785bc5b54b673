package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pharmaops/pharmaops/internal/platform/httpx"
	"github.com/pharmaops/pharmaops/internal/shared"
)

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticator resolves the request principal from its bearer token.
type Authenticator struct {
	Service *Service
	Logger  *slog.Logger
}

// Require rejects requests without a valid token.
func (a Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := BearerToken(r)
		if raw == "" {
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		principal, err := a.Service.Authenticate(r.Context(), raw)
		if err != nil {
			if !errors.Is(err, shared.ErrUnauthorized) && a.Logger != nil {
				a.Logger.Error("authenticate", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}
