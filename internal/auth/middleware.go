package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/praxisdesk/praxisdesk/internal/platform/httpx"
	"github.com/praxisdesk/praxisdesk/internal/shared"
)

// Middleware resolves the bearer credential into a principal once per
// request and stores it in context for handlers to pick up.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireAuth rejects requests without a valid, active principal.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		principal, err := m.Service.Resolve(r.Context(), token)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Debug("resolve principal", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		ctx := shared.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), parts[1] != ""
}
