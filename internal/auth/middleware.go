package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/meridian-erp/meridian-settle/internal/platform/httpx"
)

type ctxKey struct{}

// ClientFromContext returns the authenticated API client, if any.
func ClientFromContext(ctx context.Context) *APIClient {
	client, _ := ctx.Value(ctxKey{}).(*APIClient)
	return client
}

// Middleware rejects requests without a valid bearer token.
func Middleware(logger *slog.Logger, service *Service) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required")
				return
			}

			client, err := service.Authenticate(r.Context(), strings.TrimSpace(token))
			if err != nil {
				logger.Warn("token rejected", slog.String("path", r.URL.Path))
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKey{}, client)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
