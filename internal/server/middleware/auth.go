package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/propflow/realtime-gateway/pkg/auth"
)

// NewAuthMiddleware verifies the handshake credential before the connection
// is allowed anywhere near the upgrade handler. A rejected handshake never
// creates registry state.
func NewAuthMiddleware(logger *slog.Logger, verifier *auth.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			ident, err := verifier.Verify(bearerToken(r))
			if err != nil {
				if errors.Is(err, auth.ErrMissingToken) {
					logger.Warn("handshake without token", slog.String("ip", reqMeta.IP))
					http.Error(w, "Missing token", http.StatusUnauthorized)
					return
				}
				logger.Warn("handshake with invalid token",
					slog.String("ip", reqMeta.IP),
					slog.Any("error", err),
				)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			reqMeta.Identity = ident
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken pulls the credential from the Authorization header, falling
// back to the token query parameter for browser WebSocket clients that
// cannot set headers on the upgrade request.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
