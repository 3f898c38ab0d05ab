package middleware_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propflow/realtime-gateway/internal/server/middleware"
	"github.com/propflow/realtime-gateway/pkg/auth"
	"github.com/propflow/realtime-gateway/pkg/config"
)

const testSecret = "test-secret"

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		OrganizationID: "O1",
		Role:           "tenant",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

// authChain builds the handshake chain as the server composes it, capturing
// whether (and with what identity) the inner handler ran.
func authChain(handled *bool, ident *auth.Identity) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*handled = true
		if reqMeta, ok := middleware.ReqMetadataFrom(r.Context()); ok {
			*ident = reqMeta.Identity
		}
	})
	return middleware.Chain(inner,
		middleware.RequestMetadataMiddleware(),
		middleware.NewAuthMiddleware(newTestLogger(), auth.NewVerifier(testSecret)),
	)
}

func TestAuthMiddlewareAcceptsBearerHeader(t *testing.T) {
	var handled bool
	var ident auth.Identity
	h := authChain(&handled, &ident)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "U1"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, handled)
	assert.Equal(t, "U1", ident.UserID)
	assert.Equal(t, "O1", ident.OrganizationID)
}

func TestAuthMiddlewareAcceptsQueryToken(t *testing.T) {
	var handled bool
	var ident auth.Identity
	h := authChain(&handled, &ident)

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+signToken(t, "U2"), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, handled)
	assert.Equal(t, "U2", ident.UserID)
}

func TestAuthMiddlewareRejectsBeforeUpgrade(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*http.Request)
	}{
		{
			name:  "missing token",
			setup: func(r *http.Request) {},
		},
		{
			name: "invalid token",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer not-a-jwt")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var handled bool
			var ident auth.Identity
			h := authChain(&handled, &ident)

			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, handled, "rejected handshake must never reach the upgrade handler")
		})
	}
}

func TestConnectionLimiter(t *testing.T) {
	limiterChain := func(count int, cfg config.ConnectionLimitConfig, cycled *bool, handled *bool) http.Handler {
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { *handled = true })
		return middleware.Chain(inner,
			middleware.RequestMetadataMiddleware(),
			middleware.NewAuthMiddleware(newTestLogger(), auth.NewVerifier(testSecret)),
			middleware.NewConnectionLimiter(
				newTestLogger(),
				func(string) int { return count },
				func(string) { *cycled = true },
				cfg,
			),
		)
	}

	send := func(h http.Handler) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, "U1"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("under limit passes", func(t *testing.T) {
		var cycled, handled bool
		rec := send(limiterChain(0, config.ConnectionLimitConfig{MaxPerUser: 1, Mode: "reject"}, &cycled, &handled))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, handled)
		assert.False(t, cycled)
	})

	t.Run("reject mode blocks", func(t *testing.T) {
		var cycled, handled bool
		rec := send(limiterChain(1, config.ConnectionLimitConfig{MaxPerUser: 1, Mode: "reject"}, &cycled, &handled))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.False(t, handled)
	})

	t.Run("cycle mode evicts and passes", func(t *testing.T) {
		var cycled, handled bool
		rec := send(limiterChain(1, config.ConnectionLimitConfig{MaxPerUser: 1, Mode: "cycle"}, &cycled, &handled))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, handled)
		assert.True(t, cycled)
	})

	t.Run("disabled limit passes", func(t *testing.T) {
		var cycled, handled bool
		rec := send(limiterChain(100, config.ConnectionLimitConfig{MaxPerUser: 0}, &cycled, &handled))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, handled)
	})
}
