package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/adab-ai/adab-go/internal/keystore"
	"github.com/adab-ai/adab-go/internal/logging"
)

// credentialContextKey is the context key under which the authenticated
// credential is stored for downstream handlers.
type credentialContextKey struct{}

// credentialFrom returns the authenticated credential injected by
// authMiddleware, or nil when the request was not authenticated.
func credentialFrom(ctx context.Context) *keystore.Credential {
	cred, _ := ctx.Value(credentialContextKey{}).(*keystore.Credential)
	return cred
}

// authMiddleware enforces API-key authentication on protected routes.
// Verification consumes one unit of the credential's hourly budget, so this
// middleware is both the authentication and the rate-accounting point.
//
// Protected routes must supply:
//
//	Authorization: Bearer sk_<key>
//
// Unknown, malformed, or revoked credentials receive 401 Unauthorized with a
// WWW-Authenticate: Bearer challenge; an exhausted budget receives 429 Too
// Many Requests. The presented key is never logged — only its presence.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		token := bearerToken(r)
		if token == "" {
			log.Warn("auth: missing Authorization header",
				slog.String("path", r.URL.Path),
			)
			s.metrics.authFailuresTotal.WithLabelValues("unauthenticated").Inc()
			w.Header().Set("WWW-Authenticate", `Bearer realm="adab"`)
			writeJSONError(w, http.StatusUnauthorized, "authorization required")
			return
		}

		cred, err := s.verifier.Verify(r.Context(), token)
		switch {
		case errors.Is(err, keystore.ErrRateLimited):
			log.Warn("auth: credential rate limit exceeded",
				slog.String("path", r.URL.Path),
			)
			s.metrics.authFailuresTotal.WithLabelValues("rate_limited").Inc()
			w.Header().Set("Retry-After", "3600")
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		case errors.Is(err, keystore.ErrUnauthenticated):
			log.Warn("auth: invalid credential",
				slog.String("path", r.URL.Path),
				slog.Bool("token_present", true),
			)
			s.metrics.authFailuresTotal.WithLabelValues("unauthenticated").Inc()
			w.Header().Set("WWW-Authenticate", `Bearer realm="adab" error="invalid_token"`)
			writeJSONError(w, http.StatusUnauthorized, "invalid credential")
			return
		case err != nil:
			log.Error("auth: verification failed", slog.Any("error", err))
			writeJSONError(w, http.StatusInternalServerError, "authentication unavailable")
			return
		}

		ctx := context.WithValue(r.Context(), credentialContextKey{}, cred)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Returns an empty string if the header is absent or malformed.
func bearerToken(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return ""
	}
	parts := strings.SplitN(hdr, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// writeJSONError writes an errorResponse body with the given status.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}
