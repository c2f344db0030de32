package handlers

import (
	"net/http"
	"strings"

	"media-manager/internal/auth"
	"media-manager/internal/logging"
)

// publicPaths are served without a token.
var publicPaths = map[string]bool{
	"/healthz": true,
	"/livez":   true,
	"/readyz":  true,
	"/version": true,
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// AuthMiddleware authenticates the bearer token of every non-public
// request and stores the principal in the request context.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		if token == "" || h.tokens == nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="media"`)
			writeJSONError(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		p, err := h.tokens.Authenticate(token)
		if err != nil {
			logging.Debug("Rejected token for %s %s: %v", r.Method, r.URL.Path, err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="media", error="invalid_token"`)
			writeJSONError(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

// WhoAmI returns the authenticated principal.
func (h *Handlers) WhoAmI(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, r, errUnauthenticated)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{
		"user":        p.User,
		"permissions": p.Permissions,
		"superadmin":  p.SuperAdmin,
	})
}
