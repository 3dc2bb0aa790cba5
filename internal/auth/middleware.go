package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. If you use a plain string like
// context.WithValue(ctx, "identity", id), ANY package that knows the string
// can read or shadow your value. Using a package-private type prevents
// collisions: only THIS package can create a key of type contextKey, so only
// this package can read or write Identity values in the context.
type contextKey string

const identityKey contextKey = "identity"

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads the JWT from the "token" HttpOnly cookie (or an Authorization:
// Bearer header, for non-browser clients), validates it, and stores the
// Identity in the request context. If the token is missing or invalid, it
// returns 401 Unauthorized and stops the request chain.
//
// Missing, malformed, expired, and tampered tokens all produce the same 401
// body — the response never says which check failed.
//
// COOKIE-BASED TOKEN STORAGE:
// We store the JWT in an HttpOnly cookie rather than localStorage. HttpOnly
// means JavaScript cannot read it, which prevents XSS (Cross-Site Scripting)
// attacks from stealing the token.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := extractIdentity(r, tokens)
			if err != nil {
				http.Error(w, `{"error":"unauthorized","message":"valid authentication required"}`, http.StatusUnauthorized)
				return
			}

			// Store the identity in context so handlers can read it
			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth is a middleware that extracts the caller's identity if a valid
// token is present, but does NOT block the request if it's missing or invalid.
//
// Use this on public routes like GET /api/packages where:
// - Anonymous users can still read everything
// - But logged-in users are recognised (e.g. to mark their own packages)
//
// Handlers check for the user via IdentityFromContext — if it returns
// (zero, false), the request is anonymous.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identity, err := extractIdentity(r, tokens); err == nil && identity != nil {
				ctx := context.WithValue(r.Context(), identityKey, identity)
				r = r.WithContext(ctx)
			}
			// Always continue — no 401 even if no token
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityFromContext retrieves the authenticated identity from the request context.
//
// Returns (zero Identity, false) if the request is anonymous.
//
// Usage in handlers:
//
//	identity, ok := auth.IdentityFromContext(r.Context())
//	if !ok {
//	    // anonymous user
//	}
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*Identity)
	if !ok || identity == nil {
		return Identity{}, false
	}
	return *identity, true
}

// extractIdentity reads the JWT from the request and validates it.
// This is a private helper shared by RequireAuth and OptionalAuth.
//
// CREDENTIAL SOURCES (in order):
// 1. The "token" HttpOnly cookie — set on login, sent automatically by browsers
// 2. An "Authorization: Bearer <jwt>" header — for scripts and API clients
func extractIdentity(r *http.Request, tokens *TokenService) (*Identity, error) {
	if cookie, err := r.Cookie("token"); err == nil && cookie.Value != "" {
		return tokens.Validate(cookie.Value)
	}

	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return tokens.Validate(strings.TrimPrefix(header, "Bearer "))
	}

	return nil, http.ErrNoCookie
}
