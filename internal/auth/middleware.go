package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// Cookie names.
const (
	TokenCookie     = "token"
	VKUserIDCookie  = "vk_user_id"
	VKIDTokenCookie = "vk_id_token"
)

// Identity is who is calling. The zero value is an anonymous request.
type Identity struct {
	UserID        string
	Authenticated bool
}

// Authenticator extracts an Identity from request cookies.
type Authenticator struct {
	tokens *TokenService // nil when JWT_SECRET is not configured
}

// NewAuthenticator creates an Authenticator. tokens may be nil, in which
// case only the cookie pair is accepted.
func NewAuthenticator(tokens *TokenService) *Authenticator {
	return &Authenticator{tokens: tokens}
}

// Identify inspects the cookies once. A valid JWT wins; otherwise both
// collaborator cookies must be present and non-empty.
func (a *Authenticator) Identify(r *http.Request) Identity {
	if a.tokens != nil {
		if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
			if userID, err := a.tokens.Validate(c.Value); err == nil {
				return Identity{UserID: userID, Authenticated: true}
			}
		}
	}

	userID := cookieValue(r, VKUserIDCookie)
	idToken := cookieValue(r, VKIDTokenCookie)
	if userID != "" && idToken != "" {
		return Identity{UserID: userID, Authenticated: true}
	}
	return Identity{}
}

// contextKey is unexported so no other package can read or shadow the value.
type contextKey string

const identityKey contextKey = "identity"

// Middleware identifies every request and stores the result in its context.
// It never rejects; use RequireAuth on protected routes.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithIdentity(r.Context(), a.Identify(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth stops anonymous requests with 401 before they reach a handler
// (and therefore before anything touches the store).
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserIDFromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "unauthenticated",
				"message": "authentication required",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the request's identity (zero if none).
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey).(Identity)
	return id
}

// UserIDFromContext returns (id, true) for authenticated requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id := IdentityFromContext(ctx)
	return id.UserID, id.Authenticated && id.UserID != ""
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}
