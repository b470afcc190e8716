package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/storefront/api/internal/platform/httpx"
)

const (
	defaultRoleClaim     = "role"
	defaultEmailClaim    = "email"
	defaultVerifyTimeout = 5 * time.Second
)

var (
	// ErrTokenExpired signals that the provided Firebase ID token has expired.
	ErrTokenExpired = errors.New("auth: firebase id token expired")
	// ErrTokenInvalid signals that the provided Firebase ID token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator wires Firebase token verification into HTTP middleware.
type Authenticator struct {
	verifier  TokenVerifier
	roleClaim string
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithRoleClaim overrides the custom claim used for role extraction.
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.roleClaim = claim
		}
	}
}

// NewAuthenticator constructs an Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{verifier: verifier, roleClaim: defaultRoleClaim}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireFirebaseAuth rejects requests without a valid bearer token. When roles are given the identity
// must carry at least one of them.
func (a *Authenticator) RequireFirebaseAuth(allowedRoles ...string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(allowedRoles))
	for _, role := range allowedRoles {
		if role = normaliseRole(role); role != "" {
			allowed = append(allowed, role)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, r, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}

			identity, err := a.verify(r.Context(), tokenStr)
			if err != nil {
				respondVerificationError(w, r, err)
				return
			}
			if len(allowed) > 0 && !identity.HasAnyRole(allowed...) {
				respondAuthError(w, r, http.StatusForbidden, "insufficient_role", "identity does not have required role")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func (a *Authenticator) verify(ctx context.Context, tokenStr string) (*Identity, error) {
	if a == nil || a.verifier == nil {
		return nil, errors.New("auth: verifier unavailable")
	}
	ctx, cancel := context.WithTimeout(ctx, defaultVerifyTimeout)
	defer cancel()

	token, err := a.verifier.VerifyIDToken(ctx, tokenStr)
	if err != nil {
		return nil, err
	}
	if token == nil || strings.TrimSpace(token.UID) == "" {
		return nil, ErrTokenInvalid
	}

	roles := rolesFromClaims(token.Claims, a.roleClaim)
	if len(roles) == 0 {
		roles = []string{RoleCustomer}
	}
	return &Identity{
		UID:   token.UID,
		Email: claimAsString(token.Claims, defaultEmailClaim),
		Roles: roles,
	}, nil
}

func rolesFromClaims(claims map[string]interface{}, key string) []string {
	var candidates []string
	switch v := claims[key].(type) {
	case string:
		candidates = []string{v}
	case []string:
		candidates = v
	case []interface{}:
		for _, value := range v {
			if str, ok := value.(string); ok {
				candidates = append(candidates, str)
			}
		}
	case map[string]interface{}:
		for role, value := range v {
			if enabled, ok := value.(bool); ok && enabled {
				candidates = append(candidates, role)
			}
		}
	}

	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		role := normaliseRole(candidate)
		if role == "" {
			continue
		}
		if _, exists := seen[role]; exists {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

func claimAsString(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func extractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func respondAuthError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, status))
}

func respondVerificationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired), firebaseauth.IsIDTokenExpired(err):
		respondAuthError(w, r, http.StatusUnauthorized, "token_expired", "firebase id token expired")
	case errors.Is(err, ErrTokenInvalid), firebaseauth.IsIDTokenInvalid(err):
		respondAuthError(w, r, http.StatusUnauthorized, "invalid_token", "firebase id token invalid")
	default:
		respondAuthError(w, r, http.StatusUnauthorized, "invalid_token", "firebase id token verification failed")
	}
}
