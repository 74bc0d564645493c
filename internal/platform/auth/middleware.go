package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/platform/requestctx"
)

const (
	// GuestTokenHeader carries the credential of anonymous shoppers on requests.
	GuestTokenHeader = "token"
	// IssuedGuestTokenHeader echoes the credential issued to a newly created guest.
	IssuedGuestTokenHeader = "X-Guest-Token"
)

// TokenVerifier verifies shopper credentials.
type TokenVerifier interface {
	Verify(token string) (*Identity, error)
}

// Authenticator wires credential verification into HTTP middleware.
type Authenticator struct {
	verifier TokenVerifier
}

// NewAuthenticator constructs an Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier) *Authenticator {
	return &Authenticator{verifier: verifier}
}

// RequireAuth verifies the request credential and, when roles are supplied, ensures the identity
// carries one of them.
func (a *Authenticator) RequireAuth(allowedRoles ...string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(allowedRoles))
	for _, role := range allowedRoles {
		if role = strings.TrimSpace(role); role != "" {
			allowed = append(allowed, role)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := CredentialFromRequest(r)
			if token == "" {
				respondAuthError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
				return
			}
			if a == nil || a.verifier == nil {
				respondAuthError(w, r, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			identity, err := a.verifier.Verify(token)
			if err != nil {
				switch {
				case errors.Is(err, ErrTokenExpired):
					respondAuthError(w, r, http.StatusUnauthorized, "token_expired", "token expired, please log in again")
				default:
					respondAuthError(w, r, http.StatusUnauthorized, "invalid_token", "invalid token")
				}
				return
			}

			if len(allowed) > 0 && !hasAnyRole(identity, allowed) {
				respondAuthError(w, r, http.StatusForbidden, "insufficient_role", "you do not have permission to perform this action")
				return
			}

			ctx := WithIdentity(r.Context(), identity)
			ctx = requestctx.WithLogger(ctx, requestctx.Logger(ctx).With(zap.String("account_id", identity.AccountID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CredentialFromRequest returns the bearer credential, falling back to the guest token header.
func CredentialFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token, ok := extractBearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return strings.TrimSpace(r.Header.Get(GuestTokenHeader))
}

func hasAnyRole(identity *Identity, roles []string) bool {
	for _, role := range roles {
		if identity.HasRole(role) {
			return true
		}
	}
	return false
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondAuthError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, status))
}
