package auth

import (
	"context"
	"strings"
	"time"
)

// Roles carried in shopper credentials. Guests and registered shoppers are both customers.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Identity is the shopper principal behind a verified credential.
type Identity struct {
	AccountID  string
	Role       string
	Credential string
	ExpiresAt  time.Time
	// GuestCreated is set when the credential was issued for a guest created by this request.
	GuestCreated bool
}

// HasRole reports whether the identity carries the requested role (case-insensitive).
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(i.Role), strings.TrimSpace(role))
}

// IsAdmin reports whether the identity may use administrative routes.
func (i *Identity) IsAdmin() bool {
	return i.HasRole(RoleAdmin)
}

type contextKey string

const identityContextKey contextKey = "github.com/storefront/api/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// Requester names whoever is calling: the shopper account, else the OIDC service subject, else
// "anonymous". Used to scope per-caller state such as idempotency keys.
func Requester(ctx context.Context) string {
	if identity, ok := IdentityFromContext(ctx); ok && identity.AccountID != "" {
		return identity.AccountID
	}
	if svc, ok := ServiceIdentityFromContext(ctx); ok && svc != nil && svc.Subject != "" {
		return "svc:" + svc.Subject
	}
	return "anonymous"
}
