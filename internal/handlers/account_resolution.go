package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/requestctx"
	"github.com/storefront/api/internal/services"
)

// resolveAccount places the resolved account on the request identity. When allowGuest is set and
// the request carries no credential a guest account is created and its credential is echoed in
// the issued guest token header.
func resolveAccount(resolver services.AccountResolver, allowGuest bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if resolver == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			resolved, err := resolver.Resolve(ctx, services.ResolveCommand{
				Credential: auth.CredentialFromRequest(r),
				AllowGuest: allowGuest,
			})
			if err != nil {
				writeServiceError(ctx, w, err)
				return
			}
			if resolved.GuestCreated {
				w.Header().Set(auth.IssuedGuestTokenHeader, resolved.Credential)
			}
			identity := &auth.Identity{
				AccountID:    resolved.Account.ID,
				Role:         string(resolved.Account.Role),
				Credential:   resolved.Credential,
				GuestCreated: resolved.GuestCreated,
			}
			ctx = auth.WithIdentity(ctx, identity)
			ctx = requestctx.WithLogger(ctx, requestctx.Logger(ctx).With(zap.String("account_id", identity.AccountID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func chain(mws ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			if mws[i] != nil {
				next = mws[i](next)
			}
		}
		return next
	}
}
