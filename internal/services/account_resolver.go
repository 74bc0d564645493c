package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/repositories"
)

// AccountResolverDeps wires the dependencies required by the account resolver.
type AccountResolverDeps struct {
	Accounts repositories.AccountRepository
	Tokens   CredentialIssuer
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
	// NewGuestIdentifier overrides the generated guest email, used by tests.
	NewGuestIdentifier func() (string, error)
}

type accountResolver struct {
	accounts repositories.AccountRepository
	tokens   CredentialIssuer
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
	guestID  func() (string, error)
}

// NewAccountResolver constructs an AccountResolver validating required dependencies.
func NewAccountResolver(deps AccountResolverDeps) (AccountResolver, error) {
	if deps.Accounts == nil {
		return nil, errors.New("account resolver: account repository is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("account resolver: credential issuer is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	guestID := deps.NewGuestIdentifier
	if guestID == nil {
		guestID = func() (string, error) {
			id, err := uuid.NewV7()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		}
	}
	return &accountResolver{
		accounts: deps.Accounts,
		tokens:   deps.Tokens,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
		guestID:  guestID,
	}, nil
}

func (r *accountResolver) Resolve(ctx context.Context, cmd ResolveCommand) (ResolvedAccount, error) {
	credential := strings.TrimSpace(cmd.Credential)
	if credential == "" {
		if !cmd.AllowGuest {
			return ResolvedAccount{}, unauthorized("unauthenticated", "authentication required")
		}
		return r.createGuest(ctx)
	}

	identity, err := r.tokens.Verify(credential)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return ResolvedAccount{}, unauthorized("token_expired", "Your token has expired. Please log in again")
		}
		return ResolvedAccount{}, unauthorized("invalid_token", "Invalid token. Please log in again")
	}

	account, err := r.accounts.Get(ctx, identity.AccountID)
	if err != nil {
		if isRepoNotFound(err) {
			return ResolvedAccount{}, notFound("account_not_found", "User not found")
		}
		return ResolvedAccount{}, storeError("load account", err)
	}
	return ResolvedAccount{Account: account, Credential: credential}, nil
}

func (r *accountResolver) createGuest(ctx context.Context) (ResolvedAccount, error) {
	identifier, err := r.guestID()
	if err != nil {
		return ResolvedAccount{}, internal("guest_identifier", "could not create guest account", err)
	}
	now := r.now()
	account := domain.Account{
		ID:            ulid.Make().String(),
		Email:         identifier,
		Status:        domain.AccountStatusGuest,
		Role:          domain.RoleCustomer,
		WalletBalance: decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	created, err := r.accounts.Create(ctx, account)
	if err != nil {
		return ResolvedAccount{}, storeError("create guest account", err)
	}
	credential, err := r.tokens.Issue(created.ID, string(created.Role))
	if err != nil {
		return ResolvedAccount{}, internal("credential_issue", "could not issue credential", err)
	}
	r.logger(ctx, "account.guest.created", map[string]any{"accountId": created.ID})
	return ResolvedAccount{Account: created, Credential: credential, GuestCreated: true}, nil
}
