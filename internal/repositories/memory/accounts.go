package memory

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories"
)

// AccountRepository keeps accounts in a map keyed by id.
type AccountRepository struct {
	clocked
	byID map[string]domain.Account
}

var _ repositories.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository constructs an empty account store.
func NewAccountRepository(clock func() time.Time) *AccountRepository {
	return &AccountRepository{
		clocked: clocked{now: clock},
		byID:    make(map[string]domain.Account),
	}
}

func (r *AccountRepository) Create(_ context.Context, account domain.Account) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[account.ID]; exists {
		return domain.Account{}, repositories.NewConflictError("accounts.create", "account already exists")
	}
	if email := normaliseEmail(account.Email); email != "" {
		for _, existing := range r.byID {
			if normaliseEmail(existing.Email) == email {
				return domain.Account{}, repositories.NewConflictError("accounts.create", "email already registered")
			}
		}
	}
	now := r.timestamp()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	r.byID[account.ID] = account
	return account, nil
}

func (r *AccountRepository) Get(_ context.Context, accountID string) (domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.byID[accountID]
	if !ok {
		return domain.Account{}, repositories.NewNotFoundError("accounts.get", "account not found")
	}
	return account, nil
}

func (r *AccountRepository) FindByEmail(_ context.Context, email string) (domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	target := normaliseEmail(email)
	for _, account := range r.byID {
		if normaliseEmail(account.Email) == target {
			return account, nil
		}
	}
	return domain.Account{}, repositories.NewNotFoundError("accounts.findByEmail", "account not found")
}

func (r *AccountRepository) Update(_ context.Context, account domain.Account) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.byID[account.ID]
	if !ok {
		return domain.Account{}, repositories.NewNotFoundError("accounts.update", "account not found")
	}
	account.WalletBalance = current.WalletBalance
	account.CreatedAt = current.CreatedAt
	account.UpdatedAt = r.timestamp()
	r.byID[account.ID] = account
	return account, nil
}

func (r *AccountRepository) DebitWallet(_ context.Context, accountID string, amount decimal.Decimal) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.byID[accountID]
	if !ok {
		return domain.Account{}, repositories.NewNotFoundError("accounts.debitWallet", "account not found")
	}
	if account.WalletBalance.LessThan(amount) {
		return domain.Account{}, repositories.NewConflictError("accounts.debitWallet", "insufficient wallet balance")
	}
	account.WalletBalance = account.WalletBalance.Sub(amount)
	account.UpdatedAt = r.timestamp()
	r.byID[accountID] = account
	return account, nil
}

func (r *AccountRepository) CreditWallet(_ context.Context, accountID string, amount decimal.Decimal) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.byID[accountID]
	if !ok {
		return domain.Account{}, repositories.NewNotFoundError("accounts.creditWallet", "account not found")
	}
	account.WalletBalance = account.WalletBalance.Add(amount)
	account.UpdatedAt = r.timestamp()
	r.byID[accountID] = account
	return account, nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
