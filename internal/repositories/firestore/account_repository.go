package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
	pfirestore "github.com/storefront/api/internal/platform/firestore"
	"github.com/storefront/api/internal/repositories"
)

const (
	accountCollection      = "accounts"
	accountEmailCollection = "accountEmails"
)

// AccountRepository stores accounts plus an email index document per registered address so email
// uniqueness can be enforced inside a transaction.
type AccountRepository struct {
	provider *pfirestore.Provider
	accounts *pfirestore.BaseRepository[accountDocument]
	emails   *pfirestore.BaseRepository[emailIndexDocument]
	now      func() time.Time
}

// NewAccountRepository constructs a Firestore-backed account repository.
func NewAccountRepository(provider *pfirestore.Provider, clock func() time.Time) (*AccountRepository, error) {
	if provider == nil {
		return nil, errors.New("account repository requires firestore provider")
	}
	if clock == nil {
		clock = time.Now
	}
	return &AccountRepository{
		provider: provider,
		accounts: pfirestore.NewBaseRepository[accountDocument](provider, accountCollection),
		emails:   pfirestore.NewBaseRepository[emailIndexDocument](provider, accountEmailCollection),
		now:      func() time.Time { return clock().UTC() },
	}, nil
}

func (r *AccountRepository) Create(ctx context.Context, account domain.Account) (domain.Account, error) {
	now := r.now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	email := normaliseEmail(account.Email)

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		accountRef, err := r.accounts.DocumentRef(ctx, account.ID)
		if err != nil {
			return err
		}
		if email != "" {
			emailRef, err := r.emails.DocumentRef(ctx, email)
			if err != nil {
				return err
			}
			if _, err := r.emails.TxGet(ctx, tx, email); err == nil {
				return repositories.NewConflictError("accounts.create", "email already registered")
			} else if !isNotFound(err) {
				return err
			}
			if err := tx.Create(emailRef, emailIndexDocument{AccountID: account.ID}); err != nil {
				return err
			}
		}
		return tx.Create(accountRef, newAccountDocument(account))
	})
	if err != nil {
		return domain.Account{}, pfirestore.WrapError("accounts.create", err)
	}
	return account, nil
}

func (r *AccountRepository) Get(ctx context.Context, accountID string) (domain.Account, error) {
	doc, err := r.accounts.Get(ctx, strings.TrimSpace(accountID))
	if err != nil {
		return domain.Account{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (domain.Account, error) {
	email = normaliseEmail(email)
	if email == "" {
		return domain.Account{}, repositories.NewNotFoundError("accounts.findByEmail", "account not found")
	}
	index, err := r.emails.Get(ctx, email)
	if err != nil {
		return domain.Account{}, err
	}
	return r.Get(ctx, index.Data.AccountID)
}

// Update rewrites profile fields. An email change moves the index document in the same transaction.
func (r *AccountRepository) Update(ctx context.Context, account domain.Account) (domain.Account, error) {
	var saved domain.Account
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, err := r.accounts.TxGet(ctx, tx, account.ID)
		if err != nil {
			return err
		}
		oldEmail := normaliseEmail(current.Data.Email)
		newEmail := normaliseEmail(account.Email)
		if oldEmail != newEmail && newEmail != "" {
			if _, err := r.emails.TxGet(ctx, tx, newEmail); err == nil {
				return repositories.NewConflictError("accounts.update", "email already registered")
			} else if !isNotFound(err) {
				return err
			}
		}

		next := account
		next.WalletBalance = current.Data.balance()
		next.CreatedAt = current.Data.CreatedAt
		next.UpdatedAt = r.now()

		if oldEmail != newEmail {
			if oldEmail != "" {
				oldRef, err := r.emails.DocumentRef(ctx, oldEmail)
				if err != nil {
					return err
				}
				if err := tx.Delete(oldRef); err != nil {
					return err
				}
			}
			if newEmail != "" {
				if err := r.emails.TxSet(ctx, tx, newEmail, emailIndexDocument{AccountID: account.ID}); err != nil {
					return err
				}
			}
		}
		if err := r.accounts.TxSet(ctx, tx, account.ID, newAccountDocument(next)); err != nil {
			return err
		}
		saved = next
		return nil
	})
	if err != nil {
		return domain.Account{}, pfirestore.WrapError("accounts.update", err)
	}
	return saved, nil
}

func (r *AccountRepository) DebitWallet(ctx context.Context, accountID string, amount decimal.Decimal) (domain.Account, error) {
	return r.adjustWallet(ctx, "accounts.debitWallet", accountID, amount.Neg())
}

func (r *AccountRepository) CreditWallet(ctx context.Context, accountID string, amount decimal.Decimal) (domain.Account, error) {
	return r.adjustWallet(ctx, "accounts.creditWallet", accountID, amount)
}

func (r *AccountRepository) adjustWallet(ctx context.Context, op, accountID string, delta decimal.Decimal) (domain.Account, error) {
	var saved domain.Account
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := r.accounts.TxGet(ctx, tx, accountID)
		if err != nil {
			return err
		}
		balance := doc.Data.balance().Add(delta)
		if balance.IsNegative() {
			return repositories.NewConflictError(op, "insufficient wallet balance")
		}
		doc.Data.WalletBalance = balance.String()
		doc.Data.UpdatedAt = r.now()
		if err := r.accounts.TxSet(ctx, tx, accountID, doc.Data); err != nil {
			return err
		}
		saved = doc.Data.toDomain(accountID)
		return nil
	})
	if err != nil {
		return domain.Account{}, pfirestore.WrapError(op, err)
	}
	return saved, nil
}

type accountDocument struct {
	Email         string    `firestore:"email,omitempty"`
	Name          string    `firestore:"name,omitempty"`
	Phone         string    `firestore:"phone,omitempty"`
	Address       string    `firestore:"address,omitempty"`
	PasswordHash  string    `firestore:"passwordHash,omitempty"`
	Status        string    `firestore:"status"`
	Role          string    `firestore:"role"`
	WalletBalance string    `firestore:"walletBalance"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

type emailIndexDocument struct {
	AccountID string `firestore:"accountId"`
}

func newAccountDocument(account domain.Account) accountDocument {
	return accountDocument{
		Email:         strings.TrimSpace(account.Email),
		Name:          account.Name,
		Phone:         account.Phone,
		Address:       account.Address,
		PasswordHash:  account.PasswordHash,
		Status:        string(account.Status),
		Role:          string(account.Role),
		WalletBalance: account.WalletBalance.String(),
		CreatedAt:     account.CreatedAt.UTC(),
		UpdatedAt:     account.UpdatedAt.UTC(),
	}
}

func (d accountDocument) balance() decimal.Decimal {
	return parseDecimal(d.WalletBalance)
}

func (d accountDocument) toDomain(id string) domain.Account {
	return domain.Account{
		ID:            id,
		Email:         d.Email,
		Name:          d.Name,
		Phone:         d.Phone,
		Address:       d.Address,
		PasswordHash:  d.PasswordHash,
		Status:        domain.AccountStatus(d.Status),
		Role:          domain.Role(d.Role),
		WalletBalance: d.balance(),
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

var _ repositories.AccountRepository = (*AccountRepository)(nil)
