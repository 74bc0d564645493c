package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/repositories"
)

const minPasswordLength = 8

// AuthServiceDeps wires the dependencies required by the auth service.
type AuthServiceDeps struct {
	Accounts      repositories.AccountRepository
	Credentials   CredentialIssuer
	Verifications VerificationIssuer
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
	NewID      func() string
}

type authService struct {
	accounts      repositories.AccountRepository
	credentials   CredentialIssuer
	verifications VerificationIssuer
	cost          int
	now           func() time.Time
	logger        func(ctx context.Context, event string, fields map[string]any)
	newID         func() string
}

// NewAuthService constructs an AuthService validating required dependencies.
func NewAuthService(deps AuthServiceDeps) (AuthService, error) {
	if deps.Accounts == nil {
		return nil, errors.New("auth service: account repository is required")
	}
	if deps.Credentials == nil {
		return nil, errors.New("auth service: credential issuer is required")
	}
	if deps.Verifications == nil {
		return nil, errors.New("auth service: verification issuer is required")
	}
	cost := deps.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, errors.New("auth service: bcrypt cost out of range")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	newID := deps.NewID
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	return &authService{
		accounts:      deps.Accounts,
		credentials:   deps.Credentials,
		verifications: deps.Verifications,
		cost:          cost,
		now:           func() time.Time { return clock().UTC() },
		logger:        logger,
		newID:         newID,
	}, nil
}

func (s *authService) Register(ctx context.Context, cmd RegisterCommand) (RegistrationResult, error) {
	email, err := normalizeEmail(cmd.Email)
	if err != nil {
		return RegistrationResult{}, err
	}
	if len(cmd.Password) < minPasswordLength {
		return RegistrationResult{}, badRequest("invalid_password", "Password must be at least 8 characters")
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return RegistrationResult{}, badRequest("name_required", "Please provide your name")
	}

	if _, err := s.accounts.FindByEmail(ctx, email); err == nil {
		return RegistrationResult{}, badRequest("email_taken", "Email already registered")
	} else if !isRepoNotFound(err) {
		return RegistrationResult{}, storeError("find account by email", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), s.cost)
	if err != nil {
		return RegistrationResult{}, internal("password_hash_failed", "could not register account", err)
	}

	now := s.now()
	account, err := s.accounts.Create(ctx, domain.Account{
		ID:            s.newID(),
		Email:         email,
		Name:          name,
		PasswordHash:  string(hash),
		Status:        domain.AccountStatusUnverified,
		Role:          domain.RoleCustomer,
		WalletBalance: decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		if isRepoConflict(err) {
			return RegistrationResult{}, badRequest("email_taken", "Email already registered")
		}
		return RegistrationResult{}, storeError("create account", err)
	}

	token, err := s.verifications.IssueVerification(account.ID)
	if err != nil {
		return RegistrationResult{}, internal("verification_issue_failed", "could not register account", err)
	}
	s.logger(ctx, "auth.registered", map[string]any{"accountId": account.ID})
	return RegistrationResult{Account: NewAccountView(account), VerificationToken: token}, nil
}

func (s *authService) Login(ctx context.Context, cmd LoginCommand) (LoginResult, error) {
	email, err := normalizeEmail(cmd.Email)
	if err != nil || cmd.Password == "" {
		return LoginResult{}, unauthorized("invalid_credentials", "Incorrect email or password")
	}
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if isRepoNotFound(err) {
			return LoginResult{}, unauthorized("invalid_credentials", "Incorrect email or password")
		}
		return LoginResult{}, storeError("find account by email", err)
	}
	if account.Status == domain.AccountStatusDeleted {
		return LoginResult{}, notFound("account_not_found", "User not found")
	}
	if account.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(cmd.Password)) != nil {
		s.logger(ctx, "auth.login.rejected", map[string]any{"accountId": account.ID})
		return LoginResult{}, unauthorized("invalid_credentials", "Incorrect email or password")
	}

	credential, err := s.credentials.Issue(account.ID, string(account.Role))
	if err != nil {
		return LoginResult{}, internal("credential_issue_failed", "could not sign in", err)
	}
	s.logger(ctx, "auth.login", map[string]any{"accountId": account.ID})
	return LoginResult{Account: NewAccountView(account), Credential: credential}, nil
}

func (s *authService) VerifyEmail(ctx context.Context, token string) (AccountView, error) {
	accountID, err := s.verifications.VerifyVerification(strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return AccountView{}, badRequest("verification_expired", "Verification link has expired")
		}
		return AccountView{}, badRequest("invalid_verification", "Invalid verification link")
	}
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		if isRepoNotFound(err) {
			return AccountView{}, notFound("account_not_found", "User not found")
		}
		return AccountView{}, storeError("load account", err)
	}
	switch account.Status {
	case domain.AccountStatusDeleted:
		return AccountView{}, notFound("account_not_found", "User not found")
	case domain.AccountStatusUnverified:
		account.Status = domain.AccountStatusApproved
		account.UpdatedAt = s.now()
		account, err = s.accounts.Update(ctx, account)
		if err != nil {
			return AccountView{}, storeError("update account", err)
		}
		s.logger(ctx, "auth.email.verified", map[string]any{"accountId": account.ID})
	}
	return NewAccountView(account), nil
}

func (s *authService) Me(ctx context.Context, accountID string) (AccountView, error) {
	account, err := s.accounts.Get(ctx, strings.TrimSpace(accountID))
	if err != nil {
		if isRepoNotFound(err) {
			return AccountView{}, notFound("account_not_found", "User not found")
		}
		return AccountView{}, storeError("load account", err)
	}
	if account.Status == domain.AccountStatusDeleted {
		return AccountView{}, notFound("account_not_found", "User not found")
	}
	return NewAccountView(account), nil
}

// NewAccountView strips secrets from an account.
func NewAccountView(account Account) AccountView {
	return AccountView{
		ID:            account.ID,
		Email:         account.Email,
		Name:          account.Name,
		Phone:         account.Phone,
		Address:       account.Address,
		Status:        account.Status,
		Role:          account.Role,
		WalletBalance: account.WalletBalance,
		CreatedAt:     account.CreatedAt,
	}
}

func normalizeEmail(raw string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", badRequest("invalid_email", "Please provide a valid email")
	}
	return trimmed, nil
}

type notifyingAuthService struct {
	AuthService
	events EventPublisher
	now    func() time.Time
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewNotifyingAuthService publishes an account.registered event after each successful
// registration. Publish failures are logged and do not fail the registration.
func NewNotifyingAuthService(inner AuthService, events EventPublisher, clock func() time.Time, logger func(ctx context.Context, event string, fields map[string]any)) AuthService {
	if inner == nil || events == nil {
		return inner
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &notifyingAuthService{
		AuthService: inner,
		events:      events,
		now:         func() time.Time { return clock().UTC() },
		logger:      logger,
	}
}

func (s *notifyingAuthService) Register(ctx context.Context, cmd RegisterCommand) (RegistrationResult, error) {
	result, err := s.AuthService.Register(ctx, cmd)
	if err != nil {
		return result, err
	}
	event := DomainEvent{
		ID:          ulid.Make().String(),
		Type:        EventAccountRegistered,
		AggregateID: result.Account.ID,
		OccurredAt:  s.now(),
		Payload: map[string]any{
			"accountId":         result.Account.ID,
			"email":             result.Account.Email,
			"name":              result.Account.Name,
			"verificationToken": result.VerificationToken,
		},
		Attributes: map[string]string{"accountId": result.Account.ID},
	}
	if _, err := s.events.PublishEvent(ctx, event); err != nil {
		s.logger(ctx, "auth.registered.publish_failed", map[string]any{
			"accountId": result.Account.ID,
			"error":     err.Error(),
		})
	}
	return result, nil
}

// AccountAdminServiceDeps wires the dependencies required by the account admin service.
type AccountAdminServiceDeps struct {
	Accounts repositories.AccountRepository
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type accountAdminService struct {
	accounts repositories.AccountRepository
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewAccountAdminService constructs an AccountAdminService.
func NewAccountAdminService(deps AccountAdminServiceDeps) (AccountAdminService, error) {
	if deps.Accounts == nil {
		return nil, errors.New("account admin service: account repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &accountAdminService{
		accounts: deps.Accounts,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

func (s *accountAdminService) UpdateStatus(ctx context.Context, accountID, status string) (AccountView, error) {
	next, ok := domain.ParseAccountStatus(status)
	if !ok || next == domain.AccountStatusGuest {
		return AccountView{}, badRequest("invalid_status", "Status must be one of Unverified, Approved, Restricted, Deleted")
	}
	account, err := s.accounts.Get(ctx, strings.TrimSpace(accountID))
	if err != nil {
		if isRepoNotFound(err) {
			return AccountView{}, notFound("account_not_found", "User not found")
		}
		return AccountView{}, storeError("load account", err)
	}
	if account.IsGuest() {
		return AccountView{}, badRequest("guest_account", "Guest accounts cannot change status")
	}
	previous := account.Status
	account.Status = next
	account.UpdatedAt = s.now()
	updated, err := s.accounts.Update(ctx, account)
	if err != nil {
		return AccountView{}, storeError("update account", err)
	}
	s.logger(ctx, "account.status.changed", map[string]any{
		"accountId": updated.ID,
		"from":      string(previous),
		"to":        string(next),
	})
	return NewAccountView(updated), nil
}
