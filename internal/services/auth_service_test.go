package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/repositories/memory"
)

const testTokenSecret = "test-secret-with-enough-entropy-0123456789"

func newTestIssuer(t *testing.T, now func() time.Time) *auth.TokenIssuer {
	t.Helper()
	issuer, err := auth.NewTokenIssuer(testTokenSecret, "storefront-test", auth.WithTokenClock(now))
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	return issuer
}

func newTestAuthService(t *testing.T, registry *memory.Registry) (AuthService, *auth.TokenIssuer) {
	t.Helper()
	issuer := newTestIssuer(t, time.Now)
	svc, err := NewAuthService(AuthServiceDeps{
		Accounts:      registry.Accounts(),
		Credentials:   issuer,
		Verifications: issuer,
		BcryptCost:    bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return svc, issuer
}

func TestAuthRegisterLoginVerify(t *testing.T) {
	registry := memory.NewRegistry(nil)
	svc, issuer := newTestAuthService(t, registry)
	ctx := context.Background()

	registered, err := svc.Register(ctx, RegisterCommand{Email: " Ada@Example.com ", Password: "correct-horse", Name: "Ada"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if registered.Account.Status != domain.AccountStatusUnverified || registered.Account.Email != "ada@example.com" {
		t.Fatalf("unexpected account %+v", registered.Account)
	}
	if registered.VerificationToken == "" {
		t.Fatalf("expected verification token")
	}
	stored, _ := registry.Accounts().Get(ctx, registered.Account.ID)
	if stored.PasswordHash == "" || stored.PasswordHash == "correct-horse" {
		t.Fatalf("expected hashed password")
	}

	_, err = svc.Register(ctx, RegisterCommand{Email: "ada@example.com", Password: "another-pass", Name: "Ada"})
	expectKind(t, err, ErrBadRequest, "Email already registered")

	_, err = svc.Login(ctx, LoginCommand{Email: "ada@example.com", Password: "wrong-password"})
	expectKind(t, err, ErrUnauthorized, "Incorrect email or password")

	login, err := svc.Login(ctx, LoginCommand{Email: "ADA@example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	identity, err := issuer.Verify(login.Credential)
	if err != nil || identity.AccountID != registered.Account.ID {
		t.Fatalf("credential does not verify: %+v %v", identity, err)
	}

	verified, err := svc.VerifyEmail(ctx, registered.VerificationToken)
	if err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	if verified.Status != domain.AccountStatusApproved {
		t.Fatalf("expected approved status, got %s", verified.Status)
	}

	me, err := svc.Me(ctx, registered.Account.ID)
	if err != nil || me.Status != domain.AccountStatusApproved {
		t.Fatalf("Me: %+v %v", me, err)
	}

	_, err = svc.VerifyEmail(ctx, login.Credential)
	expectKind(t, err, ErrBadRequest, "Invalid verification link")
}

func TestAuthRegisterValidation(t *testing.T) {
	svc, _ := newTestAuthService(t, memory.NewRegistry(nil))
	cases := []RegisterCommand{
		{Email: "not-an-email", Password: "long-enough", Name: "A"},
		{Email: "a@example.com", Password: "short", Name: "A"},
		{Email: "a@example.com", Password: "long-enough", Name: " "},
	}
	for _, cmd := range cases {
		if _, err := svc.Register(context.Background(), cmd); !errors.Is(err, ErrBadRequest) {
			t.Fatalf("expected bad request for %+v, got %v", cmd, err)
		}
	}
}

func TestAuthLoginDeletedAccount(t *testing.T) {
	registry := memory.NewRegistry(nil)
	svc, _ := newTestAuthService(t, registry)
	ctx := context.Background()
	registered, err := svc.Register(ctx, RegisterCommand{Email: "gone@example.com", Password: "correct-horse", Name: "Gone"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	account, _ := registry.Accounts().Get(ctx, registered.Account.ID)
	account.Status = domain.AccountStatusDeleted
	if _, err := registry.Accounts().Update(ctx, account); err != nil {
		t.Fatalf("Update: %v", err)
	}

	_, err = svc.Login(ctx, LoginCommand{Email: "gone@example.com", Password: "correct-horse"})
	expectKind(t, err, ErrNotFound, "User not found")
}

func TestNotifyingAuthServicePublishesRegistration(t *testing.T) {
	registry := memory.NewRegistry(nil)
	inner, _ := newTestAuthService(t, registry)
	publisher := &recordingPublisher{}
	svc := NewNotifyingAuthService(inner, publisher, fixedClock, nil)

	result, err := svc.Register(context.Background(), RegisterCommand{Email: "new@example.com", Password: "correct-horse", Name: "New"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if publisher.count(EventAccountRegistered) != 1 {
		t.Fatalf("expected account.registered event")
	}
	event := publisher.events[0]
	if event.AggregateID != result.Account.ID || event.Payload["verificationToken"] != result.VerificationToken {
		t.Fatalf("unexpected event %+v", event)
	}

	publisher.err = errors.New("broker down")
	if _, err := svc.Register(context.Background(), RegisterCommand{Email: "other@example.com", Password: "correct-horse", Name: "Other"}); err != nil {
		t.Fatalf("expected publish failure to be swallowed, got %v", err)
	}
}

func TestAccountAdminUpdateStatus(t *testing.T) {
	f := newShopFixture(t)
	f.account("acc-1", domain.AccountStatusApproved, "0")
	f.account("guest-1", domain.AccountStatusGuest, "0")
	svc, err := NewAccountAdminService(AccountAdminServiceDeps{Accounts: f.registry.Accounts()})
	if err != nil {
		t.Fatalf("NewAccountAdminService: %v", err)
	}

	view, err := svc.UpdateStatus(context.Background(), "acc-1", "restricted")
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if view.Status != domain.AccountStatusRestricted {
		t.Fatalf("expected restricted, got %s", view.Status)
	}

	_, err = svc.UpdateStatus(context.Background(), "acc-1", "Guest")
	expectKind(t, err, ErrBadRequest, "")

	_, err = svc.UpdateStatus(context.Background(), "guest-1", "Approved")
	expectKind(t, err, ErrBadRequest, "")

	_, err = svc.UpdateStatus(context.Background(), "missing", "Approved")
	expectKind(t, err, ErrNotFound, "User not found")
}

func TestAccountResolver(t *testing.T) {
	registry := memory.NewRegistry(fixedClock)
	issuer := newTestIssuer(t, time.Now)
	resolver, err := NewAccountResolver(AccountResolverDeps{
		Accounts:           registry.Accounts(),
		Tokens:             issuer,
		Clock:              fixedClock,
		NewGuestIdentifier: func() (string, error) { return "guest-identifier", nil },
	})
	if err != nil {
		t.Fatalf("NewAccountResolver: %v", err)
	}
	ctx := context.Background()

	_, err = resolver.Resolve(ctx, ResolveCommand{})
	expectKind(t, err, ErrUnauthorized, "")

	guest, err := resolver.Resolve(ctx, ResolveCommand{AllowGuest: true})
	if err != nil {
		t.Fatalf("Resolve guest: %v", err)
	}
	if !guest.GuestCreated || guest.Credential == "" || guest.Account.Status != domain.AccountStatusGuest {
		t.Fatalf("unexpected guest resolution %+v", guest)
	}
	if !guest.Account.WalletBalance.IsZero() {
		t.Fatalf("expected empty wallet")
	}

	again, err := resolver.Resolve(ctx, ResolveCommand{Credential: guest.Credential, AllowGuest: true})
	if err != nil {
		t.Fatalf("Resolve existing: %v", err)
	}
	if again.GuestCreated || again.Account.ID != guest.Account.ID {
		t.Fatalf("expected the same guest, got %+v", again)
	}

	_, err = resolver.Resolve(ctx, ResolveCommand{Credential: "garbage", AllowGuest: true})
	expectKind(t, err, ErrUnauthorized, "")

	orphan, _ := issuer.Issue("no-such-account", "customer")
	_, err = resolver.Resolve(ctx, ResolveCommand{Credential: orphan})
	expectKind(t, err, ErrNotFound, "User not found")
}

func TestAccountResolverExpiredToken(t *testing.T) {
	registry := memory.NewRegistry(nil)
	past := time.Now().Add(-31 * 24 * time.Hour)
	expiredIssuer := newTestIssuer(t, func() time.Time { return past })
	token, err := expiredIssuer.Issue("acc-1", "customer")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	resolver, err := NewAccountResolver(AccountResolverDeps{Accounts: registry.Accounts(), Tokens: newTestIssuer(t, time.Now)})
	if err != nil {
		t.Fatalf("NewAccountResolver: %v", err)
	}
	_, err = resolver.Resolve(context.Background(), ResolveCommand{Credential: token})
	expectKind(t, err, ErrUnauthorized, "Your token has expired. Please log in again")
}
