package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

const (
	purposeAccess       = "access"
	purposeVerifyEmail  = "verify_email"
	defaultTokenTTL     = 30 * 24 * time.Hour
	defaultVerifyTTL    = 48 * time.Hour
	minimumSecretLength = 8
)

var (
	// ErrTokenExpired signals that the provided credential has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the provided credential is malformed or was not issued by us.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// Claims are the JWT claims carried by issued credentials. Subject is the account id.
type Claims struct {
	Role    string `json:"role,omitempty"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 credentials for shoppers and email verification links.
type TokenIssuer struct {
	secret    []byte
	issuer    string
	ttl       time.Duration
	verifyTTL time.Duration
	now       func() time.Time
}

// TokenOption customises the issuer.
type TokenOption func(*TokenIssuer)

// WithTokenTTL overrides the lifetime of access credentials.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(t *TokenIssuer) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithVerificationTTL overrides the lifetime of email verification tokens.
func WithVerificationTTL(ttl time.Duration) TokenOption {
	return func(t *TokenIssuer) {
		if ttl > 0 {
			t.verifyTTL = ttl
		}
	}
}

// WithTokenClock injects a custom time source.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTokenIssuer constructs an issuer signing with the shared secret.
func NewTokenIssuer(secret, issuer string, opts ...TokenOption) (*TokenIssuer, error) {
	secret = strings.TrimSpace(secret)
	if len(secret) < minimumSecretLength {
		return nil, fmt.Errorf("auth: token secret must be at least %d characters", minimumSecretLength)
	}
	t := &TokenIssuer{
		secret:    []byte(secret),
		issuer:    strings.TrimSpace(issuer),
		ttl:       defaultTokenTTL,
		verifyTTL: defaultVerifyTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

// Issue signs an access credential for the account.
func (t *TokenIssuer) Issue(accountID, role string) (string, error) {
	return t.sign(accountID, role, purposeAccess, t.ttl)
}

// IssueVerification signs a single-purpose email verification token.
func (t *TokenIssuer) IssueVerification(accountID string) (string, error) {
	return t.sign(accountID, "", purposeVerifyEmail, t.verifyTTL)
}

// Verify validates an access credential and returns the identity it carries.
func (t *TokenIssuer) Verify(token string) (*Identity, error) {
	claims, err := t.parse(token, purposeAccess)
	if err != nil {
		return nil, err
	}
	role := claims.Role
	if role == "" {
		role = RoleCustomer
	}
	identity := &Identity{AccountID: claims.Subject, Role: role, Credential: token}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return identity, nil
}

// VerifyVerification validates an email verification token and returns the account id.
func (t *TokenIssuer) VerifyVerification(token string) (string, error) {
	claims, err := t.parse(token, purposeVerifyEmail)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (t *TokenIssuer) sign(accountID, role, purpose string, ttl time.Duration) (string, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", errors.New("auth: account id is required")
	}
	now := t.now().UTC()
	claims := Claims{
		Role:    role,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

func (t *TokenIssuer) parse(token, purpose string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}

	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !claims.VerifyExpiresAt(t.now(), true) {
		return nil, ErrTokenExpired
	}
	if claims.Purpose != purpose || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenInvalid
	}
	if t.issuer != "" && claims.Issuer != t.issuer {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
