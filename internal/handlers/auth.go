package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/services"
)

// AuthHandlers exposes registration, login, email verification and the current account.
type AuthHandlers struct {
	authn   *auth.Authenticator
	auth    services.AuthService
	limiter rateLimiter
}

// AuthOption customises auth handlers.
type AuthOption func(*AuthHandlers)

// WithAuthRateLimit caps register and login attempts per client address.
func WithAuthRateLimit(limit int, window time.Duration, clock func() time.Time) AuthOption {
	return func(h *AuthHandlers) {
		h.limiter = newWindowLimiter(limit, window, clock)
	}
}

const maxAuthBodySize = 4 * 1024

// NewAuthHandlers constructs auth handlers. authn guards /auth/me only.
func NewAuthHandlers(authn *auth.Authenticator, svc services.AuthService, opts ...AuthOption) *AuthHandlers {
	h := &AuthHandlers{authn: authn, auth: svc}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /auth endpoints onto the provided router.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	limited := limitByClient(h.limiter)
	r.With(limited).Post("/register", h.register)
	r.With(limited).Post("/login", h.login)
	r.Post("/verify", h.verify)
	r.Get("/verify", h.verify)
	if h.authn != nil {
		r.With(h.authn.RequireAuth()).Get("/me", h.me)
	} else {
		r.Get("/me", h.me)
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.auth == nil {
		serviceUnavailable(ctx, w, "auth")
		return
	}
	var req registerRequest
	if !decodeBody(w, r, maxAuthBodySize, &req) {
		return
	}
	result, err := h.auth.Register(ctx, services.RegisterCommand{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, accountResponse{Account: buildAccountPayload(result.Account)})
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.auth == nil {
		serviceUnavailable(ctx, w, "auth")
		return
	}
	var req loginRequest
	if !decodeBody(w, r, maxAuthBodySize, &req) {
		return
	}
	result, err := h.auth.Login(ctx, services.LoginCommand{Email: req.Email, Password: req.Password})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	noStore(w)
	httpx.WriteData(w, http.StatusOK, loginPayload{
		Token:   result.Credential,
		Account: buildAccountPayload(result.Account),
	})
}

func (h *AuthHandlers) verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.auth == nil {
		serviceUnavailable(ctx, w, "auth")
		return
	}
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if r.Method == http.MethodPost {
		var req verifyRequest
		if !decodeBody(w, r, maxAuthBodySize, &req) {
			return
		}
		token = strings.TrimSpace(req.Token)
	}
	if token == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "token is required", http.StatusBadRequest))
		return
	}
	account, err := h.auth.VerifyEmail(ctx, token)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, accountResponse{Account: buildAccountPayload(account)})
}

func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.auth == nil {
		serviceUnavailable(ctx, w, "auth")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	account, err := h.auth.Me(ctx, identity.AccountID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	noStore(w)
	httpx.WriteData(w, http.StatusOK, accountResponse{Account: buildAccountPayload(account)})
}

type accountResponse struct {
	Account accountPayload `json:"account"`
}

type loginPayload struct {
	Token   string         `json:"token"`
	Account accountPayload `json:"account"`
}

type accountPayload struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Address       string `json:"address,omitempty"`
	Status        string `json:"status"`
	Role          string `json:"role"`
	WalletBalance string `json:"walletBalance"`
	CreatedAt     string `json:"createdAt,omitempty"`
}

func buildAccountPayload(account services.AccountView) accountPayload {
	return accountPayload{
		ID:            account.ID,
		Email:         account.Email,
		Name:          account.Name,
		Phone:         account.Phone,
		Address:       account.Address,
		Status:        string(account.Status),
		Role:          string(account.Role),
		WalletBalance: formatMoney(account.WalletBalance),
		CreatedAt:     formatTime(account.CreatedAt),
	}
}
