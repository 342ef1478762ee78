package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/marcus-qen/storefront/internal/storefront/apierror"
	"github.com/marcus-qen/storefront/internal/storefront/audit"
	"github.com/marcus-qen/storefront/internal/storefront/metrics"
)

const minPasswordLength = 8

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrAccountNotFound    = errors.New("account not found")
)

// Account is the profile returned by login, registration and /auth/me.
type Account struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// AccountStore is the credential store seen by the auth handlers.
type AccountStore interface {
	Authenticate(ctx context.Context, email, password string) (*Account, error)
	Register(ctx context.Context, email, name, password string) (*Account, error)
	Account(ctx context.Context, id int64) (*Account, error)
}

// Issuer issues bearer tokens.
type Issuer interface {
	Issue(p Principal) (string, time.Time, error)
}

// ErrorWriter writes err as the response to r.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Handlers serves login, registration and identity endpoints.
type Handlers struct {
	accounts   AccountStore
	tokens     Issuer
	recorder   audit.Recorder
	logger     *zap.Logger
	writeError ErrorWriter
}

// NewHandlers wires the auth endpoints.
func NewHandlers(accounts AccountStore, tokens Issuer, recorder audit.Recorder, logger *zap.Logger) *Handlers {
	if recorder == nil {
		recorder = audit.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handlers{accounts: accounts, tokens: tokens, recorder: recorder, logger: logger}
	h.writeError = h.logAndWrite
	return h
}

// SetErrorWriter replaces the writer used for unexpected failures.
func (h *Handlers) SetErrorWriter(fn ErrorWriter) {
	if fn != nil {
		h.writeError = fn
	}
}

func (h *Handlers) logAndWrite(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("auth request failed", zap.String("path", r.URL.Path), zap.Error(err))
	apierror.Write(w, err)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *Account  `json:"user"`
}

// HandleLogin exchanges email and password for a bearer token.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		apierror.Write(w, err)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		apierror.Write(w, apierror.BadRequest("email and password are required"))
		return
	}

	account, err := h.accounts.Authenticate(r.Context(), email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			metrics.AuthFailuresTotal.WithLabelValues("bad_credentials").Inc()
			h.recorder.Record(audit.Event{
				Type:    audit.EventLoginFailed,
				Actor:   email,
				Summary: "login failed for " + email,
				Detail:  map[string]string{"remote_addr": r.RemoteAddr},
			})
			apierror.Write(w, apierror.Unauthorized(ErrInvalidCredentials.Error()))
			return
		}
		h.writeError(w, r, apierror.Internal(fmt.Errorf("authenticate: %w", err)))
		return
	}

	h.recorder.Record(audit.Event{
		Type:    audit.EventLoginSuccess,
		Actor:   (&Principal{ID: account.ID}).Actor(),
		Summary: "login succeeded for " + email,
		Detail:  map[string]string{"remote_addr": r.RemoteAddr, "role": string(account.Role)},
	})
	h.respondWithToken(w, r, http.StatusOK, account)
}

// HandleRegister creates a customer account and logs it in.
func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		apierror.Write(w, err)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.Name)
	if _, err := mail.ParseAddress(email); err != nil {
		apierror.Write(w, apierror.BadRequest("a valid email is required"))
		return
	}
	if name == "" {
		apierror.Write(w, apierror.BadRequest("name is required"))
		return
	}
	if len(req.Password) < minPasswordLength {
		apierror.Write(w, apierror.BadRequest("password must be at least 8 characters"))
		return
	}

	account, err := h.accounts.Register(r.Context(), email, name, req.Password)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			apierror.Write(w, apierror.BadRequest(ErrEmailTaken.Error()))
			return
		}
		h.writeError(w, r, apierror.Internal(fmt.Errorf("register: %w", err)))
		return
	}

	h.recorder.Record(audit.Event{
		Type:    audit.EventRegistered,
		Actor:   (&Principal{ID: account.ID}).Actor(),
		Summary: "customer registered: " + email,
	})
	h.respondWithToken(w, r, http.StatusCreated, account)
}

// HandleMe returns the authenticated principal's profile.
func (h *Handlers) HandleMe(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromContext(r.Context())
	if p == nil {
		apierror.Write(w, apierror.Unauthorized(msgNoToken))
		return
	}

	account, err := h.accounts.Account(r.Context(), p.ID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			apierror.Write(w, apierror.NotFound("account not found"))
			return
		}
		h.writeError(w, r, apierror.Internal(fmt.Errorf("load account: %w", err)))
		return
	}
	// The token's role is what the request was authorized with.
	account.Role = p.Role
	apierror.WriteJSON(w, http.StatusOK, account)
}

func (h *Handlers) respondWithToken(w http.ResponseWriter, r *http.Request, status int, account *Account) {
	token, expiresAt, err := h.tokens.Issue(Principal{ID: account.ID, Role: account.Role})
	if err != nil {
		h.writeError(w, r, apierror.Internal(fmt.Errorf("issue token for customer %d: %w", account.ID, err)))
		return
	}
	apierror.WriteJSON(w, status, tokenResponse{Token: token, ExpiresAt: expiresAt, User: account})
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return apierror.BadRequest("request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apierror.BadRequest("invalid JSON body")
	}
	return nil
}
