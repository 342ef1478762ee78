// Package csrf issues and checks anti-CSRF tokens.
//
// Strict checks consume the token (single use) and guard critical
// mutations. Reusable checks accept a token any number of times until it
// expires. Both accept the token from the X-CSRF-Token header or a "_csrf"
// field in a JSON or form body.
package csrf

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/marcus-qen/storefront/internal/storefront/apierror"
	"github.com/marcus-qen/storefront/internal/storefront/audit"
	"github.com/marcus-qen/storefront/internal/storefront/auth"
	"github.com/marcus-qen/storefront/internal/storefront/metrics"
)

const (
	HeaderName    = "X-CSRF-Token"
	FormField     = "_csrf"
	AnonymousUser = "anonymous"
	DefaultTTL    = 15 * time.Minute

	tokenBytes = 32
)

var (
	ErrTokenMissing  = errors.New("csrf token missing")
	ErrTokenUnknown  = errors.New("invalid csrf token")
	ErrTokenExpired  = errors.New("csrf token expired")
	ErrTokenUsed     = errors.New("csrf token already used")
	ErrTokenMismatch = errors.New("csrf token does not belong to this user")
)

// Guard issues tokens and enforces them on mutating requests.
type Guard struct {
	store    Store
	ttl      time.Duration
	logger   *zap.Logger
	recorder audit.Recorder
	now      func() time.Time
}

// NewGuard creates a guard. A nil store uses a MemoryStore; a zero ttl uses
// DefaultTTL.
func NewGuard(store Store, ttl time.Duration, logger *zap.Logger, recorder audit.Recorder) *Guard {
	if store == nil {
		store = NewMemoryStore()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = audit.Discard
	}
	return &Guard{store: store, ttl: ttl, logger: logger, recorder: recorder, now: time.Now}
}

// Issue creates a token bound to p, or to AnonymousUser when p is nil, and
// returns it with its lifetime in seconds.
func (g *Guard) Issue(p *auth.Principal) (string, int, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", 0, fmt.Errorf("generate csrf token: %w", err)
	}
	token := hex.EncodeToString(raw)

	userID := AnonymousUser
	if p != nil {
		userID = strconv.FormatInt(p.ID, 10)
	}
	g.store.Set(Record{Token: token, UserID: userID, ExpiresAt: g.now().Add(g.ttl)})
	metrics.CSRFTokensIssuedTotal.Inc()

	return token, int(math.Round(g.ttl.Seconds())), nil
}

// Verify checks token for p. With consume set the token is marked used and
// a second Verify fails with ErrTokenUsed.
func (g *Guard) Verify(token string, p *auth.Principal, consume bool) error {
	if token == "" {
		return ErrTokenMissing
	}
	rec, ok := g.store.Get(token)
	if !ok {
		return ErrTokenUnknown
	}
	if !g.now().Before(rec.ExpiresAt) {
		g.store.Delete(token)
		return ErrTokenExpired
	}
	if rec.Used {
		return ErrTokenUsed
	}
	if rec.UserID != AnonymousUser && (p == nil || rec.UserID != strconv.FormatInt(p.ID, 10)) {
		return ErrTokenMismatch
	}
	if consume && !g.store.MarkUsed(token) {
		return ErrTokenUsed
	}
	return nil
}

// Invalidate deletes a token.
func (g *Guard) Invalidate(token string) {
	g.store.Delete(token)
}

// Sweep removes expired tokens.
func (g *Guard) Sweep() int {
	n := g.store.Sweep(g.now())
	metrics.CSRFTokensSweptTotal.Add(float64(n))
	return n
}

// Strict requires a valid token on mutating requests and consumes it.
func (g *Guard) Strict(next http.Handler) http.Handler {
	return g.middleware(next, true)
}

// Reusable requires a valid token on mutating requests without consuming it.
func (g *Guard) Reusable(next http.Handler) http.Handler {
	return g.middleware(next, false)
}

func (g *Guard) middleware(next http.Handler, consume bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		token, err := tokenFromRequest(r)
		if err != nil {
			apierror.Write(w, apierror.BadRequest("could not read request body"))
			return
		}

		p := auth.PrincipalFromContext(r.Context())
		if err := g.Verify(token, p, consume); err != nil {
			g.rejected(r, p, err)
			apierror.Write(w, apierror.Forbidden(err.Error()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Guard) rejected(r *http.Request, p *auth.Principal, err error) {
	reason := reasonLabel(err)
	metrics.CSRFRejectionsTotal.WithLabelValues(reason).Inc()
	g.logger.Info("csrf check failed",
		zap.String("reason", reason),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("actor", p.Actor()),
	)
	g.recorder.Record(audit.Event{
		Type:     audit.EventCSRFRejected,
		Actor:    p.Actor(),
		Resource: r.Method + " " + r.URL.Path,
		Summary:  err.Error(),
		Detail:   map[string]string{"reason": reason, "remote_addr": r.RemoteAddr},
	})
}

func reasonLabel(err error) string {
	switch {
	case errors.Is(err, ErrTokenMissing):
		return "missing"
	case errors.Is(err, ErrTokenUnknown):
		return "unknown"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenUsed):
		return "used"
	case errors.Is(err, ErrTokenMismatch):
		return "user_mismatch"
	default:
		return "other"
	}
}

// tokenFromRequest reads the header, then the body field. The body is
// restored so the handler can decode it again.
func tokenFromRequest(r *http.Request) (string, error) {
	if token := r.Header.Get(HeaderName); token != "" {
		return token, nil
	}
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return "", nil
		}
		return values.Get(FormField), nil
	default:
		var payload struct {
			CSRF string `json:"_csrf"`
		}
		if json.Unmarshal(body, &payload) != nil {
			return "", nil
		}
		return payload.CSRF, nil
	}
}

type tokenResponse struct {
	CSRFToken string `json:"csrfToken"`
	ExpiresIn int    `json:"expiresIn"`
}

// HandleToken issues a token to the caller, bound to the principal when
// the request is authenticated.
func (g *Guard) HandleToken(w http.ResponseWriter, r *http.Request) {
	token, expiresIn, err := g.Issue(auth.PrincipalFromContext(r.Context()))
	if err != nil {
		g.logger.Error("issue csrf token", zap.Error(err))
		apierror.Write(w, apierror.Internal(err))
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	apierror.WriteJSON(w, http.StatusOK, tokenResponse{CSRFToken: token, ExpiresIn: expiresIn})
}

// HandleRevoke invalidates the presented token. It is mounted behind
// Strict or Reusable, so the token has already been checked against the
// caller.
func (g *Guard) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	token, err := tokenFromRequest(r)
	if err != nil || token == "" {
		apierror.Write(w, apierror.BadRequest(ErrTokenMissing.Error()))
		return
	}
	g.Invalidate(token)
	apierror.WriteJSON(w, http.StatusOK, map[string]string{"message": "csrf token revoked"})
}
