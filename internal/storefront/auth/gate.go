package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/marcus-qen/storefront/internal/storefront/apierror"
	"github.com/marcus-qen/storefront/internal/storefront/metrics"
)

const msgNoToken = "access denied: no token provided"

// Verifier verifies a bearer token.
type Verifier interface {
	Verify(token string) (Principal, error)
}

// Gate is the authentication middleware. It extracts the bearer token,
// verifies it and attaches the resulting Principal to the request context.
type Gate struct {
	verifier Verifier
	logger   *zap.Logger
}

// NewGate builds a Gate around verifier.
func NewGate(verifier Verifier, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{verifier: verifier, logger: logger}
}

// Authenticate rejects requests without a valid token with 401.
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			metrics.AuthFailuresTotal.WithLabelValues("missing_token").Inc()
			apierror.Write(w, apierror.Unauthorized(msgNoToken))
			return
		}

		p, err := g.verifier.Verify(token)
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				metrics.AuthFailuresTotal.WithLabelValues("expired_token").Inc()
				apierror.Write(w, apierror.Unauthorized("token expired"))
				return
			}
			metrics.AuthFailuresTotal.WithLabelValues("invalid_token").Inc()
			g.logger.Debug("token rejected", zap.String("path", r.URL.Path), zap.Error(err))
			apierror.Write(w, apierror.Unauthorized("invalid token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), &p)))
	})
}

// Identify attaches a principal when the request carries a valid token and
// passes every request through otherwise.
func (g *Gate) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := bearerToken(r); ok {
			if p, err := g.verifier.Verify(token); err == nil {
				r = r.WithContext(WithPrincipal(r.Context(), &p))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
