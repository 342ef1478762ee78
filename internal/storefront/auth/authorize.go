package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/marcus-qen/storefront/internal/storefront/apierror"
	"github.com/marcus-qen/storefront/internal/storefront/audit"
	"github.com/marcus-qen/storefront/internal/storefront/metrics"
)

// ErrNotFound is returned by an OwnerResolver when the resource does not exist.
var ErrNotFound = errors.New("resource not found")

// OwnerResolver maps a resource id to the id of the customer that owns it.
type OwnerResolver interface {
	OwnerOf(ctx context.Context, id int64) (int64, error)
}

// OwnerResolverFunc adapts a function to OwnerResolver.
type OwnerResolverFunc func(ctx context.Context, id int64) (int64, error)

func (f OwnerResolverFunc) OwnerOf(ctx context.Context, id int64) (int64, error) {
	return f(ctx, id)
}

// DirectOwner resolves ids that already are customer ids (cart/{userId}).
var DirectOwner OwnerResolver = OwnerResolverFunc(func(_ context.Context, id int64) (int64, error) {
	return id, nil
})

// Authorizer enforces role allow-lists and resource ownership.
type Authorizer struct {
	logger   *zap.Logger
	recorder audit.Recorder
}

// NewAuthorizer creates an Authorizer. Denials are logged and recorded.
func NewAuthorizer(logger *zap.Logger, recorder audit.Recorder) *Authorizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = audit.Discard
	}
	return &Authorizer{logger: logger, recorder: recorder}
}

// RequireRoles allows the request through only when the principal's role is
// one of roles.
func (a *Authorizer) RequireRoles(roles ...Role) func(http.Handler) http.Handler {
	required := make([]string, len(roles))
	for i, role := range roles {
		required[i] = string(role)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				apierror.Write(w, apierror.Unauthorized(msgNoToken))
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			metrics.AuthorizationDeniedTotal.WithLabelValues("role").Inc()
			a.recorder.Record(audit.Event{
				Type:     audit.EventAuthorizationDenied,
				Actor:    p.Actor(),
				Resource: r.Method + " " + r.URL.Path,
				Summary:  "role " + string(p.Role) + " not permitted",
				Detail:   map[string]any{"required": required, "remote_addr": r.RemoteAddr},
			})
			apierror.Write(w, apierror.Forbidden("insufficient role").
				WithDetail("required", required).
				WithDetail("actual", string(p.Role)))
		})
	}
}

// RequireRoles is Authorizer.RequireRoles without logging or auditing.
func RequireRoles(roles ...Role) func(http.Handler) http.Handler {
	return NewAuthorizer(nil, nil).RequireRoles(roles...)
}

// CheckOwnership returns nil when p may act on resource id. Admin roles pass
// unconditionally. Customers must own the resource as reported by resolver.
// A missing resource yields a not-found error before ownership is compared.
func (a *Authorizer) CheckOwnership(ctx context.Context, p *Principal, resource string, id int64, resolver OwnerResolver) error {
	if p == nil {
		return apierror.Unauthorized(msgNoToken)
	}
	if p.Role.IsAdmin() {
		return nil
	}

	owner, err := resolver.OwnerOf(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apierror.NotFound(resource + " not found")
		}
		var apiErr *apierror.Error
		if errors.As(err, &apiErr) {
			return apiErr
		}
		return apierror.Internal(err)
	}

	if owner != p.ID {
		a.logger.Warn("potential IDOR attempt",
			zap.Int64("principal_id", p.ID),
			zap.String("role", string(p.Role)),
			zap.String("resource", resource),
			zap.Int64("resource_id", id),
			zap.Int64("owner_id", owner),
		)
		metrics.AuthorizationDeniedTotal.WithLabelValues("ownership").Inc()
		a.recorder.Record(audit.Event{
			Type:     audit.EventIDORAttempt,
			Actor:    p.Actor(),
			Resource: resource + ":" + strconv.FormatInt(id, 10),
			Summary:  "access to another customer's " + resource + " denied",
			Detail:   map[string]any{"owner_id": owner},
		})
		return apierror.Forbidden("access denied")
	}
	return nil
}

// OwnPath guards a route whose path parameter param identifies a resource
// that the principal must own.
func (a *Authorizer) OwnPath(resource, param string, resolver OwnerResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := PathID(r, param)
			if err != nil {
				apierror.Write(w, err)
				return
			}
			if err := a.CheckOwnership(r.Context(), PrincipalFromContext(r.Context()), resource, id, resolver); err != nil {
				apierror.Write(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PathID parses a positive integer path parameter.
func PathID(r *http.Request, param string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(param), 10, 64)
	if err != nil || id <= 0 {
		return 0, apierror.BadRequest("invalid " + param)
	}
	return id, nil
}
