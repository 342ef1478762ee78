package server

import (
	"errors"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/marcus-qen/storefront/internal/storefront/apierror"
	"github.com/marcus-qen/storefront/internal/storefront/cart"
	"github.com/marcus-qen/storefront/internal/storefront/catalog"
	"github.com/marcus-qen/storefront/internal/storefront/customers"
)

// toAPIError maps store errors onto the API error taxonomy. Anything
// unrecognised is an internal error.
func toAPIError(err error) *apierror.Error {
	var apiErr *apierror.Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, cart.ErrInvalidInput),
		errors.Is(err, cart.ErrDuplicateItem),
		errors.Is(err, catalog.ErrInvalidProduct),
		errors.Is(err, catalog.ErrCategoryExists),
		errors.Is(err, customers.ErrInvalidRole):
		return apierror.BadRequest(err.Error())
	case errors.Is(err, cart.ErrItemNotFound):
		return apierror.NotFound("cart item not found")
	case errors.Is(err, cart.ErrProductNotFound), errors.Is(err, catalog.ErrProductNotFound):
		return apierror.NotFound("product not found")
	case errors.Is(err, catalog.ErrCategoryNotFound):
		return apierror.NotFound("category not found")
	case errors.Is(err, cart.ErrCustomerNotFound), errors.Is(err, customers.ErrCustomerNotFound):
		return apierror.NotFound("customer not found")
	}
	return apierror.Internal(err)
}

// writeError writes err as JSON. Internal errors are logged and, outside
// production, carry the stack of the goroutine that failed.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	if apiErr.Kind != apierror.KindInternal {
		apierror.Write(w, apiErr)
		return
	}

	s.logger.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", requestIDFrom(r.Context())),
		zap.Error(err),
	)
	var extra map[string]any
	if !s.cfg.IsProduction() {
		extra = map[string]any{"stack": string(debug.Stack())}
	}
	apierror.WriteWithBody(w, apiErr, extra)
}
