package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/marcus-qen/storefront/internal/storefront/apierror"
	"github.com/marcus-qen/storefront/internal/storefront/auth"
	"github.com/marcus-qen/storefront/internal/storefront/cart"
)

type messageResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (s *Server) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	var in cart.AddItemInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	// The target cart is named in the body, so ownership is checked here
	// rather than by path middleware.
	p := auth.PrincipalFromContext(r.Context())
	if err := s.authz.CheckOwnership(r.Context(), p, "cart", in.CustomerID, auth.DirectOwner); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.carts.AddItem(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if res.Created {
		apierror.WriteJSON(w, http.StatusCreated, messageResponse{Message: "item added to cart", Data: res.Item})
		return
	}
	apierror.WriteJSON(w, http.StatusOK, messageResponse{Message: "cart item quantity updated", Data: res.Item})
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	customerID, err := auth.PathID(r, "userId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items, err := s.carts.Contents(r.Context(), customerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, items)
}

func (s *Server) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := auth.PathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in cart.UpdateItemInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	item, err := s.carts.UpdateItem(r.Context(), itemID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, messageResponse{Message: "cart item updated", Data: item})
}

func (s *Server) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := auth.PathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.carts.RemoveItem(r.Context(), itemID); err != nil {
		s.writeError(w, r, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, messageResponse{Message: "item removed from cart"})
}

func (s *Server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	customerID, err := auth.PathID(r, "userId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	removed, err := s.carts.Clear(r.Context(), customerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, map[string]any{"message": "cart cleared", "removed": removed})
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return apierror.BadRequest("request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apierror.BadRequest("request body too large")
		case errors.Is(err, io.EOF):
			return apierror.BadRequest("request body is required")
		}
		return apierror.BadRequest("invalid JSON body")
	}
	return nil
}
