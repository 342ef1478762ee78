package server

import (
	"net/http"
	"strings"

	"github.com/marcus-qen/storefront/internal/storefront/auth"
	"github.com/marcus-qen/storefront/internal/storefront/metrics"
	"github.com/marcus-qen/storefront/internal/storefront/ratelimit"
)

const apiPrefix = "/api/v1"

type middleware = func(http.Handler) http.Handler

func (s *Server) routes(mux *http.ServeMux) {
	general := s.limiter.Middleware(ratelimit.ClassGeneral)
	authn := s.gate.Authenticate
	admins := s.authz.RequireRoles(auth.AdminRoles...)
	superAdmins := s.authz.RequireRoles(auth.RoleSuperAdmin)
	ownCart := s.authz.OwnPath("cart", "userId", auth.DirectOwner)
	ownItem := s.authz.OwnPath("cart item", "id", itemOwners(s.carts))

	handle := func(pattern string, h http.HandlerFunc, mws ...middleware) {
		method, path, _ := strings.Cut(pattern, " ")
		mux.Handle(method+" "+apiPrefix+path, chain(h, mws...))
	}

	// Ops
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.Handle("GET /metrics", metrics.Handler())

	// Auth
	handle("POST /auth/login", s.authH.HandleLogin, s.limiter.Middleware(ratelimit.ClassAuth))
	handle("POST /auth/register", s.authH.HandleRegister, s.limiter.Middleware(ratelimit.ClassRegistration))
	handle("GET /auth/me", s.authH.HandleMe, general, authn)
	handle("POST /auth/logout", s.csrf.HandleRevoke, general, authn, s.csrf.Reusable)
	handle("GET /csrf-token", s.csrf.HandleToken, general, s.gate.Identify)

	// Catalog
	handle("GET /products", s.handleListProducts, general)
	handle("GET /products/{id}", s.handleGetProduct, general)
	handle("GET /categories", s.handleListCategories, general)

	// Cart
	handle("POST /cart/add", s.handleAddToCart, general, authn, s.csrf.Reusable)
	handle("GET /cart/{userId}", s.handleGetCart, general, authn, ownCart)
	handle("PUT /cart/update/{id}", s.handleUpdateCartItem, general, authn, ownItem, s.csrf.Reusable)
	handle("DELETE /cart/remove/{id}", s.handleRemoveCartItem, general, authn, ownItem, s.csrf.Reusable)
	handle("DELETE /cart/clear/{userId}", s.handleClearCart, general, authn, ownCart, s.csrf.Strict)

	// Admin
	handle("POST /admin/categories", s.handleCreateCategory, general, authn, admins, s.csrf.Reusable)
	handle("POST /admin/products", s.handleCreateProduct, general, authn, admins, s.csrf.Reusable)
	handle("GET /admin/customers", s.handleListCustomers, general, authn, admins)
	handle("PUT /admin/customers/{id}/role", s.handleChangeRole, general, authn, superAdmins, s.csrf.Strict)
	handle("GET /admin/audit", s.handleAudit, general, authn, admins)
}
