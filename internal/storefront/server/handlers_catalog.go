package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/marcus-qen/storefront/internal/storefront/apierror"
	"github.com/marcus-qen/storefront/internal/storefront/auth"
	"github.com/marcus-qen/storefront/internal/storefront/catalog"
)

const maxPageSize = 100

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		f   catalog.ProductFilter
		err error
	)
	if f.CategoryID, err = queryInt64(q.Get("categoryId"), "categoryId"); err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt64(q.Get("limit"), "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, err := queryInt64(q.Get("offset"), "offset")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f.Limit = int(min(limit, maxPageSize))
	if f.Limit == 0 {
		f.Limit = maxPageSize
	}
	f.Offset = int(offset)

	products, err := s.catalog.ListProducts(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, products)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := auth.PathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	product, err := s.catalog.GetProduct(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, product)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.catalog.ListCategories(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, categories)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.writeError(w, r, apierror.BadRequest("name is required"))
		return
	}
	category, err := s.catalog.CreateCategory(r.Context(), strings.TrimSpace(req.Name))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	apierror.WriteJSON(w, http.StatusCreated, category)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProductInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	product, err := s.catalog.CreateProduct(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	apierror.WriteJSON(w, http.StatusCreated, product)
}

// queryInt64 parses an optional non-negative query parameter; empty is 0.
func queryInt64(raw, name string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, apierror.BadRequest("invalid " + name)
	}
	return v, nil
}
