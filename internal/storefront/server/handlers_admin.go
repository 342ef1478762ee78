package server

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/marcus-qen/storefront/internal/storefront/apierror"
	"github.com/marcus-qen/storefront/internal/storefront/audit"
	"github.com/marcus-qen/storefront/internal/storefront/auth"
)

const defaultAuditLimit = 100

func (s *Server) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	list, err := s.customers.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, list)
}

func (s *Server) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	id, err := auth.PathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		s.writeError(w, r, apierror.BadRequest(err.Error()))
		return
	}

	actor := auth.PrincipalFromContext(r.Context())
	if actor.ID == id {
		s.writeError(w, r, apierror.BadRequest("cannot change your own role"))
		return
	}

	before, err := s.customers.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.customers.UpdateRole(r.Context(), id, role); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.auditLog.Record(audit.Event{
		Type:     audit.EventRoleChanged,
		Actor:    actor.Actor(),
		Resource: fmt.Sprintf("customer:%d", id),
		Summary:  fmt.Sprintf("role changed from %s to %s", before.Role, role),
		Detail:   map[string]string{"before": string(before.Role), "after": string(role)},
	})
	s.logger.Info("customer role changed",
		zap.Int64("customer_id", id),
		zap.String("from", string(before.Role)),
		zap.String("to", string(role)),
		zap.String("actor", actor.Actor()),
	)

	before.Role = role
	apierror.WriteJSON(w, http.StatusOK, messageResponse{Message: "role updated", Data: before})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{
		Type:  audit.EventType(q.Get("type")),
		Actor: q.Get("actor"),
		Limit: defaultAuditLimit,
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeError(w, r, apierror.BadRequest("invalid since: expected RFC 3339 timestamp"))
			return
		}
		f.Since = since
	}
	limit, err := queryInt64(q.Get("limit"), "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if limit > 0 {
		f.Limit = int(min(limit, 1000))
	}

	events := s.auditLog.Query(f)
	if events == nil {
		events = []audit.Event{}
	}
	apierror.WriteJSON(w, http.StatusOK, map[string]any{"events": events, "total": s.auditLog.Count()})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		apierror.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	apierror.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	apierror.WriteJSON(w, http.StatusOK, map[string]string{
		"version": Version,
		"commit":  Commit,
		"date":    Date,
	})
}
