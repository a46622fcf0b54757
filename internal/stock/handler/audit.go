package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/logiclinic/logiclinic-backend/internal/stock/service"
	"github.com/logiclinic/logiclinic-backend/pkg/errors"
	"github.com/logiclinic/logiclinic-backend/pkg/httputil"
	"github.com/logiclinic/logiclinic-backend/pkg/logger"
)

// AuditHandler handles audit trail endpoints
type AuditHandler struct {
	service *service.AuditService
	logger  *logger.Logger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(svc *service.AuditService, log *logger.Logger) *AuditHandler {
	return &AuditHandler{
		service: svc,
		logger:  log,
	}
}

// List lists audit entries with optional entity type and date filters
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)
	entityType := r.URL.Query().Get("entity_type")

	var from, to *time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.Error(w, errors.BadRequest("from must be RFC 3339"))
			return
		}
		from = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.Error(w, errors.BadRequest("to must be RFC 3339"))
			return
		}
		to = &t
	}

	entries, total, err := h.service.List(r.Context(), entityType, from, to, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, entries, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages(total, perPage),
	})
}

// ListByEntity lists audit entries for one entity
func (h *AuditHandler) ListByEntity(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)
	entityType := chi.URLParam(r, "type")
	entityID := chi.URLParam(r, "id")

	entries, total, err := h.service.ListByEntity(r.Context(), entityType, entityID, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, entries, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages(total, perPage),
	})
}
