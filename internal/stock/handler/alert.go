package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/logiclinic/logiclinic-backend/internal/stock/service"
	"github.com/logiclinic/logiclinic-backend/pkg/httputil"
	"github.com/logiclinic/logiclinic-backend/pkg/logger"
)

// AlertHandler handles stock alert endpoints
type AlertHandler struct {
	service *service.AlertService
	logger  *logger.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(svc *service.AlertService, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		service: svc,
		logger:  log,
	}
}

// List lists alerts with optional status and level filters
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	level := r.URL.Query().Get("level")

	alerts, err := h.service.List(r.Context(), status, level)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, alerts)
}

// Recompute re-evaluates every alert for a drug and returns the
// resulting active set
func (h *AlertHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	drugID := chi.URLParam(r, "drugID")

	if err := h.service.RecomputeDrug(r.Context(), drugID); err != nil {
		httputil.Error(w, err)
		return
	}

	alerts, err := h.service.List(r.Context(), "active", "")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, alerts)
}

// Resolve closes an active alert
func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	alert, err := h.service.Resolve(r.Context(), id, actor(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, alert)
}

// Ignore dismisses an active alert
func (h *AlertHandler) Ignore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	alert, err := h.service.Ignore(r.Context(), id, actor(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, alert)
}
