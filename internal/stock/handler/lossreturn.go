package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/logiclinic/logiclinic-backend/internal/stock/service"
	"github.com/logiclinic/logiclinic-backend/pkg/httputil"
	"github.com/logiclinic/logiclinic-backend/pkg/logger"
)

// LossReturnHandler handles loss and return endpoints
type LossReturnHandler struct {
	service *service.LossReturnService
	logger  *logger.Logger
}

// NewLossReturnHandler creates a new loss/return handler
func NewLossReturnHandler(svc *service.LossReturnService, log *logger.Logger) *LossReturnHandler {
	return &LossReturnHandler{
		service: svc,
		logger:  log,
	}
}

// RecordLoss writes quantity off a lot
func (h *LossReturnHandler) RecordLoss(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LotID    string `json:"lot_id" validate:"required,uuid"`
		Quantity int    `json:"quantity" validate:"required,gt=0"`
		Reason   string `json:"reason" validate:"required,max=500"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	record, err := h.service.RecordLoss(r.Context(), req.LotID, req.Quantity, req.Reason, actor(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, record)
}

// RecordReturn sends retail stock back to the bulk warehouse
func (h *LossReturnHandler) RecordReturn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LotID    string `json:"lot_id" validate:"required,uuid"`
		Quantity int    `json:"quantity" validate:"required,gt=0"`
		Reason   string `json:"reason" validate:"max=500"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	record, err := h.service.RecordReturn(r.Context(), req.LotID, req.Quantity, req.Reason, actor(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, record)
}

// Get gets a loss/return record
func (h *LossReturnHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, record)
}

// List lists losses and returns with an optional kind filter
func (h *LossReturnHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)
	kind := r.URL.Query().Get("kind")

	records, total, err := h.service.List(r.Context(), kind, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, records, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages(total, perPage),
	})
}
