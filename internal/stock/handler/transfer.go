package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/logiclinic/logiclinic-backend/internal/stock/service"
	"github.com/logiclinic/logiclinic-backend/pkg/httputil"
	"github.com/logiclinic/logiclinic-backend/pkg/logger"
)

// TransferHandler handles transfer workflow endpoints
type TransferHandler struct {
	service *service.TransferService
	logger  *logger.Logger
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(svc *service.TransferService, log *logger.Logger) *TransferHandler {
	return &TransferHandler{
		service: svc,
		logger:  log,
	}
}

type transferLineRequest struct {
	LotID    string `json:"lot_id" validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

type transferRequest struct {
	Lines []transferLineRequest `json:"lines" validate:"required,min=1,dive"`
	Notes *string               `json:"notes"`
}

func (req *transferRequest) toLines() []service.TransferLineRequest {
	lines := make([]service.TransferLineRequest, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, service.TransferLineRequest{
			LotID:    l.LotID,
			Quantity: l.Quantity,
		})
	}
	return lines
}

// List lists transfers with an optional status filter
func (h *TransferHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)
	status := r.URL.Query().Get("status")

	transfers, total, err := h.service.List(r.Context(), status, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, transfers, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages(total, perPage),
	})
}

// Get gets a transfer with its lines
func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	transfer, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, transfer)
}

// Request creates a transfer in the requested state
func (h *TransferHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	transfer, err := h.service.Request(r.Context(), req.toLines(), req.Notes, actor(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, transfer)
}

// Validate approves a requested transfer and moves the stock
func (h *TransferHandler) Validate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Overrides map[string]int `json:"overrides"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	transfer, err := h.service.Validate(r.Context(), id, req.Overrides, actor(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, transfer)
}

// Refuse rejects a requested transfer
func (h *TransferHandler) Refuse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Reason string `json:"reason" validate:"required,max=500"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	transfer, err := h.service.Refuse(r.Context(), id, req.Reason, actor(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, transfer)
}

// Receive acknowledges arrival of a validated transfer
func (h *TransferHandler) Receive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	transfer, err := h.service.Receive(r.Context(), id, actor(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, transfer)
}

// Direct performs request, validation and reception in one step
func (h *TransferHandler) Direct(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	transfer, err := h.service.Direct(r.Context(), req.toLines(), req.Notes, actor(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, transfer)
}
