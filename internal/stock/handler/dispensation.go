package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/logiclinic/logiclinic-backend/internal/stock/service"
	"github.com/logiclinic/logiclinic-backend/pkg/httputil"
	"github.com/logiclinic/logiclinic-backend/pkg/logger"
)

// DispensationHandler handles dispensation endpoints
type DispensationHandler struct {
	service *service.DispensationService
	logger  *logger.Logger
}

// NewDispensationHandler creates a new dispensation handler
func NewDispensationHandler(svc *service.DispensationService, log *logger.Logger) *DispensationHandler {
	return &DispensationHandler{
		service: svc,
		logger:  log,
	}
}

type dispensationLineRequest struct {
	LotID    string `json:"lot_id" validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

type dispensationRequest struct {
	PatientID   *string                   `json:"patient_id"`
	PatientName *string                   `json:"patient_name"`
	ServiceName *string                   `json:"service_name"`
	Prescriber  *string                   `json:"prescriber"`
	Lines       []dispensationLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// Create hands out drugs to a patient or an internal care service
func (h *DispensationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dispensationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	svcReq := service.DispensationRequest{
		PatientID:   req.PatientID,
		PatientName: req.PatientName,
		ServiceName: req.ServiceName,
		Prescriber:  req.Prescriber,
	}
	for _, l := range req.Lines {
		svcReq.Lines = append(svcReq.Lines, service.DispensationLineRequest{
			LotID:    l.LotID,
			Quantity: l.Quantity,
		})
	}

	dispensation, err := h.service.Dispense(r.Context(), svcReq, actor(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, dispensation)
}

// Get gets a dispensation with its lines
func (h *DispensationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dispensation, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, dispensation)
}

// List lists dispensations
func (h *DispensationHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)

	dispensations, total, err := h.service.List(r.Context(), page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, dispensations, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages(total, perPage),
	})
}
