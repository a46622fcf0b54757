package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/logiclinic/logiclinic-backend/internal/stock/repository"
	"github.com/logiclinic/logiclinic-backend/internal/stock/service"
	"github.com/logiclinic/logiclinic-backend/pkg/errors"
	"github.com/logiclinic/logiclinic-backend/pkg/httputil"
	"github.com/logiclinic/logiclinic-backend/pkg/logger"
)

// LotHandler handles lot and movement endpoints
type LotHandler struct {
	service *service.StockService
	alerts  *service.AlertService
	logger  *logger.Logger
}

// NewLotHandler creates a new lot handler
func NewLotHandler(svc *service.StockService, alerts *service.AlertService, log *logger.Logger) *LotHandler {
	return &LotHandler{
		service: svc,
		alerts:  alerts,
		logger:  log,
	}
}

type receiveLotRequest struct {
	DrugID     string  `json:"drug_id" validate:"required,uuid"`
	LotNumber  string  `json:"lot_number" validate:"required,max=64"`
	Quantity   int     `json:"quantity" validate:"required,gt=0"`
	ExpiryDate string  `json:"expiry_date" validate:"required"`
	Supplier   *string `json:"supplier"`
	UnitCost   string  `json:"unit_cost"`
}

// Receive records a supplier delivery as a new bulk lot
func (h *LotHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var req receiveLotRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	expiry, err := time.Parse("2006-01-02", req.ExpiryDate)
	if err != nil {
		httputil.Error(w, errors.BadRequest("expiry_date must be YYYY-MM-DD"))
		return
	}

	unitCost := decimal.Zero
	if req.UnitCost != "" {
		unitCost, err = decimal.NewFromString(req.UnitCost)
		if err != nil || unitCost.IsNegative() {
			httputil.Error(w, errors.BadRequest("unit_cost must be a non-negative decimal"))
			return
		}
	}

	lot := &repository.Lot{
		DrugID:          req.DrugID,
		LotNumber:       req.LotNumber,
		QuantityInitial: req.Quantity,
		ExpiryDate:      expiry,
		Supplier:        req.Supplier,
		UnitCost:        unitCost,
	}

	created, err := h.service.ReceiveLot(r.Context(), lot, actor(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, created)
}

// List lists lots with optional drug, warehouse and status filters
func (h *LotHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := repository.LotFilter{
		DrugID:    r.URL.Query().Get("drug_id"),
		Warehouse: r.URL.Query().Get("warehouse"),
		Status:    r.URL.Query().Get("status"),
	}

	lots, err := h.service.ListLots(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lots)
}

// Get gets a lot by ID
func (h *LotHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	lot, err := h.service.GetLot(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lot)
}

// Adjust corrects a lot quantity after a physical count
func (h *LotHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Delta  int    `json:"delta" validate:"required"`
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

	lot, err := h.service.AdjustInventory(r.Context(), id, req.Delta, req.Reason, actor(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, lot)
}

// ListMovements lists the movement ledger with optional filters
func (h *LotHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)

	filter := repository.MovementFilter{
		DrugID:       r.URL.Query().Get("drug_id"),
		LotID:        r.URL.Query().Get("lot_id"),
		MovementType: r.URL.Query().Get("type"),
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			httputil.Error(w, errors.BadRequest("since must be RFC 3339"))
			return
		}
		filter.Since = &t
	}
	if until := r.URL.Query().Get("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			httputil.Error(w, errors.BadRequest("until must be RFC 3339"))
			return
		}
		filter.Until = &t
	}

	movements, total, err := h.service.ListMovements(r.Context(), filter, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, movements, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages(total, perPage),
	})
}

// ExpirySweep marks expired lots and raises expiration alerts
func (h *LotHandler) ExpirySweep(w http.ResponseWriter, r *http.Request) {
	if err := h.alerts.RunExpirySweep(r.Context()); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}
