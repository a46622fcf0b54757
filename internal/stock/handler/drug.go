package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/logiclinic/logiclinic-backend/internal/stock/repository"
	"github.com/logiclinic/logiclinic-backend/internal/stock/service"
	"github.com/logiclinic/logiclinic-backend/pkg/errors"
	"github.com/logiclinic/logiclinic-backend/pkg/httputil"
	"github.com/logiclinic/logiclinic-backend/pkg/logger"
)

// DrugHandler handles drug catalog endpoints
type DrugHandler struct {
	service *service.CatalogService
	stock   *service.StockService
	logger  *logger.Logger
}

// NewDrugHandler creates a new drug handler
func NewDrugHandler(svc *service.CatalogService, stock *service.StockService, log *logger.Logger) *DrugHandler {
	return &DrugHandler{
		service: svc,
		stock:   stock,
		logger:  log,
	}
}

type drugRequest struct {
	Code             string  `json:"code" validate:"required,max=64"`
	Name             string  `json:"name" validate:"required,max=255"`
	Form             *string `json:"form"`
	Dosage           *string `json:"dosage"`
	UnitPrice        string  `json:"unit_price" validate:"required"`
	EntryPrice       string  `json:"entry_price"`
	AlertThreshold   int     `json:"alert_threshold" validate:"gte=0"`
	RuptureThreshold int     `json:"rupture_threshold" validate:"gte=0"`
	MaxThreshold     int     `json:"max_threshold" validate:"gte=0"`
}

func (req *drugRequest) toDrug() (*repository.Drug, error) {
	price, err := decimal.NewFromString(req.UnitPrice)
	if err != nil || price.IsNegative() {
		return nil, errors.BadRequest("unit_price must be a non-negative decimal")
	}
	entry := decimal.Zero
	if req.EntryPrice != "" {
		entry, err = decimal.NewFromString(req.EntryPrice)
		if err != nil || entry.IsNegative() {
			return nil, errors.BadRequest("entry_price must be a non-negative decimal")
		}
	}
	return &repository.Drug{
		Code:             req.Code,
		Name:             req.Name,
		Form:             req.Form,
		Dosage:           req.Dosage,
		UnitPrice:        price,
		EntryPrice:       entry,
		AlertThreshold:   req.AlertThreshold,
		RuptureThreshold: req.RuptureThreshold,
		MaxThreshold:     req.MaxThreshold,
	}, nil
}

// List lists drugs
func (h *DrugHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)

	drugs, total, err := h.service.ListDrugs(r.Context(), page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, drugs, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages(total, perPage),
	})
}

// Get gets a drug by ID
func (h *DrugHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	drug, err := h.service.GetDrug(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, drug)
}

// Create creates a drug
func (h *DrugHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req drugRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	drug, err := req.toDrug()
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.CreateDrug(r.Context(), drug); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, drug)
}

// Update updates a drug
func (h *DrugHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req drugRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	drug, err := req.toDrug()
	if err != nil {
		httputil.Error(w, err)
		return
	}
	drug.ID = id

	if err := h.service.UpdateDrug(r.Context(), drug); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, drug)
}

// Availability reports the total available stock of a drug
func (h *DrugHandler) Availability(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	warehouse := r.URL.Query().Get("warehouse")

	total, err := h.stock.DrugAvailability(r.Context(), id, warehouse)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]any{
		"drug_id":   id,
		"warehouse": warehouse,
		"available": total,
	})
}
