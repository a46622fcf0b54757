package handler

import (
	"net/http"

	"github.com/logiclinic/logiclinic-backend/internal/stock/service"
	"github.com/logiclinic/logiclinic-backend/pkg/httputil"
	"github.com/logiclinic/logiclinic-backend/pkg/logger"
)

// StatsHandler handles dashboard endpoints
type StatsHandler struct {
	service *service.StatsService
	catalog *service.CatalogService
	logger  *logger.Logger
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(svc *service.StatsService, catalog *service.CatalogService, log *logger.Logger) *StatsHandler {
	return &StatsHandler{
		service: svc,
		catalog: catalog,
		logger:  log,
	}
}

// Dashboard returns the stock overview for the current tenant
func (h *StatsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Dashboard(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stats)
}

// CacheStats reports drug cache hit rates
func (h *StatsHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, h.catalog.CacheStats())
}
