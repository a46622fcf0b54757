package service

import (
	"context"
	"time"

	"github.com/logiclinic/logiclinic-backend/internal/stock/repository"
	"github.com/logiclinic/logiclinic-backend/pkg/logger"
)

// DashboardStats is the stock overview for a tenant
type DashboardStats struct {
	WarehouseTotals    map[string]int64 `json:"warehouse_totals"`
	ActiveAlerts       map[string]int64 `json:"active_alerts_by_level"`
	TransfersByStatus  map[string]int64 `json:"transfers_by_status"`
	DispensationsToday int64            `json:"dispensations_today"`
	RevenueToday       string           `json:"revenue_today"`
	ExpiringLots       int              `json:"expiring_lots"`
}

// StatsService aggregates stock figures for the dashboard
type StatsService struct {
	lotRepo           *repository.LotRepository
	alertRepo         *repository.AlertRepository
	transferRepo      *repository.TransferRepository
	dispensationRepo  *repository.DispensationRepository
	movementRepo      *repository.MovementRepository
	expiryWarningDays int
	logger            *logger.Logger
}

// NewStatsService creates a new stats service
func NewStatsService(
	lotRepo *repository.LotRepository,
	alertRepo *repository.AlertRepository,
	transferRepo *repository.TransferRepository,
	dispensationRepo *repository.DispensationRepository,
	movementRepo *repository.MovementRepository,
	expiryWarningDays int,
	log *logger.Logger,
) *StatsService {
	if expiryWarningDays <= 0 {
		expiryWarningDays = 30
	}
	return &StatsService{
		lotRepo:           lotRepo,
		alertRepo:         alertRepo,
		transferRepo:      transferRepo,
		dispensationRepo:  dispensationRepo,
		movementRepo:      movementRepo,
		expiryWarningDays: expiryWarningDays,
		logger:            log,
	}
}

// Dashboard builds the stock overview for the current tenant
func (s *StatsService) Dashboard(ctx context.Context) (*DashboardStats, error) {
	warehouseTotals, err := s.lotRepo.WarehouseTotals(ctx)
	if err != nil {
		return nil, err
	}
	alerts, err := s.alertRepo.CountActiveByLevel(ctx)
	if err != nil {
		return nil, err
	}
	transfers, err := s.transferRepo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	startOfDay := time.Now().UTC().Truncate(24 * time.Hour)
	dispensations, err := s.movementRepo.CountSince(ctx, repository.MovementDispensation, startOfDay)
	if err != nil {
		return nil, err
	}
	revenue, err := s.dispensationRepo.TotalAmountSince(ctx, startOfDay)
	if err != nil {
		return nil, err
	}

	expiring, err := s.lotRepo.GetExpiring(ctx, s.expiryWarningDays)
	if err != nil {
		return nil, err
	}

	return &DashboardStats{
		WarehouseTotals:    warehouseTotals,
		ActiveAlerts:       alerts,
		TransfersByStatus:  transfers,
		DispensationsToday: dispensations,
		RevenueToday:       revenue.StringFixed(2),
		ExpiringLots:       len(expiring),
	}, nil
}
