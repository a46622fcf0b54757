package service

import (
	"context"

	"github.com/logiclinic/logiclinic-backend/internal/stock/events"
	"github.com/logiclinic/logiclinic-backend/internal/stock/repository"
	"github.com/logiclinic/logiclinic-backend/pkg/database"
	"github.com/logiclinic/logiclinic-backend/pkg/errors"
	"github.com/logiclinic/logiclinic-backend/pkg/logger"
	"github.com/logiclinic/logiclinic-backend/pkg/tenant"
)

// StockService handles lot receptions, inventory adjustments and the
// movement ledger
type StockService struct {
	db           *database.DB
	drugRepo     *repository.DrugRepository
	lotRepo      *repository.LotRepository
	movementRepo *repository.MovementRepository
	publisher    *events.StockEventPublisher
	alerts       *AlertService
	audit        *AuditService
	logger       *logger.Logger
}

// NewStockService creates a new stock service
func NewStockService(
	db *database.DB,
	drugRepo *repository.DrugRepository,
	lotRepo *repository.LotRepository,
	movementRepo *repository.MovementRepository,
	publisher *events.StockEventPublisher,
	alerts *AlertService,
	audit *AuditService,
	log *logger.Logger,
) *StockService {
	return &StockService{
		db:           db,
		drugRepo:     drugRepo,
		lotRepo:      lotRepo,
		movementRepo: movementRepo,
		publisher:    publisher,
		alerts:       alerts,
		audit:        audit,
		logger:       log,
	}
}

// ReceiveLot records a supplier delivery: a new bulk lot plus its
// reception movement, in one transaction
func (s *StockService) ReceiveLot(ctx context.Context, lot *repository.Lot, performedBy *string) (*repository.Lot, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}

	if lot.Warehouse == "" {
		lot.Warehouse = repository.WarehouseBulk
	}
	if lot.QuantityInitial <= 0 {
		return nil, errors.BadRequest("received quantity must be positive")
	}
	lot.QuantityAvailable = lot.QuantityInitial

	if _, err := s.drugRepo.GetByID(ctx, lot.DrugID); err != nil {
		return nil, err
	}

	err = s.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		if err := s.lotRepo.Create(ctx, lot); err != nil {
			return err
		}
		movement := &repository.StockMovement{
			DrugID:         lot.DrugID,
			LotID:          &lot.ID,
			MovementType:   repository.MovementReception,
			Quantity:       lot.QuantityInitial,
			QuantityBefore: 0,
			QuantityAfter:  lot.QuantityAvailable,
			FromLocation:   strPtr(repository.LocationExternal),
			ToLocation:     &lot.Warehouse,
			Reference:      &lot.LotNumber,
			PerformedBy:    performedBy,
		}
		return s.movementRepo.Create(ctx, movement)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("lot_id", lot.ID).
		Str("drug_id", lot.DrugID).
		Int("quantity", lot.QuantityInitial).
		Msg("lot received")

	s.audit.Record(ctx, "lot", lot.ID, repository.AuditCreated, map[string]any{
		"lot_number": lot.LotNumber,
		"warehouse":  lot.Warehouse,
		"quantity":   lot.QuantityInitial,
	})
	s.publisher.PublishReceptionCompleted(ctx, lot)
	s.alerts.CheckDrug(ctx, lot.DrugID)

	return lot, nil
}

// AdjustInventory corrects a lot quantity after a physical count. The
// delta may be negative but can never take the lot below zero.
func (s *StockService) AdjustInventory(ctx context.Context, lotID string, delta int, reason string, performedBy *string) (*repository.Lot, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}
	if delta == 0 {
		return nil, errors.BadRequest("adjustment delta must be non-zero")
	}
	if reason == "" {
		return nil, errors.BadRequest("adjustment reason is required")
	}

	var lot *repository.Lot
	err = s.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		lot, err = s.lotRepo.AdjustQuantity(ctx, lotID, delta)
		if err != nil {
			return err
		}
		movement := &repository.StockMovement{
			DrugID:         lot.DrugID,
			LotID:          &lot.ID,
			MovementType:   repository.MovementInventory,
			Quantity:       delta,
			QuantityBefore: lot.QuantityAvailable - delta,
			QuantityAfter:  lot.QuantityAvailable,
			Reason:         &reason,
			PerformedBy:    performedBy,
		}
		return s.movementRepo.Create(ctx, movement)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "lot", lot.ID, repository.AuditCreated, map[string]any{
		"adjustment": delta,
		"reason":     reason,
	})
	s.alerts.CheckDrug(ctx, lot.DrugID)

	return lot, nil
}

// GetLot gets a lot with its drug details
func (s *StockService) GetLot(ctx context.Context, id string) (*repository.LotWithDrug, error) {
	return s.lotRepo.GetWithDrug(ctx, id)
}

// ListLots lists lots with optional filters
func (s *StockService) ListLots(ctx context.Context, filter repository.LotFilter) ([]*repository.LotWithDrug, error) {
	return s.lotRepo.List(ctx, filter)
}

// DrugAvailability returns the total available quantity of a drug,
// optionally restricted to one warehouse
func (s *StockService) DrugAvailability(ctx context.Context, drugID, warehouse string) (int, error) {
	if _, err := s.drugRepo.GetByID(ctx, drugID); err != nil {
		return 0, err
	}
	return s.lotRepo.TotalAvailable(ctx, drugID, warehouse)
}

// ListMovements lists ledger entries with optional filters
func (s *StockService) ListMovements(ctx context.Context, filter repository.MovementFilter, page, perPage int) ([]*repository.StockMovement, int64, error) {
	return s.movementRepo.List(ctx, filter, page, perPage)
}

func strPtr(s string) *string { return &s }
