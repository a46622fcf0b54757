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

// LossReturnService writes off losses and returns retail stock to bulk
type LossReturnService struct {
	db             *database.DB
	lossReturnRepo *repository.LossReturnRepository
	lotRepo        *repository.LotRepository
	movementRepo   *repository.MovementRepository
	publisher      *events.StockEventPublisher
	alerts         *AlertService
	audit          *AuditService
	logger         *logger.Logger
}

// NewLossReturnService creates a new loss/return service
func NewLossReturnService(
	db *database.DB,
	lossReturnRepo *repository.LossReturnRepository,
	lotRepo *repository.LotRepository,
	movementRepo *repository.MovementRepository,
	publisher *events.StockEventPublisher,
	alerts *AlertService,
	audit *AuditService,
	log *logger.Logger,
) *LossReturnService {
	return &LossReturnService{
		db:             db,
		lossReturnRepo: lossReturnRepo,
		lotRepo:        lotRepo,
		movementRepo:   movementRepo,
		publisher:      publisher,
		alerts:         alerts,
		audit:          audit,
		logger:         log,
	}
}

// RecordLoss writes quantity off a lot, in either warehouse. Breakage,
// theft and expiry write-offs all go through here.
func (s *LossReturnService) RecordLoss(ctx context.Context, lotID string, quantity int, reason string, recordedBy *string) (*repository.LossReturn, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}
	if quantity <= 0 {
		return nil, errors.BadRequest("loss quantity must be positive")
	}
	if reason == "" {
		return nil, errors.BadRequest("loss reason is required")
	}

	record := &repository.LossReturn{
		Kind:       repository.KindLoss,
		LotID:      lotID,
		Quantity:   quantity,
		Reason:     &reason,
		RecordedBy: recordedBy,
	}

	err = s.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		lot, err := s.lotRepo.AdjustQuantity(ctx, lotID, -quantity)
		if err != nil {
			return err
		}
		record.DrugID = lot.DrugID

		if err := s.lossReturnRepo.Create(ctx, record); err != nil {
			return err
		}
		// The stock vanishes in place, so the movement stays within the
		// lot's own warehouse.
		movement := &repository.StockMovement{
			DrugID:         lot.DrugID,
			LotID:          &lot.ID,
			MovementType:   repository.MovementLoss,
			Quantity:       quantity,
			QuantityBefore: lot.QuantityAvailable + quantity,
			QuantityAfter:  lot.QuantityAvailable,
			FromLocation:   &lot.Warehouse,
			ToLocation:     &lot.Warehouse,
			Reason:         &reason,
			PerformedBy:    recordedBy,
		}
		if err := s.movementRepo.Create(ctx, movement); err != nil {
			return err
		}
		if err := s.lossReturnRepo.MarkValidated(ctx, record.ID); err != nil {
			return err
		}
		record.Status = repository.LossReturnValidated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("lot_id", lotID).
		Int("quantity", quantity).
		Str("reason", reason).
		Msg("loss recorded")

	s.audit.Record(ctx, "loss_return", record.ID, repository.AuditCreated, map[string]any{
		"kind":     record.Kind,
		"quantity": quantity,
		"reason":   reason,
	})
	s.publisher.PublishLossRecorded(ctx, record)
	s.alerts.CheckDrug(ctx, record.DrugID)

	return record, nil
}

// RecordReturn sends unused retail stock back to the bulk warehouse
func (s *LossReturnService) RecordReturn(ctx context.Context, lotID string, quantity int, reason string, recordedBy *string) (*repository.LossReturn, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}
	if quantity <= 0 {
		return nil, errors.BadRequest("return quantity must be positive")
	}

	record := &repository.LossReturn{
		Kind:       repository.KindReturn,
		LotID:      lotID,
		Quantity:   quantity,
		RecordedBy: recordedBy,
	}
	if reason != "" {
		record.Reason = &reason
	}

	err = s.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		lot, err := s.lotRepo.GetByID(ctx, lotID)
		if err != nil {
			return err
		}
		if lot.Warehouse != repository.WarehouseRetail {
			return errors.BadRequest("only retail stock can be returned to bulk").WithDetails(map[string]string{"lot_id": lot.ID})
		}

		src, err := s.lotRepo.AdjustQuantity(ctx, lotID, -quantity)
		if err != nil {
			return err
		}
		record.DrugID = src.DrugID

		if _, err := s.lotRepo.CreditCounterpart(ctx, src, repository.WarehouseBulk, quantity); err != nil {
			return err
		}
		if err := s.lossReturnRepo.Create(ctx, record); err != nil {
			return err
		}
		movement := &repository.StockMovement{
			DrugID:         src.DrugID,
			LotID:          &src.ID,
			MovementType:   repository.MovementReturn,
			Quantity:       quantity,
			QuantityBefore: src.QuantityAvailable + quantity,
			QuantityAfter:  src.QuantityAvailable,
			FromLocation:   strPtr(repository.WarehouseRetail),
			ToLocation:     strPtr(repository.WarehouseBulk),
			Reason:         record.Reason,
			PerformedBy:    recordedBy,
		}
		if err := s.movementRepo.Create(ctx, movement); err != nil {
			return err
		}
		if err := s.lossReturnRepo.MarkValidated(ctx, record.ID); err != nil {
			return err
		}
		record.Status = repository.LossReturnValidated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("lot_id", lotID).
		Int("quantity", quantity).
		Msg("return recorded")

	s.audit.Record(ctx, "loss_return", record.ID, repository.AuditCreated, map[string]any{
		"kind":     record.Kind,
		"quantity": quantity,
	})
	s.publisher.PublishReturnRecorded(ctx, record)
	s.alerts.CheckDrug(ctx, record.DrugID)

	return record, nil
}

// Get gets a loss/return record with drug and lot details
func (s *LossReturnService) Get(ctx context.Context, id string) (*repository.LossReturnDetail, error) {
	return s.lossReturnRepo.GetByID(ctx, id)
}

// List lists losses and returns with an optional kind filter
func (s *LossReturnService) List(ctx context.Context, kind string, page, perPage int) ([]*repository.LossReturnDetail, int64, error) {
	return s.lossReturnRepo.List(ctx, kind, page, perPage)
}
