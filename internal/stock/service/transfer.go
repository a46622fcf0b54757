package service

import (
	"context"
	"time"

	"github.com/logiclinic/logiclinic-backend/internal/stock/events"
	"github.com/logiclinic/logiclinic-backend/internal/stock/repository"
	"github.com/logiclinic/logiclinic-backend/pkg/database"
	"github.com/logiclinic/logiclinic-backend/pkg/errors"
	"github.com/logiclinic/logiclinic-backend/pkg/logger"
	"github.com/logiclinic/logiclinic-backend/pkg/tenant"
)

// TransferLineRequest is one requested line of a transfer
type TransferLineRequest struct {
	LotID    string
	Quantity int
}

// TransferService drives the bulk-to-retail transfer workflow
type TransferService struct {
	db           *database.DB
	transferRepo *repository.TransferRepository
	lotRepo      *repository.LotRepository
	movementRepo *repository.MovementRepository
	publisher    *events.StockEventPublisher
	audit        *AuditService
	logger       *logger.Logger
}

// NewTransferService creates a new transfer service
func NewTransferService(
	db *database.DB,
	transferRepo *repository.TransferRepository,
	lotRepo *repository.LotRepository,
	movementRepo *repository.MovementRepository,
	publisher *events.StockEventPublisher,
	audit *AuditService,
	log *logger.Logger,
) *TransferService {
	return &TransferService{
		db:           db,
		transferRepo: transferRepo,
		lotRepo:      lotRepo,
		movementRepo: movementRepo,
		publisher:    publisher,
		audit:        audit,
		logger:       log,
	}
}

// Request creates a transfer in the requested state. Every line must be
// coverable by its bulk lot at request time; a short line aborts the
// whole request before anything is persisted. Stock is not touched
// until a pharmacist validates it.
func (s *TransferService) Request(ctx context.Context, lines []TransferLineRequest, notes, requestedBy *string) (*repository.TransferWithLines, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}
	if len(lines) == 0 {
		return nil, errors.BadRequest("transfer must have at least one line")
	}

	transfer := &repository.Transfer{
		TransferNumber: newDocumentNumber(transferPrefix),
		Status:         repository.TransferRequested,
		Notes:          notes,
		RequestedBy:    requestedBy,
		RequestedAt:    time.Now().UTC(),
	}

	var transferLines []*repository.TransferLine
	err = s.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		for _, line := range lines {
			if line.Quantity <= 0 {
				return errors.BadRequest("requested quantity must be positive")
			}
			lot, err := s.lotRepo.GetWithDrug(ctx, line.LotID)
			if err != nil {
				return err
			}
			if lot.Warehouse != repository.WarehouseBulk {
				return errors.BadRequest("transfers draw from bulk lots only").WithDetails(map[string]string{"lot_id": lot.ID})
			}
			if lot.Status != repository.LotStatusActive {
				return errors.BadRequest("lot is not active").WithDetails(map[string]string{"lot_id": lot.ID, "status": lot.Status})
			}
			if lot.QuantityAvailable < line.Quantity {
				return errors.InsufficientStock(lot.DrugName, lot.LotNumber, lot.QuantityAvailable, line.Quantity)
			}
			transferLines = append(transferLines, &repository.TransferLine{
				DrugID:            lot.DrugID,
				LotID:             lot.ID,
				QuantityRequested: line.Quantity,
			})
		}
		return s.transferRepo.Create(ctx, transfer, transferLines)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("transfer_id", transfer.ID).
		Str("transfer_number", transfer.TransferNumber).
		Int("lines", len(transferLines)).
		Msg("transfer requested")

	s.audit.Record(ctx, "transfer", transfer.ID, repository.AuditCreated, map[string]any{
		"transfer_number": transfer.TransferNumber,
		"lines":           len(transferLines),
	})
	s.publisher.PublishTransferRequested(ctx, transfer, len(transferLines))

	return s.transferRepo.GetByID(ctx, transfer.ID)
}

// Validate approves a requested transfer and moves the stock. Each line
// is approved for min(requested, override, bulk availability); lines
// with nothing available are approved at zero. A validation that
// approves nothing at all is rejected. The whole operation commits or
// rolls back as one transaction.
//
// overrides maps line IDs to a pharmacist-reduced quantity; absent
// lines default to their requested quantity.
func (s *TransferService) Validate(ctx context.Context, id string, overrides map[string]int, validatedBy *string) (*repository.TransferWithLines, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}

	var finalStatus string
	var before *repository.TransferWithLines
	err = s.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		transfer, err := s.transferRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if transfer.Status != repository.TransferRequested {
			return errors.InvalidTransition("transfer", transfer.Status, "validate")
		}
		before = transfer

		totalApproved := 0
		fullyApproved := true
		type approval struct {
			line     *repository.TransferLineDetail
			approved int
		}
		approvals := make([]approval, 0, len(transfer.Lines))
		for _, line := range transfer.Lines {
			approved := line.QuantityRequested
			if override, ok := overrides[line.ID]; ok {
				if override < 0 || override > line.QuantityRequested {
					return errors.BadRequest("approved quantity must be between 0 and the requested quantity").WithDetails(map[string]string{"line_id": line.ID})
				}
				approved = override
			}
			lot, err := s.lotRepo.GetByID(ctx, line.LotID)
			if err != nil {
				return err
			}
			available := lot.QuantityAvailable
			if lot.Status != repository.LotStatusActive {
				available = 0
			}
			if approved > available {
				approved = available
			}
			if approved < line.QuantityRequested {
				fullyApproved = false
			}
			totalApproved += approved
			approvals = append(approvals, approval{line: line, approved: approved})
		}

		if totalApproved == 0 {
			return errors.EmptyValidation()
		}

		for _, a := range approvals {
			if err := s.transferRepo.SetLineApproved(ctx, a.line.ID, a.approved); err != nil {
				return err
			}
			if a.approved == 0 {
				continue
			}
			src, err := s.lotRepo.AdjustQuantity(ctx, a.line.LotID, -a.approved)
			if err != nil {
				return err
			}
			if _, err := s.lotRepo.CreditCounterpart(ctx, src, repository.WarehouseRetail, a.approved); err != nil {
				return err
			}
			movement := &repository.StockMovement{
				DrugID:         a.line.DrugID,
				LotID:          &a.line.LotID,
				MovementType:   repository.MovementTransfer,
				Quantity:       a.approved,
				QuantityBefore: src.QuantityAvailable + a.approved,
				QuantityAfter:  src.QuantityAvailable,
				FromLocation:   strPtr(repository.WarehouseBulk),
				ToLocation:     strPtr(repository.WarehouseRetail),
				Reference:      &transfer.TransferNumber,
				PerformedBy:    validatedBy,
			}
			if err := s.movementRepo.Create(ctx, movement); err != nil {
				return err
			}
		}

		finalStatus = repository.TransferValidated
		if !fullyApproved {
			finalStatus = repository.TransferPartiallyValidated
		}
		updated, err := s.transferRepo.MarkValidated(ctx, id, finalStatus, validatedBy)
		if err != nil {
			return err
		}
		if !updated {
			return errors.ConcurrencyConflict("transfer")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result, err := s.transferRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("transfer_id", id).
		Str("status", finalStatus).
		Msg("transfer validated")

	action := repository.AuditApproved
	if finalStatus == repository.TransferPartiallyValidated {
		action = repository.AuditApprovedPartial
	}
	s.audit.RecordTransition(ctx, "transfer", id, action, repository.TransferRequested, finalStatus, before, result)
	s.publisher.PublishTransferValidated(ctx, &result.Transfer)

	return result, nil
}

// Refuse rejects a requested transfer. Stock is untouched.
func (s *TransferService) Refuse(ctx context.Context, id string, reason string, refusedBy *string) (*repository.TransferWithLines, error) {
	if reason == "" {
		return nil, errors.BadRequest("refusal reason is required")
	}

	before, err := s.transferRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.transferRepo.MarkRefused(ctx, id, &reason, refusedBy)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, errors.InvalidTransition("transfer", before.Status, "refuse")
	}

	result, err := s.transferRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.audit.RecordTransition(ctx, "transfer", id, repository.AuditRejected, before.Status, result.Status, before, result)
	s.publisher.PublishTransferRefused(ctx, &result.Transfer)

	return result, nil
}

// Receive acknowledges physical arrival of a validated transfer at the
// retail warehouse. The stock already moved at validation time.
func (s *TransferService) Receive(ctx context.Context, id string, receivedBy *string) (*repository.TransferWithLines, error) {
	before, err := s.transferRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.transferRepo.MarkReceived(ctx, id, receivedBy)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, errors.InvalidTransition("transfer", before.Status, "receive")
	}

	result, err := s.transferRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.audit.RecordTransition(ctx, "transfer", id, repository.AuditReceived, before.Status, result.Status, before, result)
	s.publisher.PublishTransferReceived(ctx, &result.Transfer)

	return result, nil
}

// Direct performs request and validation in one transaction, for a
// pharmacist restocking the retail shelf on the spot. The transfer goes
// through the same states as the paper workflow and ends validated;
// reception is acknowledged separately like any other validated
// transfer. Every line must be fully available: a direct transfer is
// never partial.
func (s *TransferService) Direct(ctx context.Context, lines []TransferLineRequest, notes, performedBy *string) (*repository.TransferWithLines, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}
	if len(lines) == 0 {
		return nil, errors.BadRequest("transfer must have at least one line")
	}

	transfer := &repository.Transfer{
		TransferNumber: newDocumentNumber(transferPrefix),
		Status:         repository.TransferRequested,
		Notes:          notes,
		RequestedBy:    performedBy,
		RequestedAt:    time.Now().UTC(),
	}

	err = s.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		var transferLines []*repository.TransferLine
		for _, line := range lines {
			if line.Quantity <= 0 {
				return errors.BadRequest("requested quantity must be positive")
			}
			lot, err := s.lotRepo.GetByID(ctx, line.LotID)
			if err != nil {
				return err
			}
			if lot.Warehouse != repository.WarehouseBulk {
				return errors.BadRequest("transfers draw from bulk lots only").WithDetails(map[string]string{"lot_id": lot.ID})
			}
			transferLines = append(transferLines, &repository.TransferLine{
				DrugID:            lot.DrugID,
				LotID:             lot.ID,
				QuantityRequested: line.Quantity,
			})
		}
		if err := s.transferRepo.Create(ctx, transfer, transferLines); err != nil {
			return err
		}

		for _, line := range transferLines {
			if err := s.transferRepo.SetLineApproved(ctx, line.ID, line.QuantityRequested); err != nil {
				return err
			}
			src, err := s.lotRepo.AdjustQuantity(ctx, line.LotID, -line.QuantityRequested)
			if err != nil {
				return err
			}
			if _, err := s.lotRepo.CreditCounterpart(ctx, src, repository.WarehouseRetail, line.QuantityRequested); err != nil {
				return err
			}
			movement := &repository.StockMovement{
				DrugID:         line.DrugID,
				LotID:          &line.LotID,
				MovementType:   repository.MovementTransfer,
				Quantity:       line.QuantityRequested,
				QuantityBefore: src.QuantityAvailable + line.QuantityRequested,
				QuantityAfter:  src.QuantityAvailable,
				FromLocation:   strPtr(repository.WarehouseBulk),
				ToLocation:     strPtr(repository.WarehouseRetail),
				Reference:      &transfer.TransferNumber,
				PerformedBy:    performedBy,
			}
			if err := s.movementRepo.Create(ctx, movement); err != nil {
				return err
			}
		}

		if updated, err := s.transferRepo.MarkValidated(ctx, transfer.ID, repository.TransferValidated, performedBy); err != nil {
			return err
		} else if !updated {
			return errors.ConcurrencyConflict("transfer")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result, err := s.transferRepo.GetByID(ctx, transfer.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("transfer_id", transfer.ID).
		Str("transfer_number", transfer.TransferNumber).
		Msg("direct transfer completed")

	s.audit.Record(ctx, "transfer", transfer.ID, repository.AuditCreated, map[string]any{
		"transfer_number": transfer.TransferNumber,
		"direct":          true,
	})
	s.audit.RecordTransition(ctx, "transfer", transfer.ID, repository.AuditApproved, repository.TransferRequested, repository.TransferValidated, nil, result)
	s.publisher.PublishTransferValidated(ctx, &result.Transfer)

	return result, nil
}

// Get gets a transfer with its lines
func (s *TransferService) Get(ctx context.Context, id string) (*repository.TransferWithLines, error) {
	return s.transferRepo.GetByID(ctx, id)
}

// List lists transfers with an optional status filter
func (s *TransferService) List(ctx context.Context, status string, page, perPage int) ([]*repository.Transfer, int64, error) {
	return s.transferRepo.List(ctx, status, page, perPage)
}
