package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/logiclinic/logiclinic-backend/internal/stock/events"
	"github.com/logiclinic/logiclinic-backend/internal/stock/repository"
	"github.com/logiclinic/logiclinic-backend/pkg/database"
	"github.com/logiclinic/logiclinic-backend/pkg/errors"
	"github.com/logiclinic/logiclinic-backend/pkg/logger"
	"github.com/logiclinic/logiclinic-backend/pkg/tenant"
)

// DispensationLineRequest is one requested line of a dispensation
type DispensationLineRequest struct {
	LotID    string
	Quantity int
}

// DispensationRequest describes a hand-out. The recipient is either a
// patient (PatientID and/or PatientName) or an internal care service
// (ServiceName), never both.
type DispensationRequest struct {
	PatientID   *string
	PatientName *string
	ServiceName *string
	Prescriber  *string
	Lines       []DispensationLineRequest
}

// DispensationService hands out drugs from the retail warehouse
type DispensationService struct {
	db               *database.DB
	dispensationRepo *repository.DispensationRepository
	drugRepo         *repository.DrugRepository
	lotRepo          *repository.LotRepository
	movementRepo     *repository.MovementRepository
	publisher        *events.StockEventPublisher
	alerts           *AlertService
	audit            *AuditService
	logger           *logger.Logger
}

// NewDispensationService creates a new dispensation service
func NewDispensationService(
	db *database.DB,
	dispensationRepo *repository.DispensationRepository,
	drugRepo *repository.DrugRepository,
	lotRepo *repository.LotRepository,
	movementRepo *repository.MovementRepository,
	publisher *events.StockEventPublisher,
	alerts *AlertService,
	audit *AuditService,
	log *logger.Logger,
) *DispensationService {
	return &DispensationService{
		db:               db,
		dispensationRepo: dispensationRepo,
		drugRepo:         drugRepo,
		lotRepo:          lotRepo,
		movementRepo:     movementRepo,
		publisher:        publisher,
		alerts:           alerts,
		audit:            audit,
		logger:           log,
	}
}

// Dispense hands out drugs to a patient or an internal service. Every
// line must come from an active retail lot with enough stock; if any
// line fails the whole dispensation rolls back and nothing is debited.
func (s *DispensationService) Dispense(ctx context.Context, req DispensationRequest, dispensedBy *string) (*repository.DispensationWithLines, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}
	if len(req.Lines) == 0 {
		return nil, errors.BadRequest("dispensation must have at least one line")
	}

	hasPatient := req.PatientID != nil || req.PatientName != nil
	hasService := req.ServiceName != nil && *req.ServiceName != ""
	if hasPatient && hasService {
		return nil, errors.BadRequest("dispensation recipient is a patient or a service, not both")
	}
	if !hasPatient && !hasService {
		return nil, errors.BadRequest("dispensation needs a recipient: a patient or a service")
	}

	destination := repository.LocationPatient
	if hasService {
		destination = repository.LocationService
	}

	dispensation := &repository.Dispensation{
		DispensationNumber: newDocumentNumber(dispensationPrefix),
		PatientID:          req.PatientID,
		PatientName:        req.PatientName,
		ServiceName:        req.ServiceName,
		Prescriber:         req.Prescriber,
		Status:             repository.DispensationCompleted,
		DispensedBy:        dispensedBy,
	}

	drugIDs := make(map[string]struct{})
	err = s.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		var lines []*repository.DispensationLine
		total := decimal.Zero
		for _, line := range req.Lines {
			if line.Quantity <= 0 {
				return errors.BadRequest("dispensed quantity must be positive")
			}
			lot, err := s.lotRepo.GetByID(ctx, line.LotID)
			if err != nil {
				return err
			}
			if lot.Warehouse != repository.WarehouseRetail {
				return errors.BadRequest("dispensations draw from retail lots only").WithDetails(map[string]string{"lot_id": lot.ID})
			}
			if lot.Status != repository.LotStatusActive {
				return errors.BadRequest("lot is not active").WithDetails(map[string]string{"lot_id": lot.ID, "status": lot.Status})
			}
			drug, err := s.drugRepo.GetByID(ctx, lot.DrugID)
			if err != nil {
				return err
			}

			debited, err := s.lotRepo.AdjustQuantity(ctx, lot.ID, -line.Quantity)
			if err != nil {
				return err
			}

			lineTotal := drug.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
			total = total.Add(lineTotal)
			lines = append(lines, &repository.DispensationLine{
				DrugID:    lot.DrugID,
				LotID:     lot.ID,
				Quantity:  line.Quantity,
				UnitPrice: drug.UnitPrice,
				LineTotal: lineTotal,
			})
			drugIDs[lot.DrugID] = struct{}{}

			movement := &repository.StockMovement{
				DrugID:         lot.DrugID,
				LotID:          &lot.ID,
				MovementType:   repository.MovementDispensation,
				Quantity:       line.Quantity,
				QuantityBefore: debited.QuantityAvailable + line.Quantity,
				QuantityAfter:  debited.QuantityAvailable,
				FromLocation:   strPtr(repository.WarehouseRetail),
				ToLocation:     strPtr(destination),
				Reference:      &dispensation.DispensationNumber,
				PerformedBy:    dispensedBy,
			}
			if err := s.movementRepo.Create(ctx, movement); err != nil {
				return err
			}
		}

		dispensation.TotalAmount = total
		return s.dispensationRepo.Create(ctx, dispensation, lines)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("dispensation_id", dispensation.ID).
		Str("dispensation_number", dispensation.DispensationNumber).
		Str("total_amount", dispensation.TotalAmount.String()).
		Msg("dispensation completed")

	s.audit.Record(ctx, "dispensation", dispensation.ID, repository.AuditCreated, map[string]any{
		"dispensation_number": dispensation.DispensationNumber,
		"total_amount":        dispensation.TotalAmount.String(),
	})
	s.publisher.PublishDispensationCompleted(ctx, dispensation, len(req.Lines))
	for drugID := range drugIDs {
		s.alerts.CheckDrug(ctx, drugID)
	}

	return s.dispensationRepo.GetByID(ctx, dispensation.ID)
}

// Get gets a dispensation with its lines
func (s *DispensationService) Get(ctx context.Context, id string) (*repository.DispensationWithLines, error) {
	return s.dispensationRepo.GetByID(ctx, id)
}

// List lists dispensations
func (s *DispensationService) List(ctx context.Context, page, perPage int) ([]*repository.Dispensation, int64, error) {
	return s.dispensationRepo.List(ctx, page, perPage)
}
