package service

import (
	"context"
	"fmt"
	"time"

	"github.com/logiclinic/logiclinic-backend/internal/stock/events"
	"github.com/logiclinic/logiclinic-backend/internal/stock/repository"
	"github.com/logiclinic/logiclinic-backend/pkg/errors"
	"github.com/logiclinic/logiclinic-backend/pkg/logger"
)

// AlertService computes and manages stock alerts
type AlertService struct {
	drugRepo  *repository.DrugRepository
	lotRepo   *repository.LotRepository
	alertRepo *repository.AlertRepository
	publisher *events.StockEventPublisher
	audit     *AuditService
	logger    *logger.Logger

	// expiryWarningDays is the look-ahead window for expiration alerts
	expiryWarningDays int
}

// NewAlertService creates a new alert service
func NewAlertService(
	drugRepo *repository.DrugRepository,
	lotRepo *repository.LotRepository,
	alertRepo *repository.AlertRepository,
	publisher *events.StockEventPublisher,
	audit *AuditService,
	expiryWarningDays int,
	log *logger.Logger,
) *AlertService {
	if expiryWarningDays <= 0 {
		expiryWarningDays = 30
	}
	return &AlertService{
		drugRepo:          drugRepo,
		lotRepo:           lotRepo,
		alertRepo:         alertRepo,
		publisher:         publisher,
		audit:             audit,
		logger:            log,
		expiryWarningDays: expiryWarningDays,
	}
}

// CheckDrug recomputes threshold alerts for one drug. Upserts keep one
// active alert per type, so calling this after every stock operation is
// idempotent. Existing alerts are never auto-resolved; a pharmacist
// closes them once the shortage is handled.
func (s *AlertService) CheckDrug(ctx context.Context, drugID string) {
	drug, err := s.drugRepo.GetByID(ctx, drugID)
	if err != nil {
		s.logger.Warn().Err(err).Str("drug_id", drugID).Msg("alert check: drug lookup failed")
		return
	}

	total, err := s.lotRepo.TotalAvailable(ctx, drugID, "")
	if err != nil {
		s.logger.Warn().Err(err).Str("drug_id", drugID).Msg("alert check: stock total failed")
		return
	}

	var alert *repository.StockAlert
	switch {
	case total <= drug.RuptureThreshold:
		alert = &repository.StockAlert{
			DrugID:    drugID,
			AlertType: repository.AlertRupture,
			Level:     repository.LevelCritical,
			Message:   fmt.Sprintf("%s is out of stock or below the rupture threshold (%d left, threshold %d)", drug.Name, total, drug.RuptureThreshold),
		}
	case total <= drug.AlertThreshold:
		alert = &repository.StockAlert{
			DrugID:    drugID,
			AlertType: repository.AlertLowThreshold,
			Level:     repository.LevelWarning,
			Message:   fmt.Sprintf("%s is running low (%d left, threshold %d)", drug.Name, total, drug.AlertThreshold),
		}
	case drug.MaxThreshold > 0 && total > drug.MaxThreshold:
		alert = &repository.StockAlert{
			DrugID:    drugID,
			AlertType: repository.AlertSurplus,
			Level:     repository.LevelInfo,
			Message:   fmt.Sprintf("%s is overstocked (%d on hand, ceiling %d)", drug.Name, total, drug.MaxThreshold),
		}
	default:
		return
	}

	if err := s.alertRepo.Upsert(ctx, alert); err != nil {
		s.logger.Error().Err(err).Str("drug_id", drugID).Msg("failed to upsert stock alert")
		return
	}
	s.publisher.PublishAlertRaised(ctx, alert)
}

// RecomputeDrug re-evaluates every alert type for one drug on demand:
// the aggregate thresholds plus per-lot expiry within the warning
// window. Unlike CheckDrug it reports failures to the caller.
func (s *AlertService) RecomputeDrug(ctx context.Context, drugID string) error {
	if _, err := s.drugRepo.GetByID(ctx, drugID); err != nil {
		return err
	}
	s.CheckDrug(ctx, drugID)

	lots, err := s.lotRepo.List(ctx, repository.LotFilter{
		DrugID: drugID,
		Status: repository.LotStatusActive,
	})
	if err != nil {
		return err
	}

	now := time.Now()
	horizon := now.AddDate(0, 0, s.expiryWarningDays)
	for _, lot := range lots {
		if lot.QuantityAvailable == 0 || lot.ExpiryDate.After(horizon) {
			continue
		}
		alert := expiryAlert(lot, now)
		if err := s.alertRepo.Upsert(ctx, alert); err != nil {
			return err
		}
		s.publisher.PublishAlertRaised(ctx, alert)
	}
	return nil
}

// expiryAlert builds the expiration alert for a lot: critical once the
// date has passed, warning while it is still approaching
func expiryAlert(lot *repository.LotWithDrug, now time.Time) *repository.StockAlert {
	level := repository.LevelWarning
	message := fmt.Sprintf("%s lot %s expires on %s", lot.DrugName, lot.LotNumber, lot.ExpiryDate.Format("2006-01-02"))
	if lot.ExpiryDate.Before(now) {
		level = repository.LevelCritical
		message = fmt.Sprintf("%s lot %s expired on %s", lot.DrugName, lot.LotNumber, lot.ExpiryDate.Format("2006-01-02"))
	}
	return &repository.StockAlert{
		DrugID:    lot.DrugID,
		AlertType: repository.AlertExpiration,
		Level:     level,
		Message:   message,
	}
}

// RunExpirySweep marks expired lots and raises expiration alerts for
// lots expired or expiring within the warning window
func (s *AlertService) RunExpirySweep(ctx context.Context) error {
	// Alerts first: MarkExpired flips lots out of 'active', and
	// GetExpiring only sees active lots.
	lots, err := s.lotRepo.GetExpiring(ctx, s.expiryWarningDays)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, lot := range lots {
		alert := expiryAlert(lot, now)
		if err := s.alertRepo.Upsert(ctx, alert); err != nil {
			s.logger.Error().Err(err).Str("lot_id", lot.ID).Msg("failed to upsert expiration alert")
			continue
		}
		s.publisher.PublishAlertRaised(ctx, alert)
	}

	expired, err := s.lotRepo.MarkExpired(ctx)
	if err != nil {
		return err
	}
	if len(expired) > 0 {
		s.logger.Info().Int("count", len(expired)).Msg("lots marked expired")
	}

	// Expired lots also degrade availability, re-check their thresholds
	for _, lot := range expired {
		s.CheckDrug(ctx, lot.DrugID)
	}

	return nil
}

// List lists alerts with optional status and level filters
func (s *AlertService) List(ctx context.Context, status, level string) ([]*repository.StockAlertDetail, error) {
	return s.alertRepo.List(ctx, status, level)
}

// Resolve closes an active alert
func (s *AlertService) Resolve(ctx context.Context, id string, resolvedBy *string) (*repository.StockAlert, error) {
	return s.setStatus(ctx, id, repository.AlertResolved, repository.AuditResolved, resolvedBy)
}

// Ignore dismisses an active alert without resolving it
func (s *AlertService) Ignore(ctx context.Context, id string, resolvedBy *string) (*repository.StockAlert, error) {
	return s.setStatus(ctx, id, repository.AlertIgnored, repository.AuditIgnored, resolvedBy)
}

func (s *AlertService) setStatus(ctx context.Context, id, status, auditAction string, resolvedBy *string) (*repository.StockAlert, error) {
	updated, err := s.alertRepo.SetStatus(ctx, id, status, resolvedBy)
	if err != nil {
		return nil, err
	}
	if !updated {
		alert, err := s.alertRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, errors.InvalidTransition("alert", alert.Status, status)
	}

	alert, err := s.alertRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "alert", alert.ID, auditAction, nil)
	s.publisher.PublishAlertResolved(ctx, alert)
	return alert, nil
}
