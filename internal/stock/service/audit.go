package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/logiclinic/logiclinic-backend/internal/stock/repository"
	"github.com/logiclinic/logiclinic-backend/pkg/httputil"
	"github.com/logiclinic/logiclinic-backend/pkg/logger"
)

// AuditService records and queries the audit trail. Recording is
// best-effort: a failed write is logged and never fails the operation
// it describes.
type AuditService struct {
	repo   *repository.AuditTrailRepository
	logger *logger.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(repo *repository.AuditTrailRepository, log *logger.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		logger: log,
	}
}

// Record writes an audit entry for an entity. The acting user is taken
// from the request context. Failures are swallowed after logging.
func (s *AuditService) Record(ctx context.Context, entityType, entityID, action string, details map[string]any) {
	if s == nil {
		return
	}

	entry := &repository.AuditEntry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
	}

	if userID := httputil.GetUserID(ctx); userID != "" {
		entry.PerformedBy = &userID
	}
	if email := httputil.GetUserEmail(ctx); email != "" {
		entry.PerformedByName = &email
	}

	if len(details) > 0 {
		if data, err := json.Marshal(details); err == nil {
			str := string(data)
			entry.Details = &str
		}
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("entity_type", entityType).
			Str("entity_id", entityID).
			Str("action", action).
			Msg("failed to record audit entry")
	}
}

// RecordTransition writes an audit entry for a status change, with the
// old and new status and JSON snapshots of the entity around the change.
// Either snapshot may be nil. Failures are swallowed after logging.
func (s *AuditService) RecordTransition(ctx context.Context, entityType, entityID, action, oldStatus, newStatus string, oldState, newState any) {
	if s == nil {
		return
	}

	entry := &repository.AuditEntry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
	}
	if oldStatus != "" {
		entry.OldStatus = &oldStatus
	}
	if newStatus != "" {
		entry.NewStatus = &newStatus
	}
	entry.OldState = marshalState(oldState)
	entry.NewState = marshalState(newState)

	if userID := httputil.GetUserID(ctx); userID != "" {
		entry.PerformedBy = &userID
	}
	if email := httputil.GetUserEmail(ctx); email != "" {
		entry.PerformedByName = &email
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("entity_type", entityType).
			Str("entity_id", entityID).
			Str("action", action).
			Msg("failed to record audit transition")
	}
}

func marshalState(state any) *string {
	if state == nil {
		return nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil
	}
	str := string(data)
	return &str
}

// ListByEntity lists the audit history of an entity
func (s *AuditService) ListByEntity(ctx context.Context, entityType, entityID string, page, perPage int) ([]*repository.AuditEntry, int64, error) {
	return s.repo.ListByEntity(ctx, entityType, entityID, page, perPage)
}

// List lists audit entries with optional filters
func (s *AuditService) List(ctx context.Context, entityType string, from, to *time.Time, page, perPage int) ([]*repository.AuditEntry, int64, error) {
	return s.repo.ListByTenant(ctx, entityType, from, to, page, perPage)
}
