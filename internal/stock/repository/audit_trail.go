package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/logiclinic/logiclinic-backend/pkg/database"
	"github.com/logiclinic/logiclinic-backend/pkg/errors"
	"github.com/logiclinic/logiclinic-backend/pkg/tenant"
)

// Audit actions
const (
	AuditCreated         = "CREATED"
	AuditApproved        = "APPROVED"
	AuditApprovedPartial = "APPROVED_PARTIAL"
	AuditRejected        = "REJECTED"
	AuditReceived        = "RECEIVED"
	AuditResolved        = "RESOLVED"
	AuditIgnored         = "IGNORED"
)

// AuditEntry represents an audit trail entry. State transitions carry
// the old and new status plus JSON snapshots of the entity around the
// change; plain creations leave them empty.
// Audit entries are append-only, never updated or deleted.
type AuditEntry struct {
	ID              string    `db:"id" json:"id"`
	EntityType      string    `db:"entity_type" json:"entity_type"`
	EntityID        string    `db:"entity_id" json:"entity_id"`
	Action          string    `db:"action" json:"action"`
	OldStatus       *string   `db:"old_status" json:"old_status,omitempty"`
	NewStatus       *string   `db:"new_status" json:"new_status,omitempty"`
	OldState        *string   `db:"old_state" json:"old_state,omitempty"`
	NewState        *string   `db:"new_state" json:"new_state,omitempty"`
	Details         *string   `db:"details" json:"details,omitempty"`
	PerformedBy     *string   `db:"performed_by" json:"performed_by,omitempty"`
	PerformedByName *string   `db:"performed_by_name" json:"performed_by_name,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// AuditTrailRepository handles audit trail persistence.
// All operations are append-only: no UPDATE or DELETE is permitted.
type AuditTrailRepository struct {
	db *database.DB
}

// NewAuditTrailRepository creates a new audit trail repository
func NewAuditTrailRepository(db *database.DB) *AuditTrailRepository {
	return &AuditTrailRepository{db: db}
}

// Create creates a new audit trail entry (append-only, no update/delete)
func (r *AuditTrailRepository) Create(ctx context.Context, entry *AuditEntry) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return errors.MissingTenantContext()
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			INSERT INTO audit_trail (
				id, tenant_id, entity_type, entity_id, action,
				old_status, new_status, old_state, new_state, details,
				performed_by, performed_by_name
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING created_at
		`

		return r.db.QueryRowxContext(ctx, query,
			entry.ID, tenantID, entry.EntityType, entry.EntityID, entry.Action,
			entry.OldStatus, entry.NewStatus, entry.OldState, entry.NewState,
			entry.Details, entry.PerformedBy, entry.PerformedByName,
		).Scan(&entry.CreatedAt)
	})
}

// ListByEntity lists audit entries for a specific entity with pagination
func (r *AuditTrailRepository) ListByEntity(ctx context.Context, entityType, entityID string, page, perPage int) ([]*AuditEntry, int64, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, 0, errors.MissingTenantContext()
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	var total int64
	var entries []*AuditEntry

	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		countQuery := `SELECT COUNT(*) FROM audit_trail WHERE entity_type = $1 AND entity_id = $2`
		if err := r.db.GetContext(ctx, &total, countQuery, entityType, entityID); err != nil {
			return err
		}

		offset := (page - 1) * perPage
		query := `
			SELECT id, entity_type, entity_id, action,
			       old_status, new_status, old_state, new_state, details,
			       performed_by, performed_by_name, created_at
			FROM audit_trail
			WHERE entity_type = $1 AND entity_id = $2
			ORDER BY created_at DESC
			LIMIT $3 OFFSET $4
		`

		return r.db.SelectContext(ctx, &entries, query, entityType, entityID, perPage, offset)
	})

	if err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// ListByTenant lists audit entries for the tenant with optional filters
func (r *AuditTrailRepository) ListByTenant(ctx context.Context, entityType string, from, to *time.Time, page, perPage int) ([]*AuditEntry, int64, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, 0, errors.MissingTenantContext()
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	var total int64
	var entries []*AuditEntry

	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		args := []interface{}{}
		argIdx := 1

		countQuery := `SELECT COUNT(*) FROM audit_trail WHERE 1=1`
		query := `
			SELECT id, entity_type, entity_id, action,
			       old_status, new_status, old_state, new_state, details,
			       performed_by, performed_by_name, created_at
			FROM audit_trail WHERE 1=1
		`

		if entityType != "" {
			countQuery += fmt.Sprintf(` AND entity_type = $%d`, argIdx)
			query += fmt.Sprintf(` AND entity_type = $%d`, argIdx)
			args = append(args, entityType)
			argIdx++
		}

		if from != nil {
			countQuery += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
			query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
			args = append(args, *from)
			argIdx++
		}

		if to != nil {
			countQuery += fmt.Sprintf(` AND created_at <= $%d`, argIdx)
			query += fmt.Sprintf(` AND created_at <= $%d`, argIdx)
			args = append(args, *to)
			argIdx++
		}

		if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
			return err
		}

		query += ` ORDER BY created_at DESC`
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
		args = append(args, perPage, (page-1)*perPage)

		return r.db.SelectContext(ctx, &entries, query, args...)
	})

	if err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
