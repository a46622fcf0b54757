package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/logiclinic/logiclinic-backend/pkg/database"
	"github.com/logiclinic/logiclinic-backend/pkg/errors"
	"github.com/logiclinic/logiclinic-backend/pkg/tenant"
)

// Alert types
const (
	AlertRupture      = "rupture"
	AlertLowThreshold = "low_threshold"
	AlertExpiration   = "expiration"
	AlertSurplus      = "surplus"
)

// Alert levels
const (
	LevelCritical = "critical"
	LevelWarning  = "warning"
	LevelInfo     = "info"
)

// Alert statuses
const (
	AlertActive   = "active"
	AlertResolved = "resolved"
	AlertIgnored  = "ignored"
)

// StockAlert represents a stock alert for a drug
type StockAlert struct {
	ID         string     `db:"id" json:"id"`
	TenantID   string     `db:"tenant_id" json:"tenant_id"`
	DrugID     string     `db:"drug_id" json:"drug_id"`
	AlertType  string     `db:"alert_type" json:"alert_type"`
	Level      string     `db:"level" json:"level"`
	Message    string     `db:"message" json:"message"`
	Status     string     `db:"status" json:"status"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy *string    `db:"resolved_by" json:"resolved_by,omitempty"`
}

// StockAlertDetail is an alert joined with its drug for display
type StockAlertDetail struct {
	StockAlert
	DrugName string `db:"drug_name" json:"drug_name"`
	DrugCode string `db:"drug_code" json:"drug_code"`
}

// AlertRepository handles stock alert persistence
type AlertRepository struct {
	db *database.DB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Upsert creates an alert or refreshes the active one of the same type for
// the same drug. A partial unique index on (tenant_id, drug_id, alert_type)
// WHERE status = 'active' dedupes concurrent writers, so re-running the
// checks never piles up duplicates.
func (r *AlertRepository) Upsert(ctx context.Context, alert *StockAlert) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return errors.MissingTenantContext()
	}

	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	alert.TenantID = tenantID
	alert.Status = AlertActive

	query := `
		INSERT INTO stock_alerts (
			id, tenant_id, drug_id, alert_type, level, message, status
		) VALUES ($1, $2, $3, $4, $5, $6, 'active')
		ON CONFLICT (tenant_id, drug_id, alert_type) WHERE (status = 'active')
		DO UPDATE SET
			level = EXCLUDED.level,
			message = EXCLUDED.message,
			created_at = NOW()
		RETURNING id, created_at
	`

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		err := r.db.QueryRowxContext(ctx, query,
			alert.ID, alert.TenantID, alert.DrugID, alert.AlertType,
			alert.Level, alert.Message,
		).Scan(&alert.ID, &alert.CreatedAt)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
		return nil
	})
}

// GetByID gets an alert by ID
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*StockAlert, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}

	var alert StockAlert
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		return r.db.GetContext(ctx, &alert, `SELECT * FROM stock_alerts WHERE id = $1`, id)
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("alert")
		}
		return nil, err
	}
	return &alert, nil
}

// List lists alerts, most recent first
func (r *AlertRepository) List(ctx context.Context, status, level string) ([]*StockAlertDetail, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}

	var alerts []*StockAlertDetail
	query := `
		SELECT a.*, d.name AS drug_name, d.code AS drug_code
		FROM stock_alerts a
		JOIN drugs d ON d.id = a.drug_id
		WHERE ($1 = '' OR a.status = $1)
		AND ($2 = '' OR a.level = $2)
		ORDER BY a.created_at DESC
	`
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		return r.db.SelectContext(ctx, &alerts, query, status, level)
	})
	if err != nil {
		return nil, err
	}
	return alerts, nil
}

// SetStatus resolves or ignores an active alert. Only active alerts can
// change status; a second resolver loses the race and gets false back.
func (r *AlertRepository) SetStatus(ctx context.Context, id, status string, resolvedBy *string) (bool, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return false, errors.MissingTenantContext()
	}

	var updated bool
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx, `
			UPDATE stock_alerts SET
				status = $2, resolved_at = NOW(), resolved_by = $3
			WHERE id = $1 AND status = 'active'
		`, id, status, resolvedBy)
		if err != nil {
			return err
		}
		affected, _ := result.RowsAffected()
		updated = affected > 0
		return nil
	})
	return updated, err
}

// CountActiveByLevel counts active alerts per level
func (r *AlertRepository) CountActiveByLevel(ctx context.Context) (map[string]int64, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}

	rows := []struct {
		Level string `db:"level"`
		Count int64  `db:"count"`
	}{}
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		return r.db.SelectContext(ctx, &rows, `
			SELECT level, COUNT(*) AS count FROM stock_alerts
			WHERE status = 'active'
			GROUP BY level
		`)
	})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Level] = row.Count
	}
	return counts, nil
}
