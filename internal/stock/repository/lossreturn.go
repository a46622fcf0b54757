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

// Loss/return kinds
const (
	KindLoss   = "loss"
	KindReturn = "return"
)

// Loss/return statuses. A record is created in_progress and flipped to
// validated once its stock adjustments and movement have landed, all
// inside the same transaction.
const (
	LossReturnInProgress = "in_progress"
	LossReturnValidated  = "validated"
)

// LossReturn records a loss written off in place or a return of retail
// stock to the bulk warehouse
type LossReturn struct {
	ID         string    `db:"id" json:"id"`
	TenantID   string    `db:"tenant_id" json:"tenant_id"`
	Kind       string    `db:"kind" json:"kind"`
	DrugID     string    `db:"drug_id" json:"drug_id"`
	LotID      string    `db:"lot_id" json:"lot_id"`
	Quantity   int       `db:"quantity" json:"quantity"`
	Status     string    `db:"status" json:"status"`
	Reason     *string   `db:"reason" json:"reason,omitempty"`
	RecordedBy *string   `db:"recorded_by" json:"recorded_by,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// LossReturnDetail is a loss/return joined with drug and lot for display
type LossReturnDetail struct {
	LossReturn
	DrugName  string `db:"drug_name" json:"drug_name"`
	LotNumber string `db:"lot_number" json:"lot_number"`
}

// LossReturnRepository handles loss and return persistence
type LossReturnRepository struct {
	db *database.DB
}

// NewLossReturnRepository creates a new loss/return repository
func NewLossReturnRepository(db *database.DB) *LossReturnRepository {
	return &LossReturnRepository{db: db}
}

// Create records a loss or return
func (r *LossReturnRepository) Create(ctx context.Context, lr *LossReturn) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return errors.MissingTenantContext()
	}

	if lr.ID == "" {
		lr.ID = uuid.New().String()
	}
	lr.TenantID = tenantID
	if lr.Status == "" {
		lr.Status = LossReturnInProgress
	}

	query := `
		INSERT INTO loss_returns (
			id, tenant_id, kind, drug_id, lot_id, quantity, status, reason, recorded_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		err := r.db.QueryRowxContext(ctx, query,
			lr.ID, lr.TenantID, lr.Kind, lr.DrugID, lr.LotID,
			lr.Quantity, lr.Status, lr.Reason, lr.RecordedBy,
		).Scan(&lr.CreatedAt)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
		return nil
	})
}

// MarkValidated flips an in_progress record to validated. Callers run it
// in the same transaction as the stock adjustments the record describes.
func (r *LossReturnRepository) MarkValidated(ctx context.Context, id string) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return errors.MissingTenantContext()
	}

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx, `
			UPDATE loss_returns SET status = 'validated'
			WHERE id = $1 AND status = 'in_progress'
		`, id)
		if err != nil {
			return err
		}
		affected, _ := result.RowsAffected()
		if affected == 0 {
			return errors.InvalidTransition("loss_return", LossReturnValidated, "validate")
		}
		return nil
	})
}

// GetByID gets a loss/return by ID
func (r *LossReturnRepository) GetByID(ctx context.Context, id string) (*LossReturnDetail, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}

	var lr LossReturnDetail
	query := `
		SELECT x.*, d.name AS drug_name, l.lot_number
		FROM loss_returns x
		JOIN drugs d ON d.id = x.drug_id
		JOIN lots l ON l.id = x.lot_id
		WHERE x.id = $1
	`
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		return r.db.GetContext(ctx, &lr, query, id)
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("loss/return record")
		}
		return nil, err
	}
	return &lr, nil
}

// List lists losses and returns, newest first
func (r *LossReturnRepository) List(ctx context.Context, kind string, page, perPage int) ([]*LossReturnDetail, int64, error) {
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
	offset := (page - 1) * perPage

	var records []*LossReturnDetail
	var total int64

	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		if err := r.db.GetContext(ctx, &total,
			`SELECT COUNT(*) FROM loss_returns WHERE ($1 = '' OR kind = $1)`, kind,
		); err != nil {
			return err
		}
		return r.db.SelectContext(ctx, &records, `
			SELECT x.*, d.name AS drug_name, l.lot_number
			FROM loss_returns x
			JOIN drugs d ON d.id = x.drug_id
			JOIN lots l ON l.id = x.lot_id
			WHERE ($1 = '' OR x.kind = $1)
			ORDER BY x.created_at DESC
			LIMIT $2 OFFSET $3
		`, kind, perPage, offset)
	})
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
