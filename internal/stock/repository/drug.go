package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/logiclinic/logiclinic-backend/pkg/database"
	"github.com/logiclinic/logiclinic-backend/pkg/errors"
	"github.com/logiclinic/logiclinic-backend/pkg/tenant"
)

// Drug represents a drug in the catalog. EntryPrice is what the pharmacy
// pays the supplier; UnitPrice is what a dispensation bills. MaxThreshold
// caps desired stock: zero disables the surplus alert.
type Drug struct {
	ID               string          `db:"id" json:"id"`
	TenantID         string          `db:"tenant_id" json:"tenant_id"`
	Code             string          `db:"code" json:"code"`
	Name             string          `db:"name" json:"name"`
	GenericName      *string         `db:"generic_name" json:"generic_name,omitempty"`
	Dosage           *string         `db:"dosage" json:"dosage,omitempty"`
	Form             *string         `db:"form" json:"form,omitempty"`
	UnitPrice        decimal.Decimal `db:"unit_price" json:"unit_price"`
	EntryPrice       decimal.Decimal `db:"entry_price" json:"entry_price"`
	AlertThreshold   int             `db:"alert_threshold" json:"alert_threshold"`
	RuptureThreshold int             `db:"rupture_threshold" json:"rupture_threshold"`
	MaxThreshold     int             `db:"max_threshold" json:"max_threshold"`
	IsActive         bool            `db:"is_active" json:"is_active"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// DrugRepository handles drug catalog persistence
type DrugRepository struct {
	db *database.DB
}

// NewDrugRepository creates a new drug repository
func NewDrugRepository(db *database.DB) *DrugRepository {
	return &DrugRepository{db: db}
}

// Create creates a new drug
func (r *DrugRepository) Create(ctx context.Context, drug *Drug) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return errors.MissingTenantContext()
	}

	if drug.ID == "" {
		drug.ID = uuid.New().String()
	}
	drug.TenantID = tenantID

	query := `
		INSERT INTO drugs (
			id, tenant_id, code, name, generic_name, dosage, form,
			unit_price, entry_price, alert_threshold, rupture_threshold,
			max_threshold, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		err := r.db.QueryRowxContext(ctx, query,
			drug.ID, drug.TenantID, drug.Code, drug.Name, drug.GenericName,
			drug.Dosage, drug.Form, drug.UnitPrice, drug.EntryPrice,
			drug.AlertThreshold, drug.RuptureThreshold, drug.MaxThreshold,
			drug.IsActive,
		).Scan(&drug.CreatedAt, &drug.UpdatedAt)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
		return nil
	})
}

// GetByID gets a drug by ID
func (r *DrugRepository) GetByID(ctx context.Context, id string) (*Drug, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}

	var drug Drug
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		return r.db.GetContext(ctx, &drug, `SELECT * FROM drugs WHERE id = $1`, id)
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("drug")
		}
		return nil, err
	}
	return &drug, nil
}

// GetByCode gets a drug by its catalog code
func (r *DrugRepository) GetByCode(ctx context.Context, code string) (*Drug, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}

	var drug Drug
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		return r.db.GetContext(ctx, &drug, `SELECT * FROM drugs WHERE code = $1`, code)
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("drug")
		}
		return nil, err
	}
	return &drug, nil
}

// List lists active drugs with pagination
func (r *DrugRepository) List(ctx context.Context, page, perPage int) ([]*Drug, int64, error) {
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

	var drugs []*Drug
	var total int64

	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM drugs WHERE is_active = true`); err != nil {
			return err
		}
		return r.db.SelectContext(ctx, &drugs, `
			SELECT * FROM drugs
			WHERE is_active = true
			ORDER BY name
			LIMIT $1 OFFSET $2
		`, perPage, offset)
	})
	if err != nil {
		return nil, 0, err
	}
	return drugs, total, nil
}

// Update updates a drug
func (r *DrugRepository) Update(ctx context.Context, drug *Drug) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return errors.MissingTenantContext()
	}
	drug.TenantID = tenantID

	query := `
		UPDATE drugs SET
			name = $2, generic_name = $3, dosage = $4, form = $5,
			unit_price = $6, entry_price = $7, alert_threshold = $8,
			rupture_threshold = $9, max_threshold = $10, is_active = $11,
			updated_at = NOW()
		WHERE id = $1
	`

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx, query,
			drug.ID, drug.Name, drug.GenericName, drug.Dosage, drug.Form,
			drug.UnitPrice, drug.EntryPrice, drug.AlertThreshold,
			drug.RuptureThreshold, drug.MaxThreshold, drug.IsActive,
		)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}

		affected, _ := result.RowsAffected()
		if affected == 0 {
			return errors.NotFound("drug")
		}
		return nil
	})
}
