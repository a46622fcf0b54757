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

// Dispensation statuses
const (
	DispensationCompleted = "completed"
	DispensationCancelled = "cancelled"
)

// Dispensation is a hand-out of drugs from the retail warehouse, either
// to a named patient or to an internal care service. Exactly one of the
// two recipients is set.
type Dispensation struct {
	ID                 string          `db:"id" json:"id"`
	TenantID           string          `db:"tenant_id" json:"tenant_id"`
	DispensationNumber string          `db:"dispensation_number" json:"dispensation_number"`
	PatientID          *string         `db:"patient_id" json:"patient_id,omitempty"`
	PatientName        *string         `db:"patient_name" json:"patient_name,omitempty"`
	ServiceName        *string         `db:"service_name" json:"service_name,omitempty"`
	Prescriber         *string         `db:"prescriber" json:"prescriber,omitempty"`
	Status             string          `db:"status" json:"status"`
	TotalAmount        decimal.Decimal `db:"total_amount" json:"total_amount"`
	DispensedBy        *string         `db:"dispensed_by" json:"dispensed_by,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
}

// DispensationLine is one drug lot handed out within a dispensation
type DispensationLine struct {
	ID             string          `db:"id" json:"id"`
	DispensationID string          `db:"dispensation_id" json:"dispensation_id"`
	TenantID       string          `db:"tenant_id" json:"tenant_id"`
	DrugID         string          `db:"drug_id" json:"drug_id"`
	LotID          string          `db:"lot_id" json:"lot_id"`
	Quantity       int             `db:"quantity" json:"quantity"`
	UnitPrice      decimal.Decimal `db:"unit_price" json:"unit_price"`
	LineTotal      decimal.Decimal `db:"line_total" json:"line_total"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// DispensationLineDetail is a line joined with drug and lot for display
type DispensationLineDetail struct {
	DispensationLine
	DrugName  string `db:"drug_name" json:"drug_name"`
	LotNumber string `db:"lot_number" json:"lot_number"`
}

// DispensationWithLines is a dispensation with its lines
type DispensationWithLines struct {
	Dispensation
	Lines []*DispensationLineDetail `json:"lines"`
}

// DispensationRepository handles dispensation persistence
type DispensationRepository struct {
	db *database.DB
}

// NewDispensationRepository creates a new dispensation repository
func NewDispensationRepository(db *database.DB) *DispensationRepository {
	return &DispensationRepository{db: db}
}

// Create creates a dispensation with its lines in one transaction
func (r *DispensationRepository) Create(ctx context.Context, d *Dispensation, lines []*DispensationLine) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return errors.MissingTenantContext()
	}

	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	d.TenantID = tenantID
	if d.Status == "" {
		d.Status = DispensationCompleted
	}

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		err := r.db.QueryRowxContext(ctx, `
			INSERT INTO dispensations (
				id, tenant_id, dispensation_number, patient_id, patient_name,
				service_name, prescriber, status, total_amount, dispensed_by
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING created_at
		`,
			d.ID, d.TenantID, d.DispensationNumber, d.PatientID, d.PatientName,
			d.ServiceName, d.Prescriber, d.Status, d.TotalAmount, d.DispensedBy,
		).Scan(&d.CreatedAt)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}

		for _, line := range lines {
			if line.ID == "" {
				line.ID = uuid.New().String()
			}
			line.DispensationID = d.ID
			line.TenantID = tenantID

			err := r.db.QueryRowxContext(ctx, `
				INSERT INTO dispensation_lines (
					id, dispensation_id, tenant_id, drug_id, lot_id,
					quantity, unit_price, line_total
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING created_at
			`,
				line.ID, line.DispensationID, line.TenantID, line.DrugID,
				line.LotID, line.Quantity, line.UnitPrice, line.LineTotal,
			).Scan(&line.CreatedAt)
			if err != nil {
				if appErr := database.MapPQError(err); appErr != nil {
					return appErr
				}
				return err
			}
		}
		return nil
	})
}

// GetByID gets a dispensation with its lines
func (r *DispensationRepository) GetByID(ctx context.Context, id string) (*DispensationWithLines, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}

	var result DispensationWithLines
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		if err := r.db.GetContext(ctx, &result.Dispensation, `SELECT * FROM dispensations WHERE id = $1`, id); err != nil {
			return err
		}
		return r.db.SelectContext(ctx, &result.Lines, `
			SELECT dl.*, d.name AS drug_name, l.lot_number
			FROM dispensation_lines dl
			JOIN drugs d ON d.id = dl.drug_id
			JOIN lots l ON l.id = dl.lot_id
			WHERE dl.dispensation_id = $1
			ORDER BY dl.created_at
		`, id)
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("dispensation")
		}
		return nil, err
	}
	return &result, nil
}

// List lists dispensations, newest first
func (r *DispensationRepository) List(ctx context.Context, page, perPage int) ([]*Dispensation, int64, error) {
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

	var dispensations []*Dispensation
	var total int64

	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM dispensations`); err != nil {
			return err
		}
		return r.db.SelectContext(ctx, &dispensations, `
			SELECT * FROM dispensations
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2
		`, perPage, offset)
	})
	if err != nil {
		return nil, 0, err
	}
	return dispensations, total, nil
}

// TotalAmountSince sums dispensation totals recorded after the given time
func (r *DispensationRepository) TotalAmountSince(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return decimal.Zero, errors.MissingTenantContext()
	}

	var total decimal.NullDecimal
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		return r.db.GetContext(ctx, &total, `
			SELECT SUM(total_amount) FROM dispensations
			WHERE status = 'completed' AND created_at >= $1
		`, since)
	})
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}
