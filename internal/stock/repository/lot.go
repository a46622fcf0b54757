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

// Warehouse identifiers
const (
	WarehouseBulk   = "bulk"
	WarehouseRetail = "retail"
)

// Lot statuses
const (
	LotStatusActive   = "active"
	LotStatusExpired  = "expired"
	LotStatusDepleted = "depleted"
)

// Lot represents a physical batch of a drug held in one warehouse
type Lot struct {
	ID                string          `db:"id" json:"id"`
	TenantID          string          `db:"tenant_id" json:"tenant_id"`
	DrugID            string          `db:"drug_id" json:"drug_id"`
	LotNumber         string          `db:"lot_number" json:"lot_number"`
	Warehouse         string          `db:"warehouse" json:"warehouse"`
	QuantityInitial   int             `db:"quantity_initial" json:"quantity_initial"`
	QuantityAvailable int             `db:"quantity_available" json:"quantity_available"`
	ExpiryDate        time.Time       `db:"expiry_date" json:"expiry_date"`
	Supplier          *string         `db:"supplier" json:"supplier,omitempty"`
	UnitCost          decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	Status            string          `db:"status" json:"status"`
	ReceivedAt        time.Time       `db:"received_at" json:"received_at"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// LotWithDrug is a lot joined with its drug for display and error messages
type LotWithDrug struct {
	Lot
	DrugName string `db:"drug_name" json:"drug_name"`
	DrugCode string `db:"drug_code" json:"drug_code"`
}

// LotFilter narrows lot listings
type LotFilter struct {
	DrugID    string
	Warehouse string
	Status    string
}

// LotRepository handles lot persistence
type LotRepository struct {
	db *database.DB
}

// NewLotRepository creates a new lot repository
func NewLotRepository(db *database.DB) *LotRepository {
	return &LotRepository{db: db}
}

// Create creates a new lot
func (r *LotRepository) Create(ctx context.Context, lot *Lot) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return errors.MissingTenantContext()
	}

	if lot.ID == "" {
		lot.ID = uuid.New().String()
	}
	lot.TenantID = tenantID
	if lot.Status == "" {
		lot.Status = LotStatusActive
	}
	if lot.ReceivedAt.IsZero() {
		lot.ReceivedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO lots (
			id, tenant_id, drug_id, lot_number, warehouse,
			quantity_initial, quantity_available, expiry_date,
			supplier, unit_cost, status, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		err := r.db.QueryRowxContext(ctx, query,
			lot.ID, lot.TenantID, lot.DrugID, lot.LotNumber, lot.Warehouse,
			lot.QuantityInitial, lot.QuantityAvailable, lot.ExpiryDate,
			lot.Supplier, lot.UnitCost, lot.Status, lot.ReceivedAt,
		).Scan(&lot.CreatedAt, &lot.UpdatedAt)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
		return nil
	})
}

// GetByID gets a lot by ID
func (r *LotRepository) GetByID(ctx context.Context, id string) (*Lot, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}

	var lot Lot
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		return r.db.GetContext(ctx, &lot, `SELECT * FROM lots WHERE id = $1`, id)
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("lot")
		}
		return nil, err
	}
	return &lot, nil
}

// GetWithDrug gets a lot joined with its drug
func (r *LotRepository) GetWithDrug(ctx context.Context, id string) (*LotWithDrug, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}

	var lot LotWithDrug
	query := `
		SELECT l.*, d.name AS drug_name, d.code AS drug_code
		FROM lots l
		JOIN drugs d ON d.id = l.drug_id
		WHERE l.id = $1
	`
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		return r.db.GetContext(ctx, &lot, query, id)
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("lot")
		}
		return nil, err
	}
	return &lot, nil
}

// List lists lots matching the filter, soonest expiry first
func (r *LotRepository) List(ctx context.Context, filter LotFilter) ([]*LotWithDrug, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}

	query := `
		SELECT l.*, d.name AS drug_name, d.code AS drug_code
		FROM lots l
		JOIN drugs d ON d.id = l.drug_id
		WHERE ($1 = '' OR l.drug_id::text = $1)
		AND ($2 = '' OR l.warehouse = $2)
		AND ($3 = '' OR l.status = $3)
		ORDER BY l.expiry_date, l.lot_number
	`

	var lots []*LotWithDrug
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		return r.db.SelectContext(ctx, &lots, query, filter.DrugID, filter.Warehouse, filter.Status)
	})
	if err != nil {
		return nil, err
	}
	return lots, nil
}

// AdjustQuantity atomically applies a delta to a lot's available quantity.
// The UPDATE only matches when the resulting quantity stays non-negative,
// so two concurrent debits can never drive a lot below zero. A depleted
// lot flips to 'depleted'; a credit on a depleted lot revives it. A credit
// past the initial quantity raises it too, so a surplus found during an
// inventory count still satisfies the range constraint.
func (r *LotRepository) AdjustQuantity(ctx context.Context, lotID string, delta int) (*Lot, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}

	query := `
		UPDATE lots SET
			quantity_available = quantity_available + $2,
			quantity_initial = GREATEST(quantity_initial, quantity_available + $2),
			status = CASE
				WHEN quantity_available + $2 = 0 THEN 'depleted'
				WHEN status = 'depleted' THEN 'active'
				ELSE status
			END,
			updated_at = NOW()
		WHERE id = $1 AND quantity_available + $2 >= 0
		RETURNING *
	`

	var lot Lot
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		err := r.db.GetContext(ctx, &lot, query, lotID, delta)
		if err != sql.ErrNoRows {
			return err
		}

		// Zero rows: the lot is either missing or short. Re-read inside
		// the same transaction to report which.
		var current LotWithDrug
		readErr := r.db.GetContext(ctx, &current, `
			SELECT l.*, d.name AS drug_name, d.code AS drug_code
			FROM lots l
			JOIN drugs d ON d.id = l.drug_id
			WHERE l.id = $1
		`, lotID)
		if readErr == sql.ErrNoRows {
			return errors.NotFound("lot")
		}
		if readErr != nil {
			return readErr
		}
		return errors.InsufficientStock(current.DrugName, current.LotNumber, current.QuantityAvailable, -delta)
	})
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

// CreditCounterpart credits quantity into the lot with the same number in
// the destination warehouse, creating it when absent. The upsert races
// safely: two concurrent transfers of the same lot both land as a single
// row with the summed quantities. Initial and available grow together so
// the quantity range constraint keeps holding.
func (r *LotRepository) CreditCounterpart(ctx context.Context, src *Lot, warehouse string, quantity int) (*Lot, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}

	query := `
		INSERT INTO lots (
			id, tenant_id, drug_id, lot_number, warehouse,
			quantity_initial, quantity_available, expiry_date,
			supplier, unit_cost, status, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $6, $7, $8, $9, 'active', NOW())
		ON CONFLICT (tenant_id, drug_id, lot_number, warehouse) DO UPDATE SET
			quantity_initial = lots.quantity_initial + EXCLUDED.quantity_initial,
			quantity_available = lots.quantity_available + EXCLUDED.quantity_available,
			status = 'active',
			updated_at = NOW()
		RETURNING *
	`

	var lot Lot
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		err := r.db.GetContext(ctx, &lot, query,
			uuid.New().String(), tenantID, src.DrugID, src.LotNumber, warehouse,
			quantity, src.ExpiryDate, src.Supplier, src.UnitCost,
		)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

// TotalAvailable sums the available quantity of a drug, optionally
// restricted to a warehouse. Only active lots count.
func (r *LotRepository) TotalAvailable(ctx context.Context, drugID, warehouse string) (int, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return 0, errors.MissingTenantContext()
	}

	var total sql.NullInt64
	query := `
		SELECT SUM(quantity_available) FROM lots
		WHERE drug_id = $1 AND status = 'active'
		AND ($2 = '' OR warehouse = $2)
	`
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		return r.db.GetContext(ctx, &total, query, drugID, warehouse)
	})
	if err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}

// WarehouseTotals sums available stock per warehouse across all drugs
func (r *LotRepository) WarehouseTotals(ctx context.Context) (map[string]int64, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}

	var rows []struct {
		Warehouse string `db:"warehouse"`
		Total     int64  `db:"total"`
	}
	query := `
		SELECT warehouse, SUM(quantity_available) AS total
		FROM lots WHERE status = 'active'
		GROUP BY warehouse
	`
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		return r.db.SelectContext(ctx, &rows, query)
	})
	if err != nil {
		return nil, err
	}

	totals := make(map[string]int64, len(rows))
	for _, row := range rows {
		totals[row.Warehouse] = row.Total
	}
	return totals, nil
}

// GetExpiring lists active lots with stock expiring within the given days,
// expired lots included
func (r *LotRepository) GetExpiring(ctx context.Context, withinDays int) ([]*LotWithDrug, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}

	var lots []*LotWithDrug
	query := `
		SELECT l.*, d.name AS drug_name, d.code AS drug_code
		FROM lots l
		JOIN drugs d ON d.id = l.drug_id
		WHERE l.status = 'active' AND l.quantity_available > 0
		AND l.expiry_date <= NOW() + INTERVAL '1 day' * $1
		ORDER BY l.expiry_date
	`
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		return r.db.SelectContext(ctx, &lots, query, withinDays)
	})
	if err != nil {
		return nil, err
	}
	return lots, nil
}

// MarkExpired flips active lots past their expiry date to 'expired' and
// returns the lots it touched
func (r *LotRepository) MarkExpired(ctx context.Context) ([]*Lot, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}

	var lots []*Lot
	query := `
		UPDATE lots SET status = 'expired', updated_at = NOW()
		WHERE status = 'active' AND expiry_date < NOW()
		RETURNING *
	`
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		return r.db.SelectContext(ctx, &lots, query)
	})
	if err != nil {
		return nil, err
	}
	return lots, nil
}
