package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/logiclinic/logiclinic-backend/pkg/database"
	"github.com/logiclinic/logiclinic-backend/pkg/errors"
	"github.com/logiclinic/logiclinic-backend/pkg/tenant"
)

// Movement types
const (
	MovementReception    = "reception"
	MovementTransfer     = "transfer"
	MovementDispensation = "dispensation"
	MovementLoss         = "loss"
	MovementReturn       = "return"
	MovementInventory    = "inventory"
)

// Movement locations beyond the two warehouses
const (
	LocationExternal = "external"
	LocationPatient  = "patient"
	LocationService  = "service"
)

// StockMovement is one immutable line in the movement ledger.
// QuantityBefore and QuantityAfter snapshot the touched lot's available
// quantity around the adjustment, so the ledger replays without joins.
type StockMovement struct {
	ID             string    `db:"id" json:"id"`
	TenantID       string    `db:"tenant_id" json:"tenant_id"`
	DrugID         string    `db:"drug_id" json:"drug_id"`
	LotID          *string   `db:"lot_id" json:"lot_id,omitempty"`
	MovementType   string    `db:"movement_type" json:"movement_type"`
	Quantity       int       `db:"quantity" json:"quantity"`
	QuantityBefore int       `db:"quantity_before" json:"quantity_before"`
	QuantityAfter  int       `db:"quantity_after" json:"quantity_after"`
	FromLocation   *string   `db:"from_location" json:"from_location,omitempty"`
	ToLocation     *string   `db:"to_location" json:"to_location,omitempty"`
	Reference      *string   `db:"reference" json:"reference,omitempty"`
	Reason         *string   `db:"reason" json:"reason,omitempty"`
	PerformedBy    *string   `db:"performed_by" json:"performed_by,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// MovementFilter narrows movement listings
type MovementFilter struct {
	DrugID       string
	LotID        string
	MovementType string
	Since        *time.Time
	Until        *time.Time
}

// MovementRepository handles the stock movement ledger
type MovementRepository struct {
	db *database.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *database.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// Create appends a movement to the ledger. Movements are never updated
// or deleted.
func (r *MovementRepository) Create(ctx context.Context, m *StockMovement) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return errors.MissingTenantContext()
	}

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.TenantID = tenantID

	query := `
		INSERT INTO stock_movements (
			id, tenant_id, drug_id, lot_id, movement_type, quantity,
			quantity_before, quantity_after, from_location, to_location,
			reference, reason, performed_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		err := r.db.QueryRowxContext(ctx, query,
			m.ID, m.TenantID, m.DrugID, m.LotID, m.MovementType, m.Quantity,
			m.QuantityBefore, m.QuantityAfter, m.FromLocation, m.ToLocation,
			m.Reference, m.Reason, m.PerformedBy,
		).Scan(&m.CreatedAt)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
		return nil
	})
}

// List lists movements matching the filter, newest first
func (r *MovementRepository) List(ctx context.Context, filter MovementFilter, page, perPage int) ([]*StockMovement, int64, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, 0, errors.MissingTenantContext()
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}
	offset := (page - 1) * perPage

	where := `
		WHERE ($1 = '' OR drug_id::text = $1)
		AND ($2 = '' OR lot_id::text = $2)
		AND ($3 = '' OR movement_type = $3)
		AND ($4::timestamptz IS NULL OR created_at >= $4)
		AND ($5::timestamptz IS NULL OR created_at <= $5)
	`

	var movements []*StockMovement
	var total int64

	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		if err := r.db.GetContext(ctx, &total,
			`SELECT COUNT(*) FROM stock_movements `+where,
			filter.DrugID, filter.LotID, filter.MovementType, filter.Since, filter.Until,
		); err != nil {
			return err
		}
		return r.db.SelectContext(ctx, &movements,
			`SELECT * FROM stock_movements `+where+` ORDER BY created_at DESC LIMIT $6 OFFSET $7`,
			filter.DrugID, filter.LotID, filter.MovementType, filter.Since, filter.Until,
			perPage, offset,
		)
	})
	if err != nil {
		return nil, 0, err
	}
	return movements, total, nil
}

// CountSince counts movements of a type recorded after the given time
func (r *MovementRepository) CountSince(ctx context.Context, movementType string, since time.Time) (int64, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return 0, errors.MissingTenantContext()
	}

	var count int64
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		return r.db.GetContext(ctx, &count, `
			SELECT COUNT(*) FROM stock_movements
			WHERE movement_type = $1 AND created_at >= $2
		`, movementType, since)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
