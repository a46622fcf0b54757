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

// Transfer statuses
const (
	TransferRequested          = "requested"
	TransferValidated          = "validated"
	TransferPartiallyValidated = "partially_validated"
	TransferRefused            = "refused"
	TransferReceived           = "received"
)

// Transfer is a bulk-to-retail transfer request
type Transfer struct {
	ID             string     `db:"id" json:"id"`
	TenantID       string     `db:"tenant_id" json:"tenant_id"`
	TransferNumber string     `db:"transfer_number" json:"transfer_number"`
	Status         string     `db:"status" json:"status"`
	Notes          *string    `db:"notes" json:"notes,omitempty"`
	RefusalReason  *string    `db:"refusal_reason" json:"refusal_reason,omitempty"`
	RequestedBy    *string    `db:"requested_by" json:"requested_by,omitempty"`
	ValidatedBy    *string    `db:"validated_by" json:"validated_by,omitempty"`
	ReceivedBy     *string    `db:"received_by" json:"received_by,omitempty"`
	RequestedAt    time.Time  `db:"requested_at" json:"requested_at"`
	ValidatedAt    *time.Time `db:"validated_at" json:"validated_at,omitempty"`
	ReceivedAt     *time.Time `db:"received_at" json:"received_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// TransferLine is one drug lot within a transfer
type TransferLine struct {
	ID                string    `db:"id" json:"id"`
	TransferID        string    `db:"transfer_id" json:"transfer_id"`
	TenantID          string    `db:"tenant_id" json:"tenant_id"`
	DrugID            string    `db:"drug_id" json:"drug_id"`
	LotID             string    `db:"lot_id" json:"lot_id"`
	QuantityRequested int       `db:"quantity_requested" json:"quantity_requested"`
	QuantityApproved  *int      `db:"quantity_approved" json:"quantity_approved,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// TransferLineDetail is a line joined with drug and lot for display
type TransferLineDetail struct {
	TransferLine
	DrugName  string `db:"drug_name" json:"drug_name"`
	DrugCode  string `db:"drug_code" json:"drug_code"`
	LotNumber string `db:"lot_number" json:"lot_number"`
}

// TransferWithLines is a transfer with its lines
type TransferWithLines struct {
	Transfer
	Lines []*TransferLineDetail `json:"lines"`
}

// TransferRepository handles transfer persistence
type TransferRepository struct {
	db *database.DB
}

// NewTransferRepository creates a new transfer repository
func NewTransferRepository(db *database.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

// Create creates a transfer with its lines in one transaction
func (r *TransferRepository) Create(ctx context.Context, t *Transfer, lines []*TransferLine) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return errors.MissingTenantContext()
	}

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.TenantID = tenantID
	if t.Status == "" {
		t.Status = TransferRequested
	}
	if t.RequestedAt.IsZero() {
		t.RequestedAt = time.Now().UTC()
	}

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		err := r.db.QueryRowxContext(ctx, `
			INSERT INTO transfers (
				id, tenant_id, transfer_number, status, notes,
				requested_by, requested_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at, updated_at
		`,
			t.ID, t.TenantID, t.TransferNumber, t.Status, t.Notes,
			t.RequestedBy, t.RequestedAt,
		).Scan(&t.CreatedAt, &t.UpdatedAt)
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
			line.TransferID = t.ID
			line.TenantID = tenantID

			err := r.db.QueryRowxContext(ctx, `
				INSERT INTO transfer_lines (
					id, transfer_id, tenant_id, drug_id, lot_id, quantity_requested
				) VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING created_at
			`,
				line.ID, line.TransferID, line.TenantID,
				line.DrugID, line.LotID, line.QuantityRequested,
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

// GetByID gets a transfer with its lines
func (r *TransferRepository) GetByID(ctx context.Context, id string) (*TransferWithLines, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}

	var result TransferWithLines
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		if err := r.db.GetContext(ctx, &result.Transfer, `SELECT * FROM transfers WHERE id = $1`, id); err != nil {
			return err
		}
		return r.db.SelectContext(ctx, &result.Lines, `
			SELECT tl.*, d.name AS drug_name, d.code AS drug_code, l.lot_number
			FROM transfer_lines tl
			JOIN drugs d ON d.id = tl.drug_id
			JOIN lots l ON l.id = tl.lot_id
			WHERE tl.transfer_id = $1
			ORDER BY tl.created_at
		`, id)
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("transfer")
		}
		return nil, err
	}
	return &result, nil
}

// List lists transfers, newest first
func (r *TransferRepository) List(ctx context.Context, status string, page, perPage int) ([]*Transfer, int64, error) {
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

	var transfers []*Transfer
	var total int64

	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		if err := r.db.GetContext(ctx, &total,
			`SELECT COUNT(*) FROM transfers WHERE ($1 = '' OR status = $1)`, status,
		); err != nil {
			return err
		}
		return r.db.SelectContext(ctx, &transfers, `
			SELECT * FROM transfers
			WHERE ($1 = '' OR status = $1)
			ORDER BY requested_at DESC
			LIMIT $2 OFFSET $3
		`, status, perPage, offset)
	})
	if err != nil {
		return nil, 0, err
	}
	return transfers, total, nil
}

// MarkValidated moves a requested transfer to validated or
// partially_validated. Returns false when the transfer was not in
// 'requested' anymore, leaving the caller to report why.
func (r *TransferRepository) MarkValidated(ctx context.Context, id, status string, validatedBy *string) (bool, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return false, errors.MissingTenantContext()
	}

	var updated bool
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx, `
			UPDATE transfers SET
				status = $2, validated_by = $3, validated_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND status = 'requested'
		`, id, status, validatedBy)
		if err != nil {
			return err
		}
		affected, _ := result.RowsAffected()
		updated = affected > 0
		return nil
	})
	return updated, err
}

// MarkRefused moves a requested transfer to refused
func (r *TransferRepository) MarkRefused(ctx context.Context, id string, reason, refusedBy *string) (bool, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return false, errors.MissingTenantContext()
	}

	var updated bool
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx, `
			UPDATE transfers SET
				status = 'refused', refusal_reason = $2, validated_by = $3,
				validated_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND status = 'requested'
		`, id, reason, refusedBy)
		if err != nil {
			return err
		}
		affected, _ := result.RowsAffected()
		updated = affected > 0
		return nil
	})
	return updated, err
}

// MarkReceived acknowledges receipt of a validated transfer
func (r *TransferRepository) MarkReceived(ctx context.Context, id string, receivedBy *string) (bool, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return false, errors.MissingTenantContext()
	}

	var updated bool
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx, `
			UPDATE transfers SET
				status = 'received', received_by = $2, received_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND status IN ('validated', 'partially_validated')
		`, id, receivedBy)
		if err != nil {
			return err
		}
		affected, _ := result.RowsAffected()
		updated = affected > 0
		return nil
	})
	return updated, err
}

// SetLineApproved records the approved quantity on a line
func (r *TransferRepository) SetLineApproved(ctx context.Context, lineID string, approved int) error {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return errors.MissingTenantContext()
	}

	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx, `
			UPDATE transfer_lines SET quantity_approved = $2 WHERE id = $1
		`, lineID, approved)
		if err != nil {
			return err
		}
		affected, _ := result.RowsAffected()
		if affected == 0 {
			return errors.NotFound("transfer line")
		}
		return nil
	})
}

// CountByStatus counts transfers per status
func (r *TransferRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}

	rows := []struct {
		Status string `db:"status"`
		Count  int64  `db:"count"`
	}{}
	err = r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		return r.db.SelectContext(ctx, &rows, `
			SELECT status, COUNT(*) AS count FROM transfers GROUP BY status
		`)
	})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
