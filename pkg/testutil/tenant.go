package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/logiclinic/logiclinic-backend/pkg/tenant"
)

// TestTenant represents a tenant created for testing
type TestTenant struct {
	ID         string
	Name       string
	Slug       string
	SchemaName string
}

// TenantManager manages test tenant schemas
type TenantManager struct {
	db      *sqlx.DB
	tenants []TestTenant
	mu      sync.Mutex
}

// NewTenantManager creates a new tenant manager for tests
func NewTenantManager(db *sqlx.DB) *TenantManager {
	return &TenantManager{
		db:      db,
		tenants: make([]TestTenant, 0),
	}
}

// CreateTenant creates a new isolated tenant schema for testing.
// Each test can have its own tenant to ensure complete isolation.
//
// Usage:
//
//	tm := testutil.NewTenantManager(db)
//	tenant := tm.CreateTenant(ctx, "test-clinic")
//	ctx = testutil.WithTestTenant(ctx, tenant)
//
//	// Now all repository operations will use this tenant's schema
//	lot, err := lotRepo.GetByID(ctx, lotID)
func (tm *TenantManager) CreateTenant(ctx context.Context, name string) (*TestTenant, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	id := uuid.New().String()
	slug := strings.ToLower(strings.ReplaceAll(name, " ", "-"))
	schemaName := fmt.Sprintf("tenant_%s", strings.ReplaceAll(slug, "-", "_"))

	// Create schema
	_, err := tm.db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName))
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant schema: %w", err)
	}

	// Register tenant in public.tenants
	_, err = tm.db.ExecContext(ctx, `
		INSERT INTO public.tenants (id, name, slug, schema_name, subscription_status)
		VALUES ($1, $2, $3, $4, 'active')
		ON CONFLICT (slug) DO NOTHING
	`, id, name, slug, schemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to register tenant: %w", err)
	}

	t := TestTenant{
		ID:         id,
		Name:       name,
		Slug:       slug,
		SchemaName: schemaName,
	}

	tm.tenants = append(tm.tenants, t)
	return &t, nil
}

// CreateTenantWithMigrations creates a tenant and applies the given migrations
func (tm *TenantManager) CreateTenantWithMigrations(ctx context.Context, name string, migrations []string) (*TestTenant, error) {
	t, err := tm.CreateTenant(ctx, name)
	if err != nil {
		return nil, err
	}

	// Apply migrations inside one transaction so SET LOCAL search_path
	// and every DDL statement run on the same connection. Running SET on
	// the pool would pin the search_path to whichever connection served
	// it, not the one serving the CREATE TABLE.
	tx, err := tm.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL search_path TO %s, public", t.SchemaName)); err != nil {
		return nil, fmt.Errorf("failed to set search_path: %w", err)
	}
	for _, migration := range migrations {
		if _, err := tx.ExecContext(ctx, migration); err != nil {
			return nil, fmt.Errorf("failed to apply migration: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit migrations: %w", err)
	}

	return t, nil
}

// DropTenant removes a tenant schema completely
func (tm *TenantManager) DropTenant(ctx context.Context, t *TestTenant) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	// Drop schema with CASCADE (removes all objects)
	_, err := tm.db.ExecContext(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", t.SchemaName))
	if err != nil {
		return fmt.Errorf("failed to drop tenant schema: %w", err)
	}

	// Remove from tenants table
	_, err = tm.db.ExecContext(ctx, "DELETE FROM public.tenants WHERE id = $1", t.ID)
	if err != nil {
		return fmt.Errorf("failed to delete tenant record: %w", err)
	}

	// Remove from tracked tenants
	for i, tracked := range tm.tenants {
		if tracked.ID == t.ID {
			tm.tenants = append(tm.tenants[:i], tm.tenants[i+1:]...)
			break
		}
	}

	return nil
}

// Cleanup drops all tenant schemas created by this manager.
// Call this in TestMain or test cleanup.
func (tm *TenantManager) Cleanup(ctx context.Context) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	var lastErr error
	for _, t := range tm.tenants {
		_, err := tm.db.ExecContext(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", t.SchemaName))
		if err != nil {
			lastErr = err
		}
		_, err = tm.db.ExecContext(ctx, "DELETE FROM public.tenants WHERE id = $1", t.ID)
		if err != nil {
			lastErr = err
		}
	}

	tm.tenants = make([]TestTenant, 0)
	return lastErr
}

// WithTestTenant creates a context with tenant information for testing.
// This is the primary way to set up tenant context in tests.
func WithTestTenant(ctx context.Context, t *TestTenant) context.Context {
	return tenant.WithTenantContext(ctx, t.ID, t.Slug, t.SchemaName)
}

// WithTestTenantValues creates a context with custom tenant values.
// Useful for testing error cases or edge conditions.
func WithTestTenantValues(ctx context.Context, id, slug, schema string) context.Context {
	return tenant.WithTenantContext(ctx, id, slug, schema)
}

// TestTenantContext creates a context with a fake tenant for simple unit tests
// that don't need actual database isolation.
func TestTenantContext() context.Context {
	return tenant.WithTenantContext(
		context.Background(),
		"test-tenant-id",
		"test-tenant",
		"tenant_test",
	)
}

// StockMigrations returns the stock service migrations for tests.
// Matches the production schema: every table carries tenant_id with an
// RLS policy keyed on app.current_tenant, and the constraint names line
// up with what database.MapPQError expects.
func StockMigrations() []string {
	return []string{
		// Drug catalog
		`CREATE TABLE IF NOT EXISTS drugs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id UUID NOT NULL,
			code VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			generic_name VARCHAR(255),
			dosage VARCHAR(100),
			form VARCHAR(100),
			unit_price DECIMAL(12,2) NOT NULL DEFAULT 0,
			entry_price DECIMAL(12,2) NOT NULL DEFAULT 0,
			alert_threshold INT NOT NULL DEFAULT 0,
			rupture_threshold INT NOT NULL DEFAULT 0,
			max_threshold INT NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT drugs_code_unique UNIQUE (tenant_id, code),
			CONSTRAINT drugs_thresholds_valid CHECK (rupture_threshold >= 0 AND alert_threshold >= rupture_threshold AND max_threshold >= 0)
		)`,

		// Lots, one row per physical batch per warehouse
		`CREATE TABLE IF NOT EXISTS lots (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id UUID NOT NULL,
			drug_id UUID NOT NULL REFERENCES drugs(id),
			lot_number VARCHAR(64) NOT NULL,
			warehouse VARCHAR(10) NOT NULL,
			quantity_initial INT NOT NULL,
			quantity_available INT NOT NULL,
			expiry_date DATE NOT NULL,
			supplier VARCHAR(255),
			unit_cost DECIMAL(12,2) NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			received_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT lots_drug_lot_warehouse UNIQUE (tenant_id, drug_id, lot_number, warehouse),
			CONSTRAINT lots_warehouse_valid CHECK (warehouse IN ('bulk', 'retail')),
			CONSTRAINT lots_status_valid CHECK (status IN ('active', 'expired', 'depleted')),
			CONSTRAINT lots_quantity_available_range CHECK (quantity_available >= 0 AND quantity_available <= quantity_initial)
		)`,

		// Movement ledger, append-only
		`CREATE TABLE IF NOT EXISTS stock_movements (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id UUID NOT NULL,
			drug_id UUID NOT NULL REFERENCES drugs(id),
			lot_id UUID REFERENCES lots(id),
			movement_type VARCHAR(20) NOT NULL,
			quantity INT NOT NULL,
			quantity_before INT NOT NULL DEFAULT 0,
			quantity_after INT NOT NULL DEFAULT 0,
			from_location VARCHAR(20),
			to_location VARCHAR(20),
			reference VARCHAR(100),
			reason TEXT,
			performed_by UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT movements_type_valid CHECK (movement_type IN ('reception', 'transfer', 'dispensation', 'loss', 'return', 'inventory'))
		)`,

		// Transfers
		`CREATE TABLE IF NOT EXISTS transfers (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id UUID NOT NULL,
			transfer_number VARCHAR(40) NOT NULL,
			status VARCHAR(25) NOT NULL DEFAULT 'requested',
			notes TEXT,
			refusal_reason TEXT,
			requested_by UUID,
			validated_by UUID,
			received_by UUID,
			requested_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			validated_at TIMESTAMPTZ,
			received_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT transfers_number_unique UNIQUE (tenant_id, transfer_number),
			CONSTRAINT transfers_status_valid CHECK (status IN ('requested', 'validated', 'partially_validated', 'refused', 'received'))
		)`,

		`CREATE TABLE IF NOT EXISTS transfer_lines (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			transfer_id UUID NOT NULL REFERENCES transfers(id) ON DELETE CASCADE,
			tenant_id UUID NOT NULL,
			drug_id UUID NOT NULL REFERENCES drugs(id),
			lot_id UUID NOT NULL REFERENCES lots(id),
			quantity_requested INT NOT NULL,
			quantity_approved INT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT transfer_lines_quantity_positive CHECK (quantity_requested > 0)
		)`,

		// Dispensations
		`CREATE TABLE IF NOT EXISTS dispensations (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id UUID NOT NULL,
			dispensation_number VARCHAR(40) NOT NULL,
			patient_id UUID,
			patient_name VARCHAR(255),
			service_name VARCHAR(255),
			prescriber VARCHAR(255),
			status VARCHAR(20) NOT NULL DEFAULT 'completed',
			total_amount DECIMAL(12,2) NOT NULL DEFAULT 0,
			dispensed_by UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT dispensations_number_unique UNIQUE (tenant_id, dispensation_number),
			CONSTRAINT dispensations_status_valid CHECK (status IN ('completed', 'cancelled')),
			CONSTRAINT dispensations_one_recipient CHECK (
				service_name IS NULL OR (patient_id IS NULL AND patient_name IS NULL)
			)
		)`,

		`CREATE TABLE IF NOT EXISTS dispensation_lines (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			dispensation_id UUID NOT NULL REFERENCES dispensations(id) ON DELETE CASCADE,
			tenant_id UUID NOT NULL,
			drug_id UUID NOT NULL REFERENCES drugs(id),
			lot_id UUID NOT NULL REFERENCES lots(id),
			quantity INT NOT NULL,
			unit_price DECIMAL(12,2) NOT NULL,
			line_total DECIMAL(12,2) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT dispensation_lines_quantity_positive CHECK (quantity > 0)
		)`,

		// Losses and returns
		`CREATE TABLE IF NOT EXISTS loss_returns (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id UUID NOT NULL,
			kind VARCHAR(10) NOT NULL,
			drug_id UUID NOT NULL REFERENCES drugs(id),
			lot_id UUID NOT NULL REFERENCES lots(id),
			quantity INT NOT NULL,
			status VARCHAR(15) NOT NULL DEFAULT 'in_progress',
			reason TEXT,
			recorded_by UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT loss_returns_kind_valid CHECK (kind IN ('loss', 'return')),
			CONSTRAINT loss_returns_status_valid CHECK (status IN ('in_progress', 'validated')),
			CONSTRAINT loss_returns_quantity_positive CHECK (quantity > 0)
		)`,

		// Stock alerts with one active alert per drug and type
		`CREATE TABLE IF NOT EXISTS stock_alerts (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id UUID NOT NULL,
			drug_id UUID NOT NULL REFERENCES drugs(id),
			alert_type VARCHAR(20) NOT NULL,
			level VARCHAR(10) NOT NULL,
			message TEXT NOT NULL,
			status VARCHAR(10) NOT NULL DEFAULT 'active',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			resolved_at TIMESTAMPTZ,
			resolved_by UUID,
			CONSTRAINT alerts_type_valid CHECK (alert_type IN ('rupture', 'low_threshold', 'expiration', 'surplus')),
			CONSTRAINT alerts_level_valid CHECK (level IN ('critical', 'warning', 'info')),
			CONSTRAINT alerts_status_valid CHECK (status IN ('active', 'resolved', 'ignored'))
		)`,

		`CREATE UNIQUE INDEX IF NOT EXISTS alerts_active_drug_type
			ON stock_alerts (tenant_id, drug_id, alert_type) WHERE (status = 'active')`,

		// Audit trail, append-only
		`CREATE TABLE IF NOT EXISTS audit_trail (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id UUID NOT NULL,
			entity_type VARCHAR(50) NOT NULL,
			entity_id UUID NOT NULL,
			action VARCHAR(50) NOT NULL,
			old_status VARCHAR(25),
			new_status VARCHAR(25),
			old_state JSONB,
			new_state JSONB,
			details JSONB,
			performed_by UUID,
			performed_by_name VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_lots_drug_warehouse ON lots(drug_id, warehouse) WHERE status = 'active'`,
		`CREATE INDEX IF NOT EXISTS idx_lots_expiry ON lots(expiry_date) WHERE status = 'active'`,
		`CREATE INDEX IF NOT EXISTS idx_movements_drug ON stock_movements(drug_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_status ON transfers(status)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_trail(entity_type, entity_id)`,
	}
}

// StockRLSPolicies returns the row level security policies for the stock
// tables. SetupStockTenant applies them after the migrations so the test
// schema matches production. The test connection owns the tables, so the
// policies are not what isolates tenants in tests; the per-tenant schema
// is.
func StockRLSPolicies() []string {
	tables := []string{
		"drugs", "lots", "stock_movements", "transfers", "transfer_lines",
		"dispensations", "dispensation_lines", "loss_returns", "stock_alerts",
		"audit_trail",
	}

	policies := make([]string, 0, len(tables)*2)
	for _, table := range tables {
		policies = append(policies,
			fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY", table),
			fmt.Sprintf(`CREATE POLICY %s_tenant_isolation ON %s
				USING (tenant_id = current_setting('app.current_tenant')::uuid)
				WITH CHECK (tenant_id = current_setting('app.current_tenant')::uuid)`, table, table),
		)
	}
	return policies
}
