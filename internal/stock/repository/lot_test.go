package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logiclinic/logiclinic-backend/internal/stock/repository"
	apperrors "github.com/logiclinic/logiclinic-backend/pkg/errors"
)

// --- Lot Repository Tests ---

func TestLotRepository_Create(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "lot-create")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	drug := createTestDrug(t, tenantCtx, drugRepo, "Amoxicillin 500mg")

	repo := repository.NewLotRepository(suite.DB)

	lot := createTestLot(t, tenantCtx, repo, drug.ID, "AMX-2026-001", 200)
	assert.NotEmpty(t, lot.ID)
	assert.Equal(t, repository.LotStatusActive, lot.Status)
	assert.False(t, lot.CreatedAt.IsZero())
	assert.False(t, lot.ReceivedAt.IsZero())
}

func TestLotRepository_Create_DuplicateLotNumber(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "lot-dup")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	drug := createTestDrug(t, tenantCtx, drugRepo, "Paracetamol 1g")

	repo := repository.NewLotRepository(suite.DB)
	createTestLot(t, tenantCtx, repo, drug.ID, "PCM-2026-001", 100)

	// Same drug, lot number and warehouse must conflict
	dup := &repository.Lot{
		DrugID:            drug.ID,
		LotNumber:         "PCM-2026-001",
		Warehouse:         repository.WarehouseBulk,
		QuantityInitial:   50,
		QuantityAvailable: 50,
		ExpiryDate:        time.Now().UTC().AddDate(1, 0, 0),
	}
	err := repo.Create(tenantCtx, dup)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))

	// The same lot number in the other warehouse is fine
	other := &repository.Lot{
		DrugID:            drug.ID,
		LotNumber:         "PCM-2026-001",
		Warehouse:         repository.WarehouseRetail,
		QuantityInitial:   50,
		QuantityAvailable: 50,
		ExpiryDate:        time.Now().UTC().AddDate(1, 0, 0),
	}
	require.NoError(t, repo.Create(tenantCtx, other))
}

func TestLotRepository_AdjustQuantity_Debit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "lot-debit")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	drug := createTestDrug(t, tenantCtx, drugRepo, "Ibuprofen 400mg")

	repo := repository.NewLotRepository(suite.DB)
	lot := createTestLot(t, tenantCtx, repo, drug.ID, "IBU-2026-001", 100)

	updated, err := repo.AdjustQuantity(tenantCtx, lot.ID, -30)
	require.NoError(t, err)
	assert.Equal(t, 70, updated.QuantityAvailable)
	assert.Equal(t, 100, updated.QuantityInitial)
	assert.Equal(t, repository.LotStatusActive, updated.Status)
}

func TestLotRepository_AdjustQuantity_Insufficient(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "lot-short")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	drug := createTestDrug(t, tenantCtx, drugRepo, "Metformin 850mg")

	repo := repository.NewLotRepository(suite.DB)
	lot := createTestLot(t, tenantCtx, repo, drug.ID, "MET-2026-001", 10)

	_, err := repo.AdjustQuantity(tenantCtx, lot.ID, -11)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientStock))

	// The failed debit must not have touched the lot
	got, err := repo.GetByID(tenantCtx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.QuantityAvailable)
}

func TestLotRepository_AdjustQuantity_DepletionAndRevival(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "lot-deplete")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	drug := createTestDrug(t, tenantCtx, drugRepo, "Omeprazole 20mg")

	repo := repository.NewLotRepository(suite.DB)
	lot := createTestLot(t, tenantCtx, repo, drug.ID, "OME-2026-001", 5)

	// Draining to zero flips the lot to depleted
	updated, err := repo.AdjustQuantity(tenantCtx, lot.ID, -5)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.QuantityAvailable)
	assert.Equal(t, repository.LotStatusDepleted, updated.Status)

	// A credit revives it
	revived, err := repo.AdjustQuantity(tenantCtx, lot.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, revived.QuantityAvailable)
	assert.Equal(t, repository.LotStatusActive, revived.Status)
}

func TestLotRepository_AdjustQuantity_SurplusRaisesInitial(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "lot-surplus")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	drug := createTestDrug(t, tenantCtx, drugRepo, "Aspirin 100mg")

	repo := repository.NewLotRepository(suite.DB)
	lot := createTestLot(t, tenantCtx, repo, drug.ID, "ASP-2026-001", 50)

	// An inventory count found 10 more units than expected
	updated, err := repo.AdjustQuantity(tenantCtx, lot.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 60, updated.QuantityAvailable)
	assert.Equal(t, 60, updated.QuantityInitial)
}

func TestLotRepository_CreditCounterpart(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "lot-counterpart")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	drug := createTestDrug(t, tenantCtx, drugRepo, "Ciprofloxacin 500mg")

	repo := repository.NewLotRepository(suite.DB)
	src := createTestLot(t, tenantCtx, repo, drug.ID, "CIP-2026-001", 100)

	// First credit creates the retail counterpart
	retail, err := repo.CreditCounterpart(tenantCtx, src, repository.WarehouseRetail, 30)
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, retail.ID)
	assert.Equal(t, repository.WarehouseRetail, retail.Warehouse)
	assert.Equal(t, src.LotNumber, retail.LotNumber)
	assert.Equal(t, 30, retail.QuantityInitial)
	assert.Equal(t, 30, retail.QuantityAvailable)
	assert.Equal(t, repository.LotStatusActive, retail.Status)
	assert.True(t, src.ExpiryDate.Equal(retail.ExpiryDate.UTC()) || src.ExpiryDate.Sub(retail.ExpiryDate) < time.Second)

	// Second credit merges into the same row
	merged, err := repo.CreditCounterpart(tenantCtx, src, repository.WarehouseRetail, 20)
	require.NoError(t, err)
	assert.Equal(t, retail.ID, merged.ID)
	assert.Equal(t, 50, merged.QuantityInitial)
	assert.Equal(t, 50, merged.QuantityAvailable)
}

func TestLotRepository_CreditCounterpart_RevivesDepleted(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "lot-revive")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	drug := createTestDrug(t, tenantCtx, drugRepo, "Doxycycline 100mg")

	repo := repository.NewLotRepository(suite.DB)
	src := createTestLot(t, tenantCtx, repo, drug.ID, "DOX-2026-001", 100)

	retail, err := repo.CreditCounterpart(tenantCtx, src, repository.WarehouseRetail, 10)
	require.NoError(t, err)

	// Drain the retail lot to depleted, then credit it again
	_, err = repo.AdjustQuantity(tenantCtx, retail.ID, -10)
	require.NoError(t, err)

	revived, err := repo.CreditCounterpart(tenantCtx, src, repository.WarehouseRetail, 5)
	require.NoError(t, err)
	assert.Equal(t, retail.ID, revived.ID)
	assert.Equal(t, 5, revived.QuantityAvailable)
	assert.Equal(t, repository.LotStatusActive, revived.Status)
}

func TestLotRepository_TotalAvailable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "lot-total")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	drug := createTestDrug(t, tenantCtx, drugRepo, "Prednisone 5mg")

	repo := repository.NewLotRepository(suite.DB)
	createTestLot(t, tenantCtx, repo, drug.ID, "PRE-2026-001", 40)
	src := createTestLot(t, tenantCtx, repo, drug.ID, "PRE-2026-002", 60)
	_, err := repo.CreditCounterpart(tenantCtx, src, repository.WarehouseRetail, 15)
	require.NoError(t, err)

	total, err := repo.TotalAvailable(tenantCtx, drug.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 115, total)

	bulk, err := repo.TotalAvailable(tenantCtx, drug.ID, repository.WarehouseBulk)
	require.NoError(t, err)
	assert.Equal(t, 100, bulk)

	retail, err := repo.TotalAvailable(tenantCtx, drug.ID, repository.WarehouseRetail)
	require.NoError(t, err)
	assert.Equal(t, 15, retail)
}

func TestLotRepository_MarkExpiredAndGetExpiring(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "lot-expiry")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	drug := createTestDrug(t, tenantCtx, drugRepo, "Insulin Glargine")

	repo := repository.NewLotRepository(suite.DB)

	expired := &repository.Lot{
		DrugID:            drug.ID,
		LotNumber:         "INS-2025-001",
		Warehouse:         repository.WarehouseBulk,
		QuantityInitial:   20,
		QuantityAvailable: 20,
		ExpiryDate:        time.Now().UTC().AddDate(0, -1, 0),
	}
	require.NoError(t, repo.Create(tenantCtx, expired))

	soon := &repository.Lot{
		DrugID:            drug.ID,
		LotNumber:         "INS-2026-001",
		Warehouse:         repository.WarehouseBulk,
		QuantityInitial:   30,
		QuantityAvailable: 30,
		ExpiryDate:        time.Now().UTC().AddDate(0, 0, 10),
	}
	require.NoError(t, repo.Create(tenantCtx, soon))

	fresh := createTestLot(t, tenantCtx, repo, drug.ID, "INS-2027-001", 50)

	expiring, err := repo.GetExpiring(tenantCtx, 30)
	require.NoError(t, err)
	require.Len(t, expiring, 2)
	assert.Equal(t, expired.ID, expiring[0].ID)
	assert.Equal(t, soon.ID, expiring[1].ID)

	marked, err := repo.MarkExpired(tenantCtx)
	require.NoError(t, err)
	require.Len(t, marked, 1)
	assert.Equal(t, expired.ID, marked[0].ID)
	assert.Equal(t, repository.LotStatusExpired, marked[0].Status)

	// Expired lots no longer count as available stock
	total, err := repo.TotalAvailable(tenantCtx, drug.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 80, total)

	got, err := repo.GetByID(tenantCtx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.LotStatusActive, got.Status)
}

func TestLotRepository_WarehouseTotals(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "lot-wh-totals")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	drug := createTestDrug(t, tenantCtx, drugRepo, "Atorvastatin 20mg")

	repo := repository.NewLotRepository(suite.DB)
	src := createTestLot(t, tenantCtx, repo, drug.ID, "ATO-2026-001", 90)
	_, err := repo.CreditCounterpart(tenantCtx, src, repository.WarehouseRetail, 25)
	require.NoError(t, err)

	totals, err := repo.WarehouseTotals(tenantCtx)
	require.NoError(t, err)
	assert.Equal(t, int64(90), totals[repository.WarehouseBulk])
	assert.Equal(t, int64(25), totals[repository.WarehouseRetail])
}

func TestLotRepository_TenantIsolation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()

	tenant1 := suite.SetupStockTenant(t, ctx, "lot-iso-1")
	tenant2 := suite.SetupStockTenant(t, ctx, "lot-iso-2")

	ctx1 := suite.TenantContext(tenant1)
	ctx2 := suite.TenantContext(tenant2)

	drugRepo := repository.NewDrugRepository(suite.DB)
	repo := repository.NewLotRepository(suite.DB)

	drug1 := createTestDrug(t, ctx1, drugRepo, "Tenant1 Drug")
	lot1 := createTestLot(t, ctx1, repo, drug1.ID, "ISO-2026-001", 100)

	_, err := repo.GetByID(ctx2, lot1.ID)
	assert.Error(t, err, "tenant2 should NOT see tenant1's lot")

	total, err := repo.TotalAvailable(ctx2, drug1.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 0, total, "tenant2 should see 0 stock for tenant1's drug")

	list1, err := repo.List(ctx1, repository.LotFilter{DrugID: drug1.ID})
	require.NoError(t, err)
	assert.Len(t, list1, 1)
}
