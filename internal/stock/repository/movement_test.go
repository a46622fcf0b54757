package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logiclinic/logiclinic-backend/internal/stock/repository"
)

// --- Movement Repository Tests ---

func TestMovementRepository_Create(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "mov-create")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	lotRepo := repository.NewLotRepository(suite.DB)
	drug := createTestDrug(t, tenantCtx, drugRepo, "Ranitidine 150mg")
	lot := createTestLot(t, tenantCtx, lotRepo, drug.ID, "RAN-2026-001", 100)

	repo := repository.NewMovementRepository(suite.DB)
	m := &repository.StockMovement{
		DrugID:       drug.ID,
		LotID:        &lot.ID,
		MovementType: repository.MovementReception,
		Quantity:     100,
		FromLocation: strPtr(repository.LocationExternal),
		ToLocation:   strPtr(repository.WarehouseBulk),
		Reference:    strPtr("RAN-2026-001"),
	}
	require.NoError(t, repo.Create(tenantCtx, m))
	assert.NotEmpty(t, m.ID)
	assert.False(t, m.CreatedAt.IsZero())
}

func TestMovementRepository_ListFilters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "mov-list")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	lotRepo := repository.NewLotRepository(suite.DB)
	drugA := createTestDrug(t, tenantCtx, drugRepo, "Drug Ledger A")
	drugB := createTestDrug(t, tenantCtx, drugRepo, "Drug Ledger B")
	lotA := createTestLot(t, tenantCtx, lotRepo, drugA.ID, "LED-2026-001", 100)

	repo := repository.NewMovementRepository(suite.DB)
	movements := []*repository.StockMovement{
		{DrugID: drugA.ID, LotID: &lotA.ID, MovementType: repository.MovementReception, Quantity: 100,
			FromLocation: strPtr(repository.LocationExternal), ToLocation: strPtr(repository.WarehouseBulk)},
		{DrugID: drugA.ID, LotID: &lotA.ID, MovementType: repository.MovementTransfer, Quantity: 30,
			FromLocation: strPtr(repository.WarehouseBulk), ToLocation: strPtr(repository.WarehouseRetail)},
		{DrugID: drugB.ID, MovementType: repository.MovementDispensation, Quantity: 5,
			FromLocation: strPtr(repository.WarehouseRetail), ToLocation: strPtr(repository.LocationPatient)},
	}
	for _, m := range movements {
		require.NoError(t, repo.Create(tenantCtx, m))
	}

	all, total, err := repo.List(tenantCtx, repository.MovementFilter{}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 3)

	byDrug, total, err := repo.List(tenantCtx, repository.MovementFilter{DrugID: drugA.ID}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, byDrug, 2)

	byType, total, err := repo.List(tenantCtx, repository.MovementFilter{MovementType: repository.MovementTransfer}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, byType, 1)
	assert.Equal(t, 30, byType[0].Quantity)

	future := time.Now().UTC().Add(time.Hour)
	none, total, err := repo.List(tenantCtx, repository.MovementFilter{Since: &future}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Len(t, none, 0)
}

func TestMovementRepository_CountSince(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "mov-count")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	drug := createTestDrug(t, tenantCtx, drugRepo, "Drug Counted")

	repo := repository.NewMovementRepository(suite.DB)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(tenantCtx, &repository.StockMovement{
			DrugID:       drug.ID,
			MovementType: repository.MovementDispensation,
			Quantity:     1,
			FromLocation: strPtr(repository.WarehouseRetail),
			ToLocation:   strPtr(repository.LocationPatient),
		}))
	}

	since := time.Now().UTC().Add(-time.Minute)
	count, err := repo.CountSince(tenantCtx, repository.MovementDispensation, since)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	count, err = repo.CountSince(tenantCtx, repository.MovementReception, since)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
