package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logiclinic/logiclinic-backend/internal/stock/repository"
)

// --- Transfer Repository Tests ---

func createTestTransfer(t *testing.T, tenantCtx context.Context, repo *repository.TransferRepository, number string, lines []*repository.TransferLine) *repository.Transfer {
	t.Helper()
	transfer := &repository.Transfer{
		TransferNumber: number,
		RequestedBy:    strPtr("pharmacist-1"),
	}
	require.NoError(t, repo.Create(tenantCtx, transfer, lines))
	return transfer
}

func TestTransferRepository_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "trf-create")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	lotRepo := repository.NewLotRepository(suite.DB)
	drug := createTestDrug(t, tenantCtx, drugRepo, "Ceftriaxone 1g")
	lot := createTestLot(t, tenantCtx, lotRepo, drug.ID, "CEF-2026-001", 100)

	repo := repository.NewTransferRepository(suite.DB)
	transfer := createTestTransfer(t, tenantCtx, repo, "TRF-20260830-TEST0001", []*repository.TransferLine{
		{DrugID: drug.ID, LotID: lot.ID, QuantityRequested: 40},
	})

	assert.Equal(t, repository.TransferRequested, transfer.Status)
	assert.False(t, transfer.RequestedAt.IsZero())

	got, err := repo.GetByID(tenantCtx, transfer.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, 40, got.Lines[0].QuantityRequested)
	assert.Nil(t, got.Lines[0].QuantityApproved)
	assert.Equal(t, "Ceftriaxone 1g", got.Lines[0].DrugName)
	assert.Equal(t, "CEF-2026-001", got.Lines[0].LotNumber)
}

func TestTransferRepository_SetLineApproved(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "trf-approve")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	lotRepo := repository.NewLotRepository(suite.DB)
	drug := createTestDrug(t, tenantCtx, drugRepo, "Gentamicin 80mg")
	lot := createTestLot(t, tenantCtx, lotRepo, drug.ID, "GEN-2026-001", 50)

	repo := repository.NewTransferRepository(suite.DB)
	lines := []*repository.TransferLine{
		{DrugID: drug.ID, LotID: lot.ID, QuantityRequested: 30},
	}
	transfer := createTestTransfer(t, tenantCtx, repo, "TRF-20260830-TEST0002", lines)

	require.NoError(t, repo.SetLineApproved(tenantCtx, lines[0].ID, 25))

	got, err := repo.GetByID(tenantCtx, transfer.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Lines[0].QuantityApproved)
	assert.Equal(t, 25, *got.Lines[0].QuantityApproved)
}

func TestTransferRepository_MarkValidated_Guarded(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "trf-validate")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	lotRepo := repository.NewLotRepository(suite.DB)
	drug := createTestDrug(t, tenantCtx, drugRepo, "Vancomycin 500mg")
	lot := createTestLot(t, tenantCtx, lotRepo, drug.ID, "VAN-2026-001", 60)

	repo := repository.NewTransferRepository(suite.DB)
	transfer := createTestTransfer(t, tenantCtx, repo, "TRF-20260830-TEST0003", []*repository.TransferLine{
		{DrugID: drug.ID, LotID: lot.ID, QuantityRequested: 20},
	})

	updated, err := repo.MarkValidated(tenantCtx, transfer.ID, repository.TransferValidated, strPtr("chief-1"))
	require.NoError(t, err)
	assert.True(t, updated)

	got, err := repo.GetByID(tenantCtx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.TransferValidated, got.Status)
	require.NotNil(t, got.ValidatedBy)
	assert.Equal(t, "chief-1", *got.ValidatedBy)
	assert.NotNil(t, got.ValidatedAt)

	// A second validation finds no matching row
	updated, err = repo.MarkValidated(tenantCtx, transfer.ID, repository.TransferValidated, strPtr("chief-2"))
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestTransferRepository_MarkRefused_Guarded(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "trf-refuse")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	lotRepo := repository.NewLotRepository(suite.DB)
	drug := createTestDrug(t, tenantCtx, drugRepo, "Furosemide 40mg")
	lot := createTestLot(t, tenantCtx, lotRepo, drug.ID, "FUR-2026-001", 80)

	repo := repository.NewTransferRepository(suite.DB)
	transfer := createTestTransfer(t, tenantCtx, repo, "TRF-20260830-TEST0004", []*repository.TransferLine{
		{DrugID: drug.ID, LotID: lot.ID, QuantityRequested: 10},
	})

	updated, err := repo.MarkRefused(tenantCtx, transfer.ID, strPtr("stock insufficient for the period"), strPtr("chief-1"))
	require.NoError(t, err)
	assert.True(t, updated)

	got, err := repo.GetByID(tenantCtx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.TransferRefused, got.Status)
	require.NotNil(t, got.RefusalReason)
	assert.Equal(t, "stock insufficient for the period", *got.RefusalReason)

	// Refusing a refused transfer does nothing
	updated, err = repo.MarkRefused(tenantCtx, transfer.ID, strPtr("again"), strPtr("chief-2"))
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestTransferRepository_MarkReceived_RequiresValidated(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "trf-receive")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	lotRepo := repository.NewLotRepository(suite.DB)
	drug := createTestDrug(t, tenantCtx, drugRepo, "Enoxaparin 40mg")
	lot := createTestLot(t, tenantCtx, lotRepo, drug.ID, "ENO-2026-001", 90)

	repo := repository.NewTransferRepository(suite.DB)
	transfer := createTestTransfer(t, tenantCtx, repo, "TRF-20260830-TEST0005", []*repository.TransferLine{
		{DrugID: drug.ID, LotID: lot.ID, QuantityRequested: 15},
	})

	// A requested transfer cannot be received
	updated, err := repo.MarkReceived(tenantCtx, transfer.ID, strPtr("nurse-1"))
	require.NoError(t, err)
	assert.False(t, updated)

	_, err = repo.MarkValidated(tenantCtx, transfer.ID, repository.TransferPartiallyValidated, strPtr("chief-1"))
	require.NoError(t, err)

	// A partially validated one can
	updated, err = repo.MarkReceived(tenantCtx, transfer.ID, strPtr("nurse-1"))
	require.NoError(t, err)
	assert.True(t, updated)

	got, err := repo.GetByID(tenantCtx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.TransferReceived, got.Status)
	assert.NotNil(t, got.ReceivedAt)
}

func TestTransferRepository_ListAndCount(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "trf-list")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	lotRepo := repository.NewLotRepository(suite.DB)
	drug := createTestDrug(t, tenantCtx, drugRepo, "Ondansetron 4mg")
	lot := createTestLot(t, tenantCtx, lotRepo, drug.ID, "OND-2026-001", 100)

	repo := repository.NewTransferRepository(suite.DB)
	line := func(qty int) []*repository.TransferLine {
		return []*repository.TransferLine{{DrugID: drug.ID, LotID: lot.ID, QuantityRequested: qty}}
	}
	createTestTransfer(t, tenantCtx, repo, "TRF-20260830-LIST0001", line(5))
	createTestTransfer(t, tenantCtx, repo, "TRF-20260830-LIST0002", line(10))
	refused := createTestTransfer(t, tenantCtx, repo, "TRF-20260830-LIST0003", line(15))
	_, err := repo.MarkRefused(tenantCtx, refused.ID, strPtr("not needed"), nil)
	require.NoError(t, err)

	all, total, err := repo.List(tenantCtx, "", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 3)

	requested, total, err := repo.List(tenantCtx, repository.TransferRequested, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, requested, 2)

	counts, err := repo.CountByStatus(tenantCtx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[repository.TransferRequested])
	assert.Equal(t, int64(1), counts[repository.TransferRefused])
}
