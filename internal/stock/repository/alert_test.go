package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logiclinic/logiclinic-backend/internal/stock/repository"
)

// --- Alert Repository Tests ---

func TestAlertRepository_Upsert_Dedupes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "alert-upsert")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	drug := createTestDrug(t, tenantCtx, drugRepo, "Tramadol 50mg")

	repo := repository.NewAlertRepository(suite.DB)

	first := &repository.StockAlert{
		DrugID:    drug.ID,
		AlertType: repository.AlertLowThreshold,
		Level:     repository.LevelWarning,
		Message:   "stock below alert threshold",
	}
	require.NoError(t, repo.Upsert(tenantCtx, first))
	assert.Equal(t, repository.AlertActive, first.Status)

	// Re-raising the same alert type escalates in place instead of stacking
	second := &repository.StockAlert{
		DrugID:    drug.ID,
		AlertType: repository.AlertLowThreshold,
		Level:     repository.LevelCritical,
		Message:   "stock still falling",
	}
	require.NoError(t, repo.Upsert(tenantCtx, second))
	assert.Equal(t, first.ID, second.ID)

	list, err := repo.List(tenantCtx, repository.AlertActive, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, repository.LevelCritical, list[0].Level)
	assert.Equal(t, "stock still falling", list[0].Message)
	assert.Equal(t, "Tramadol 50mg", list[0].DrugName)
}

func TestAlertRepository_Upsert_DifferentTypesCoexist(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "alert-types")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	drug := createTestDrug(t, tenantCtx, drugRepo, "Morphine 10mg")

	repo := repository.NewAlertRepository(suite.DB)
	require.NoError(t, repo.Upsert(tenantCtx, &repository.StockAlert{
		DrugID:    drug.ID,
		AlertType: repository.AlertRupture,
		Level:     repository.LevelCritical,
		Message:   "stock ruptured",
	}))
	require.NoError(t, repo.Upsert(tenantCtx, &repository.StockAlert{
		DrugID:    drug.ID,
		AlertType: repository.AlertExpiration,
		Level:     repository.LevelWarning,
		Message:   "lot expiring soon",
	}))

	list, err := repo.List(tenantCtx, repository.AlertActive, "")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestAlertRepository_SetStatus_Guarded(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "alert-status")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	drug := createTestDrug(t, tenantCtx, drugRepo, "Diazepam 5mg")

	repo := repository.NewAlertRepository(suite.DB)
	alert := &repository.StockAlert{
		DrugID:    drug.ID,
		AlertType: repository.AlertLowThreshold,
		Level:     repository.LevelWarning,
		Message:   "stock low",
	}
	require.NoError(t, repo.Upsert(tenantCtx, alert))

	updated, err := repo.SetStatus(tenantCtx, alert.ID, repository.AlertResolved, strPtr("pharmacist-1"))
	require.NoError(t, err)
	assert.True(t, updated)

	got, err := repo.GetByID(tenantCtx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.AlertResolved, got.Status)
	assert.NotNil(t, got.ResolvedAt)
	require.NotNil(t, got.ResolvedBy)
	assert.Equal(t, "pharmacist-1", *got.ResolvedBy)

	// A resolved alert cannot be ignored afterwards
	updated, err = repo.SetStatus(tenantCtx, alert.ID, repository.AlertIgnored, strPtr("pharmacist-2"))
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestAlertRepository_ResolveThenReRaise(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "alert-reraise")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	drug := createTestDrug(t, tenantCtx, drugRepo, "Codeine 30mg")

	repo := repository.NewAlertRepository(suite.DB)
	alert := &repository.StockAlert{
		DrugID:    drug.ID,
		AlertType: repository.AlertRupture,
		Level:     repository.LevelCritical,
		Message:   "stock ruptured",
	}
	require.NoError(t, repo.Upsert(tenantCtx, alert))

	_, err := repo.SetStatus(tenantCtx, alert.ID, repository.AlertResolved, nil)
	require.NoError(t, err)

	// Once resolved, the partial index frees the slot for a fresh alert
	again := &repository.StockAlert{
		DrugID:    drug.ID,
		AlertType: repository.AlertRupture,
		Level:     repository.LevelCritical,
		Message:   "stock ruptured again",
	}
	require.NoError(t, repo.Upsert(tenantCtx, again))
	assert.NotEqual(t, alert.ID, again.ID)

	active, err := repo.List(tenantCtx, repository.AlertActive, "")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestAlertRepository_CountActiveByLevel(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "alert-count")
	tenantCtx := suite.TenantContext(tenant)

	drugRepo := repository.NewDrugRepository(suite.DB)
	drugA := createTestDrug(t, tenantCtx, drugRepo, "Drug A")
	drugB := createTestDrug(t, tenantCtx, drugRepo, "Drug B")

	repo := repository.NewAlertRepository(suite.DB)
	require.NoError(t, repo.Upsert(tenantCtx, &repository.StockAlert{
		DrugID: drugA.ID, AlertType: repository.AlertRupture,
		Level: repository.LevelCritical, Message: "ruptured",
	}))
	require.NoError(t, repo.Upsert(tenantCtx, &repository.StockAlert{
		DrugID: drugB.ID, AlertType: repository.AlertLowThreshold,
		Level: repository.LevelWarning, Message: "low",
	}))

	counts, err := repo.CountActiveByLevel(tenantCtx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[repository.LevelCritical])
	assert.Equal(t, int64(1), counts[repository.LevelWarning])
}
