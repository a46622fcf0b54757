package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logiclinic/logiclinic-backend/internal/stock/repository"
	"github.com/logiclinic/logiclinic-backend/internal/stock/service"
	"github.com/logiclinic/logiclinic-backend/pkg/logger"
)

// --- Dashboard Stats Tests ---

func TestStatsService_Dashboard(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "stats-dashboard")
	tenantCtx := suite.TenantContext(tenant)
	svc := newServices(t)

	stats := service.NewStatsService(
		svc.lotRepo,
		svc.alertRepo,
		repository.NewTransferRepository(suite.DB),
		repository.NewDispensationRepository(suite.DB),
		svc.movementRepo,
		30,
		logger.New("stock-service-test", "test"),
	)

	// Empty tenant dashboard
	empty, err := stats.Dashboard(tenantCtx)
	require.NoError(t, err)
	assert.Empty(t, empty.WarehouseTotals)
	assert.Equal(t, int64(0), empty.DispensationsToday)
	assert.Equal(t, "0.00", empty.RevenueToday)

	drug := seedDrug(t, tenantCtx, svc, "Amlodipine", 20, 5)
	bulk := seedBulkLot(t, tenantCtx, svc, drug.ID, "AML-2026-001", 100)
	retail := seedRetailLot(t, tenantCtx, svc, bulk, 40)

	_, err = svc.dispensation.Dispense(tenantCtx, service.DispensationRequest{
		PatientName: strPtr("Kwame Boateng"),
		Lines: []service.DispensationLineRequest{
			{LotID: retail.ID, Quantity: 4},
		},
	}, nil)
	require.NoError(t, err)

	got, err := stats.Dashboard(tenantCtx)
	require.NoError(t, err)
	assert.Equal(t, int64(60), got.WarehouseTotals[repository.WarehouseBulk])
	assert.Equal(t, int64(36), got.WarehouseTotals[repository.WarehouseRetail])
	assert.Equal(t, int64(1), got.TransfersByStatus[repository.TransferValidated])
	assert.Equal(t, int64(1), got.DispensationsToday)
	// 4 units at 2.50
	assert.Equal(t, "10.00", got.RevenueToday)
	assert.Equal(t, 0, got.ExpiringLots)
}
