package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logiclinic/logiclinic-backend/internal/stock/repository"
	"github.com/logiclinic/logiclinic-backend/internal/stock/service"
	apperrors "github.com/logiclinic/logiclinic-backend/pkg/errors"
)

// --- Transfer Workflow Tests ---

func TestTransferWorkflow_FullValidation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "wf-full")
	tenantCtx := suite.TenantContext(tenant)
	svc := newServices(t)

	drug := seedDrug(t, tenantCtx, svc, "Amoxicillin", 20, 5)
	lot := seedBulkLot(t, tenantCtx, svc, drug.ID, "AMX-2026-001", 100)

	transfer, err := svc.transfer.Request(tenantCtx, []service.TransferLineRequest{
		{LotID: lot.ID, Quantity: 40},
	}, strPtr("weekly restock"), strPtr("pharmacist-1"))
	require.NoError(t, err)
	assert.Equal(t, repository.TransferRequested, transfer.Status)
	assert.Contains(t, transfer.TransferNumber, "TRF-")

	validated, err := svc.transfer.Validate(tenantCtx, transfer.ID, nil, strPtr("chief-1"))
	require.NoError(t, err)
	assert.Equal(t, repository.TransferValidated, validated.Status)
	require.NotNil(t, validated.Lines[0].QuantityApproved)
	assert.Equal(t, 40, *validated.Lines[0].QuantityApproved)

	// Bulk lost 40, retail gained 40
	bulk, err := svc.lotRepo.TotalAvailable(tenantCtx, drug.ID, repository.WarehouseBulk)
	require.NoError(t, err)
	assert.Equal(t, 60, bulk)
	retail, err := svc.lotRepo.TotalAvailable(tenantCtx, drug.ID, repository.WarehouseRetail)
	require.NoError(t, err)
	assert.Equal(t, 40, retail)

	received, err := svc.transfer.Receive(tenantCtx, transfer.ID, strPtr("nurse-1"))
	require.NoError(t, err)
	assert.Equal(t, repository.TransferReceived, received.Status)

	// The ledger carries one reception and one transfer movement, each
	// snapshotting the source lot around the adjustment
	movements, _, err := svc.movementRepo.List(tenantCtx, repository.MovementFilter{DrugID: drug.ID}, 1, 20)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	byType := map[string]*repository.StockMovement{}
	for _, m := range movements {
		byType[m.MovementType] = m
	}
	require.Contains(t, byType, repository.MovementReception)
	assert.Equal(t, 0, byType[repository.MovementReception].QuantityBefore)
	assert.Equal(t, 100, byType[repository.MovementReception].QuantityAfter)
	require.Contains(t, byType, repository.MovementTransfer)
	assert.Equal(t, 100, byType[repository.MovementTransfer].QuantityBefore)
	assert.Equal(t, 60, byType[repository.MovementTransfer].QuantityAfter)

	// The audit trail records the status transition with full snapshots
	entries, _, err := svc.auditRepo.ListByEntity(tenantCtx, "transfer", transfer.ID, 1, 20)
	require.NoError(t, err)
	var approval *repository.AuditEntry
	for _, e := range entries {
		if e.Action == repository.AuditApproved {
			approval = e
		}
	}
	require.NotNil(t, approval)
	require.NotNil(t, approval.OldStatus)
	assert.Equal(t, repository.TransferRequested, *approval.OldStatus)
	require.NotNil(t, approval.NewStatus)
	assert.Equal(t, repository.TransferValidated, *approval.NewStatus)
	assert.NotNil(t, approval.OldState)
	assert.NotNil(t, approval.NewState)
}

func TestTransferWorkflow_PartialValidation_ClampedToAvailability(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "wf-partial")
	tenantCtx := suite.TenantContext(tenant)
	svc := newServices(t)

	drug := seedDrug(t, tenantCtx, svc, "Paracetamol", 20, 5)
	lot := seedBulkLot(t, tenantCtx, svc, drug.ID, "PCM-2026-001", 30)

	transfer, err := svc.transfer.Request(tenantCtx, []service.TransferLineRequest{
		{LotID: lot.ID, Quantity: 30},
	}, nil, nil)
	require.NoError(t, err)

	// Stock shrinks between request and validation; the approval clamps
	// to what is left
	_, err = svc.stock.AdjustInventory(tenantCtx, lot.ID, -10, "physical count short", nil)
	require.NoError(t, err)

	validated, err := svc.transfer.Validate(tenantCtx, transfer.ID, nil, strPtr("chief-1"))
	require.NoError(t, err)
	assert.Equal(t, repository.TransferPartiallyValidated, validated.Status)
	require.NotNil(t, validated.Lines[0].QuantityApproved)
	assert.Equal(t, 20, *validated.Lines[0].QuantityApproved)

	// The bulk lot is now depleted
	got, err := svc.lotRepo.GetByID(tenantCtx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.QuantityAvailable)
	assert.Equal(t, repository.LotStatusDepleted, got.Status)

	// A partially validated transfer can still be received
	received, err := svc.transfer.Receive(tenantCtx, transfer.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, repository.TransferReceived, received.Status)
}

func TestTransferWorkflow_RequestBeyondAvailabilityRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "wf-req-short")
	tenantCtx := suite.TenantContext(tenant)
	svc := newServices(t)

	drug := seedDrug(t, tenantCtx, svc, "Tramadol", 20, 5)
	lot := seedBulkLot(t, tenantCtx, svc, drug.ID, "TRA-2026-001", 30)

	_, err := svc.transfer.Request(tenantCtx, []service.TransferLineRequest{
		{LotID: lot.ID, Quantity: 50},
	}, nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientStock))

	// Nothing was persisted and the bulk lot is untouched
	transfers, total, err := svc.transfer.List(tenantCtx, "", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Len(t, transfers, 0)

	bulk, err := svc.lotRepo.TotalAvailable(tenantCtx, drug.ID, repository.WarehouseBulk)
	require.NoError(t, err)
	assert.Equal(t, 30, bulk)
}

func TestTransferWorkflow_RequestAbortsOnAnyShortLine(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "wf-req-mixed")
	tenantCtx := suite.TenantContext(tenant)
	svc := newServices(t)

	drug := seedDrug(t, tenantCtx, svc, "Enoxaparin", 20, 5)
	okLot := seedBulkLot(t, tenantCtx, svc, drug.ID, "ENX-2026-001", 100)
	shortLot := seedBulkLot(t, tenantCtx, svc, drug.ID, "ENX-2026-002", 5)

	// One coverable line does not save a request with a short one
	_, err := svc.transfer.Request(tenantCtx, []service.TransferLineRequest{
		{LotID: okLot.ID, Quantity: 10},
		{LotID: shortLot.ID, Quantity: 8},
	}, nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientStock))

	_, total, err := svc.transfer.List(tenantCtx, "", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestTransferWorkflow_ValidateWithOverrides(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "wf-override")
	tenantCtx := suite.TenantContext(tenant)
	svc := newServices(t)

	drug := seedDrug(t, tenantCtx, svc, "Ibuprofen", 20, 5)
	lot := seedBulkLot(t, tenantCtx, svc, drug.ID, "IBU-2026-001", 100)

	transfer, err := svc.transfer.Request(tenantCtx, []service.TransferLineRequest{
		{LotID: lot.ID, Quantity: 60},
	}, nil, nil)
	require.NoError(t, err)

	lineID := transfer.Lines[0].ID
	validated, err := svc.transfer.Validate(tenantCtx, transfer.ID, map[string]int{lineID: 25}, strPtr("chief-1"))
	require.NoError(t, err)
	assert.Equal(t, repository.TransferPartiallyValidated, validated.Status)
	assert.Equal(t, 25, *validated.Lines[0].QuantityApproved)

	bulk, err := svc.lotRepo.TotalAvailable(tenantCtx, drug.ID, repository.WarehouseBulk)
	require.NoError(t, err)
	assert.Equal(t, 75, bulk)

	// An override above the requested quantity is rejected
	other, err := svc.transfer.Request(tenantCtx, []service.TransferLineRequest{
		{LotID: lot.ID, Quantity: 10},
	}, nil, nil)
	require.NoError(t, err)
	_, err = svc.transfer.Validate(tenantCtx, other.ID, map[string]int{other.Lines[0].ID: 11}, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestTransferWorkflow_EmptyValidationRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "wf-empty")
	tenantCtx := suite.TenantContext(tenant)
	svc := newServices(t)

	drug := seedDrug(t, tenantCtx, svc, "Omeprazole", 20, 5)
	lot := seedBulkLot(t, tenantCtx, svc, drug.ID, "OME-2026-001", 50)

	transfer, err := svc.transfer.Request(tenantCtx, []service.TransferLineRequest{
		{LotID: lot.ID, Quantity: 10},
	}, nil, nil)
	require.NoError(t, err)

	lineID := transfer.Lines[0].ID
	_, err = svc.transfer.Validate(tenantCtx, transfer.ID, map[string]int{lineID: 0}, nil)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, apperrors.As(err, &appErr))
	assert.Equal(t, "EMPTY_VALIDATION", appErr.Code)

	// Nothing moved and the transfer stayed requested
	got, err := svc.transfer.Get(tenantCtx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.TransferRequested, got.Status)
	assert.Nil(t, got.Lines[0].QuantityApproved)

	bulk, err := svc.lotRepo.TotalAvailable(tenantCtx, drug.ID, repository.WarehouseBulk)
	require.NoError(t, err)
	assert.Equal(t, 50, bulk)
}

func TestTransferWorkflow_Refuse(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "wf-refuse")
	tenantCtx := suite.TenantContext(tenant)
	svc := newServices(t)

	drug := seedDrug(t, tenantCtx, svc, "Metformin", 20, 5)
	lot := seedBulkLot(t, tenantCtx, svc, drug.ID, "MET-2026-001", 50)

	transfer, err := svc.transfer.Request(tenantCtx, []service.TransferLineRequest{
		{LotID: lot.ID, Quantity: 10},
	}, nil, nil)
	require.NoError(t, err)

	_, err = svc.transfer.Refuse(tenantCtx, transfer.ID, "", nil)
	require.Error(t, err, "refusal without a reason is rejected")

	refused, err := svc.transfer.Refuse(tenantCtx, transfer.ID, "retail shelf is full", strPtr("chief-1"))
	require.NoError(t, err)
	assert.Equal(t, repository.TransferRefused, refused.Status)

	// Stock untouched, no further transitions possible
	bulk, err := svc.lotRepo.TotalAvailable(tenantCtx, drug.ID, repository.WarehouseBulk)
	require.NoError(t, err)
	assert.Equal(t, 50, bulk)

	_, err = svc.transfer.Validate(tenantCtx, transfer.ID, nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidTransition))

	_, err = svc.transfer.Receive(tenantCtx, transfer.ID, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidTransition))
}

func TestTransferWorkflow_Direct(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "wf-direct")
	tenantCtx := suite.TenantContext(tenant)
	svc := newServices(t)

	drug := seedDrug(t, tenantCtx, svc, "Aspirin", 20, 5)
	lot := seedBulkLot(t, tenantCtx, svc, drug.ID, "ASP-2026-001", 80)

	transfer, err := svc.transfer.Direct(tenantCtx, []service.TransferLineRequest{
		{LotID: lot.ID, Quantity: 30},
	}, nil, strPtr("pharmacist-1"))
	require.NoError(t, err)

	// A direct transfer stops at validated; reception is acknowledged
	// separately like any other validated transfer
	assert.Equal(t, repository.TransferValidated, transfer.Status)
	assert.Equal(t, 30, *transfer.Lines[0].QuantityApproved)
	assert.NotNil(t, transfer.ValidatedAt)
	assert.Nil(t, transfer.ReceivedAt)

	retail, err := svc.lotRepo.TotalAvailable(tenantCtx, drug.ID, repository.WarehouseRetail)
	require.NoError(t, err)
	assert.Equal(t, 30, retail)

	received, err := svc.transfer.Receive(tenantCtx, transfer.ID, strPtr("nurse-1"))
	require.NoError(t, err)
	assert.Equal(t, repository.TransferReceived, received.Status)
	assert.NotNil(t, received.ReceivedAt)
}

func TestTransferWorkflow_Direct_InsufficientRollsBack(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "wf-direct-short")
	tenantCtx := suite.TenantContext(tenant)
	svc := newServices(t)

	drug := seedDrug(t, tenantCtx, svc, "Ceftriaxone", 20, 5)
	lot := seedBulkLot(t, tenantCtx, svc, drug.ID, "CEF-2026-001", 10)

	// A direct transfer never clamps; it fails outright
	_, err := svc.transfer.Direct(tenantCtx, []service.TransferLineRequest{
		{LotID: lot.ID, Quantity: 15},
	}, nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientStock))

	// The rollback removed the transfer and left stock intact
	transfers, total, err := svc.transfer.List(tenantCtx, "", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Len(t, transfers, 0)

	bulk, err := svc.lotRepo.TotalAvailable(tenantCtx, drug.ID, repository.WarehouseBulk)
	require.NoError(t, err)
	assert.Equal(t, 10, bulk)
}

func TestTransferWorkflow_RetailLotRejectedAtRequest(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	tenant := suite.SetupStockTenant(t, ctx, "wf-retail-src")
	tenantCtx := suite.TenantContext(tenant)
	svc := newServices(t)

	drug := seedDrug(t, tenantCtx, svc, "Prednisone", 20, 5)
	lot := seedBulkLot(t, tenantCtx, svc, drug.ID, "PRE-2026-001", 50)
	retailLot := seedRetailLot(t, tenantCtx, svc, lot, 20)

	_, err := svc.transfer.Request(tenantCtx, []service.TransferLineRequest{
		{LotID: retailLot.ID, Quantity: 5},
	}, nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}
