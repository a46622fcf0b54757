package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logiclinic/logiclinic-backend/internal/stock/repository"
	apperrors "github.com/logiclinic/logiclinic-backend/pkg/errors"
	"github.com/logiclinic/logiclinic-backend/pkg/testutil"
)

// Unit tests against sqlmock; these run in short mode too.

func TestDrugRepository_GetByID_Unit(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	tenantID := uuid.New().String()
	drugID := uuid.New().String()
	ctx := testutil.WithTestTenantValues(context.Background(), tenantID, "unit", "public")

	now := time.Now()
	rows := testutil.MockRows(
		"id", "tenant_id", "code", "name", "unit_price",
		"alert_threshold", "rupture_threshold", "is_active", "created_at", "updated_at",
	).AddRow(drugID, tenantID, "DRG-unit", "Unit Drug", "2.50", 20, 5, true, now, now)
	mockDB.ExpectTenantQuery(tenantID, "public", "SELECT * FROM drugs WHERE id = $1", rows)

	repo := repository.NewDrugRepository(mockDB.DB)
	drug, err := repo.GetByID(ctx, drugID)
	require.NoError(t, err)
	assert.Equal(t, "DRG-unit", drug.Code)
	assert.Equal(t, "2.50", drug.UnitPrice.StringFixed(2))

	mockDB.ExpectationsWereMet(t)
}

func TestDrugRepository_GetByID_NotFound_Unit(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	tenantID := uuid.New().String()
	ctx := testutil.WithTestTenantValues(context.Background(), tenantID, "unit", "public")

	mockDB.ExpectTenantBegin(tenantID, "public")
	mockDB.ExpectQuery("SELECT * FROM drugs WHERE id = $1").
		WillReturnRows(testutil.MockRows("id"))
	mockDB.ExpectRollback()

	repo := repository.NewDrugRepository(mockDB.DB)
	_, err := repo.GetByID(ctx, uuid.New().String())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	mockDB.ExpectationsWereMet(t)
}

func TestDrugRepository_Create_UniqueViolation_Unit(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	tenantID := uuid.New().String()
	ctx := testutil.WithTestTenantValues(context.Background(), tenantID, "unit", "public")

	mockDB.ExpectTenantBegin(tenantID, "public")
	mockDB.ExpectQuery("INSERT INTO drugs").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "drugs_tenant_id_code_key"})
	mockDB.ExpectRollback()

	repo := repository.NewDrugRepository(mockDB.DB)
	err := repo.Create(ctx, &repository.Drug{Code: "DRG-dup", Name: "Dup"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))

	mockDB.ExpectationsWereMet(t)
}

func TestDrugRepository_MissingTenant_Unit(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewDrugRepository(mockDB.DB)
	_, err := repo.GetByID(context.Background(), uuid.New().String())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrMissingTenant))

	mockDB.ExpectationsWereMet(t)
}
