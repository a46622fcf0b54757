package database

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/logiclinic/logiclinic-backend/pkg/errors"
)

func TestMapPQError_NotPQError(t *testing.T) {
	assert.Nil(t, MapPQError(errors.New("plain error")))
	assert.Nil(t, MapPQError(nil))
}

func TestMapPQError_UniqueViolation(t *testing.T) {
	err := MapPQError(&pq.Error{
		Code:       "23505",
		Constraint: "lots_drug_lot_warehouse",
	})
	require.NotNil(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestMapPQError_ForeignKeyViolation(t *testing.T) {
	err := MapPQError(&pq.Error{Code: "23503"})
	require.NotNil(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestMapPQError_NotNullViolation(t *testing.T) {
	err := MapPQError(&pq.Error{Code: "23502", Column: "lot_number"})
	require.NotNil(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
	assert.Contains(t, err.Details, "lot_number")
}

func TestMapPQError_CheckConstraints(t *testing.T) {
	cases := []struct {
		constraint string
		detailKey  string
	}{
		{"lots_quantity_available_range", "quantity_available"},
		{"transfer_lines_quantity_positive", "quantity"},
		{"lots_warehouse_valid", "warehouse"},
		{"transfers_status_valid", "status"},
	}

	for _, tc := range cases {
		t.Run(tc.constraint, func(t *testing.T) {
			err := MapPQError(&pq.Error{Code: "23514", Constraint: tc.constraint})
			require.NotNil(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
			assert.Contains(t, err.Details, tc.detailKey)
		})
	}
}

func TestMapPQError_UnknownCheckConstraint(t *testing.T) {
	err := MapPQError(&pq.Error{Code: "23514", Constraint: "something_else"})
	require.NotNil(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestMapPQError_UnknownCode(t *testing.T) {
	assert.Nil(t, MapPQError(&pq.Error{Code: "40001"}))
}
