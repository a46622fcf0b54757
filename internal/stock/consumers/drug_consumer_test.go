package consumers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logiclinic/logiclinic-backend/internal/stock/cache"
	"github.com/logiclinic/logiclinic-backend/internal/stock/repository"
	"github.com/logiclinic/logiclinic-backend/pkg/logger"
	"github.com/logiclinic/logiclinic-backend/pkg/messaging"
)

func newTestConsumer(t *testing.T) (*DrugEventConsumer, *cache.DrugCache) {
	t.Helper()
	log := logger.New("stock-service-test", "test")
	drugCache := cache.NewDrugCache(nil, 5*time.Minute, log)
	return &DrugEventConsumer{
		drugCache: drugCache,
		logger:    log,
	}, drugCache
}

func TestDrugConsumer_InvalidatesCacheEntry(t *testing.T) {
	ctx := context.Background()
	c, drugCache := newTestConsumer(t)

	tenantID := uuid.New().String()
	drug := &repository.Drug{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		Code:     "DRG-cached",
		Name:     "Cached Drug",
	}
	drugCache.Set(ctx, tenantID, drug)
	require.NotNil(t, drugCache.Get(ctx, tenantID, drug.ID))

	event, err := messaging.NewEvent(messaging.EventDrugUpdated, "stock-service", "", messaging.DrugUpdatedEvent{
		DrugID:   drug.ID,
		TenantID: tenantID,
		Code:     drug.Code,
		Name:     "Renamed Drug",
	})
	require.NoError(t, err)

	require.NoError(t, c.handleDrugUpdated(ctx, event))
	assert.Nil(t, drugCache.Get(ctx, tenantID, drug.ID))
}

func TestDrugConsumer_OtherTenantUntouched(t *testing.T) {
	ctx := context.Background()
	c, drugCache := newTestConsumer(t)

	drugID := uuid.New().String()
	tenantA := uuid.New().String()
	tenantB := uuid.New().String()
	drugCache.Set(ctx, tenantA, &repository.Drug{ID: drugID, TenantID: tenantA, Code: "DRG-a", Name: "A"})
	drugCache.Set(ctx, tenantB, &repository.Drug{ID: drugID, TenantID: tenantB, Code: "DRG-b", Name: "B"})

	event, err := messaging.NewEvent(messaging.EventDrugUpdated, "stock-service", "", messaging.DrugUpdatedEvent{
		DrugID:   drugID,
		TenantID: tenantA,
	})
	require.NoError(t, err)

	require.NoError(t, c.handleDrugUpdated(ctx, event))
	assert.Nil(t, drugCache.Get(ctx, tenantA, drugID))
	assert.NotNil(t, drugCache.Get(ctx, tenantB, drugID))
}

func TestDrugConsumer_MalformedPayload(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestConsumer(t)

	event := &messaging.Event{
		ID:   messaging.GenerateEventID(),
		Type: messaging.EventDrugUpdated,
		Data: []byte(`{"drug_id":`),
	}
	assert.Error(t, c.handleDrugUpdated(ctx, event))
}
