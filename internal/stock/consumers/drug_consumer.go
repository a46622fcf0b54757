package consumers

import (
	"context"

	"github.com/logiclinic/logiclinic-backend/internal/stock/cache"
	"github.com/logiclinic/logiclinic-backend/pkg/logger"
	"github.com/logiclinic/logiclinic-backend/pkg/messaging"
)

// DrugEventConsumer drops cached catalog entries when another instance
// updates a drug
type DrugEventConsumer struct {
	consumer  *messaging.Consumer
	drugCache *cache.DrugCache
	logger    *logger.Logger
}

// NewDrugEventConsumer creates a new drug event consumer
func NewDrugEventConsumer(
	rmq *messaging.RabbitMQ,
	drugCache *cache.DrugCache,
	log *logger.Logger,
) (*DrugEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "stock-service.drug-events", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeStockEvents, "stock.drug.*"); err != nil {
		return nil, err
	}

	c := &DrugEventConsumer{
		consumer:  consumer,
		drugCache: drugCache,
		logger:    log,
	}

	consumer.RegisterHandler(messaging.EventDrugUpdated, c.handleDrugUpdated)

	return c, nil
}

// Start starts consuming messages
func (c *DrugEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *DrugEventConsumer) handleDrugUpdated(ctx context.Context, event *messaging.Event) error {
	var data messaging.DrugUpdatedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Debug().
		Str("drug_id", data.DrugID).
		Str("code", data.Code).
		Msg("received drug updated event")

	c.drugCache.Invalidate(ctx, data.TenantID, data.DrugID)
	return nil
}
