package events

import (
	"context"

	"github.com/logiclinic/logiclinic-backend/internal/stock/repository"
	"github.com/logiclinic/logiclinic-backend/pkg/logger"
	"github.com/logiclinic/logiclinic-backend/pkg/messaging"
)

// StockEventPublisher publishes stock-related events
type StockEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewStockEventPublisher creates a new stock event publisher
func NewStockEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*StockEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeStockEvents, "stock-service", log)
	if err != nil {
		return nil, err
	}

	return &StockEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishMovementRecorded publishes a movement recorded event
func (p *StockEventPublisher) PublishMovementRecorded(ctx context.Context, m *repository.StockMovement) {
	if p == nil {
		return
	}

	data := messaging.MovementRecordedEvent{
		MovementID:   m.ID,
		TenantID:     m.TenantID,
		DrugID:       m.DrugID,
		MovementType: m.MovementType,
		Quantity:     m.Quantity,
	}
	if m.LotID != nil {
		data.LotID = *m.LotID
	}
	if m.FromLocation != nil {
		data.FromLocation = *m.FromLocation
	}
	if m.ToLocation != nil {
		data.ToLocation = *m.ToLocation
	}
	if m.Reference != nil {
		data.Reference = *m.Reference
	}
	if m.PerformedBy != nil {
		data.PerformedBy = *m.PerformedBy
	}

	if err := p.publisher.Publish(ctx, messaging.EventMovementRecorded, data); err != nil {
		p.logger.Error().Err(err).Str("movement_id", m.ID).Msg("failed to publish movement recorded event")
	}
}

// PublishReceptionCompleted publishes a reception completed event
func (p *StockEventPublisher) PublishReceptionCompleted(ctx context.Context, lot *repository.Lot) {
	if p == nil {
		return
	}

	data := messaging.ReceptionCompletedEvent{
		LotID:      lot.ID,
		TenantID:   lot.TenantID,
		DrugID:     lot.DrugID,
		LotNumber:  lot.LotNumber,
		Quantity:   lot.QuantityInitial,
		ExpiryDate: lot.ExpiryDate,
	}
	if lot.Supplier != nil {
		data.Supplier = *lot.Supplier
	}

	if err := p.publisher.Publish(ctx, messaging.EventReceptionCompleted, data); err != nil {
		p.logger.Error().Err(err).Str("lot_id", lot.ID).Msg("failed to publish reception completed event")
	}
}

// PublishTransferRequested publishes a transfer requested event
func (p *StockEventPublisher) PublishTransferRequested(ctx context.Context, t *repository.Transfer, lineCount int) {
	if p == nil {
		return
	}

	data := messaging.TransferRequestedEvent{
		TransferID:     t.ID,
		TransferNumber: t.TransferNumber,
		TenantID:       t.TenantID,
		LineCount:      lineCount,
	}
	if t.RequestedBy != nil {
		data.RequestedBy = *t.RequestedBy
	}

	if err := p.publisher.Publish(ctx, messaging.EventTransferRequested, data); err != nil {
		p.logger.Error().Err(err).Str("transfer_id", t.ID).Msg("failed to publish transfer requested event")
	}
}

// PublishTransferValidated publishes a transfer validated event
func (p *StockEventPublisher) PublishTransferValidated(ctx context.Context, t *repository.Transfer) {
	if p == nil {
		return
	}

	data := messaging.TransferValidatedEvent{
		TransferID:     t.ID,
		TransferNumber: t.TransferNumber,
		TenantID:       t.TenantID,
		Status:         t.Status,
	}
	if t.ValidatedBy != nil {
		data.ValidatedBy = *t.ValidatedBy
	}

	if err := p.publisher.Publish(ctx, messaging.EventTransferValidated, data); err != nil {
		p.logger.Error().Err(err).Str("transfer_id", t.ID).Msg("failed to publish transfer validated event")
	}
}

// PublishTransferRefused publishes a transfer refused event
func (p *StockEventPublisher) PublishTransferRefused(ctx context.Context, t *repository.Transfer) {
	if p == nil {
		return
	}

	data := messaging.TransferRefusedEvent{
		TransferID:     t.ID,
		TransferNumber: t.TransferNumber,
		TenantID:       t.TenantID,
	}
	if t.RefusalReason != nil {
		data.Reason = *t.RefusalReason
	}
	if t.ValidatedBy != nil {
		data.RefusedBy = *t.ValidatedBy
	}

	if err := p.publisher.Publish(ctx, messaging.EventTransferRefused, data); err != nil {
		p.logger.Error().Err(err).Str("transfer_id", t.ID).Msg("failed to publish transfer refused event")
	}
}

// PublishTransferReceived publishes a transfer received event
func (p *StockEventPublisher) PublishTransferReceived(ctx context.Context, t *repository.Transfer) {
	if p == nil {
		return
	}

	data := messaging.TransferReceivedEvent{
		TransferID:     t.ID,
		TransferNumber: t.TransferNumber,
		TenantID:       t.TenantID,
	}
	if t.ReceivedBy != nil {
		data.ReceivedBy = *t.ReceivedBy
	}

	if err := p.publisher.Publish(ctx, messaging.EventTransferReceived, data); err != nil {
		p.logger.Error().Err(err).Str("transfer_id", t.ID).Msg("failed to publish transfer received event")
	}
}

// PublishDispensationCompleted publishes a dispensation completed event
func (p *StockEventPublisher) PublishDispensationCompleted(ctx context.Context, d *repository.Dispensation, lineCount int) {
	if p == nil {
		return
	}

	data := messaging.DispensationCompletedEvent{
		DispensationID:     d.ID,
		DispensationNumber: d.DispensationNumber,
		TenantID:           d.TenantID,
		LineCount:          lineCount,
		TotalAmount:        d.TotalAmount.String(),
	}
	if d.PatientID != nil {
		data.PatientID = *d.PatientID
	}
	if d.DispensedBy != nil {
		data.DispensedBy = *d.DispensedBy
	}

	if err := p.publisher.Publish(ctx, messaging.EventDispensationCompleted, data); err != nil {
		p.logger.Error().Err(err).Str("dispensation_id", d.ID).Msg("failed to publish dispensation completed event")
	}
}

// PublishLossRecorded publishes a loss recorded event
func (p *StockEventPublisher) PublishLossRecorded(ctx context.Context, lr *repository.LossReturn) {
	if p == nil {
		return
	}

	data := messaging.LossRecordedEvent{
		LossReturnID: lr.ID,
		TenantID:     lr.TenantID,
		LotID:        lr.LotID,
		DrugID:       lr.DrugID,
		Quantity:     lr.Quantity,
	}
	if lr.Reason != nil {
		data.Reason = *lr.Reason
	}

	if err := p.publisher.Publish(ctx, messaging.EventLossRecorded, data); err != nil {
		p.logger.Error().Err(err).Str("loss_return_id", lr.ID).Msg("failed to publish loss recorded event")
	}
}

// PublishReturnRecorded publishes a return recorded event
func (p *StockEventPublisher) PublishReturnRecorded(ctx context.Context, lr *repository.LossReturn) {
	if p == nil {
		return
	}

	data := messaging.ReturnRecordedEvent{
		LossReturnID: lr.ID,
		TenantID:     lr.TenantID,
		LotID:        lr.LotID,
		DrugID:       lr.DrugID,
		Quantity:     lr.Quantity,
	}
	if lr.Reason != nil {
		data.Reason = *lr.Reason
	}

	if err := p.publisher.Publish(ctx, messaging.EventReturnRecorded, data); err != nil {
		p.logger.Error().Err(err).Str("loss_return_id", lr.ID).Msg("failed to publish return recorded event")
	}
}

// PublishDrugUpdated publishes a drug updated event
func (p *StockEventPublisher) PublishDrugUpdated(ctx context.Context, drug *repository.Drug) {
	if p == nil {
		return
	}

	data := messaging.DrugUpdatedEvent{
		DrugID:   drug.ID,
		TenantID: drug.TenantID,
		Code:     drug.Code,
		Name:     drug.Name,
	}

	if err := p.publisher.Publish(ctx, messaging.EventDrugUpdated, data); err != nil {
		p.logger.Error().Err(err).Str("drug_id", drug.ID).Msg("failed to publish drug updated event")
	}
}

// PublishAlertRaised publishes an alert raised event
func (p *StockEventPublisher) PublishAlertRaised(ctx context.Context, alert *repository.StockAlert) {
	if p == nil {
		return
	}

	data := messaging.AlertRaisedEvent{
		AlertID:   alert.ID,
		TenantID:  alert.TenantID,
		DrugID:    alert.DrugID,
		AlertType: alert.AlertType,
		Level:     alert.Level,
		Message:   alert.Message,
	}

	if err := p.publisher.Publish(ctx, messaging.EventAlertRaised, data); err != nil {
		p.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to publish alert raised event")
	}
}

// PublishAlertResolved publishes an alert resolved event
func (p *StockEventPublisher) PublishAlertResolved(ctx context.Context, alert *repository.StockAlert) {
	if p == nil {
		return
	}

	data := messaging.AlertResolvedEvent{
		AlertID:  alert.ID,
		TenantID: alert.TenantID,
		Status:   alert.Status,
	}
	if alert.ResolvedBy != nil {
		data.ResolvedBy = *alert.ResolvedBy
	}

	if err := p.publisher.Publish(ctx, messaging.EventAlertResolved, data); err != nil {
		p.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to publish alert resolved event")
	}
}
