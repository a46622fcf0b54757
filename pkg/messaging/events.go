package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	// Movement events
	EventMovementRecorded = "stock.movement.recorded"

	// Reception events
	EventReceptionCompleted = "stock.reception.completed"

	// Transfer events
	EventTransferRequested = "stock.transfer.requested"
	EventTransferValidated = "stock.transfer.validated"
	EventTransferRefused   = "stock.transfer.refused"
	EventTransferReceived  = "stock.transfer.received"

	// Dispensation events
	EventDispensationCompleted = "stock.dispensation.completed"

	// Loss and return events
	EventLossRecorded   = "stock.loss.recorded"
	EventReturnRecorded = "stock.return.recorded"

	// Alert events
	EventAlertRaised   = "stock.alert.raised"
	EventAlertResolved = "stock.alert.resolved"

	// Catalog events
	EventDrugUpdated = "stock.drug.updated"
)

// Exchange names
const (
	ExchangeStockEvents = "stock.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Movement Events

// MovementRecordedEvent is published for every stock movement written to the ledger
type MovementRecordedEvent struct {
	MovementID   string `json:"movement_id"`
	TenantID     string `json:"tenant_id"`
	DrugID       string `json:"drug_id"`
	LotID        string `json:"lot_id,omitempty"`
	MovementType string `json:"movement_type"`
	Quantity     int    `json:"quantity"`
	FromLocation string `json:"from_location,omitempty"`
	ToLocation   string `json:"to_location,omitempty"`
	Reference    string `json:"reference,omitempty"`
	PerformedBy  string `json:"performed_by,omitempty"`
}

// Reception Events

// ReceptionCompletedEvent is published when a supplier delivery is booked in
type ReceptionCompletedEvent struct {
	LotID      string    `json:"lot_id"`
	TenantID   string    `json:"tenant_id"`
	DrugID     string    `json:"drug_id"`
	LotNumber  string    `json:"lot_number"`
	Quantity   int       `json:"quantity"`
	ExpiryDate time.Time `json:"expiry_date"`
	Supplier   string    `json:"supplier,omitempty"`
}

// Transfer Events

// TransferRequestedEvent is published when a transfer request is created
type TransferRequestedEvent struct {
	TransferID     string `json:"transfer_id"`
	TransferNumber string `json:"transfer_number"`
	TenantID       string `json:"tenant_id"`
	LineCount      int    `json:"line_count"`
	RequestedBy    string `json:"requested_by,omitempty"`
}

// TransferValidatedEvent is published when a transfer is validated, fully or partially
type TransferValidatedEvent struct {
	TransferID     string `json:"transfer_id"`
	TransferNumber string `json:"transfer_number"`
	TenantID       string `json:"tenant_id"`
	Status         string `json:"status"`
	ValidatedBy    string `json:"validated_by,omitempty"`
}

// TransferRefusedEvent is published when a transfer is refused
type TransferRefusedEvent struct {
	TransferID     string `json:"transfer_id"`
	TransferNumber string `json:"transfer_number"`
	TenantID       string `json:"tenant_id"`
	Reason         string `json:"reason,omitempty"`
	RefusedBy      string `json:"refused_by,omitempty"`
}

// TransferReceivedEvent is published when the destination acknowledges receipt
type TransferReceivedEvent struct {
	TransferID     string `json:"transfer_id"`
	TransferNumber string `json:"transfer_number"`
	TenantID       string `json:"tenant_id"`
	ReceivedBy     string `json:"received_by,omitempty"`
}

// Dispensation Events

// DispensationCompletedEvent is published when a dispensation is recorded
type DispensationCompletedEvent struct {
	DispensationID     string `json:"dispensation_id"`
	DispensationNumber string `json:"dispensation_number"`
	TenantID           string `json:"tenant_id"`
	PatientID          string `json:"patient_id,omitempty"`
	LineCount          int    `json:"line_count"`
	TotalAmount        string `json:"total_amount"`
	DispensedBy        string `json:"dispensed_by,omitempty"`
}

// Loss and Return Events

// LossRecordedEvent is published when a loss is recorded against a lot
type LossRecordedEvent struct {
	LossReturnID string `json:"loss_return_id"`
	TenantID     string `json:"tenant_id"`
	LotID        string `json:"lot_id"`
	DrugID       string `json:"drug_id"`
	Quantity     int    `json:"quantity"`
	Reason       string `json:"reason,omitempty"`
}

// ReturnRecordedEvent is published when stock is returned from retail to bulk
type ReturnRecordedEvent struct {
	LossReturnID string `json:"loss_return_id"`
	TenantID     string `json:"tenant_id"`
	LotID        string `json:"lot_id"`
	DrugID       string `json:"drug_id"`
	Quantity     int    `json:"quantity"`
	Reason       string `json:"reason,omitempty"`
}

// Alert Events

// AlertRaisedEvent is published when a stock alert is created or refreshed
type AlertRaisedEvent struct {
	AlertID   string `json:"alert_id"`
	TenantID  string `json:"tenant_id"`
	DrugID    string `json:"drug_id"`
	AlertType string `json:"alert_type"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// AlertResolvedEvent is published when an alert is resolved or ignored
type AlertResolvedEvent struct {
	AlertID    string `json:"alert_id"`
	TenantID   string `json:"tenant_id"`
	Status     string `json:"status"`
	ResolvedBy string `json:"resolved_by,omitempty"`
}

// Catalog Events

// DrugUpdatedEvent is published when a catalog entry changes, so other
// instances can drop cached copies
type DrugUpdatedEvent struct {
	DrugID   string `json:"drug_id"`
	TenantID string `json:"tenant_id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
