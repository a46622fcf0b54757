package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DrugFixture represents test drug catalog data
type DrugFixture struct {
	ID               string
	Code             string
	Name             string
	Dosage           *string
	Form             *string
	UnitPrice        decimal.Decimal
	AlertThreshold   int
	RuptureThreshold int
	IsActive         bool
	CreatedAt        time.Time
}

// LotFixture represents test lot data
type LotFixture struct {
	ID                string
	DrugID            string
	LotNumber         string
	Warehouse         string
	QuantityInitial   int
	QuantityAvailable int
	ExpiryDate        time.Time
	Supplier          *string
	UnitCost          decimal.Decimal
	Status            string
	ReceivedAt        time.Time
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Drug creates a drug fixture with defaults
func (f *FixtureFactory) Drug(opts ...func(*DrugFixture)) DrugFixture {
	seq := f.nextSeq()

	drug := DrugFixture{
		ID:               uuid.New().String(),
		Code:             fmt.Sprintf("DRG-%04d", seq),
		Name:             fmt.Sprintf("Test Drug %d", seq),
		UnitPrice:        decimal.NewFromFloat(4.50),
		AlertThreshold:   20,
		RuptureThreshold: 5,
		IsActive:         true,
		CreatedAt:        time.Now(),
	}

	for _, opt := range opts {
		opt(&drug)
	}

	return drug
}

// WithDrugName sets the drug name
func WithDrugName(name string) func(*DrugFixture) {
	return func(d *DrugFixture) {
		d.Name = name
	}
}

// WithDrugCode sets the drug code
func WithDrugCode(code string) func(*DrugFixture) {
	return func(d *DrugFixture) {
		d.Code = code
	}
}

// WithUnitPrice sets the drug unit price
func WithUnitPrice(price string) func(*DrugFixture) {
	return func(d *DrugFixture) {
		d.UnitPrice = decimal.RequireFromString(price)
	}
}

// WithThresholds sets the alert and rupture thresholds
func WithThresholds(alert, rupture int) func(*DrugFixture) {
	return func(d *DrugFixture) {
		d.AlertThreshold = alert
		d.RuptureThreshold = rupture
	}
}

// Lot creates a lot fixture with defaults: a fresh bulk lot with a year
// of shelf life
func (f *FixtureFactory) Lot(drugID string, opts ...func(*LotFixture)) LotFixture {
	seq := f.nextSeq()

	lot := LotFixture{
		ID:                uuid.New().String(),
		DrugID:            drugID,
		LotNumber:         fmt.Sprintf("LOT-%04d", seq),
		Warehouse:         "bulk",
		QuantityInitial:   100,
		QuantityAvailable: 100,
		ExpiryDate:        time.Now().AddDate(1, 0, 0),
		UnitCost:          decimal.NewFromFloat(2.10),
		Status:            "active",
		ReceivedAt:        time.Now(),
	}

	for _, opt := range opts {
		opt(&lot)
	}

	return lot
}

// WithLotNumber sets the lot number
func WithLotNumber(number string) func(*LotFixture) {
	return func(l *LotFixture) {
		l.LotNumber = number
	}
}

// WithWarehouse sets the lot warehouse
func WithWarehouse(warehouse string) func(*LotFixture) {
	return func(l *LotFixture) {
		l.Warehouse = warehouse
	}
}

// WithQuantity sets both initial and available quantity
func WithQuantity(quantity int) func(*LotFixture) {
	return func(l *LotFixture) {
		l.QuantityInitial = quantity
		l.QuantityAvailable = quantity
	}
}

// WithAvailable sets the available quantity only
func WithAvailable(available int) func(*LotFixture) {
	return func(l *LotFixture) {
		l.QuantityAvailable = available
	}
}

// WithExpiryDate sets the lot expiry date
func WithExpiryDate(expiry time.Time) func(*LotFixture) {
	return func(l *LotFixture) {
		l.ExpiryDate = expiry
	}
}

// WithLotStatus sets the lot status
func WithLotStatus(status string) func(*LotFixture) {
	return func(l *LotFixture) {
		l.Status = status
	}
}

// ExpiredLot creates a lot that expired a month ago
func (f *FixtureFactory) ExpiredLot(drugID string) LotFixture {
	return f.Lot(drugID, WithExpiryDate(time.Now().AddDate(0, -1, 0)))
}
