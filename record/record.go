// Package record defines the append-only production and trade records.
package record

import (
	"fmt"
	"time"

	"github.com/xraph/thermal/id"
	"github.com/xraph/thermal/types"
)

// Kind distinguishes record families in the Records table.
type Kind string

const (
	KindProduction Kind = "production"
	KindTrade      Kind = "trade"
)

// Status is the settlement state of a trade.
type Status string

const (
	StatusPending Status = "pending"
	StatusSettled Status = "settled"
	StatusFailed  Status = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusSettled || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSettled, StatusFailed:
		return true
	}
	return false
}

// PriceScale is the divisor applied to amount*price: amount is in
// hundredths of an energy unit and price in hundredths of a token per unit.
const PriceScale = 100

// ProductionRecord is an audit-only record of energy produced by a device.
// It never moves funds.
type ProductionRecord struct {
	ID         id.ProductionID `json:"id"`
	DeviceID   string          `json:"device_id"`
	Amount     types.Amount    `json:"amount"`
	Timestamp  time.Time       `json:"timestamp"`
	RecordedBy types.Account   `json:"recorded_by"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Clone returns a copy of the record.
func (p *ProductionRecord) Clone() *ProductionRecord {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// TradeRecord is a bilateral energy trade awaiting or past settlement.
// Only the status bookkeeping fields change after recording.
type TradeRecord struct {
	TradeID    string        `json:"trade_id"`
	Seller     types.Account `json:"seller"`
	Buyer      types.Account `json:"buyer"`
	Amount     types.Amount  `json:"amount"`
	Price      types.Amount  `json:"price"`
	Timestamp  time.Time     `json:"timestamp"`
	RecordedBy types.Account `json:"recorded_by"`
	RecordedAt time.Time     `json:"recorded_at"`

	Status        Status        `json:"status"`
	FailureReason string        `json:"failure_reason,omitempty"`
	SettledBy     types.Account `json:"settled_by,omitempty"`
	SettledAt     *time.Time    `json:"settled_at,omitempty"`
}

// Clone returns a deep copy of the record.
func (t *TradeRecord) Clone() *TradeRecord {
	if t == nil {
		return nil
	}
	c := *t
	if t.SettledAt != nil {
		at := *t.SettledAt
		c.SettledAt = &at
	}
	return &c
}

// Value returns the settlement value amount*price/PriceScale, floored.
func (t *TradeRecord) Value() (types.Amount, error) {
	return SettlementValue(t.Amount, t.Price)
}

// SettlementValue computes amount*price/PriceScale with checked
// multiplication.
func SettlementValue(amount, price types.Amount) (types.Amount, error) {
	v, err := amount.Mul(price.Hundredths())
	if err != nil {
		return 0, fmt.Errorf("settlement value %d x %d: %w", amount, price, err)
	}
	return v / PriceScale, nil
}

// ProductionRequest is the input to recording a production reading.
type ProductionRequest struct {
	DeviceID  string       `json:"device_id" yaml:"device_id"`
	Amount    types.Amount `json:"amount" yaml:"amount"`
	Timestamp time.Time    `json:"timestamp" yaml:"timestamp"`
}

// TradeRequest is the input to recording a trade.
type TradeRequest struct {
	TradeID   string        `json:"trade_id" yaml:"trade_id"`
	Seller    types.Account `json:"seller" yaml:"seller"`
	Buyer     types.Account `json:"buyer" yaml:"buyer"`
	Amount    types.Amount  `json:"amount" yaml:"amount"`
	Price     types.Amount  `json:"price" yaml:"price"`
	Timestamp time.Time     `json:"timestamp" yaml:"timestamp"`
}

// Failure reasons recorded on a trade that could not settle.
const (
	ReasonInsufficientBalance = "insufficient_balance"
	ReasonSellerNotVerified   = "seller_not_verified"
	ReasonBuyerNotVerified    = "buyer_not_verified"
	ReasonInvalidAmount       = "invalid_amount"
)
