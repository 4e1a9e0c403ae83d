// Package observability provides a metrics extension for the thermal
// ledger that records event counts and amounts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/thermal/event"
	"github.com/xraph/thermal/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                  = (*MetricsExtension)(nil)
	_ plugin.OnInit                  = (*MetricsExtension)(nil)
	_ plugin.OnInvariantViolation    = (*MetricsExtension)(nil)
	_ plugin.OnIdentityRegistered    = (*MetricsExtension)(nil)
	_ plugin.OnIdentityVerified      = (*MetricsExtension)(nil)
	_ plugin.OnPhoneHashUpdated      = (*MetricsExtension)(nil)
	_ plugin.OnOperatorAdded         = (*MetricsExtension)(nil)
	_ plugin.OnOperatorRemoved       = (*MetricsExtension)(nil)
	_ plugin.OnTransfer              = (*MetricsExtension)(nil)
	_ plugin.OnProductionRecorded    = (*MetricsExtension)(nil)
	_ plugin.OnTradeRecorded         = (*MetricsExtension)(nil)
	_ plugin.OnTradeSettled          = (*MetricsExtension)(nil)
	_ plugin.OnTradeSettlementFailed = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records ledger-wide metrics. Amounts are observed in
// display units.
type MetricsExtension struct {
	factory MetricFactory

	// Lifecycle metrics
	Started Counter

	// Identity metrics
	IdentityRegistered Counter
	IdentityVerified   Counter
	PhoneHashUpdated   Counter

	// Operator metrics
	OperatorAdded   Counter
	OperatorRemoved Counter

	// Token metrics
	TokensMinted     Counter
	TokensBurned     Counter
	Transfers        Counter
	TransferAmount   Histogram
	MintedVolume     Counter
	BurnedVolume     Counter
	TransferredTotal Counter

	// Record metrics
	ProductionRecorded Counter
	ProductionAmount   Histogram
	TradeRecorded      Counter
	TradeValue         Histogram

	// Settlement metrics
	TradeSettled          Counter
	TradeSettlementFailed Counter
	SettledValue          Counter

	// Error metrics
	InvariantViolations Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		Started: factory.Counter("thermal.ledger.started"),

		IdentityRegistered: factory.Counter("thermal.identity.registered"),
		IdentityVerified:   factory.Counter("thermal.identity.verified"),
		PhoneHashUpdated:   factory.Counter("thermal.identity.phone_hash_updated"),

		OperatorAdded:   factory.Counter("thermal.operator.added"),
		OperatorRemoved: factory.Counter("thermal.operator.removed"),

		TokensMinted:     factory.Counter("thermal.token.mints"),
		TokensBurned:     factory.Counter("thermal.token.burns"),
		Transfers:        factory.Counter("thermal.token.transfers"),
		TransferAmount:   factory.Histogram("thermal.token.transfer.amount"),
		MintedVolume:     factory.Counter("thermal.token.minted.volume"),
		BurnedVolume:     factory.Counter("thermal.token.burned.volume"),
		TransferredTotal: factory.Counter("thermal.token.transferred.volume"),

		ProductionRecorded: factory.Counter("thermal.record.production"),
		ProductionAmount:   factory.Histogram("thermal.record.production.amount"),
		TradeRecorded:      factory.Counter("thermal.record.trade"),
		TradeValue:         factory.Histogram("thermal.record.trade.value"),

		TradeSettled:          factory.Counter("thermal.settlement.settled"),
		TradeSettlementFailed: factory.Counter("thermal.settlement.failed"),
		SettledValue:          factory.Counter("thermal.settlement.settled.volume"),

		InvariantViolations: factory.Counter("thermal.invariant.violations"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	m.Started.Inc()
	return nil
}

// OnInvariantViolation implements plugin.OnInvariantViolation.
func (m *MetricsExtension) OnInvariantViolation(_ context.Context, _ string, _ error) error {
	m.InvariantViolations.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Identity hooks
// ──────────────────────────────────────────────────

// OnIdentityRegistered implements plugin.OnIdentityRegistered.
func (m *MetricsExtension) OnIdentityRegistered(_ context.Context, _ *event.IdentityRegistered) error {
	m.IdentityRegistered.Inc()
	return nil
}

// OnIdentityVerified implements plugin.OnIdentityVerified.
func (m *MetricsExtension) OnIdentityVerified(_ context.Context, _ *event.IdentityVerified) error {
	m.IdentityVerified.Inc()
	return nil
}

// OnPhoneHashUpdated implements plugin.OnPhoneHashUpdated.
func (m *MetricsExtension) OnPhoneHashUpdated(_ context.Context, _ *event.PhoneHashUpdated) error {
	m.PhoneHashUpdated.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Operator hooks
// ──────────────────────────────────────────────────

// OnOperatorAdded implements plugin.OnOperatorAdded.
func (m *MetricsExtension) OnOperatorAdded(_ context.Context, _ *event.OperatorAdded) error {
	m.OperatorAdded.Inc()
	return nil
}

// OnOperatorRemoved implements plugin.OnOperatorRemoved.
func (m *MetricsExtension) OnOperatorRemoved(_ context.Context, _ *event.OperatorRemoved) error {
	m.OperatorRemoved.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Token hooks
// ──────────────────────────────────────────────────

// OnTransfer implements plugin.OnTransfer.
func (m *MetricsExtension) OnTransfer(_ context.Context, e *event.Transfer) error {
	amount := displayUnits(e.Amount.Hundredths())
	switch {
	case e.IsMint():
		m.TokensMinted.Inc()
		m.MintedVolume.Add(amount)
	case e.IsBurn():
		m.TokensBurned.Inc()
		m.BurnedVolume.Add(amount)
	default:
		m.Transfers.Inc()
		m.TransferAmount.Observe(amount)
		m.TransferredTotal.Add(amount)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Record and settlement hooks
// ──────────────────────────────────────────────────

// OnProductionRecorded implements plugin.OnProductionRecorded.
func (m *MetricsExtension) OnProductionRecorded(_ context.Context, e *event.ProductionRecorded) error {
	m.ProductionRecorded.Inc()
	m.ProductionAmount.Observe(displayUnits(e.Amount.Hundredths()))
	return nil
}

// OnTradeRecorded implements plugin.OnTradeRecorded.
func (m *MetricsExtension) OnTradeRecorded(_ context.Context, e *event.TradeRecorded) error {
	m.TradeRecorded.Inc()
	m.TradeValue.Observe(displayUnits(e.Value.Hundredths()))
	return nil
}

// OnTradeSettled implements plugin.OnTradeSettled.
func (m *MetricsExtension) OnTradeSettled(_ context.Context, e *event.TradeSettled) error {
	m.TradeSettled.Inc()
	m.SettledValue.Add(displayUnits(e.Value.Hundredths()))
	return nil
}

// OnTradeSettlementFailed implements plugin.OnTradeSettlementFailed.
func (m *MetricsExtension) OnTradeSettlementFailed(_ context.Context, _ *event.TradeSettlementFailed) error {
	m.TradeSettlementFailed.Inc()
	return nil
}

func displayUnits(hundredths int64) float64 {
	return float64(hundredths) / 100
}
