// Package audithook bridges committed ledger events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not import
// any audit backend directly. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/thermal/event"
	"github.com/xraph/thermal/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                  = (*Extension)(nil)
	_ plugin.OnInvariantViolation    = (*Extension)(nil)
	_ plugin.OnIdentityRegistered    = (*Extension)(nil)
	_ plugin.OnIdentityVerified      = (*Extension)(nil)
	_ plugin.OnPhoneHashUpdated      = (*Extension)(nil)
	_ plugin.OnOperatorAdded         = (*Extension)(nil)
	_ plugin.OnOperatorRemoved       = (*Extension)(nil)
	_ plugin.OnTransfer              = (*Extension)(nil)
	_ plugin.OnProductionRecorded    = (*Extension)(nil)
	_ plugin.OnTradeRecorded         = (*Extension)(nil)
	_ plugin.OnTradeSettled          = (*Extension)(nil)
	_ plugin.OnTradeSettlementFailed = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges ledger events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Identity hooks
// ──────────────────────────────────────────────────

// OnIdentityRegistered implements plugin.OnIdentityRegistered.
func (e *Extension) OnIdentityRegistered(ctx context.Context, ev *event.IdentityRegistered) error {
	return e.record(ctx, &ev.Meta, ActionIdentityRegistered, SeverityInfo, OutcomeSuccess,
		ResourceIdentity, ev.Account.String(), CategoryIdentity, ev.Account.String(), "",
		"phone_hash", ev.PhoneHash,
	)
}

// OnIdentityVerified implements plugin.OnIdentityVerified.
func (e *Extension) OnIdentityVerified(ctx context.Context, ev *event.IdentityVerified) error {
	return e.record(ctx, &ev.Meta, ActionIdentityVerified, SeverityInfo, OutcomeSuccess,
		ResourceIdentity, ev.Account.String(), CategoryIdentity, ev.VerifiedBy.String(), "",
	)
}

// OnPhoneHashUpdated implements plugin.OnPhoneHashUpdated.
func (e *Extension) OnPhoneHashUpdated(ctx context.Context, ev *event.PhoneHashUpdated) error {
	return e.record(ctx, &ev.Meta, ActionPhoneHashUpdated, SeverityWarning, OutcomeSuccess,
		ResourceIdentity, ev.Account.String(), CategoryIdentity, ev.Account.String(), "",
		"old_hash", ev.OldHash,
		"new_hash", ev.NewHash,
	)
}

// ──────────────────────────────────────────────────
// Operator hooks
// ──────────────────────────────────────────────────

// OnOperatorAdded implements plugin.OnOperatorAdded.
func (e *Extension) OnOperatorAdded(ctx context.Context, ev *event.OperatorAdded) error {
	return e.record(ctx, &ev.Meta, ActionOperatorAdded, SeverityWarning, OutcomeSuccess,
		ResourceOperator, ev.Account.String(), CategoryAccess, ev.By.String(), "",
	)
}

// OnOperatorRemoved implements plugin.OnOperatorRemoved.
func (e *Extension) OnOperatorRemoved(ctx context.Context, ev *event.OperatorRemoved) error {
	return e.record(ctx, &ev.Meta, ActionOperatorRemoved, SeverityWarning, OutcomeSuccess,
		ResourceOperator, ev.Account.String(), CategoryAccess, ev.By.String(), "",
	)
}

// ──────────────────────────────────────────────────
// Token hooks
// ──────────────────────────────────────────────────

// OnTransfer implements plugin.OnTransfer. Mints and burns are recorded
// under their own actions.
func (e *Extension) OnTransfer(ctx context.Context, ev *event.Transfer) error {
	action, account := ActionTokenTransferred, ev.From
	switch {
	case ev.IsMint():
		action, account = ActionTokenMinted, ev.To
	case ev.IsBurn():
		action = ActionTokenBurned
	}
	return e.record(ctx, &ev.Meta, action, SeverityInfo, OutcomeSuccess,
		ResourceBalance, account.String(), CategoryToken, ev.From.String(), "",
		"from", ev.From.String(),
		"to", ev.To.String(),
		"amount", ev.Amount.String(),
	)
}

// ──────────────────────────────────────────────────
// Record and settlement hooks
// ──────────────────────────────────────────────────

// OnProductionRecorded implements plugin.OnProductionRecorded.
func (e *Extension) OnProductionRecorded(ctx context.Context, ev *event.ProductionRecorded) error {
	return e.record(ctx, &ev.Meta, ActionProductionRecorded, SeverityInfo, OutcomeSuccess,
		ResourceProduction, ev.RecordID.String(), CategoryRecord, ev.RecordedBy.String(), "",
		"device_id", ev.DeviceID,
		"amount", ev.Amount.String(),
	)
}

// OnTradeRecorded implements plugin.OnTradeRecorded.
func (e *Extension) OnTradeRecorded(ctx context.Context, ev *event.TradeRecorded) error {
	return e.record(ctx, &ev.Meta, ActionTradeRecorded, SeverityInfo, OutcomeSuccess,
		ResourceTrade, ev.TradeID, CategoryRecord, "", "",
		"seller", ev.Seller.String(),
		"buyer", ev.Buyer.String(),
		"amount", ev.Amount.String(),
		"price", ev.Price.String(),
		"value", ev.Value.String(),
	)
}

// OnTradeSettled implements plugin.OnTradeSettled.
func (e *Extension) OnTradeSettled(ctx context.Context, ev *event.TradeSettled) error {
	return e.record(ctx, &ev.Meta, ActionTradeSettled, SeverityInfo, OutcomeSuccess,
		ResourceTrade, ev.TradeID, CategorySettlement, ev.SettledBy.String(), "",
		"seller", ev.Seller.String(),
		"buyer", ev.Buyer.String(),
		"value", ev.Value.String(),
	)
}

// OnTradeSettlementFailed implements plugin.OnTradeSettlementFailed.
func (e *Extension) OnTradeSettlementFailed(ctx context.Context, ev *event.TradeSettlementFailed) error {
	return e.record(ctx, &ev.Meta, ActionTradeSettlementFailed, SeverityWarning, OutcomeFailure,
		ResourceTrade, ev.TradeID, CategorySettlement, ev.SettledBy.String(), ev.Reason,
		"seller", ev.Seller.String(),
		"buyer", ev.Buyer.String(),
		"value", ev.Value.String(),
	)
}

// OnInvariantViolation implements plugin.OnInvariantViolation.
func (e *Extension) OnInvariantViolation(ctx context.Context, op string, violation error) error {
	return e.record(ctx, nil, ActionInvariantViolation, SeverityCritical, OutcomeFailure,
		ResourceLedger, op, CategoryIntegrity, "", violation.Error(),
		"operation", op,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	meta *event.Meta,
	action, severity, outcome string,
	resource, resourceID, category string,
	actor, reason string,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	md := make(map[string]any, len(kvPairs)/2+3)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		md[key] = kvPairs[i+1]
	}
	if meta != nil {
		md["event_id"] = meta.ID.String()
		md["event_seq"] = meta.Seq
		md["event_at"] = meta.At
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Actor:      actor,
		Metadata:   md,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
