// Package plugin provides the hook system through which the ledger
// publishes committed events. Plugins implement Plugin plus any of the
// hook interfaces below; the Registry discovers the hooks at
// registration time.
//
// Hooks run after the mutation has committed and in commit order. A hook
// error is logged and never rolls anything back. Hooks must not call
// ledger mutations synchronously.
package plugin

import (
	"context"

	"github.com/xraph/thermal/event"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called once the ledger has loaded its state.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, ledger any) error
}

// OnShutdown is called when the ledger stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// OnEvent receives every event regardless of kind.
type OnEvent interface {
	Plugin
	OnEvent(ctx context.Context, e event.Event) error
}

// OnInvariantViolation is called when a mutation was aborted because it
// would have broken a ledger invariant.
type OnInvariantViolation interface {
	Plugin
	OnInvariantViolation(ctx context.Context, op string, err error) error
}

// ──────────────────────────────────────────────────
// Identity hooks
// ──────────────────────────────────────────────────

// OnIdentityRegistered is called after an account registers.
type OnIdentityRegistered interface {
	Plugin
	OnIdentityRegistered(ctx context.Context, e *event.IdentityRegistered) error
}

// OnIdentityVerified is called after an identity is first verified.
type OnIdentityVerified interface {
	Plugin
	OnIdentityVerified(ctx context.Context, e *event.IdentityVerified) error
}

// OnPhoneHashUpdated is called after an account changes its phone hash.
type OnPhoneHashUpdated interface {
	Plugin
	OnPhoneHashUpdated(ctx context.Context, e *event.PhoneHashUpdated) error
}

// ──────────────────────────────────────────────────
// Operator hooks
// ──────────────────────────────────────────────────

// OnOperatorAdded is called after the owner grants operator rights.
type OnOperatorAdded interface {
	Plugin
	OnOperatorAdded(ctx context.Context, e *event.OperatorAdded) error
}

// OnOperatorRemoved is called after the owner revokes operator rights.
type OnOperatorRemoved interface {
	Plugin
	OnOperatorRemoved(ctx context.Context, e *event.OperatorRemoved) error
}

// ──────────────────────────────────────────────────
// Token hooks
// ──────────────────────────────────────────────────

// OnTransfer is called for every mint, burn and transfer.
type OnTransfer interface {
	Plugin
	OnTransfer(ctx context.Context, e *event.Transfer) error
}

// ──────────────────────────────────────────────────
// Record and settlement hooks
// ──────────────────────────────────────────────────

// OnProductionRecorded is called after production is recorded.
type OnProductionRecorded interface {
	Plugin
	OnProductionRecorded(ctx context.Context, e *event.ProductionRecorded) error
}

// OnTradeRecorded is called after a trade enters Pending.
type OnTradeRecorded interface {
	Plugin
	OnTradeRecorded(ctx context.Context, e *event.TradeRecorded) error
}

// OnTradeSettled is called after a trade settles.
type OnTradeSettled interface {
	Plugin
	OnTradeSettled(ctx context.Context, e *event.TradeSettled) error
}

// OnTradeSettlementFailed is called after a settlement attempt fails.
type OnTradeSettlementFailed interface {
	Plugin
	OnTradeSettlementFailed(ctx context.Context, e *event.TradeSettlementFailed) error
}
