package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/thermal/event"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook implementations are cached per interface at registration time.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                  []OnInit
	onShutdown              []OnShutdown
	onEvent                 []OnEvent
	onInvariantViolation    []OnInvariantViolation
	onIdentityRegistered    []OnIdentityRegistered
	onIdentityVerified      []OnIdentityVerified
	onPhoneHashUpdated      []OnPhoneHashUpdated
	onOperatorAdded         []OnOperatorAdded
	onOperatorRemoved       []OnOperatorRemoved
	onTransfer              []OnTransfer
	onProductionRecorded    []OnProductionRecorded
	onTradeRecorded         []OnTradeRecorded
	onTradeSettled          []OnTradeSettled
	onTradeSettlementFailed []OnTradeSettlementFailed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnEvent); ok {
		r.onEvent = append(r.onEvent, v)
	}
	if v, ok := p.(OnInvariantViolation); ok {
		r.onInvariantViolation = append(r.onInvariantViolation, v)
	}
	if v, ok := p.(OnIdentityRegistered); ok {
		r.onIdentityRegistered = append(r.onIdentityRegistered, v)
	}
	if v, ok := p.(OnIdentityVerified); ok {
		r.onIdentityVerified = append(r.onIdentityVerified, v)
	}
	if v, ok := p.(OnPhoneHashUpdated); ok {
		r.onPhoneHashUpdated = append(r.onPhoneHashUpdated, v)
	}
	if v, ok := p.(OnOperatorAdded); ok {
		r.onOperatorAdded = append(r.onOperatorAdded, v)
	}
	if v, ok := p.(OnOperatorRemoved); ok {
		r.onOperatorRemoved = append(r.onOperatorRemoved, v)
	}
	if v, ok := p.(OnTransfer); ok {
		r.onTransfer = append(r.onTransfer, v)
	}
	if v, ok := p.(OnProductionRecorded); ok {
		r.onProductionRecorded = append(r.onProductionRecorded, v)
	}
	if v, ok := p.(OnTradeRecorded); ok {
		r.onTradeRecorded = append(r.onTradeRecorded, v)
	}
	if v, ok := p.(OnTradeSettled); ok {
		r.onTradeSettled = append(r.onTradeSettled, v)
	}
	if v, ok := p.(OnTradeSettlementFailed); ok {
		r.onTradeSettlementFailed = append(r.onTradeSettlementFailed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnEvent", reflect.TypeOf((*OnEvent)(nil)).Elem()},
	{"OnInvariantViolation", reflect.TypeOf((*OnInvariantViolation)(nil)).Elem()},
	{"OnIdentityRegistered", reflect.TypeOf((*OnIdentityRegistered)(nil)).Elem()},
	{"OnIdentityVerified", reflect.TypeOf((*OnIdentityVerified)(nil)).Elem()},
	{"OnPhoneHashUpdated", reflect.TypeOf((*OnPhoneHashUpdated)(nil)).Elem()},
	{"OnOperatorAdded", reflect.TypeOf((*OnOperatorAdded)(nil)).Elem()},
	{"OnOperatorRemoved", reflect.TypeOf((*OnOperatorRemoved)(nil)).Elem()},
	{"OnTransfer", reflect.TypeOf((*OnTransfer)(nil)).Elem()},
	{"OnProductionRecorded", reflect.TypeOf((*OnProductionRecorded)(nil)).Elem()},
	{"OnTradeRecorded", reflect.TypeOf((*OnTradeRecorded)(nil)).Elem()},
	{"OnTradeSettled", reflect.TypeOf((*OnTradeSettled)(nil)).Elem()},
	{"OnTradeSettlementFailed", reflect.TypeOf((*OnTradeSettlementFailed)(nil)).Elem()},
}

// implementedInterfaces returns the hook interfaces a plugin implements.
func implementedInterfaces(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, ledger any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnInit", func() error { return p.OnInit(ctx, ledger) })
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnShutdown", func() error { return p.OnShutdown(ctx) })
	}
}

// EmitInvariantViolation reports an aborted mutation.
func (r *Registry) EmitInvariantViolation(ctx context.Context, op string, violation error) {
	r.mu.RLock()
	plugins := r.onInvariantViolation
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnInvariantViolation", func() error {
			return p.OnInvariantViolation(ctx, op, violation)
		})
	}
}

// Emit delivers e to every OnEvent plugin and then to the plugins that
// implement the hook for its kind.
func (r *Registry) Emit(ctx context.Context, e event.Event) {
	r.mu.RLock()
	calls := collect(nil, r.onEvent, "OnEvent", func(p OnEvent) error { return p.OnEvent(ctx, e) })

	switch ev := e.(type) {
	case *event.IdentityRegistered:
		calls = collect(calls, r.onIdentityRegistered, "OnIdentityRegistered", func(p OnIdentityRegistered) error {
			return p.OnIdentityRegistered(ctx, ev)
		})
	case *event.IdentityVerified:
		calls = collect(calls, r.onIdentityVerified, "OnIdentityVerified", func(p OnIdentityVerified) error {
			return p.OnIdentityVerified(ctx, ev)
		})
	case *event.PhoneHashUpdated:
		calls = collect(calls, r.onPhoneHashUpdated, "OnPhoneHashUpdated", func(p OnPhoneHashUpdated) error {
			return p.OnPhoneHashUpdated(ctx, ev)
		})
	case *event.OperatorAdded:
		calls = collect(calls, r.onOperatorAdded, "OnOperatorAdded", func(p OnOperatorAdded) error {
			return p.OnOperatorAdded(ctx, ev)
		})
	case *event.OperatorRemoved:
		calls = collect(calls, r.onOperatorRemoved, "OnOperatorRemoved", func(p OnOperatorRemoved) error {
			return p.OnOperatorRemoved(ctx, ev)
		})
	case *event.Transfer:
		calls = collect(calls, r.onTransfer, "OnTransfer", func(p OnTransfer) error {
			return p.OnTransfer(ctx, ev)
		})
	case *event.ProductionRecorded:
		calls = collect(calls, r.onProductionRecorded, "OnProductionRecorded", func(p OnProductionRecorded) error {
			return p.OnProductionRecorded(ctx, ev)
		})
	case *event.TradeRecorded:
		calls = collect(calls, r.onTradeRecorded, "OnTradeRecorded", func(p OnTradeRecorded) error {
			return p.OnTradeRecorded(ctx, ev)
		})
	case *event.TradeSettled:
		calls = collect(calls, r.onTradeSettled, "OnTradeSettled", func(p OnTradeSettled) error {
			return p.OnTradeSettled(ctx, ev)
		})
	case *event.TradeSettlementFailed:
		calls = collect(calls, r.onTradeSettlementFailed, "OnTradeSettlementFailed", func(p OnTradeSettlementFailed) error {
			return p.OnTradeSettlementFailed(ctx, ev)
		})
	}
	r.mu.RUnlock()

	for _, c := range calls {
		r.call(ctx, c.plugin, c.hook, c.fn)
	}
}

type hookCall struct {
	plugin string
	hook   string
	fn     func() error
}

func collect[P Plugin](calls []hookCall, plugins []P, hook string, fn func(P) error) []hookCall {
	for _, p := range plugins {
		calls = append(calls, hookCall{plugin: p.Name(), hook: hook, fn: func() error { return fn(p) }})
	}
	return calls
}

// call runs a hook with the registry timeout and logs its failure.
func (r *Registry) call(ctx context.Context, pluginName, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin hook failed",
			"plugin", pluginName,
			"hook", hook,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never stall the commit pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
