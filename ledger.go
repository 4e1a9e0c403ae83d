package thermal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/thermal/plugin"
	"github.com/xraph/thermal/store"
	"github.com/xraph/thermal/types"
)

// Ledger is the explicit ledger context. It owns the serialized state and
// wires the components together; callers reach them through the
// accessors.
type Ledger struct {
	b       *book
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	identities *IdentityRegistry
	authority  *OperatorAuthority
	tokens     *TokenLedger
	records    *TransactionLedger
	settlement *SettlementEngine

	// Background workers
	stopChan chan struct{}
	stopOnce sync.Once
	stopErr  error
	wg       sync.WaitGroup

	// Configuration
	clock                    func() time.Time
	requireVerifiedRecipient bool
	autoSettleOperator       types.Account
	autoSettleInterval       time.Duration
}

// New creates a new Ledger owned by owner and persisted through s.
func New(s store.Store, owner types.Account, opts ...Option) *Ledger {
	l := &Ledger{
		store:    s,
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		stopChan: make(chan struct{}),
		clock:    time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	l.b = &book{
		state:   store.NewSnapshot(),
		owner:   owner,
		store:   s,
		plugins: l.plugins,
		logger:  l.logger,
		clock:   l.clock,
	}
	l.authority = newOperatorAuthority(l.b, owner)
	l.identities = newIdentityRegistry(l.b, l.authority)
	l.tokens = newTokenLedger(l.b, l.authority, l.identities, l.requireVerifiedRecipient)
	l.records = newTransactionLedger(l.b, l.authority)
	l.settlement = newSettlementEngine(l.b, l.authority, l.identities, l.tokens, l.records)

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		if err := l.plugins.Register(p); err != nil {
			l.logger.Warn("plugin not registered",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		l.plugins.WithTimeout(d)
	}
}

// WithClock overrides the time source used to stamp records and events.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithRecipientVerification requires the recipient of a transfer to be
// verified as well as the sender.
func WithRecipientVerification(required bool) Option {
	return func(l *Ledger) {
		l.requireVerifiedRecipient = required
	}
}

// WithAutoSettle runs SettleAll as operator every interval between Start
// and Stop.
func WithAutoSettle(operator types.Account, interval time.Duration) Option {
	return func(l *Ledger) {
		l.autoSettleOperator = operator
		l.autoSettleInterval = interval
	}
}

// Start migrates the store, loads and verifies the persisted state, and
// begins background workers. A snapshot that breaks any invariant is
// rejected and the ledger stays stopped.
func (l *Ledger) Start(ctx context.Context) error {
	if l.b.owner.IsNull() {
		return invalidInput("owner", "ledger owner must not be the null account")
	}
	if l.b.isStarted() {
		return ErrAlreadyStarted
	}

	// Migrate database
	if err := l.store.Migrate(ctx); err != nil {
		return err
	}

	snap, err := l.store.Load(ctx)
	if err != nil {
		return err
	}
	if err := l.b.load(snap); err != nil {
		l.logger.Error("refusing to start on inconsistent state",
			"seq", snap.Seq,
			"error", err,
		)
		return err
	}

	// Initialize plugins
	l.plugins.EmitInit(ctx, l)

	if l.autoSettleInterval > 0 && !l.autoSettleOperator.IsNull() {
		l.wg.Add(1)
		go l.autoSettleWorker(context.WithoutCancel(ctx))
	}

	l.logger.Info("ledger started",
		"owner", l.b.owner,
		"seq", snap.Seq,
		"identities", len(snap.Identities),
		"total_supply", snap.Supply.String(),
		"auto_settle_interval", l.autoSettleInterval,
		"require_verified_recipient", l.requireVerifiedRecipient,
	)

	return nil
}

// Stop shuts down the Ledger. It is safe to call more than once.
func (l *Ledger) Stop() error {
	l.stopOnce.Do(func() {
		close(l.stopChan)
		l.wg.Wait()

		l.b.stop()

		ctx := context.Background()
		l.plugins.EmitShutdown(ctx)

		l.stopErr = l.store.Close()
	})
	return l.stopErr
}

// Identities returns the identity registry.
func (l *Ledger) Identities() *IdentityRegistry { return l.identities }

// Operators returns the operator authority.
func (l *Ledger) Operators() *OperatorAuthority { return l.authority }

// Tokens returns the token ledger.
func (l *Ledger) Tokens() *TokenLedger { return l.tokens }

// Records returns the transaction ledger.
func (l *Ledger) Records() *TransactionLedger { return l.records }

// Settlement returns the settlement engine.
func (l *Ledger) Settlement() *SettlementEngine { return l.settlement }

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// Store returns the backing store.
func (l *Ledger) Store() store.Store { return l.store }

// Owner returns the ledger owner.
func (l *Ledger) Owner() types.Account { return l.b.owner }

// Started reports whether the ledger accepts mutations.
func (l *Ledger) Started() bool { return l.b.isStarted() }

// Snapshot returns a deep copy of the committed state.
func (l *Ledger) Snapshot() *store.Snapshot {
	var snap *store.Snapshot
	l.b.view(func(s *store.Snapshot) {
		snap = s.Clone()
	})
	return snap
}

// CheckInvariants verifies every ledger invariant over the committed
// state.
func (l *Ledger) CheckInvariants() error {
	var err error
	l.b.view(func(s *store.Snapshot) {
		err = checkSnapshot(s)
	})
	return err
}

// CompactJournal trims store journal entries older than retain. Stores
// without a trimmable journal report zero.
func (l *Ledger) CompactJournal(ctx context.Context, retain time.Duration) (int64, error) {
	c, ok := l.store.(store.Compactor)
	if !ok {
		return 0, nil
	}
	removed, err := c.Compact(ctx, l.clock().Add(-retain))
	if err != nil {
		return 0, fmt.Errorf("thermal: compact journal: %w", err)
	}
	l.logger.Info("journal compacted", "removed", removed)
	return removed, nil
}

// autoSettleWorker settles pending trades on a fixed interval.
func (l *Ledger) autoSettleWorker(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.autoSettleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return

		case <-ticker.C:
			start := time.Now()
			results, err := l.settlement.SettleAll(ctx, l.autoSettleOperator)
			if err != nil {
				l.logger.Error("auto settlement failed",
					"error", err,
					"attempted", len(results),
				)
				continue
			}
			if len(results) > 0 {
				l.logger.Debug("auto settlement cycle",
					"attempted", len(results),
					"settled", countSettled(results),
					"elapsed_ms", time.Since(start).Milliseconds(),
				)
			}
		}
	}
}
