package thermal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/thermal/event"
	"github.com/xraph/thermal/plugin"
	"github.com/xraph/thermal/store"
	"github.com/xraph/thermal/types"
)

// book owns the committed ledger state and serializes every mutation.
//
// A mutation runs under mu as a tx over the committed snapshot. On
// success the overlay is checked against the invariants, persisted as a
// single store batch and folded into the snapshot. Each commit links a
// dispatch turn onto a chain while holding mu and waits for the previous
// turn only after mu is released, so neither readers nor writers wait on
// plugins while event order still follows commit order.
type book struct {
	mu sync.RWMutex

	state   *store.Snapshot
	started bool

	// lastTurn is closed when the latest committed batch has been
	// dispatched. Guarded by mu.
	lastTurn chan struct{}

	owner   types.Account
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   func() time.Time
}

// update runs fn as one serialized transaction.
func (b *book) update(ctx context.Context, op string, fn func(t *tx) error) error {
	b.mu.Lock()

	if !b.started {
		b.mu.Unlock()
		return ErrNotStarted
	}

	t := newTx(b.state, b.clock())
	if err := fn(t); err != nil {
		b.mu.Unlock()
		return err
	}
	if t.empty() {
		b.mu.Unlock()
		return nil
	}

	if err := t.checkInvariants(); err != nil {
		b.mu.Unlock()
		b.logger.Error("invariant violation, operation aborted",
			"op", op,
			"error", err,
		)
		b.plugins.EmitInvariantViolation(context.WithoutCancel(ctx), op, err)
		return err
	}

	batch := t.batch(b.state.Seq+1, b.owner)
	if err := b.store.Commit(ctx, batch); err != nil {
		b.mu.Unlock()
		b.logger.Error("commit failed",
			"op", op,
			"seq", batch.Seq,
			"error", err,
		)
		return fmt.Errorf("thermal: %s: commit batch %d: %w", op, batch.Seq, err)
	}
	b.state.Apply(batch)

	prev, turn := b.lastTurn, make(chan struct{})
	b.lastTurn = turn
	b.mu.Unlock()

	if prev != nil {
		<-prev
	}
	defer close(turn)
	b.dispatch(context.WithoutCancel(ctx), t.events)
	return nil
}

// view runs fn against the committed state under the read lock. fn must
// not retain references into the snapshot.
func (b *book) view(fn func(s *store.Snapshot)) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	fn(b.state)
}

func (b *book) dispatch(ctx context.Context, events []event.Event) {
	for _, e := range events {
		b.logger.Debug("ledger event",
			"kind", e.Kind(),
			"seq", e.Metadata().Seq,
			"id", e.Metadata().ID.String(),
		)
		b.plugins.Emit(ctx, e)
	}
}

// load installs a snapshot read from the store after verifying it.
func (b *book) load(snap *store.Snapshot) error {
	if err := checkSnapshot(snap); err != nil {
		return fmt.Errorf("thermal: load snapshot at seq %d: %w", snap.Seq, err)
	}
	if !snap.Owner.IsNull() && snap.Owner != b.owner {
		return fmt.Errorf("%w: stored %s, configured %s", ErrOwnerMismatch, snap.Owner, b.owner)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return ErrAlreadyStarted
	}
	b.state = snap
	b.started = true
	return nil
}

func (b *book) stop() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasStarted := b.started
	b.started = false
	return wasStarted
}

func (b *book) isStarted() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.started
}
