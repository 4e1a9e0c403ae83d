package thermal

import (
	"fmt"
	"sort"
	"time"

	"github.com/xraph/thermal/event"
	"github.com/xraph/thermal/identity"
	"github.com/xraph/thermal/record"
	"github.com/xraph/thermal/store"
	"github.com/xraph/thermal/types"
)

// tx is a copy-on-write view over the committed state. Reads fall through
// to the base snapshot; writes stay in the overlay until the book commits
// them. Discarding a tx leaves the base untouched.
type tx struct {
	base *store.Snapshot
	now  time.Time

	identities map[types.Account]*identity.Identity
	phones     map[string]phoneSlot
	operators  map[types.Account]bool
	balances   map[types.Account]types.Amount
	supply     types.Amount
	trades     map[string]*record.TradeRecord
	production []*record.ProductionRecord
	events     []event.Event
}

type phoneSlot struct {
	account types.Account
	removed bool
}

func newTx(base *store.Snapshot, now time.Time) *tx {
	return &tx{
		base:       base,
		now:        now.UTC(),
		identities: make(map[types.Account]*identity.Identity),
		phones:     make(map[string]phoneSlot),
		operators:  make(map[types.Account]bool),
		balances:   make(map[types.Account]types.Amount),
		supply:     base.Supply,
		trades:     make(map[string]*record.TradeRecord),
	}
}

// ──────────────────────────────────────────────────
// Identities
// ──────────────────────────────────────────────────

// identity returns the current identity. Callers must Clone before
// modifying it.
func (t *tx) identity(a types.Account) (*identity.Identity, bool) {
	if ident, ok := t.identities[a]; ok {
		return ident, true
	}
	ident, ok := t.base.Identities[a]
	return ident, ok
}

func (t *tx) putIdentity(ident *identity.Identity) {
	t.identities[ident.Account] = ident
}

func (t *tx) phoneOwner(hash string) (types.Account, bool) {
	if slot, ok := t.phones[hash]; ok {
		if slot.removed {
			return "", false
		}
		return slot.account, true
	}
	a, ok := t.base.PhoneIndex[hash]
	return a, ok
}

func (t *tx) bindPhone(hash string, a types.Account) {
	t.phones[hash] = phoneSlot{account: a}
}

func (t *tx) unbindPhone(hash string, a types.Account) {
	t.phones[hash] = phoneSlot{account: a, removed: true}
}

// ──────────────────────────────────────────────────
// Operators
// ──────────────────────────────────────────────────

func (t *tx) isOperator(a types.Account) bool {
	if present, ok := t.operators[a]; ok {
		return present
	}
	_, ok := t.base.Operators[a]
	return ok
}

func (t *tx) setOperator(a types.Account, present bool) {
	t.operators[a] = present
}

// ──────────────────────────────────────────────────
// Balances
// ──────────────────────────────────────────────────

func (t *tx) balance(a types.Account) types.Amount {
	if b, ok := t.balances[a]; ok {
		return b
	}
	return t.base.Balances[a]
}

func (t *tx) setBalance(a types.Account, amount types.Amount) {
	t.balances[a] = amount
}

func (t *tx) totalSupply() types.Amount { return t.supply }

func (t *tx) setSupply(amount types.Amount) { t.supply = amount }

// ──────────────────────────────────────────────────
// Records
// ──────────────────────────────────────────────────

// trade returns the current trade record. Callers must Clone before
// modifying it.
func (t *tx) trade(tradeID string) (*record.TradeRecord, bool) {
	if tr, ok := t.trades[tradeID]; ok {
		return tr, true
	}
	tr, ok := t.base.Trades[tradeID]
	return tr, ok
}

func (t *tx) putTrade(tr *record.TradeRecord) {
	t.trades[tr.TradeID] = tr
}

func (t *tx) appendProduction(p *record.ProductionRecord) {
	t.production = append(t.production, p)
}

func (t *tx) emit(e event.Event) {
	t.events = append(t.events, e)
}

// ──────────────────────────────────────────────────
// Commit support
// ──────────────────────────────────────────────────

func (t *tx) empty() bool {
	return len(t.identities) == 0 &&
		len(t.phones) == 0 &&
		len(t.operators) == 0 &&
		len(t.balances) == 0 &&
		len(t.trades) == 0 &&
		len(t.production) == 0 &&
		len(t.events) == 0 &&
		t.supply == t.base.Supply
}

// batch stamps event sequence numbers and renders the overlay as a
// store batch with rows in key order.
func (t *tx) batch(seq uint64, owner types.Account) *store.Batch {
	eventSeq := t.base.EventSeq
	for _, e := range t.events {
		eventSeq++
		e.Metadata().Seq = eventSeq
	}

	b := &store.Batch{
		Seq:              seq,
		CommittedAt:      t.now,
		Owner:            owner,
		Supply:           t.supply,
		EventSeq:         eventSeq,
		ProductionOffset: len(t.base.Production),
		Production:       t.production,
	}

	for _, a := range sortedKeys(t.identities) {
		b.Identities = append(b.Identities, t.identities[a])
	}
	for _, h := range sortedKeys(t.phones) {
		slot := t.phones[h]
		b.PhoneIndex = append(b.PhoneIndex, store.PhoneEntry{Hash: h, Account: slot.account, Removed: slot.removed})
	}
	for _, a := range sortedKeys(t.operators) {
		b.Operators = append(b.Operators, store.OperatorEntry{Account: a, Removed: !t.operators[a]})
	}
	for _, a := range sortedKeys(t.balances) {
		b.Balances = append(b.Balances, store.BalanceEntry{Account: a, Amount: t.balances[a]})
	}
	for _, id := range sortedKeys(t.trades) {
		b.Trades = append(b.Trades, t.trades[id])
	}
	return b
}

// checkInvariants verifies the overlay against the invariants that a
// single mutation can break: conservation of supply, non-negative
// balances, the identity/phone bijection and terminal trade states.
func (t *tx) checkInvariants() error {
	var delta types.Amount
	for a, nb := range t.balances {
		if nb.IsNegative() {
			return &InvariantError{Invariant: "non-negative-balance", Detail: fmt.Sprintf("%s would hold %s", a, nb)}
		}
		if a.IsNull() && !nb.IsZero() {
			return &InvariantError{Invariant: "null-account", Detail: fmt.Sprintf("null account would hold %s", nb)}
		}
		d, err := nb.Sub(t.base.Balances[a])
		if err == nil {
			delta, err = delta.Add(d)
		}
		if err != nil {
			return &InvariantError{Invariant: "conservation", Detail: "balance delta overflow"}
		}
	}
	supplyDelta, err := t.supply.Sub(t.base.Supply)
	if err != nil {
		return &InvariantError{Invariant: "conservation", Detail: "supply delta overflow"}
	}
	if t.supply.IsNegative() {
		return &InvariantError{Invariant: "conservation", Detail: fmt.Sprintf("supply would be %s", t.supply)}
	}
	if supplyDelta != delta {
		return &InvariantError{
			Invariant: "conservation",
			Detail:    fmt.Sprintf("supply moved by %s but balances moved by %s", supplyDelta, delta),
		}
	}

	for a, ident := range t.identities {
		if a.IsNull() {
			return &InvariantError{Invariant: "null-account", Detail: "null account holds an identity"}
		}
		if owner, ok := t.phoneOwner(ident.PhoneHash); !ok || owner != a {
			return &InvariantError{Invariant: "phone-index", Detail: fmt.Sprintf("%s is not indexed under its phone hash", a)}
		}
	}
	for h, slot := range t.phones {
		ident, ok := t.identity(slot.account)
		if slot.removed {
			if ok && ident.PhoneHash == h {
				return &InvariantError{Invariant: "phone-index", Detail: fmt.Sprintf("%s lost the index entry for its own hash", slot.account)}
			}
			continue
		}
		if !ok || ident.PhoneHash != h {
			return &InvariantError{Invariant: "phone-index", Detail: fmt.Sprintf("hash %s points at %s which does not own it", h, slot.account)}
		}
	}

	for id, tr := range t.trades {
		if !tr.Status.Valid() {
			return &InvariantError{Invariant: "trade-status", Detail: fmt.Sprintf("trade %s has status %q", id, tr.Status)}
		}
		if prev, ok := t.base.Trades[id]; ok && prev.Status.IsTerminal() {
			return &InvariantError{Invariant: "trade-status", Detail: fmt.Sprintf("trade %s is already %s", id, prev.Status)}
		}
	}
	return nil
}

// checkSnapshot verifies every invariant over a full snapshot.
func checkSnapshot(s *store.Snapshot) error {
	var sum types.Amount
	for a, b := range s.Balances {
		if b.IsNegative() {
			return &InvariantError{Invariant: "non-negative-balance", Detail: fmt.Sprintf("%s holds %s", a, b)}
		}
		if a.IsNull() && !b.IsZero() {
			return &InvariantError{Invariant: "null-account", Detail: fmt.Sprintf("null account holds %s", b)}
		}
		var err error
		if sum, err = sum.Add(b); err != nil {
			return &InvariantError{Invariant: "conservation", Detail: "balance sum overflows"}
		}
	}
	if sum != s.Supply {
		return &InvariantError{
			Invariant: "conservation",
			Detail:    fmt.Sprintf("balances sum to %s but total supply is %s", sum, s.Supply),
		}
	}

	if len(s.PhoneIndex) != len(s.Identities) {
		return &InvariantError{
			Invariant: "phone-index",
			Detail:    fmt.Sprintf("%d identities but %d phone index entries", len(s.Identities), len(s.PhoneIndex)),
		}
	}
	for a, ident := range s.Identities {
		if a.IsNull() || ident.Account != a {
			return &InvariantError{Invariant: "identity", Detail: fmt.Sprintf("identity keyed %s names %s", a, ident.Account)}
		}
		if s.PhoneIndex[ident.PhoneHash] != a {
			return &InvariantError{Invariant: "phone-index", Detail: fmt.Sprintf("%s is not indexed under its phone hash", a)}
		}
	}

	for id, tr := range s.Trades {
		if tr.TradeID != id || !tr.Status.Valid() {
			return &InvariantError{Invariant: "trade-status", Detail: fmt.Sprintf("trade %s is malformed", id)}
		}
	}
	return nil
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
