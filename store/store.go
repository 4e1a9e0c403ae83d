// Package store defines the persistence contract of the ledger.
//
// The ledger keeps its working state in memory and persists every
// committed mutation as a Batch. Backends write the batch to an
// append-only journal first, then materialize it into the Identities,
// PhoneIndex, Operators, Balances, Records and Meta tables. Load rebuilds
// a Snapshot from the materialized tables and replays any journal
// entries that were not yet materialized.
package store

import (
	"context"
	"time"

	"github.com/xraph/thermal/identity"
	"github.com/xraph/thermal/record"
	"github.com/xraph/thermal/types"
)

// Store is the storage interface for ledger state.
type Store interface {
	// Load returns the last committed state. An empty store returns an
	// empty Snapshot with Seq 0.
	Load(ctx context.Context) (*Snapshot, error)

	// Commit durably records b. Batches arrive with strictly increasing
	// Seq; a returned error means b is not part of the committed state.
	Commit(ctx context.Context, b *Batch) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Compactor is implemented by stores whose journal can be trimmed once
// its entries are materialized.
type Compactor interface {
	// Compact deletes materialized journal entries committed before
	// cutoff and returns how many were removed.
	Compact(ctx context.Context, cutoff time.Time) (int64, error)

	// JournalLength returns the number of journal entries kept.
	JournalLength(ctx context.Context) (int64, error)
}

// PhoneEntry is one row of the PhoneIndex table.
type PhoneEntry struct {
	Hash    string        `json:"hash"`
	Account types.Account `json:"account"`
	Removed bool          `json:"removed,omitempty"`
}

// OperatorEntry is one row of the Operators table.
type OperatorEntry struct {
	Account types.Account `json:"account"`
	Removed bool          `json:"removed,omitempty"`
}

// BalanceEntry is one row of the Balances table.
type BalanceEntry struct {
	Account types.Account `json:"account"`
	Amount  types.Amount  `json:"amount"`
}

// Batch holds the full new state of every row touched by one committed
// mutation. Applying a batch twice yields the same state.
type Batch struct {
	Seq         uint64        `json:"seq"`
	CommittedAt time.Time     `json:"committed_at"`
	Owner       types.Account `json:"owner"`
	Supply      types.Amount  `json:"supply"`
	EventSeq    uint64        `json:"event_seq"`

	Identities []*identity.Identity  `json:"identities,omitempty"`
	PhoneIndex []PhoneEntry          `json:"phone_index,omitempty"`
	Operators  []OperatorEntry       `json:"operators,omitempty"`
	Balances   []BalanceEntry        `json:"balances,omitempty"`
	Trades     []*record.TradeRecord `json:"trades,omitempty"`

	// Production records are appended at ProductionOffset onward.
	ProductionOffset int                        `json:"production_offset"`
	Production       []*record.ProductionRecord `json:"production,omitempty"`
}

// Snapshot is the full ledger state at Seq.
type Snapshot struct {
	Seq        uint64
	EventSeq   uint64
	Owner      types.Account
	Supply     types.Amount
	Identities map[types.Account]*identity.Identity
	PhoneIndex map[string]types.Account
	Operators  map[types.Account]struct{}
	Balances   map[types.Account]types.Amount
	Trades     map[string]*record.TradeRecord
	Production []*record.ProductionRecord
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Identities: make(map[types.Account]*identity.Identity),
		PhoneIndex: make(map[string]types.Account),
		Operators:  make(map[types.Account]struct{}),
		Balances:   make(map[types.Account]types.Amount),
		Trades:     make(map[string]*record.TradeRecord),
	}
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	c := NewSnapshot()
	c.Seq = s.Seq
	c.EventSeq = s.EventSeq
	c.Owner = s.Owner
	c.Supply = s.Supply
	for k, v := range s.Identities {
		c.Identities[k] = v.Clone()
	}
	for k, v := range s.PhoneIndex {
		c.PhoneIndex[k] = v
	}
	for k := range s.Operators {
		c.Operators[k] = struct{}{}
	}
	for k, v := range s.Balances {
		c.Balances[k] = v
	}
	for k, v := range s.Trades {
		c.Trades[k] = v.Clone()
	}
	c.Production = make([]*record.ProductionRecord, len(s.Production))
	for i, p := range s.Production {
		c.Production[i] = p.Clone()
	}
	return c
}

// Apply folds b into the snapshot. Batches at or below the current Seq
// are ignored so journal replay is idempotent.
func (s *Snapshot) Apply(b *Batch) {
	if b.Seq <= s.Seq {
		return
	}
	s.Seq = b.Seq
	s.EventSeq = b.EventSeq
	s.Owner = b.Owner
	s.Supply = b.Supply

	for _, ident := range b.Identities {
		s.Identities[ident.Account] = ident.Clone()
	}
	for _, pe := range b.PhoneIndex {
		if pe.Removed {
			if s.PhoneIndex[pe.Hash] == pe.Account {
				delete(s.PhoneIndex, pe.Hash)
			}
			continue
		}
		s.PhoneIndex[pe.Hash] = pe.Account
	}
	for _, oe := range b.Operators {
		if oe.Removed {
			delete(s.Operators, oe.Account)
			continue
		}
		s.Operators[oe.Account] = struct{}{}
	}
	for _, be := range b.Balances {
		s.Balances[be.Account] = be.Amount
	}
	for _, tr := range b.Trades {
		s.Trades[tr.TradeID] = tr.Clone()
	}
	for i, p := range b.Production {
		if b.ProductionOffset+i < len(s.Production) {
			continue
		}
		s.Production = append(s.Production, p.Clone())
	}
}
