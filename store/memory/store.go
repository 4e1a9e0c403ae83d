// Package memory provides an in-process Store for tests and single-node
// tools. State does not survive the process.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/thermal"
	"github.com/xraph/thermal/store"
)

// compile-time interface checks
var (
	_ store.Store     = (*Store)(nil)
	_ store.Compactor = (*Store)(nil)
)

type journalEntry struct {
	seq  uint64
	at   time.Time
	data []byte
}

// Store keeps the committed snapshot and the encoded journal in memory.
type Store struct {
	mu      sync.RWMutex
	snap    *store.Snapshot
	journal []journalEntry
	closed  bool
}

// New returns an empty memory store.
func New() *Store {
	return &Store{snap: store.NewSnapshot()}
}

// NewFromSnapshot returns a store preloaded with snap.
func NewFromSnapshot(snap *store.Snapshot) *Store {
	return &Store{snap: snap.Clone()}
}

// Load returns a copy of the committed snapshot.
func (s *Store) Load(_ context.Context) (*store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, thermal.ErrStoreClosed
	}
	return s.snap.Clone(), nil
}

// Commit journals b and applies it.
func (s *Store) Commit(_ context.Context, b *store.Batch) error {
	data, err := store.EncodeBatch(b)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return thermal.ErrStoreClosed
	}
	s.journal = append(s.journal, journalEntry{seq: b.Seq, at: b.CommittedAt, data: data})
	s.snap.Apply(b)
	return nil
}

// Journal returns the encoded batches committed so far.
func (s *Store) Journal() [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([][]byte, len(s.journal))
	for i, e := range s.journal {
		out[i] = e.data
	}
	return out
}

// JournalLength returns the number of journal entries kept.
func (s *Store) JournalLength(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.journal)), nil
}

// Compact drops journal entries committed before cutoff. The snapshot
// already holds their effect.
func (s *Store) Compact(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, thermal.ErrStoreClosed
	}
	kept := s.journal[:0]
	var removed int64
	for _, e := range s.journal {
		if e.seq <= s.snap.Seq && e.at.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.journal = kept
	return removed, nil
}

// Migrate is a no-op.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return thermal.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
