package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/thermal/record"
	"github.com/xraph/thermal/store"
	"github.com/xraph/thermal/types"
)

// compile-time interface checks
var (
	_ store.Store     = (*Store)(nil)
	_ store.Compactor = (*Store)(nil)
)

// metaID is the primary key of the single thermal_meta row.
const metaID = 1

// Store implements store.Store using PostgreSQL via Grove ORM.
//
// Commit appends the batch to thermal_journal and then materializes it
// into the state tables. The journal row alone makes the batch durable:
// if materializing fails the tables lag behind, the failure is reported by
// Ping, and the next Commit or Load catches up from the journal.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB

	mu  sync.Mutex
	lag error
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("thermal/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("thermal/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity and reports tables that lag the
// journal.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lag != nil {
		return fmt.Errorf("thermal/postgres: tables behind journal: %w", s.lag)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Load ====================

// Load reads the materialized tables and replays journal entries above
// the materialized sequence.
func (s *Store) Load(ctx context.Context) (*store.Snapshot, error) {
	snap := store.NewSnapshot()

	meta, err := s.meta(ctx)
	if err != nil {
		return nil, fmt.Errorf("thermal/postgres: load meta: %w", err)
	}
	snap.Seq = uint64(meta.Seq)
	snap.EventSeq = uint64(meta.EventSeq)
	snap.Owner = types.Account(meta.Owner)
	snap.Supply = types.Amount(meta.Supply)

	if err := s.loadIdentities(ctx, snap); err != nil {
		return nil, fmt.Errorf("thermal/postgres: load identities: %w", err)
	}
	if err := s.loadBalances(ctx, snap); err != nil {
		return nil, fmt.Errorf("thermal/postgres: load balances: %w", err)
	}
	if err := s.loadRecords(ctx, snap); err != nil {
		return nil, fmt.Errorf("thermal/postgres: load records: %w", err)
	}

	payloads, err := s.journalAfter(ctx, meta.Seq)
	if err != nil {
		return nil, fmt.Errorf("thermal/postgres: read journal: %w", err)
	}
	if err := store.Replay(snap, payloads); err != nil {
		return nil, fmt.Errorf("thermal/postgres: replay journal: %w", err)
	}
	return snap, nil
}

func (s *Store) meta(ctx context.Context) (*metaModel, error) {
	m := new(metaModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", metaID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return &metaModel{ID: metaID}, nil
		}
		return nil, err
	}
	return m, nil
}

func (s *Store) loadIdentities(ctx context.Context, snap *store.Snapshot) error {
	var idents []identityModel
	if err := s.pg.NewSelect(&idents).OrderExpr("account ASC").Scan(ctx); err != nil {
		return err
	}
	for i := range idents {
		ident := fromIdentityModel(&idents[i])
		snap.Identities[ident.Account] = ident
	}

	var phones []phoneIndexModel
	if err := s.pg.NewSelect(&phones).Scan(ctx); err != nil {
		return err
	}
	for _, p := range phones {
		snap.PhoneIndex[p.Hash] = types.Account(p.Account)
	}
	return nil
}

func (s *Store) loadBalances(ctx context.Context, snap *store.Snapshot) error {
	var ops []operatorModel
	if err := s.pg.NewSelect(&ops).Scan(ctx); err != nil {
		return err
	}
	for _, o := range ops {
		snap.Operators[types.Account(o.Account)] = struct{}{}
	}

	var balances []balanceModel
	if err := s.pg.NewSelect(&balances).Scan(ctx); err != nil {
		return err
	}
	for _, b := range balances {
		snap.Balances[types.Account(b.Account)] = types.Amount(b.Amount)
	}
	return nil
}

func (s *Store) loadRecords(ctx context.Context, snap *store.Snapshot) error {
	var trades []recordModel
	err := s.pg.NewSelect(&trades).
		Where("kind = $1", string(record.KindTrade)).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return err
	}
	for i := range trades {
		tr := new(record.TradeRecord)
		if err := json.Unmarshal(trades[i].Payload, tr); err != nil {
			return fmt.Errorf("trade %s: %w", trades[i].ID, err)
		}
		snap.Trades[tr.TradeID] = tr
	}

	var production []recordModel
	err = s.pg.NewSelect(&production).
		Where("kind = $1", string(record.KindProduction)).
		OrderExpr("position ASC").
		Scan(ctx)
	if err != nil {
		return err
	}
	for i := range production {
		p := new(record.ProductionRecord)
		if err := json.Unmarshal(production[i].Payload, p); err != nil {
			return fmt.Errorf("production %s: %w", production[i].ID, err)
		}
		snap.Production = append(snap.Production, p)
	}
	return nil
}

func (s *Store) journalAfter(ctx context.Context, seq int64) ([][]byte, error) {
	var entries []journalModel
	err := s.pg.NewSelect(&entries).
		Where("seq > $1", seq).
		OrderExpr("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	payloads := make([][]byte, len(entries))
	for i := range entries {
		payloads[i] = entries[i].Payload
	}
	return payloads, nil
}

// ==================== Commit ====================

// Commit appends b to the journal and materializes it.
func (s *Store) Commit(ctx context.Context, b *store.Batch) error {
	payload, err := store.EncodeBatch(b)
	if err != nil {
		return err
	}
	if _, err := s.pg.NewInsert(toJournalModel(b, payload)).Exec(ctx); err != nil {
		return fmt.Errorf("thermal/postgres: append journal %d: %w", b.Seq, err)
	}

	s.setLag(s.catchUp(ctx, b))
	return nil
}

// catchUp materializes every journal entry the tables have not seen,
// ending with latest.
func (s *Store) catchUp(ctx context.Context, latest *store.Batch) error {
	meta, err := s.meta(ctx)
	if err != nil {
		return err
	}
	applied := uint64(meta.Seq)
	if applied >= latest.Seq {
		return nil
	}
	if applied == latest.Seq-1 {
		return s.materialize(ctx, latest)
	}

	payloads, err := s.journalAfter(ctx, meta.Seq)
	if err != nil {
		return err
	}
	for _, p := range payloads {
		b, err := store.DecodeBatch(p)
		if err != nil {
			return err
		}
		if err := s.materialize(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) setLag(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lag = err
}

// materialize writes the rows of b and then advances the meta sequence.
// Every write is an idempotent upsert, so a partially materialized batch
// can be written again.
func (s *Store) materialize(ctx context.Context, b *store.Batch) error {
	if err := s.writeIdentities(ctx, b); err != nil {
		return fmt.Errorf("identities of batch %d: %w", b.Seq, err)
	}
	if err := s.writeBalances(ctx, b); err != nil {
		return fmt.Errorf("balances of batch %d: %w", b.Seq, err)
	}
	if err := s.writeRecords(ctx, b); err != nil {
		return fmt.Errorf("records of batch %d: %w", b.Seq, err)
	}

	res, err := s.pg.NewUpdate((*metaModel)(nil)).
		Set("seq = $1", int64(b.Seq)).
		Set("event_seq = $2", int64(b.EventSeq)).
		Set("owner = $3", string(b.Owner)).
		Set("supply = $4", int64(b.Supply)).
		Set("updated_at = $5", b.CommittedAt).
		Where("id = $6", metaID).
		Where("seq = $7", int64(b.Seq)-1).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("meta of batch %d: %w", b.Seq, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("meta of batch %d: materialized sequence moved", b.Seq)
	}
	return nil
}

func (s *Store) writeIdentities(ctx context.Context, b *store.Batch) error {
	if len(b.Identities) > 0 {
		models := make([]identityModel, len(b.Identities))
		for i, ident := range b.Identities {
			models[i] = toIdentityModel(ident)
		}
		_, err := s.pg.NewInsert(&models).
			OnConflict("(account) DO UPDATE").
			Set("phone_hash = EXCLUDED.phone_hash").
			Set("verified = EXCLUDED.verified").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	for _, pe := range b.PhoneIndex {
		if !pe.Removed {
			continue
		}
		_, err := s.pg.NewDelete((*phoneIndexModel)(nil)).
			Where("hash = $1", pe.Hash).
			Where("account = $2", string(pe.Account)).
			Exec(ctx)
		if err != nil {
			return err
		}
	}
	for _, pe := range b.PhoneIndex {
		if pe.Removed {
			continue
		}
		_, err := s.pg.NewInsert(&phoneIndexModel{Hash: pe.Hash, Account: string(pe.Account)}).
			OnConflict("(hash) DO UPDATE").
			Set("account = EXCLUDED.account").
			Exec(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) writeBalances(ctx context.Context, b *store.Batch) error {
	for _, oe := range b.Operators {
		var err error
		if oe.Removed {
			_, err = s.pg.NewDelete((*operatorModel)(nil)).
				Where("account = $1", string(oe.Account)).
				Exec(ctx)
		} else {
			_, err = s.pg.NewInsert(&operatorModel{Account: string(oe.Account), CreatedAt: b.CommittedAt}).
				OnConflict("(account) DO NOTHING").
				Exec(ctx)
		}
		if err != nil {
			return err
		}
	}

	if len(b.Balances) == 0 {
		return nil
	}
	models := make([]balanceModel, len(b.Balances))
	for i, be := range b.Balances {
		models[i] = balanceModel{Account: string(be.Account), Amount: int64(be.Amount), UpdatedAt: b.CommittedAt}
	}
	_, err := s.pg.NewInsert(&models).
		OnConflict("(account) DO UPDATE").
		Set("amount = EXCLUDED.amount").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) writeRecords(ctx context.Context, b *store.Batch) error {
	if len(b.Trades) > 0 {
		models := make([]recordModel, len(b.Trades))
		for i, tr := range b.Trades {
			m, err := toTradeModel(tr, b.CommittedAt)
			if err != nil {
				return err
			}
			models[i] = m
		}
		_, err := s.pg.NewInsert(&models).
			OnConflict("(kind, id) DO UPDATE").
			Set("status = EXCLUDED.status").
			Set("payload = EXCLUDED.payload").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	if len(b.Production) > 0 {
		models := make([]recordModel, len(b.Production))
		for i, p := range b.Production {
			m, err := toProductionModel(p, b.ProductionOffset+i)
			if err != nil {
				return err
			}
			models[i] = m
		}
		_, err := s.pg.NewInsert(&models).
			OnConflict("(kind, id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

// ==================== Helpers ====================

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// JournalLength returns the number of journal rows, for operational
// inspection.
func (s *Store) JournalLength(ctx context.Context) (int64, error) {
	var n int64
	err := s.pg.NewRaw(`SELECT COUNT(*) FROM thermal_journal`).Scan(ctx, &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Compact deletes journal rows already materialized into the tables and
// committed before cutoff.
func (s *Store) Compact(ctx context.Context, cutoff time.Time) (int64, error) {
	meta, err := s.meta(ctx)
	if err != nil {
		return 0, err
	}
	res, err := s.pg.NewDelete((*journalModel)(nil)).
		Where("seq <= $1", meta.Seq).
		Where("committed_at < $2", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("thermal/postgres: compact journal: %w", err)
	}
	return res.RowsAffected()
}
