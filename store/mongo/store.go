package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/thermal/record"
	"github.com/xraph/thermal/store"
	"github.com/xraph/thermal/types"
)

// Collection name constants.
const (
	colIdentities = "thermal_identities"
	colPhoneIndex = "thermal_phone_index"
	colOperators  = "thermal_operators"
	colBalances   = "thermal_balances"
	colRecords    = "thermal_records"
	colMeta       = "thermal_meta"
	colJournal    = "thermal_journal"
)

// metaID is the _id of the single meta document.
const metaID = 1

// compile-time interface checks
var (
	_ store.Store     = (*Store)(nil)
	_ store.Compactor = (*Store)(nil)
)

// Store implements store.Store using MongoDB via Grove ORM.
//
// Batches are inserted into thermal_journal and then materialized into
// the other collections. A batch is durable once its journal document
// exists.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB

	mu  sync.Mutex
	lag error
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all thermal collections and seeds the meta
// document.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("thermal/mongo: migrate %s indexes: %w", col, err)
		}
	}

	_, err := s.mdb.NewUpdate(&metaModel{ID: metaID}).
		Filter(bson.M{"_id": metaID}).
		SetUpdate(bson.M{"$setOnInsert": bson.M{
			"owner":      "",
			"supply":     int64(0),
			"seq":        int64(0),
			"event_seq":  int64(0),
			"updated_at": time.Now().UTC(),
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("thermal/mongo: seed meta: %w", err)
	}
	return nil
}

// Ping checks database connectivity and reports collections that lag the
// journal.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lag != nil {
		return fmt.Errorf("thermal/mongo: collections behind journal: %w", s.lag)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Load ====================

// Load reads the materialized collections and replays journal documents
// above the materialized sequence.
func (s *Store) Load(ctx context.Context) (*store.Snapshot, error) {
	snap := store.NewSnapshot()

	meta, err := s.meta(ctx)
	if err != nil {
		return nil, fmt.Errorf("thermal/mongo: load meta: %w", err)
	}
	snap.Seq = uint64(meta.Seq)
	snap.EventSeq = uint64(meta.EventSeq)
	snap.Owner = types.Account(meta.Owner)
	snap.Supply = types.Amount(meta.Supply)

	if err := s.loadIdentities(ctx, snap); err != nil {
		return nil, fmt.Errorf("thermal/mongo: load identities: %w", err)
	}
	if err := s.loadBalances(ctx, snap); err != nil {
		return nil, fmt.Errorf("thermal/mongo: load balances: %w", err)
	}
	if err := s.loadRecords(ctx, snap); err != nil {
		return nil, fmt.Errorf("thermal/mongo: load records: %w", err)
	}

	payloads, err := s.journalAfter(ctx, meta.Seq)
	if err != nil {
		return nil, fmt.Errorf("thermal/mongo: read journal: %w", err)
	}
	if err := store.Replay(snap, payloads); err != nil {
		return nil, fmt.Errorf("thermal/mongo: replay journal: %w", err)
	}
	return snap, nil
}

func (s *Store) meta(ctx context.Context) (*metaModel, error) {
	var m metaModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": metaID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return &metaModel{ID: metaID}, nil
		}
		return nil, err
	}
	return &m, nil
}

func (s *Store) loadIdentities(ctx context.Context, snap *store.Snapshot) error {
	var idents []identityModel
	err := s.mdb.NewFind(&idents).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return err
	}
	for i := range idents {
		ident := fromIdentityModel(&idents[i])
		snap.Identities[ident.Account] = ident
	}

	var phones []phoneIndexModel
	if err := s.mdb.NewFind(&phones).Filter(bson.M{}).Scan(ctx); err != nil {
		return err
	}
	for _, p := range phones {
		snap.PhoneIndex[p.Hash] = types.Account(p.Account)
	}
	return nil
}

func (s *Store) loadBalances(ctx context.Context, snap *store.Snapshot) error {
	var ops []operatorModel
	if err := s.mdb.NewFind(&ops).Filter(bson.M{}).Scan(ctx); err != nil {
		return err
	}
	for _, o := range ops {
		snap.Operators[types.Account(o.Account)] = struct{}{}
	}

	var balances []balanceModel
	if err := s.mdb.NewFind(&balances).Filter(bson.M{}).Scan(ctx); err != nil {
		return err
	}
	for _, b := range balances {
		snap.Balances[types.Account(b.Account)] = types.Amount(b.Amount)
	}
	return nil
}

func (s *Store) loadRecords(ctx context.Context, snap *store.Snapshot) error {
	var trades []recordModel
	err := s.mdb.NewFind(&trades).
		Filter(bson.M{"kind": string(record.KindTrade)}).
		Sort(bson.D{{Key: "record_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return err
	}
	for i := range trades {
		tr := fromTradeRecordModel(&trades[i])
		snap.Trades[tr.TradeID] = tr
	}

	var production []recordModel
	err = s.mdb.NewFind(&production).
		Filter(bson.M{"kind": string(record.KindProduction)}).
		Sort(bson.D{{Key: "position", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return err
	}
	for i := range production {
		p, err := fromProductionRecordModel(&production[i])
		if err != nil {
			return fmt.Errorf("production %s: %w", production[i].RecordID, err)
		}
		snap.Production = append(snap.Production, p)
	}
	return nil
}

func (s *Store) journalAfter(ctx context.Context, seq int64) ([][]byte, error) {
	var entries []journalModel
	err := s.mdb.NewFind(&entries).
		Filter(bson.M{"_id": bson.M{"$gt": seq}}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
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

// Commit inserts b into the journal and materializes it.
func (s *Store) Commit(ctx context.Context, b *store.Batch) error {
	payload, err := store.EncodeBatch(b)
	if err != nil {
		return err
	}
	m := &journalModel{
		Seq:         int64(b.Seq),
		Payload:     payload,
		CommittedAt: b.CommittedAt,
	}
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("thermal/mongo: journal %d already exists: %w", b.Seq, err)
		}
		return fmt.Errorf("thermal/mongo: append journal %d: %w", b.Seq, err)
	}

	s.setLag(s.catchUp(ctx, b))
	return nil
}

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

// materialize upserts the documents of b and then moves the meta
// sequence forward, guarded on the previous value.
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

	res, err := s.mdb.NewUpdate((*metaModel)(nil)).
		Filter(bson.M{"_id": metaID, "seq": int64(b.Seq) - 1}).
		Set("seq", int64(b.Seq)).
		Set("event_seq", int64(b.EventSeq)).
		Set("owner", string(b.Owner)).
		Set("supply", int64(b.Supply)).
		Set("updated_at", b.CommittedAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("meta of batch %d: %w", b.Seq, err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("meta of batch %d: materialized sequence moved", b.Seq)
	}
	return nil
}

func (s *Store) writeIdentities(ctx context.Context, b *store.Batch) error {
	for _, ident := range b.Identities {
		m := toIdentityModel(ident)
		_, err := s.mdb.NewUpdate(m).
			Filter(bson.M{"_id": m.Account}).
			SetUpdate(bson.M{"$set": bson.M{
				"phone_hash": m.PhoneHash,
				"verified":   m.Verified,
				"created_at": m.CreatedAt,
				"updated_at": m.UpdatedAt,
			}}).
			Upsert().
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	for _, pe := range b.PhoneIndex {
		if !pe.Removed {
			continue
		}
		_, err := s.mdb.NewDelete((*phoneIndexModel)(nil)).
			Filter(bson.M{"_id": pe.Hash, "account": string(pe.Account)}).
			Exec(ctx)
		if err != nil {
			return err
		}
	}
	for _, pe := range b.PhoneIndex {
		if pe.Removed {
			continue
		}
		m := &phoneIndexModel{Hash: pe.Hash, Account: string(pe.Account)}
		_, err := s.mdb.NewUpdate(m).
			Filter(bson.M{"_id": m.Hash}).
			SetUpdate(bson.M{"$set": bson.M{"account": m.Account}}).
			Upsert().
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
			_, err = s.mdb.NewDelete((*operatorModel)(nil)).
				Filter(bson.M{"_id": string(oe.Account)}).
				Exec(ctx)
		} else {
			m := &operatorModel{Account: string(oe.Account), CreatedAt: b.CommittedAt}
			_, err = s.mdb.NewUpdate(m).
				Filter(bson.M{"_id": m.Account}).
				SetUpdate(bson.M{"$setOnInsert": bson.M{"created_at": m.CreatedAt}}).
				Upsert().
				Exec(ctx)
		}
		if err != nil {
			return err
		}
	}

	for _, be := range b.Balances {
		m := &balanceModel{Account: string(be.Account), Amount: int64(be.Amount), UpdatedAt: b.CommittedAt}
		_, err := s.mdb.NewUpdate(m).
			Filter(bson.M{"_id": m.Account}).
			SetUpdate(bson.M{"$set": bson.M{
				"amount":     m.Amount,
				"updated_at": m.UpdatedAt,
			}}).
			Upsert().
			Exec(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) writeRecords(ctx context.Context, b *store.Batch) error {
	for _, tr := range b.Trades {
		m := toTradeRecordModel(tr, b.CommittedAt)
		_, err := s.mdb.NewUpdate(m).
			Filter(bson.M{"_id": m.Key}).
			SetUpdate(bson.M{"$set": bson.M{
				"kind":       m.Kind,
				"record_id":  m.RecordID,
				"status":     m.Status,
				"trade":      m.Trade,
				"updated_at": m.UpdatedAt,
			}}).
			Upsert().
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	for i, p := range b.Production {
		m := toProductionRecordModel(p, b.ProductionOffset+i)
		_, err := s.mdb.NewUpdate(m).
			Filter(bson.M{"_id": m.Key}).
			SetUpdate(bson.M{"$setOnInsert": bson.M{
				"kind":       m.Kind,
				"record_id":  m.RecordID,
				"position":   m.Position,
				"production": m.Production,
				"updated_at": m.UpdatedAt,
			}}).
			Upsert().
			Exec(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

// ==================== Journal maintenance ====================

// JournalLength returns the number of journal documents.
func (s *Store) JournalLength(ctx context.Context) (int64, error) {
	return s.mdb.Collection(colJournal).CountDocuments(ctx, bson.M{})
}

// Compact deletes journal documents already materialized and committed
// before cutoff.
func (s *Store) Compact(ctx context.Context, cutoff time.Time) (int64, error) {
	meta, err := s.meta(ctx)
	if err != nil {
		return 0, err
	}
	res, err := s.mdb.NewDelete((*journalModel)(nil)).
		Filter(bson.M{
			"_id":          bson.M{"$lte": meta.Seq},
			"committed_at": bson.M{"$lt": cutoff},
		}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("thermal/mongo: compact journal: %w", err)
	}
	return res.DeletedCount(), nil
}

// ==================== Helpers ====================

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for the thermal
// collections. Primary keys live in _id and need no extra index.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colIdentities: {
			{Keys: bson.D{{Key: "phone_hash", Value: 1}}},
			{Keys: bson.D{{Key: "verified", Value: 1}}},
		},
		colPhoneIndex: {
			{Keys: bson.D{{Key: "account", Value: 1}}},
		},
		colRecords: {
			{
				Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "record_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "position", Value: 1}}},
		},
		colJournal: {
			{Keys: bson.D{{Key: "committed_at", Value: 1}}},
		},
		colOperators: nil,
		colBalances:  nil,
		colMeta:      nil,
	}
}
