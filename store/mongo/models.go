package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/thermal/id"
	"github.com/xraph/thermal/identity"
	"github.com/xraph/thermal/record"
	"github.com/xraph/thermal/types"
)

// ==================== Identity models ====================

type identityModel struct {
	grove.BaseModel `grove:"table:thermal_identities"`

	Account   string    `grove:"account,pk"  bson:"_id"`
	PhoneHash string    `grove:"phone_hash"  bson:"phone_hash"`
	Verified  bool      `grove:"verified"    bson:"verified"`
	CreatedAt time.Time `grove:"created_at"  bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"  bson:"updated_at"`
}

func toIdentityModel(i *identity.Identity) *identityModel {
	return &identityModel{
		Account:   string(i.Account),
		PhoneHash: i.PhoneHash,
		Verified:  i.Verified,
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}
}

func fromIdentityModel(m *identityModel) *identity.Identity {
	return &identity.Identity{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Account:   types.Account(m.Account),
		PhoneHash: m.PhoneHash,
		Verified:  m.Verified,
	}
}

type phoneIndexModel struct {
	grove.BaseModel `grove:"table:thermal_phone_index"`

	Hash    string `grove:"hash,pk"  bson:"_id"`
	Account string `grove:"account"  bson:"account"`
}

// ==================== Token models ====================

type operatorModel struct {
	grove.BaseModel `grove:"table:thermal_operators"`

	Account   string    `grove:"account,pk"  bson:"_id"`
	CreatedAt time.Time `grove:"created_at"  bson:"created_at"`
}

type balanceModel struct {
	grove.BaseModel `grove:"table:thermal_balances"`

	Account   string    `grove:"account,pk"  bson:"_id"`
	Amount    int64     `grove:"amount"      bson:"amount"`
	UpdatedAt time.Time `grove:"updated_at"  bson:"updated_at"`
}

// metaModel is the single document holding ledger-wide values and the
// sequence of the last batch materialized into the collections.
type metaModel struct {
	grove.BaseModel `grove:"table:thermal_meta"`

	ID        int       `grove:"id,pk"       bson:"_id"`
	Owner     string    `grove:"owner"       bson:"owner"`
	Supply    int64     `grove:"supply"      bson:"supply"`
	Seq       int64     `grove:"seq"         bson:"seq"`
	EventSeq  int64     `grove:"event_seq"   bson:"event_seq"`
	UpdatedAt time.Time `grove:"updated_at"  bson:"updated_at"`
}

// ==================== Record models ====================

// recordModel holds either a trade or a production reading. The document
// key is "<kind>:<id>".
type recordModel struct {
	grove.BaseModel `grove:"table:thermal_records"`

	Key        string           `grove:"key,pk"      bson:"_id"`
	Kind       string           `grove:"kind"        bson:"kind"`
	RecordID   string           `grove:"record_id"   bson:"record_id"`
	Position   int64            `grove:"position"    bson:"position"`
	Status     string           `grove:"status"      bson:"status,omitempty"`
	Trade      *tradeModel      `grove:"trade"       bson:"trade,omitempty"`
	Production *productionModel `grove:"production"  bson:"production,omitempty"`
	UpdatedAt  time.Time        `grove:"updated_at"  bson:"updated_at"`
}

type tradeModel struct {
	Seller        string     `bson:"seller"`
	Buyer         string     `bson:"buyer"`
	Amount        int64      `bson:"amount"`
	Price         int64      `bson:"price"`
	Timestamp     time.Time  `bson:"timestamp"`
	RecordedBy    string     `bson:"recorded_by"`
	RecordedAt    time.Time  `bson:"recorded_at"`
	FailureReason string     `bson:"failure_reason,omitempty"`
	SettledBy     string     `bson:"settled_by,omitempty"`
	SettledAt     *time.Time `bson:"settled_at,omitempty"`
}

type productionModel struct {
	DeviceID   string    `bson:"device_id"`
	Amount     int64     `bson:"amount"`
	Timestamp  time.Time `bson:"timestamp"`
	RecordedBy string    `bson:"recorded_by"`
	RecordedAt time.Time `bson:"recorded_at"`
}

func recordKey(kind record.Kind, recordID string) string {
	return string(kind) + ":" + recordID
}

func toTradeRecordModel(tr *record.TradeRecord, at time.Time) *recordModel {
	return &recordModel{
		Key:      recordKey(record.KindTrade, tr.TradeID),
		Kind:     string(record.KindTrade),
		RecordID: tr.TradeID,
		Status:   string(tr.Status),
		Trade: &tradeModel{
			Seller:        string(tr.Seller),
			Buyer:         string(tr.Buyer),
			Amount:        int64(tr.Amount),
			Price:         int64(tr.Price),
			Timestamp:     tr.Timestamp,
			RecordedBy:    string(tr.RecordedBy),
			RecordedAt:    tr.RecordedAt,
			FailureReason: tr.FailureReason,
			SettledBy:     string(tr.SettledBy),
			SettledAt:     tr.SettledAt,
		},
		UpdatedAt: at,
	}
}

func fromTradeRecordModel(m *recordModel) *record.TradeRecord {
	t := m.Trade
	if t == nil {
		t = &tradeModel{}
	}
	return &record.TradeRecord{
		TradeID:       m.RecordID,
		Seller:        types.Account(t.Seller),
		Buyer:         types.Account(t.Buyer),
		Amount:        types.Amount(t.Amount),
		Price:         types.Amount(t.Price),
		Timestamp:     t.Timestamp,
		RecordedBy:    types.Account(t.RecordedBy),
		RecordedAt:    t.RecordedAt,
		Status:        record.Status(m.Status),
		FailureReason: t.FailureReason,
		SettledBy:     types.Account(t.SettledBy),
		SettledAt:     t.SettledAt,
	}
}

func toProductionRecordModel(p *record.ProductionRecord, position int) *recordModel {
	return &recordModel{
		Key:      recordKey(record.KindProduction, p.ID.String()),
		Kind:     string(record.KindProduction),
		RecordID: p.ID.String(),
		Position: int64(position),
		Production: &productionModel{
			DeviceID:   p.DeviceID,
			Amount:     int64(p.Amount),
			Timestamp:  p.Timestamp,
			RecordedBy: string(p.RecordedBy),
			RecordedAt: p.RecordedAt,
		},
		UpdatedAt: p.RecordedAt,
	}
}

func fromProductionRecordModel(m *recordModel) (*record.ProductionRecord, error) {
	recID, err := id.ParseProductionID(m.RecordID)
	if err != nil {
		return nil, err
	}
	p := m.Production
	if p == nil {
		p = &productionModel{}
	}
	return &record.ProductionRecord{
		ID:         recID,
		DeviceID:   p.DeviceID,
		Amount:     types.Amount(p.Amount),
		Timestamp:  p.Timestamp,
		RecordedBy: types.Account(p.RecordedBy),
		RecordedAt: p.RecordedAt,
	}, nil
}

// ==================== Journal models ====================

type journalModel struct {
	grove.BaseModel `grove:"table:thermal_journal"`

	Seq         int64     `grove:"seq,pk"        bson:"_id"`
	Payload     []byte    `grove:"payload"       bson:"payload"`
	CommittedAt time.Time `grove:"committed_at"  bson:"committed_at"`
}
