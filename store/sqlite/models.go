package sqlite

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/thermal/identity"
	"github.com/xraph/thermal/record"
	"github.com/xraph/thermal/store"
	"github.com/xraph/thermal/types"
)

// ==================== Identity models ====================

type identityModel struct {
	grove.BaseModel `grove:"table:thermal_identities"`

	Account   string    `grove:"account,pk"`
	PhoneHash string    `grove:"phone_hash"`
	Verified  bool      `grove:"verified"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toIdentityModel(i *identity.Identity) identityModel {
	return identityModel{
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

	Hash    string `grove:"hash,pk"`
	Account string `grove:"account"`
}

// ==================== Token models ====================

type operatorModel struct {
	grove.BaseModel `grove:"table:thermal_operators"`

	Account   string    `grove:"account,pk"`
	CreatedAt time.Time `grove:"created_at"`
}

type balanceModel struct {
	grove.BaseModel `grove:"table:thermal_balances"`

	Account   string    `grove:"account,pk"`
	Amount    int64     `grove:"amount"`
	UpdatedAt time.Time `grove:"updated_at"`
}

// metaModel is the single row holding ledger-wide values and the
// sequence of the last batch materialized into the tables.
type metaModel struct {
	grove.BaseModel `grove:"table:thermal_meta"`

	ID        int       `grove:"id,pk"`
	Owner     string    `grove:"owner"`
	Supply    int64     `grove:"supply"`
	Seq       int64     `grove:"seq"`
	EventSeq  int64     `grove:"event_seq"`
	UpdatedAt time.Time `grove:"updated_at"`
}

// ==================== Record models ====================

type recordModel struct {
	grove.BaseModel `grove:"table:thermal_records"`

	Kind      string          `grove:"kind,pk"`
	ID        string          `grove:"id,pk"`
	Position  int64           `grove:"position"`
	Status    string          `grove:"status"`
	Payload   json.RawMessage `grove:"payload"`
	CreatedAt time.Time       `grove:"created_at"`
	UpdatedAt time.Time       `grove:"updated_at"`
}

func toTradeModel(tr *record.TradeRecord, at time.Time) (recordModel, error) {
	payload, err := json.Marshal(tr)
	if err != nil {
		return recordModel{}, err
	}
	return recordModel{
		Kind:      string(record.KindTrade),
		ID:        tr.TradeID,
		Status:    string(tr.Status),
		Payload:   payload,
		CreatedAt: tr.RecordedAt,
		UpdatedAt: at,
	}, nil
}

func toProductionModel(p *record.ProductionRecord, position int) (recordModel, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return recordModel{}, err
	}
	return recordModel{
		Kind:      string(record.KindProduction),
		ID:        p.ID.String(),
		Position:  int64(position),
		Payload:   payload,
		CreatedAt: p.RecordedAt,
		UpdatedAt: p.RecordedAt,
	}, nil
}

// ==================== Journal models ====================

// journalModel stores one committed batch. A batch is durable once its
// journal row exists; the tables above are materialized from it.
type journalModel struct {
	grove.BaseModel `grove:"table:thermal_journal"`

	Seq         int64     `grove:"seq,pk"`
	Payload     []byte    `grove:"payload"`
	CommittedAt time.Time `grove:"committed_at"`
}

func toJournalModel(b *store.Batch, payload []byte) *journalModel {
	return &journalModel{
		Seq:         int64(b.Seq),
		Payload:     payload,
		CommittedAt: b.CommittedAt,
	}
}
