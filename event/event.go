// Package event defines the events the ledger emits after each committed
// mutation. Events are delivered to plugins in commit order; Seq is
// strictly increasing across the lifetime of a ledger.
package event

import (
	"time"

	"github.com/xraph/thermal/id"
	"github.com/xraph/thermal/types"
)

// Kind names an event type. It doubles as the broadcast subject suffix.
type Kind string

const (
	KindIdentityRegistered    Kind = "identity.registered"
	KindIdentityVerified      Kind = "identity.verified"
	KindPhoneHashUpdated      Kind = "identity.phone_hash_updated"
	KindOperatorAdded         Kind = "operator.added"
	KindOperatorRemoved       Kind = "operator.removed"
	KindTransfer              Kind = "token.transfer"
	KindProductionRecorded    Kind = "record.production"
	KindTradeRecorded         Kind = "record.trade"
	KindTradeSettled          Kind = "settlement.settled"
	KindTradeSettlementFailed Kind = "settlement.failed"
)

// Kinds lists every event kind.
func Kinds() []Kind {
	return []Kind{
		KindIdentityRegistered,
		KindIdentityVerified,
		KindPhoneHashUpdated,
		KindOperatorAdded,
		KindOperatorRemoved,
		KindTransfer,
		KindProductionRecorded,
		KindTradeRecorded,
		KindTradeSettled,
		KindTradeSettlementFailed,
	}
}

// Meta is the envelope shared by every event.
type Meta struct {
	ID  id.EventID `json:"id"`
	Seq uint64     `json:"seq"`
	At  time.Time  `json:"at"`
}

// Metadata returns the envelope.
func (m *Meta) Metadata() *Meta { return m }

// Event is implemented by every event type.
type Event interface {
	Kind() Kind
	Metadata() *Meta
}

// NewMeta returns an envelope with a fresh ID stamped at t. The ledger
// assigns Seq at commit.
func NewMeta(t time.Time) Meta {
	return Meta{ID: id.NewEventID(), At: t.UTC()}
}

// IdentityRegistered is emitted when an account registers a phone hash.
type IdentityRegistered struct {
	Meta
	Account   types.Account `json:"account"`
	PhoneHash string        `json:"phone_hash"`
}

// IdentityVerified is emitted the first time an identity is verified.
type IdentityVerified struct {
	Meta
	Account    types.Account `json:"account"`
	VerifiedBy types.Account `json:"verified_by"`
}

// PhoneHashUpdated is emitted when an account moves to a new phone hash.
type PhoneHashUpdated struct {
	Meta
	Account types.Account `json:"account"`
	OldHash string        `json:"old_hash"`
	NewHash string        `json:"new_hash"`
}

// OperatorAdded is emitted when the owner grants operator rights.
type OperatorAdded struct {
	Meta
	Account types.Account `json:"account"`
	By      types.Account `json:"by"`
}

// OperatorRemoved is emitted when the owner revokes operator rights.
type OperatorRemoved struct {
	Meta
	Account types.Account `json:"account"`
	By      types.Account `json:"by"`
}

// Transfer is emitted for every balance movement. From is the null
// account for a mint and To is the null account for a burn.
type Transfer struct {
	Meta
	From   types.Account `json:"from"`
	To     types.Account `json:"to"`
	Amount types.Amount  `json:"amount"`
}

// IsMint reports whether the transfer created supply.
func (e *Transfer) IsMint() bool { return e.From.IsNull() }

// IsBurn reports whether the transfer destroyed supply.
func (e *Transfer) IsBurn() bool { return e.To.IsNull() }

// ProductionRecorded is emitted when an operator records device output.
type ProductionRecorded struct {
	Meta
	RecordID   id.ProductionID `json:"record_id"`
	DeviceID   string          `json:"device_id"`
	Amount     types.Amount    `json:"amount"`
	Timestamp  time.Time       `json:"timestamp"`
	RecordedBy types.Account   `json:"recorded_by"`
}

// TradeRecorded is emitted when a trade enters the Pending state.
type TradeRecorded struct {
	Meta
	TradeID string        `json:"trade_id"`
	Seller  types.Account `json:"seller"`
	Buyer   types.Account `json:"buyer"`
	Amount  types.Amount  `json:"amount"`
	Price   types.Amount  `json:"price"`
	Value   types.Amount  `json:"value"`
}

// TradeSettled is emitted when a trade's funds moved and it is final.
type TradeSettled struct {
	Meta
	TradeID   string        `json:"trade_id"`
	Seller    types.Account `json:"seller"`
	Buyer     types.Account `json:"buyer"`
	Value     types.Amount  `json:"value"`
	SettledBy types.Account `json:"settled_by"`
}

// TradeSettlementFailed is emitted when a settlement attempt failed and
// the trade is final without any funds moving.
type TradeSettlementFailed struct {
	Meta
	TradeID   string        `json:"trade_id"`
	Seller    types.Account `json:"seller"`
	Buyer     types.Account `json:"buyer"`
	Value     types.Amount  `json:"value"`
	Reason    string        `json:"reason"`
	SettledBy types.Account `json:"settled_by"`
}

func (*IdentityRegistered) Kind() Kind    { return KindIdentityRegistered }
func (*IdentityVerified) Kind() Kind      { return KindIdentityVerified }
func (*PhoneHashUpdated) Kind() Kind      { return KindPhoneHashUpdated }
func (*OperatorAdded) Kind() Kind         { return KindOperatorAdded }
func (*OperatorRemoved) Kind() Kind       { return KindOperatorRemoved }
func (*Transfer) Kind() Kind              { return KindTransfer }
func (*ProductionRecorded) Kind() Kind    { return KindProductionRecorded }
func (*TradeRecorded) Kind() Kind         { return KindTradeRecorded }
func (*TradeSettled) Kind() Kind          { return KindTradeSettled }
func (*TradeSettlementFailed) Kind() Kind { return KindTradeSettlementFailed }
