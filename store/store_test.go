package store_test

import (
	"testing"
	"time"

	"github.com/xraph/thermal/id"
	"github.com/xraph/thermal/identity"
	"github.com/xraph/thermal/record"
	"github.com/xraph/thermal/store"
	"github.com/xraph/thermal/types"
)

func sampleBatch(seq uint64) *store.Batch {
	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	return &store.Batch{
		Seq:         seq,
		CommittedAt: at,
		Owner:       "0xowner",
		Supply:      10000,
		Identities: []*identity.Identity{
			{Entity: types.NewEntity(at), Account: "0xa", PhoneHash: "h1", Verified: true},
		},
		PhoneIndex: []store.PhoneEntry{{Hash: "h1", Account: "0xa"}},
		Operators:  []store.OperatorEntry{{Account: "0xop"}},
		Balances:   []store.BalanceEntry{{Account: "0xa", Amount: 10000}},
		Trades: []*record.TradeRecord{
			{TradeID: "t1", Seller: "0xa", Buyer: "0xb", Amount: 100, Price: 4550, Status: record.StatusPending, Timestamp: at},
		},
		Production: []*record.ProductionRecord{
			{ID: id.NewProductionID(), DeviceID: "dev-1", Amount: 1500, Timestamp: at},
		},
	}
}

func TestSnapshotApply(t *testing.T) {
	snap := store.NewSnapshot()
	b := sampleBatch(1)
	snap.Apply(b)

	if snap.Seq != 1 || snap.Supply != 10000 || snap.Owner != "0xowner" {
		t.Fatalf("unexpected header: %+v", snap)
	}
	if snap.PhoneIndex["h1"] != "0xa" {
		t.Error("phone index not applied")
	}
	if _, ok := snap.Operators["0xop"]; !ok {
		t.Error("operator not applied")
	}
	if len(snap.Production) != 1 {
		t.Errorf("expected 1 production record, got %d", len(snap.Production))
	}

	// Replaying the same batch is a no-op.
	snap.Apply(b)
	if len(snap.Production) != 1 {
		t.Errorf("replay duplicated production records: %d", len(snap.Production))
	}

	// Mutating the batch after apply must not leak into the snapshot.
	b.Trades[0].Status = record.StatusSettled
	if snap.Trades["t1"].Status != record.StatusPending {
		t.Error("snapshot shares trade pointers with the batch")
	}
}

func TestSnapshotApplyRemovals(t *testing.T) {
	snap := store.NewSnapshot()
	snap.Apply(sampleBatch(1))

	snap.Apply(&store.Batch{
		Seq:        2,
		Owner:      "0xowner",
		Supply:     10000,
		PhoneIndex: []store.PhoneEntry{{Hash: "h1", Account: "0xa", Removed: true}, {Hash: "h2", Account: "0xa"}},
		Operators:  []store.OperatorEntry{{Account: "0xop", Removed: true}},
	})

	if _, ok := snap.PhoneIndex["h1"]; ok {
		t.Error("old phone hash still indexed")
	}
	if snap.PhoneIndex["h2"] != "0xa" {
		t.Error("new phone hash not indexed")
	}
	if _, ok := snap.Operators["0xop"]; ok {
		t.Error("operator not removed")
	}
}

func TestJournalReplay(t *testing.T) {
	b1 := sampleBatch(1)
	b2 := &store.Batch{
		Seq:              2,
		Owner:            "0xowner",
		Supply:           10000,
		Balances:         []store.BalanceEntry{{Account: "0xa", Amount: 7000}, {Account: "0xb", Amount: 3000}},
		ProductionOffset: 1,
		Production: []*record.ProductionRecord{
			{ID: id.NewProductionID(), DeviceID: "dev-2", Amount: 800},
		},
	}

	var payloads [][]byte
	for _, b := range []*store.Batch{b1, b2} {
		data, err := store.EncodeBatch(b)
		if err != nil {
			t.Fatal(err)
		}
		payloads = append(payloads, data)
	}

	snap := store.NewSnapshot()
	if err := store.Replay(snap, payloads); err != nil {
		t.Fatal(err)
	}

	if snap.Seq != 2 {
		t.Errorf("Seq: got %d, want 2", snap.Seq)
	}
	if snap.Balances["0xa"] != 7000 || snap.Balances["0xb"] != 3000 {
		t.Errorf("balances: %+v", snap.Balances)
	}
	if len(snap.Production) != 2 || snap.Production[1].DeviceID != "dev-2" {
		t.Errorf("production: %+v", snap.Production)
	}
	if snap.Production[0].ID.String() != b1.Production[0].ID.String() {
		t.Error("production ID did not survive the journal")
	}
	if !snap.Identities["0xa"].Verified {
		t.Error("identity lost verification through the journal")
	}
}

func TestSnapshotClone(t *testing.T) {
	snap := store.NewSnapshot()
	snap.Apply(sampleBatch(1))

	c := snap.Clone()
	c.Balances["0xa"] = 1
	c.Identities["0xa"].Verified = false

	if snap.Balances["0xa"] != 10000 || !snap.Identities["0xa"].Verified {
		t.Error("clone shares state with the original")
	}
}
