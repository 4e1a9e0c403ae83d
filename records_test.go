package thermal_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/xraph/thermal"
	"github.com/xraph/thermal/id"
	"github.com/xraph/thermal/record"
	"github.com/xraph/thermal/store/memory"
	"github.com/xraph/thermal/types"
)

func TestRecordTradeValidation(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, memory.New())
	recordTrade(t, l, "dup", u1, u2, 100, 100)

	valid := record.TradeRequest{TradeID: "t", Seller: u1, Buyer: u2, Amount: 100, Price: 100}

	tests := []struct {
		name   string
		caller types.Account
		mutate func(r *record.TradeRequest)
		want   error
	}{
		{"stranger", u1, func(*record.TradeRequest) {}, thermal.ErrNotAuthorized},
		{"empty trade id", op, func(r *record.TradeRequest) { r.TradeID = " " }, thermal.ErrInvalidInput},
		{"duplicate trade id", op, func(r *record.TradeRequest) { r.TradeID = "dup" }, thermal.ErrDuplicateTradeID},
		{"null seller", op, func(r *record.TradeRequest) { r.Seller = types.NullAccount }, thermal.ErrInvalidInput},
		{"null buyer", op, func(r *record.TradeRequest) { r.Buyer = "" }, thermal.ErrInvalidInput},
		{"seller is buyer", op, func(r *record.TradeRequest) { r.Buyer = u1 }, thermal.ErrInvalidInput},
		{"zero amount", op, func(r *record.TradeRequest) { r.Amount = 0 }, thermal.ErrInvalidAmount},
		{"negative price", op, func(r *record.TradeRequest) { r.Price = -5 }, thermal.ErrInvalidAmount},
		{"value rounds to zero", op, func(r *record.TradeRequest) { r.Amount, r.Price = 1, 1 }, thermal.ErrInvalidAmount},
		{"value overflows", op, func(r *record.TradeRequest) { r.Amount, r.Price = math.MaxInt64/2, 100 }, thermal.ErrOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := l.Records().RecordTrade(ctx, tt.caller, req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}

	if got := len(l.Records().Trades(ctx, "")); got != 1 {
		t.Errorf("Trades: got %d, want 1", got)
	}
}

func TestRecordTradeDoesNotCheckBalances(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, memory.New())

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tr, err := l.Records().RecordTrade(ctx, op, record.TradeRequest{
		TradeID:   "t1",
		Seller:    u1,
		Buyer:     u2,
		Amount:    100,
		Price:     4550,
		Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}
	if tr.Status != record.StatusPending || tr.RecordedBy != op || !tr.Timestamp.Equal(ts) {
		t.Errorf("unexpected record: %+v", tr)
	}
	if v, _ := tr.Value(); v != 4550 {
		t.Errorf("Value: got %d, want 4550", v)
	}

	got, err := l.Records().GetRecord(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	got.Status = record.StatusSettled
	again, _ := l.Records().GetRecord(ctx, "t1")
	if again.Status != record.StatusPending {
		t.Error("GetRecord returned shared state")
	}

	if _, err := l.Records().GetRecord(ctx, "nope"); !thermal.IsNotFound(err) {
		t.Errorf("GetRecord missing: got %v, want ErrNotFound", err)
	}
}

func TestListPendingOrder(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, memory.New())
	for _, id := range []string{"c", "a", "b"} {
		recordTrade(t, l, id, u1, u2, 100, 100)
	}

	pending := l.Records().ListPending(ctx)
	if len(pending) != 3 {
		t.Fatalf("got %d, want 3", len(pending))
	}
	for i, want := range []string{"a", "b", "c"} {
		if pending[i].TradeID != want {
			t.Errorf("pending[%d]: got %s, want %s", i, pending[i].TradeID, want)
		}
	}
}

func TestRecordProduction(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, memory.New())

	if _, err := l.Records().RecordProduction(ctx, u1, record.ProductionRequest{DeviceID: "dev-1", Amount: 100}); !errors.Is(err, thermal.ErrNotAuthorized) {
		t.Errorf("stranger: got %v, want ErrNotAuthorized", err)
	}
	if _, err := l.Records().RecordProduction(ctx, op, record.ProductionRequest{DeviceID: "dev-1"}); !errors.Is(err, thermal.ErrInvalidAmount) {
		t.Errorf("zero amount: got %v, want ErrInvalidAmount", err)
	}
	if _, err := l.Records().RecordProduction(ctx, op, record.ProductionRequest{Amount: 100}); !errors.Is(err, thermal.ErrInvalidInput) {
		t.Errorf("no device: got %v, want ErrInvalidInput", err)
	}

	for i, dev := range []string{"dev-1", "dev-2", "dev-1"} {
		p, err := l.Records().RecordProduction(ctx, op, record.ProductionRequest{DeviceID: dev, Amount: types.Amount(100 * (i + 1))})
		if err != nil {
			t.Fatalf("RecordProduction: %v", err)
		}
		if p.ID.Prefix() != id.PrefixProduction {
			t.Errorf("ID prefix: got %s", p.ID.Prefix())
		}
	}

	dev1 := l.Records().ListProduction(ctx, "dev-1")
	if len(dev1) != 2 || dev1[0].Amount != 100 || dev1[1].Amount != 300 {
		t.Errorf("ListProduction(dev-1): got %d records", len(dev1))
	}
	if all := l.Records().ListProduction(ctx, ""); len(all) != 3 {
		t.Errorf("ListProduction(all): got %d, want 3", len(all))
	}
	if got := l.Tokens().TotalSupply(ctx); got != 0 {
		t.Errorf("production moved funds: supply %d", got)
	}
}
