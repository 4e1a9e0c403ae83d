package thermal_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/thermal"
	"github.com/xraph/thermal/event"
	"github.com/xraph/thermal/record"
	"github.com/xraph/thermal/store/memory"
	"github.com/xraph/thermal/types"
)

func recordTrade(t *testing.T, l *thermal.Ledger, tradeID string, seller, buyer types.Account, amount, price types.Amount) *record.TradeRecord {
	t.Helper()
	tr, err := l.Records().RecordTrade(context.Background(), op, record.TradeRequest{
		TradeID: tradeID,
		Seller:  seller,
		Buyer:   buyer,
		Amount:  amount,
		Price:   price,
	})
	if err != nil {
		t.Fatalf("RecordTrade(%s): %v", tradeID, err)
	}
	return tr
}

func TestSettleUnderfundedTradeFails(t *testing.T) {
	ctx := context.Background()
	rec := &eventRecorder{}
	l := newLedger(t, memory.New(), thermal.WithPlugin(rec))
	onboard(t, l, u1, u2)
	if err := l.Tokens().Mint(ctx, owner, u2, 900); err != nil {
		t.Fatal(err)
	}
	recordTrade(t, l, "t1", u1, u2, 100, 4550)
	rec.reset()

	res, err := l.Settlement().Settle(ctx, op, "t1")
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if res.Status != record.StatusFailed {
		t.Errorf("Status: got %s, want failed", res.Status)
	}
	if res.Reason != record.ReasonInsufficientBalance {
		t.Errorf("Reason: got %q, want %q", res.Reason, record.ReasonInsufficientBalance)
	}
	if res.Value != 4550 {
		t.Errorf("Value: got %d, want 4550", res.Value)
	}

	tr, err := l.Records().GetRecord(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if tr.Status != record.StatusFailed || tr.FailureReason != record.ReasonInsufficientBalance {
		t.Errorf("record: got %s/%q", tr.Status, tr.FailureReason)
	}
	if tr.SettledAt == nil || tr.SettledBy != op {
		t.Errorf("record bookkeeping not written: %+v", tr)
	}

	if got := l.Tokens().BalanceOf(ctx, u1); got != 0 {
		t.Errorf("BalanceOf(seller): got %d, want 0", got)
	}
	if got := l.Tokens().BalanceOf(ctx, u2); got != 900 {
		t.Errorf("BalanceOf(buyer): got %d, want 900", got)
	}
	if kinds := rec.kinds(); len(kinds) != 1 || kinds[0] != event.KindTradeSettlementFailed {
		t.Errorf("events: got %v", kinds)
	}
	mustInvariants(t, l)
}

func TestSettleMovesFunds(t *testing.T) {
	ctx := context.Background()
	rec := &eventRecorder{}
	l := newLedger(t, memory.New(), thermal.WithPlugin(rec))
	onboard(t, l, u1, u2)
	if err := l.Tokens().Mint(ctx, owner, u1, 10000); err != nil {
		t.Fatal(err)
	}
	recordTrade(t, l, "t1", u1, u2, 250, 400)
	rec.reset()

	res, err := l.Settlement().Settle(ctx, op, "t1")
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if !res.Settled() || res.Value != 1000 {
		t.Fatalf("got %+v, want settled with value 1000", res)
	}
	if got := l.Tokens().BalanceOf(ctx, u1); got != 9000 {
		t.Errorf("BalanceOf(seller): got %d, want 9000", got)
	}
	if got := l.Tokens().BalanceOf(ctx, u2); got != 1000 {
		t.Errorf("BalanceOf(buyer): got %d, want 1000", got)
	}

	want := []event.Kind{event.KindTransfer, event.KindTradeSettled}
	kinds := rec.kinds()
	if len(kinds) != len(want) || kinds[0] != want[0] || kinds[1] != want[1] {
		t.Errorf("events: got %v, want %v", kinds, want)
	}
	if pending := l.Records().ListPending(ctx); len(pending) != 0 {
		t.Errorf("ListPending: got %d trades, want 0", len(pending))
	}
}

func TestSettleTwice(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, memory.New())
	onboard(t, l, u1, u2)
	if err := l.Tokens().Mint(ctx, owner, u1, 10000); err != nil {
		t.Fatal(err)
	}
	recordTrade(t, l, "ok", u1, u2, 100, 100)
	recordTrade(t, l, "bad", u2, u1, 100, 100)

	// u2 holds nothing yet, so "bad" fails.
	if _, err := l.Settlement().Settle(ctx, op, "bad"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Settlement().Settle(ctx, op, "ok"); err != nil {
		t.Fatal(err)
	}

	if _, err := l.Settlement().Settle(ctx, op, "ok"); !errors.Is(err, thermal.ErrAlreadySettled) {
		t.Errorf("settled twice: got %v, want ErrAlreadySettled", err)
	}
	if _, err := l.Settlement().Settle(ctx, op, "bad"); !errors.Is(err, thermal.ErrAlreadyFailed) {
		t.Errorf("failed twice: got %v, want ErrAlreadyFailed", err)
	}
	if _, err := l.Settlement().Settle(ctx, op, "missing"); !thermal.IsNotFound(err) {
		t.Errorf("missing: got %v, want ErrNotFound", err)
	}

	if got := l.Tokens().BalanceOf(ctx, u1); got != 9900 {
		t.Errorf("BalanceOf(u1): got %d, want 9900", got)
	}
	if got := l.Tokens().BalanceOf(ctx, u2); got != 100 {
		t.Errorf("BalanceOf(u2): got %d, want 100", got)
	}
}

func TestSettleFailureReasons(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, memory.New(), thermal.WithRecipientVerification(true))
	onboard(t, l, u1)
	if _, err := l.Identities().Register(ctx, u2, "hash-u2"); err != nil {
		t.Fatal(err)
	}
	if err := l.Tokens().Mint(ctx, owner, u1, 10000); err != nil {
		t.Fatal(err)
	}
	if err := l.Tokens().Mint(ctx, owner, u2, 10000); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		tradeID string
		seller  types.Account
		buyer   types.Account
		want    string
	}{
		{"r1", u2, u1, record.ReasonSellerNotVerified},
		{"r2", u1, u2, record.ReasonBuyerNotVerified},
	}

	for _, tt := range tests {
		t.Run(tt.tradeID, func(t *testing.T) {
			recordTrade(t, l, tt.tradeID, tt.seller, tt.buyer, 100, 100)
			res, err := l.Settlement().Settle(ctx, op, tt.tradeID)
			if err != nil {
				t.Fatal(err)
			}
			if res.Status != record.StatusFailed || res.Reason != tt.want {
				t.Errorf("got %s/%q, want failed/%q", res.Status, res.Reason, tt.want)
			}
		})
	}
}

func TestSettleRequiresOperator(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, memory.New())
	onboard(t, l, u1, u2)
	recordTrade(t, l, "t1", u1, u2, 100, 100)

	if _, err := l.Settlement().Settle(ctx, u1, "t1"); !errors.Is(err, thermal.ErrNotAuthorized) {
		t.Errorf("Settle: got %v, want ErrNotAuthorized", err)
	}
	if _, err := l.Settlement().SettleAll(ctx, u1); !errors.Is(err, thermal.ErrNotAuthorized) {
		t.Errorf("SettleAll: got %v, want ErrNotAuthorized", err)
	}
	tr, err := l.Records().GetRecord(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if tr.Status != record.StatusPending {
		t.Errorf("Status: got %s, want pending", tr.Status)
	}
}

func TestSettleAllIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, memory.New())
	onboard(t, l, u1, u2, u3)
	if err := l.Tokens().Mint(ctx, owner, u1, 10000); err != nil {
		t.Fatal(err)
	}

	// Recorded out of order; settlement runs in trade ID order.
	recordTrade(t, l, "trade-3", u1, u3, 100, 1000)
	recordTrade(t, l, "trade-1", u1, u2, 100, 2000)
	recordTrade(t, l, "trade-2", u3, u2, 100, 5000)

	results, err := l.Settlement().SettleAll(ctx, owner)
	if err != nil {
		t.Fatalf("SettleAll: %v", err)
	}

	want := []struct {
		id     string
		status record.Status
	}{
		{"trade-1", record.StatusSettled},
		{"trade-2", record.StatusFailed},
		{"trade-3", record.StatusSettled},
	}
	if len(results) != len(want) {
		t.Fatalf("got %d results, want %d", len(results), len(want))
	}
	for i, w := range want {
		if results[i].TradeID != w.id || results[i].Status != w.status {
			t.Errorf("result %d: got %s/%s, want %s/%s", i, results[i].TradeID, results[i].Status, w.id, w.status)
		}
	}

	if got := l.Tokens().BalanceOf(ctx, u1); got != 7000 {
		t.Errorf("BalanceOf(u1): got %d, want 7000", got)
	}
	if got := l.Tokens().BalanceOf(ctx, u2); got != 2000 {
		t.Errorf("BalanceOf(u2): got %d, want 2000", got)
	}
	if got := l.Tokens().BalanceOf(ctx, u3); got != 1000 {
		t.Errorf("BalanceOf(u3): got %d, want 1000", got)
	}

	again, err := l.Settlement().SettleAll(ctx, owner)
	if err != nil || len(again) != 0 {
		t.Errorf("second SettleAll: got %d results, err %v", len(again), err)
	}
	mustInvariants(t, l)
}

func TestSettleAllStopsOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	fs := &flakyStore{Store: memory.New()}
	l := newLedger(t, fs)
	onboard(t, l, u1, u2)
	if err := l.Tokens().Mint(ctx, owner, u1, 10000); err != nil {
		t.Fatal(err)
	}
	recordTrade(t, l, "a", u1, u2, 100, 100)
	recordTrade(t, l, "b", u1, u2, 100, 100)

	fs.setFail(true)
	results, err := l.Settlement().SettleAll(ctx, op)
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("got %v, want errDiskFull", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
	if pending := l.Records().ListPending(ctx); len(pending) != 2 {
		t.Errorf("ListPending: got %d, want 2", len(pending))
	}
}

func TestConcurrentSettleMovesFundsOnce(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, memory.New())
	onboard(t, l, u1, u2)
	if err := l.Tokens().Mint(ctx, owner, u1, 10000); err != nil {
		t.Fatal(err)
	}
	recordTrade(t, l, "race", u1, u2, 100, 1000)

	const workers = 8
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			_, err := l.Settlement().Settle(ctx, op, "race")
			errs <- err
		}()
	}

	var ok, conflicts int
	for i := 0; i < workers; i++ {
		err := <-errs
		switch {
		case err == nil:
			ok++
		case thermal.IsSettlementConflict(err):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != workers-1 {
		t.Errorf("got %d successes and %d conflicts", ok, conflicts)
	}
	if got := l.Tokens().BalanceOf(ctx, u2); got != 1000 {
		t.Errorf("BalanceOf(u2): got %d, want 1000", got)
	}
}
