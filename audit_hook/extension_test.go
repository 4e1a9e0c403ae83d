package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/xraph/thermal"
	audithook "github.com/xraph/thermal/audit_hook"
	"github.com/xraph/thermal/record"
	"github.com/xraph/thermal/store/memory"
	"github.com/xraph/thermal/types"
)

const (
	owner = types.Account("0xowner")
	alice = types.Account("0xalice")
	bob   = types.Account("0xbob")
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type captured struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (c *captured) Record(_ context.Context, e *audithook.AuditEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *captured) actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Action
	}
	return out
}

func (c *captured) last() *audithook.AuditEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

func startLedger(t *testing.T, ext *audithook.Extension) *thermal.Ledger {
	t.Helper()
	l := thermal.New(memory.New(), owner,
		thermal.WithLogger(quietLogger),
		thermal.WithPlugin(ext),
	)
	if err := l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Stop() })
	return l
}

func TestAuditTrail(t *testing.T) {
	ctx := context.Background()
	rec := &captured{}
	l := startLedger(t, audithook.New(rec, audithook.WithLogger(quietLogger)))

	for _, a := range []types.Account{alice, bob} {
		if _, err := l.Identities().Register(ctx, a, "hash-"+string(a)); err != nil {
			t.Fatal(err)
		}
		if err := l.Identities().Verify(ctx, owner, a); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Tokens().Mint(ctx, owner, alice, 1000); err != nil {
		t.Fatal(err)
	}
	if err := l.Tokens().Transfer(ctx, alice, bob, 250); err != nil {
		t.Fatal(err)
	}
	if err := l.Tokens().Burn(ctx, owner, bob, 50); err != nil {
		t.Fatal(err)
	}

	want := []string{
		audithook.ActionIdentityRegistered,
		audithook.ActionIdentityVerified,
		audithook.ActionIdentityRegistered,
		audithook.ActionIdentityVerified,
		audithook.ActionTokenMinted,
		audithook.ActionTokenTransferred,
		audithook.ActionTokenBurned,
	}
	got := rec.actions()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("action %d: got %s, want %s", i, got[i], want[i])
		}
	}

	burn := rec.last()
	if burn.ResourceID != string(bob) {
		t.Errorf("burn resource: got %s, want %s", burn.ResourceID, bob)
	}
	if burn.Metadata["amount"] != "0.50" {
		t.Errorf("burn amount: got %v, want 0.50", burn.Metadata["amount"])
	}
	if burn.Metadata["event_seq"] != uint64(7) {
		t.Errorf("burn seq: got %v, want 7", burn.Metadata["event_seq"])
	}
}

func TestAuditSettlementFailure(t *testing.T) {
	ctx := context.Background()
	rec := &captured{}
	l := startLedger(t, audithook.New(rec,
		audithook.WithLogger(quietLogger),
		audithook.WithEnabledActions(audithook.ActionTradeSettlementFailed),
	))

	for _, a := range []types.Account{alice, bob} {
		if _, err := l.Identities().Register(ctx, a, "hash-"+string(a)); err != nil {
			t.Fatal(err)
		}
		if err := l.Identities().Verify(ctx, owner, a); err != nil {
			t.Fatal(err)
		}
	}
	_, err := l.Records().RecordTrade(ctx, owner, record.TradeRequest{
		TradeID: "t1", Seller: alice, Buyer: bob, Amount: 100, Price: 4550,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Settlement().Settle(ctx, owner, "t1"); err != nil {
		t.Fatal(err)
	}

	got := rec.actions()
	if len(got) != 1 || got[0] != audithook.ActionTradeSettlementFailed {
		t.Fatalf("got %v, want only %s", got, audithook.ActionTradeSettlementFailed)
	}
	e := rec.last()
	if e.Outcome != audithook.OutcomeFailure {
		t.Errorf("outcome: got %s, want %s", e.Outcome, audithook.OutcomeFailure)
	}
	if e.Reason != record.ReasonInsufficientBalance {
		t.Errorf("reason: got %s, want %s", e.Reason, record.ReasonInsufficientBalance)
	}
	if e.ResourceID != "t1" {
		t.Errorf("resource: got %s, want t1", e.ResourceID)
	}
}

func TestDisabledActions(t *testing.T) {
	ctx := context.Background()
	rec := &captured{}
	l := startLedger(t, audithook.New(rec,
		audithook.WithLogger(quietLogger),
		audithook.WithDisabledActions(audithook.ActionIdentityRegistered),
	))

	if _, err := l.Identities().Register(ctx, alice, "hash-a"); err != nil {
		t.Fatal(err)
	}
	if err := l.Identities().Verify(ctx, owner, alice); err != nil {
		t.Fatal(err)
	}

	got := rec.actions()
	if len(got) != 1 || got[0] != audithook.ActionIdentityVerified {
		t.Errorf("got %v, want only %s", got, audithook.ActionIdentityVerified)
	}
}

func TestRecorderFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	failing := audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	})
	l := startLedger(t, audithook.New(failing, audithook.WithLogger(quietLogger)))

	if _, err := l.Identities().Register(ctx, alice, "hash-a"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := l.Identities().Get(ctx, alice); err != nil {
		t.Errorf("Get: %v", err)
	}
}
