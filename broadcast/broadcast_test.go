package broadcast_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/xraph/thermal"
	"github.com/xraph/thermal/broadcast"
	"github.com/xraph/thermal/event"
	"github.com/xraph/thermal/store/memory"
	"github.com/xraph/thermal/types"
)

const (
	owner = types.Account("0xowner")
	alice = types.Account("0xalice")
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*nats.Msg
	err  error
}

func (p *fakePublisher) PublishMsg(m *nats.Msg) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, m)
	return nil
}

func (p *fakePublisher) published() []*nats.Msg {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*nats.Msg, len(p.msgs))
	copy(out, p.msgs)
	return out
}

func startLedger(t *testing.T, ext *broadcast.Extension) *thermal.Ledger {
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

func TestPublishesEveryEvent(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	l := startLedger(t, broadcast.New(pub, broadcast.WithLogger(quietLogger)))

	if _, err := l.Identities().Register(ctx, alice, "hash-a"); err != nil {
		t.Fatal(err)
	}
	if err := l.Tokens().Mint(ctx, owner, alice, 12345); err != nil {
		t.Fatal(err)
	}

	msgs := pub.published()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}

	wantSubjects := []string{"thermal.identity.registered", "thermal.token.transfer"}
	for i, m := range msgs {
		if m.Subject != wantSubjects[i] {
			t.Errorf("subject %d: got %s, want %s", i, m.Subject, wantSubjects[i])
		}
		if got := m.Header.Get(broadcast.HeaderSeq); got != strconv.Itoa(i+1) {
			t.Errorf("seq header %d: got %s, want %d", i, got, i+1)
		}
		if m.Header.Get(nats.MsgIdHdr) == "" {
			t.Errorf("message %d has no Nats-Msg-Id", i)
		}
	}

	env, ev, err := broadcast.Decode(msgs[1].Data)
	if err != nil {
		t.Fatal(err)
	}
	if env.Kind != event.KindTransfer || env.Seq != 2 {
		t.Errorf("envelope: got %s/%d, want %s/2", env.Kind, env.Seq, event.KindTransfer)
	}
	tr, ok := ev.(*event.Transfer)
	if !ok {
		t.Fatalf("decoded %T, want *event.Transfer", ev)
	}
	if !tr.IsMint() || tr.To != alice || tr.Amount != 12345 {
		t.Errorf("decoded transfer: %+v", tr)
	}
	if tr.ID.String() != env.ID {
		t.Errorf("event id: got %s, want %s", tr.ID, env.ID)
	}
}

func TestKindFilterAndPrefix(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	l := startLedger(t, broadcast.New(pub,
		broadcast.WithLogger(quietLogger),
		broadcast.WithSubjectPrefix("energy"),
		broadcast.WithKinds(event.KindTransfer),
	))

	if _, err := l.Identities().Register(ctx, alice, "hash-a"); err != nil {
		t.Fatal(err)
	}
	if err := l.Tokens().Mint(ctx, owner, alice, 100); err != nil {
		t.Fatal(err)
	}

	msgs := pub.published()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].Subject != "energy.token.transfer" {
		t.Errorf("subject: got %s, want energy.token.transfer", msgs[0].Subject)
	}
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	l := startLedger(t, broadcast.New(pub, broadcast.WithLogger(quietLogger)))

	if err := l.Tokens().Mint(ctx, owner, alice, 100); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if got := l.Tokens().BalanceOf(ctx, alice); got != 100 {
		t.Errorf("balance: got %v, want 1.00", got)
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	pub := &fakePublisher{}
	ext := broadcast.New(pub)
	ev := &event.OperatorAdded{Meta: event.NewMeta(time.Now()), Account: alice, By: owner}
	if err := ext.OnEvent(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if _, _, err := broadcast.Decode(pub.published()[0].Data); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, _, err := broadcast.Decode([]byte{0xa1, 0x64, 'k', 'i', 'n', 'd', 0x63, 'b', 'a', 'd'}); err == nil {
		t.Error("expected error for unknown kind")
	}
}
