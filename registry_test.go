package thermal_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/thermal"
	"github.com/xraph/thermal/event"
	"github.com/xraph/thermal/store/memory"
	"github.com/xraph/thermal/types"
)

func TestRegisterConflicts(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, memory.New())

	ident, err := l.Identities().Register(ctx, u1, "h1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if ident.Verified || ident.PhoneHash != "h1" || ident.CreatedAt.IsZero() {
		t.Errorf("unexpected identity: %+v", ident)
	}

	tests := []struct {
		name    string
		account types.Account
		hash    string
		want    error
	}{
		{"same hash other account", u2, "h1", thermal.ErrPhoneHashTaken},
		{"same account", u1, "h1", thermal.ErrAlreadyRegistered},
		{"same account new hash", u1, "h9", thermal.ErrAlreadyRegistered},
		{"null account", types.NullAccount, "h2", thermal.ErrInvalidInput},
		{"empty account", "", "h2", thermal.ErrInvalidInput},
		{"empty hash", u2, "  ", thermal.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Identities().Register(ctx, tt.account, tt.hash)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}

	if got := len(l.Identities().List(ctx)); got != 1 {
		t.Errorf("List: got %d identities, want 1", got)
	}
	mustInvariants(t, l)
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	rec := &eventRecorder{}
	l := newLedger(t, memory.New(), thermal.WithPlugin(rec))
	if _, err := l.Identities().Register(ctx, u1, "h1"); err != nil {
		t.Fatal(err)
	}

	if err := l.Identities().Verify(ctx, u2, u1); !errors.Is(err, thermal.ErrNotAuthorized) {
		t.Errorf("Verify by stranger: got %v, want ErrNotAuthorized", err)
	}
	if err := l.Identities().Verify(ctx, op, u2); !thermal.IsNotFound(err) {
		t.Errorf("Verify unregistered: got %v, want ErrNotFound", err)
	}
	if l.Identities().IsVerified(ctx, u1) {
		t.Fatal("verified before Verify")
	}

	rec.reset()
	for i := 0; i < 2; i++ {
		if err := l.Identities().Verify(ctx, op, u1); err != nil {
			t.Fatalf("Verify #%d: %v", i+1, err)
		}
	}
	if !l.Identities().IsVerified(ctx, u1) {
		t.Error("not verified after Verify")
	}
	if kinds := rec.kinds(); len(kinds) != 1 || kinds[0] != event.KindIdentityVerified {
		t.Errorf("events: got %v, want one identity.verified", kinds)
	}
}

func TestUpdatePhoneHash(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, memory.New())
	if _, err := l.Identities().Register(ctx, u1, "old"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Identities().Register(ctx, u2, "taken"); err != nil {
		t.Fatal(err)
	}

	if err := l.Identities().UpdatePhoneHash(ctx, u1, "taken"); !errors.Is(err, thermal.ErrPhoneHashTaken) {
		t.Errorf("got %v, want ErrPhoneHashTaken", err)
	}
	if err := l.Identities().UpdatePhoneHash(ctx, u3, "fresh"); !thermal.IsNotFound(err) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	if err := l.Identities().UpdatePhoneHash(ctx, u1, "old"); err != nil {
		t.Errorf("same hash: %v", err)
	}

	if err := l.Identities().UpdatePhoneHash(ctx, u1, "new"); err != nil {
		t.Fatalf("UpdatePhoneHash: %v", err)
	}
	if _, ok := l.Identities().Resolve(ctx, "old"); ok {
		t.Error("old hash still resolves")
	}
	if got, ok := l.Identities().Resolve(ctx, "new"); !ok || got != u1 {
		t.Errorf("Resolve(new): got %s, %v", got, ok)
	}
	if got := l.Identities().AccountByPhoneHash(ctx, "old"); got != types.NullAccount {
		t.Errorf("AccountByPhoneHash(old): got %s, want null account", got)
	}

	// The released hash is free for someone else.
	if _, err := l.Identities().Register(ctx, u3, "old"); err != nil {
		t.Errorf("Register released hash: %v", err)
	}

	ident, err := l.Identities().Get(ctx, u1)
	if err != nil {
		t.Fatal(err)
	}
	if ident.PhoneHash != "new" {
		t.Errorf("PhoneHash: got %s, want new", ident.PhoneHash)
	}
	mustInvariants(t, l)
}

func TestConcurrentRegistrationOfOneHash(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, memory.New())

	accounts := []types.Account{"0xa", "0xb", "0xc", "0xd", "0xe", "0xf"}
	errs := make(chan error, len(accounts))
	for _, a := range accounts {
		go func(a types.Account) {
			_, err := l.Identities().Register(ctx, a, "shared")
			errs <- err
		}(a)
	}

	var won int
	for range accounts {
		err := <-errs
		switch {
		case err == nil:
			won++
		case errors.Is(err, thermal.ErrPhoneHashTaken):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Errorf("%d registrations won the hash, want 1", won)
	}
	mustInvariants(t, l)
}

func TestOperatorAuthority(t *testing.T) {
	ctx := context.Background()
	rec := &eventRecorder{}
	l := newLedger(t, memory.New(), thermal.WithPlugin(rec))
	auth := l.Operators()

	if !auth.IsAuthorized(ctx, owner) {
		t.Error("owner not authorized")
	}
	if auth.IsAuthorized(ctx, types.NullAccount) {
		t.Error("null account authorized")
	}
	if err := auth.AddOperator(ctx, op, u1); !errors.Is(err, thermal.ErrNotAuthorized) {
		t.Errorf("AddOperator by operator: got %v, want ErrNotAuthorized", err)
	}

	rec.reset()
	if err := auth.AddOperator(ctx, owner, u1); err != nil {
		t.Fatal(err)
	}
	if err := auth.AddOperator(ctx, owner, u1); err != nil {
		t.Fatalf("AddOperator again: %v", err)
	}
	if err := auth.RemoveOperator(ctx, owner, u2); err != nil {
		t.Fatalf("RemoveOperator absent: %v", err)
	}
	if err := auth.RemoveOperator(ctx, owner, owner); err != nil {
		t.Fatalf("RemoveOperator owner: %v", err)
	}
	if kinds := rec.kinds(); len(kinds) != 1 || kinds[0] != event.KindOperatorAdded {
		t.Errorf("events: got %v, want one operator.added", kinds)
	}

	ops := auth.Operators(ctx)
	if len(ops) != 2 || ops[0] != op || ops[1] != u1 {
		t.Errorf("Operators: got %v", ops)
	}

	if _, err := l.Identities().Register(ctx, u2, "h2"); err != nil {
		t.Fatal(err)
	}
	if err := auth.RemoveOperator(ctx, owner, u1); err != nil {
		t.Fatal(err)
	}
	if err := l.Identities().Verify(ctx, u1, u2); !errors.Is(err, thermal.ErrNotAuthorized) {
		t.Errorf("Verify by removed operator: got %v, want ErrNotAuthorized", err)
	}
	if !auth.IsAuthorized(ctx, owner) {
		t.Error("owner lost authority")
	}
}
