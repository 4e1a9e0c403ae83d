package thermal

import (
	"context"
	"fmt"
	"sort"

	"github.com/xraph/thermal/event"
	"github.com/xraph/thermal/store"
	"github.com/xraph/thermal/types"
)

// OperatorAuthority holds the owner and the operator set, and is the
// single capability check used by every privileged operation.
type OperatorAuthority struct {
	b     *book
	owner types.Account
}

func newOperatorAuthority(b *book, owner types.Account) *OperatorAuthority {
	return &OperatorAuthority{b: b, owner: owner}
}

// Owner returns the ledger owner.
func (a *OperatorAuthority) Owner() types.Account { return a.owner }

// AddOperator grants operator rights. Only the owner may call it; adding
// an existing operator is a no-op.
func (a *OperatorAuthority) AddOperator(ctx context.Context, caller, account types.Account) error {
	return a.b.update(ctx, "add_operator", func(t *tx) error {
		if err := a.authorizeOwner(caller); err != nil {
			return err
		}
		if account.IsNull() {
			return invalidInput("account", "null account cannot be an operator")
		}
		if account == a.owner || t.isOperator(account) {
			return nil
		}
		t.setOperator(account, true)
		t.emit(&event.OperatorAdded{Meta: event.NewMeta(t.now), Account: account, By: caller})
		return nil
	})
}

// RemoveOperator revokes operator rights. Only the owner may call it;
// removing a non-operator, or the owner, is a no-op.
func (a *OperatorAuthority) RemoveOperator(ctx context.Context, caller, account types.Account) error {
	return a.b.update(ctx, "remove_operator", func(t *tx) error {
		if err := a.authorizeOwner(caller); err != nil {
			return err
		}
		if account == a.owner || !t.isOperator(account) {
			return nil
		}
		t.setOperator(account, false)
		t.emit(&event.OperatorRemoved{Meta: event.NewMeta(t.now), Account: account, By: caller})
		return nil
	})
}

// IsAuthorized reports whether account is the owner or an operator.
func (a *OperatorAuthority) IsAuthorized(_ context.Context, account types.Account) bool {
	if account.IsNull() {
		return false
	}
	if account == a.owner {
		return true
	}
	var ok bool
	a.b.view(func(s *store.Snapshot) {
		_, ok = s.Operators[account]
	})
	return ok
}

// Authorize returns ErrNotAuthorized unless caller is the owner or an
// operator.
func (a *OperatorAuthority) Authorize(ctx context.Context, caller types.Account) error {
	if !a.IsAuthorized(ctx, caller) {
		return fmt.Errorf("%w: %s is not an operator", ErrNotAuthorized, caller)
	}
	return nil
}

// AuthorizeOwner returns ErrNotAuthorized unless caller is the owner.
func (a *OperatorAuthority) AuthorizeOwner(caller types.Account) error {
	return a.authorizeOwner(caller)
}

// Operators returns the operator set in account order. The owner is
// implicitly authorized and not listed.
func (a *OperatorAuthority) Operators(_ context.Context) []types.Account {
	var out []types.Account
	a.b.view(func(s *store.Snapshot) {
		out = make([]types.Account, 0, len(s.Operators))
		for op := range s.Operators {
			out = append(out, op)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (a *OperatorAuthority) authorizeOwner(caller types.Account) error {
	if caller.IsNull() || caller != a.owner {
		return fmt.Errorf("%w: %s is not the owner", ErrNotAuthorized, caller)
	}
	return nil
}

// authorize checks caller against the operator set as seen by t.
func (a *OperatorAuthority) authorize(t *tx, caller types.Account) error {
	if caller.IsNull() {
		return fmt.Errorf("%w: null caller", ErrNotAuthorized)
	}
	if caller == a.owner || t.isOperator(caller) {
		return nil
	}
	return fmt.Errorf("%w: %s is not an operator", ErrNotAuthorized, caller)
}
