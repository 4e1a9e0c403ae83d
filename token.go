package thermal

import (
	"context"
	"fmt"

	"github.com/xraph/thermal/event"
	"github.com/xraph/thermal/store"
	"github.com/xraph/thermal/types"
)

// Token metadata.
const (
	TokenName     = "Thermal Ark Token"
	TokenSymbol   = "TAT"
	TokenDecimals = types.Decimals
)

// TokenLedger holds balances and total supply. Every movement is checked
// arithmetic; the sum of balances always equals total supply.
type TokenLedger struct {
	b          *book
	auth       *OperatorAuthority
	identities *IdentityRegistry

	requireVerifiedRecipient bool
}

func newTokenLedger(b *book, auth *OperatorAuthority, identities *IdentityRegistry, requireVerifiedRecipient bool) *TokenLedger {
	return &TokenLedger{
		b:                        b,
		auth:                     auth,
		identities:               identities,
		requireVerifiedRecipient: requireVerifiedRecipient,
	}
}

// Name returns the token name.
func (l *TokenLedger) Name() string { return TokenName }

// Symbol returns the token symbol.
func (l *TokenLedger) Symbol() string { return TokenSymbol }

// Decimals returns the number of fractional digits of the display unit.
func (l *TokenLedger) Decimals() int { return TokenDecimals }

// Mint creates amount new tokens for to. Only the owner may mint.
func (l *TokenLedger) Mint(ctx context.Context, caller, to types.Account, amount types.Amount) error {
	return l.b.update(ctx, "mint", func(t *tx) error {
		if err := l.auth.authorizeOwner(caller); err != nil {
			return err
		}
		if !amount.IsPositive() {
			return invalidAmount("amount", "must be positive")
		}
		if to.IsNull() {
			return invalidInput("to", "cannot mint to the null account")
		}

		bal, err := t.balance(to).Add(amount)
		if err != nil {
			return overflow("mint", err)
		}
		supply, err := t.totalSupply().Add(amount)
		if err != nil {
			return overflow("mint", err)
		}

		t.setBalance(to, bal)
		t.setSupply(supply)
		t.emit(&event.Transfer{Meta: event.NewMeta(t.now), From: types.NullAccount, To: to, Amount: amount})
		return nil
	})
}

// Burn destroys amount tokens held by from. Only the owner may burn.
func (l *TokenLedger) Burn(ctx context.Context, caller, from types.Account, amount types.Amount) error {
	return l.b.update(ctx, "burn", func(t *tx) error {
		if err := l.auth.authorizeOwner(caller); err != nil {
			return err
		}
		if !amount.IsPositive() {
			return invalidAmount("amount", "must be positive")
		}
		if from.IsNull() {
			return invalidInput("from", "cannot burn from the null account")
		}

		bal := t.balance(from)
		if bal < amount {
			return fmt.Errorf("%w: %s holds %s, burning %s", ErrInsufficientBalance, from, bal, amount)
		}
		newBal, err := bal.Sub(amount)
		if err != nil {
			return overflow("burn", err)
		}
		supply, err := t.totalSupply().Sub(amount)
		if err != nil {
			return overflow("burn", err)
		}

		t.setBalance(from, newBal)
		t.setSupply(supply)
		t.emit(&event.Transfer{Meta: event.NewMeta(t.now), From: from, To: types.NullAccount, Amount: amount})
		return nil
	})
}

// Transfer moves amount from one account to another. The sender must be
// verified; with WithRecipientVerification the recipient must be too.
func (l *TokenLedger) Transfer(ctx context.Context, from, to types.Account, amount types.Amount) error {
	return l.b.update(ctx, "transfer", func(t *tx) error {
		return l.transfer(t, from, to, amount)
	})
}

// BalanceOf returns the balance of account.
func (l *TokenLedger) BalanceOf(_ context.Context, account types.Account) types.Amount {
	var bal types.Amount
	l.b.view(func(s *store.Snapshot) {
		bal = s.Balances[account]
	})
	return bal
}

// BalanceWhole returns the balance of account in whole tokens, floored.
func (l *TokenLedger) BalanceWhole(ctx context.Context, account types.Account) int64 {
	return l.BalanceOf(ctx, account).Whole()
}

// BalanceHundredths returns the balance of account in hundredths.
func (l *TokenLedger) BalanceHundredths(ctx context.Context, account types.Account) int64 {
	return l.BalanceOf(ctx, account).Hundredths()
}

// TotalSupply returns the total token supply.
func (l *TokenLedger) TotalSupply(_ context.Context) types.Amount {
	var supply types.Amount
	l.b.view(func(s *store.Snapshot) {
		supply = s.Supply
	})
	return supply
}

// Balances returns a copy of all non-zero balances.
func (l *TokenLedger) Balances(_ context.Context) map[types.Account]types.Amount {
	out := make(map[types.Account]types.Amount)
	l.b.view(func(s *store.Snapshot) {
		for a, bal := range s.Balances {
			if !bal.IsZero() {
				out[a] = bal
			}
		}
	})
	return out
}

// transfer validates and stages a movement inside t. Nothing is staged
// unless every check passes.
func (l *TokenLedger) transfer(t *tx, from, to types.Account, amount types.Amount) error {
	if !amount.IsPositive() {
		return invalidAmount("amount", "must be positive")
	}
	if to.IsNull() {
		return invalidAmount("to", "cannot transfer to the null account")
	}
	if !l.identities.verified(t, from) {
		return fmt.Errorf("%w: sender %s", ErrNotVerified, from)
	}
	if l.requireVerifiedRecipient && !l.identities.verified(t, to) {
		return fmt.Errorf("%w: recipient %s", ErrNotVerified, to)
	}

	fromBal := t.balance(from)
	if fromBal < amount {
		return fmt.Errorf("%w: %s holds %s, sending %s", ErrInsufficientBalance, from, fromBal, amount)
	}

	if from != to {
		newFrom, err := fromBal.Sub(amount)
		if err != nil {
			return overflow("transfer", err)
		}
		newTo, err := t.balance(to).Add(amount)
		if err != nil {
			return overflow("transfer", err)
		}
		t.setBalance(from, newFrom)
		t.setBalance(to, newTo)
	}

	t.emit(&event.Transfer{Meta: event.NewMeta(t.now), From: from, To: to, Amount: amount})
	return nil
}
