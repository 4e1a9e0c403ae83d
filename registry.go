package thermal

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xraph/thermal/event"
	"github.com/xraph/thermal/identity"
	"github.com/xraph/thermal/store"
	"github.com/xraph/thermal/types"
)

// IdentityRegistry maintains identities, their verification state and the
// phone-hash index. Each account maps to at most one identity and each
// phone hash to at most one account.
type IdentityRegistry struct {
	b    *book
	auth *OperatorAuthority
}

func newIdentityRegistry(b *book, auth *OperatorAuthority) *IdentityRegistry {
	return &IdentityRegistry{b: b, auth: auth}
}

// Register creates an unverified identity for account bound to phoneHash.
func (r *IdentityRegistry) Register(ctx context.Context, account types.Account, phoneHash string) (*identity.Identity, error) {
	phoneHash = strings.TrimSpace(phoneHash)

	var created *identity.Identity
	err := r.b.update(ctx, "register", func(t *tx) error {
		if account.IsNull() {
			return invalidInput("account", "null account cannot register")
		}
		if phoneHash == "" {
			return invalidInput("phone_hash", "must not be empty")
		}
		if _, ok := t.identity(account); ok {
			return fmt.Errorf("%w: %s", ErrAlreadyRegistered, account)
		}
		if owner, ok := t.phoneOwner(phoneHash); ok {
			return fmt.Errorf("%w: held by %s", ErrPhoneHashTaken, owner)
		}

		created = &identity.Identity{
			Entity:    types.NewEntity(t.now),
			Account:   account,
			PhoneHash: phoneHash,
		}
		t.putIdentity(created)
		t.bindPhone(phoneHash, account)
		t.emit(&event.IdentityRegistered{Meta: event.NewMeta(t.now), Account: account, PhoneHash: phoneHash})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created.Clone(), nil
}

// Verify marks account as verified. The caller must be authorized.
// Verifying an already verified identity is a no-op.
func (r *IdentityRegistry) Verify(ctx context.Context, caller, account types.Account) error {
	return r.b.update(ctx, "verify", func(t *tx) error {
		if err := r.auth.authorize(t, caller); err != nil {
			return err
		}
		cur, ok := t.identity(account)
		if !ok {
			return fmt.Errorf("%w: identity %s", ErrNotFound, account)
		}
		if cur.Verified {
			return nil
		}

		next := cur.Clone()
		next.Verified = true
		next.Touch(t.now)
		t.putIdentity(next)
		t.emit(&event.IdentityVerified{Meta: event.NewMeta(t.now), Account: account, VerifiedBy: caller})
		return nil
	})
}

// UpdatePhoneHash rebinds account to newHash. The old index entry is
// removed and the new one installed in the same transaction.
func (r *IdentityRegistry) UpdatePhoneHash(ctx context.Context, account types.Account, newHash string) error {
	newHash = strings.TrimSpace(newHash)

	return r.b.update(ctx, "update_phone_hash", func(t *tx) error {
		if newHash == "" {
			return invalidInput("phone_hash", "must not be empty")
		}
		cur, ok := t.identity(account)
		if !ok {
			return fmt.Errorf("%w: identity %s", ErrNotFound, account)
		}
		if cur.PhoneHash == newHash {
			return nil
		}
		if owner, ok := t.phoneOwner(newHash); ok && owner != account {
			return fmt.Errorf("%w: held by %s", ErrPhoneHashTaken, owner)
		}

		oldHash := cur.PhoneHash
		next := cur.Clone()
		next.PhoneHash = newHash
		next.Touch(t.now)

		t.unbindPhone(oldHash, account)
		t.bindPhone(newHash, account)
		t.putIdentity(next)
		t.emit(&event.PhoneHashUpdated{Meta: event.NewMeta(t.now), Account: account, OldHash: oldHash, NewHash: newHash})
		return nil
	})
}

// IsVerified reports whether account has a verified identity.
func (r *IdentityRegistry) IsVerified(_ context.Context, account types.Account) bool {
	var verified bool
	r.b.view(func(s *store.Snapshot) {
		if ident, ok := s.Identities[account]; ok {
			verified = ident.Verified
		}
	})
	return verified
}

// Resolve returns the account bound to phoneHash.
func (r *IdentityRegistry) Resolve(_ context.Context, phoneHash string) (types.Account, bool) {
	var (
		account types.Account
		ok      bool
	)
	r.b.view(func(s *store.Snapshot) {
		account, ok = s.PhoneIndex[strings.TrimSpace(phoneHash)]
	})
	return account, ok
}

// AccountByPhoneHash returns the account bound to phoneHash, or the null
// account when none is.
func (r *IdentityRegistry) AccountByPhoneHash(ctx context.Context, phoneHash string) types.Account {
	if account, ok := r.Resolve(ctx, phoneHash); ok {
		return account
	}
	return types.NullAccount
}

// Get returns a copy of the identity for account.
func (r *IdentityRegistry) Get(_ context.Context, account types.Account) (*identity.Identity, error) {
	var ident *identity.Identity
	r.b.view(func(s *store.Snapshot) {
		ident = s.Identities[account].Clone()
	})
	if ident == nil {
		return nil, fmt.Errorf("%w: identity %s", ErrNotFound, account)
	}
	return ident, nil
}

// List returns copies of all identities in account order.
func (r *IdentityRegistry) List(_ context.Context) []*identity.Identity {
	var out []*identity.Identity
	r.b.view(func(s *store.Snapshot) {
		out = make([]*identity.Identity, 0, len(s.Identities))
		for _, ident := range s.Identities {
			out = append(out, ident.Clone())
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out
}

// verified reports whether account is verified as seen by t.
func (r *IdentityRegistry) verified(t *tx, account types.Account) bool {
	ident, ok := t.identity(account)
	return ok && ident.Verified
}
