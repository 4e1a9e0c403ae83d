// Package identity defines verified-identity records and phone hashing.
//
// The ledger never stores raw phone numbers. Callers that hold a number
// derive its hash with HashPhone and register the hash.
package identity

import (
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/zeebo/blake3"

	"github.com/xraph/thermal/types"
)

// Identity binds an account to a phone hash and its verification state.
type Identity struct {
	types.Entity

	Account   types.Account `json:"account"`
	PhoneHash string        `json:"phone_hash"`
	Verified  bool          `json:"verified"`
}

// Clone returns a copy of the identity.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// NormalizePhone strips everything but digits and a leading '+'.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	b.Grow(len(phone))
	for i, r := range phone {
		if unicode.IsDigit(r) || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// HashPhone returns the hex blake3-256 digest of the normalized number.
func HashPhone(phone string) string {
	sum := blake3.Sum256([]byte(NormalizePhone(phone)))
	return hex.EncodeToString(sum[:])
}
