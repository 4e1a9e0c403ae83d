package types

import "strings"

// Account is an opaque ledger address.
type Account string

// NullAccount is the mint source and burn sink. It can never register,
// hold a balance or take part in a trade.
const NullAccount Account = "0x0000000000000000000000000000000000000000"

// IsNull reports whether a is the empty or null account.
func (a Account) IsNull() bool {
	return strings.TrimSpace(string(a)) == "" || a == NullAccount
}

// String implements fmt.Stringer.
func (a Account) String() string {
	if a == "" {
		return string(NullAccount)
	}
	return string(a)
}
