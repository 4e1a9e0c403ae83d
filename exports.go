package thermal

import "github.com/xraph/thermal/types"

// Re-export common types for convenience so users don't have to import types package.

// Account is re-exported from types package.
type Account = types.Account

// Amount is re-exported from types package.
type Amount = types.Amount

// Entity is re-exported from types package.
type Entity = types.Entity

// NullAccount is the mint source and burn sink.
const NullAccount = types.NullAccount

// Re-export Amount constructors
var (
	ParseAmount     = types.ParseAmount
	MustParseAmount = types.MustParseAmount
	FromWhole       = types.FromWhole
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
