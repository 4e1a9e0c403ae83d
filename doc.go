// Package thermal provides a permissioned energy-token ledger with
// verified identities and atomic trade settlement.
//
// Thermal is designed as a library, not a service. Import it directly into
// the process that owns the ledger. It provides:
//
//   - An identity registry with a bijective phone-hash index
//   - An owner/operator capability model shared by every privileged call
//   - A conserved token ledger (TAT) with checked integer arithmetic
//   - An append-only log of production readings and trades
//   - A settlement engine that moves funds and finalizes trades atomically
//   - Pluggable persistence (memory, SQLite, PostgreSQL, MongoDB)
//   - Event hooks for audit trails, metrics and NATS fan-out
//
// # Quick Start
//
// Create a ledger with your preferred store:
//
//	import (
//	    "github.com/xraph/thermal"
//	    "github.com/xraph/thermal/store/memory"
//	)
//
//	l := thermal.New(memory.New(), owner)
//
//	// Start loads and verifies persisted state
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Core Concepts
//
// Accounts register a phone hash and are verified by an operator before
// they may send tokens:
//
//	l.Identities().Register(ctx, alice, identity.HashPhone("+86 138 0013 8000"))
//	l.Identities().Verify(ctx, owner, alice)
//
// The owner mints and burns; verified accounts transfer:
//
//	l.Tokens().Mint(ctx, owner, alice, thermal.MustParseAmount("100.00"))
//	l.Tokens().Transfer(ctx, alice, bob, thermal.MustParseAmount("30.00"))
//
// Operators record trades, which stay Pending until settled:
//
//	l.Records().RecordTrade(ctx, op, record.TradeRequest{
//	    TradeID: "t1", Seller: alice, Buyer: bob,
//	    Amount: 100, Price: 4550,
//	})
//	res, err := l.Settlement().Settle(ctx, op, "t1")
//
// A trade the seller cannot fund becomes Failed with a reason; it is never
// retried. Submit it again under a new trade ID.
//
// # Consistency
//
// Every mutation is serialized. It is validated against an overlay of the
// committed state, checked against the ledger invariants (the sum of
// balances equals total supply, no balance is negative, each phone hash
// belongs to exactly one account, terminal trades stay terminal), written
// to the store as one batch and only then made visible. Reads observe a
// committed state and never a partial one.
//
// Amounts are integers in hundredths of a token. The settlement value of a
// trade is amount*price/100, floored.
//
// # TypeID
//
// Production records and events use TypeID identifiers:
//
//	prod_01h2xcejqtf2nbrexx3vqjhp41  // Production record
//	evt_01h455vb4pex5vsknk084sn02q   // Event
package thermal
