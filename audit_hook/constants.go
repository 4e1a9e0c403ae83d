package audithook

// Action constants for audit events.
const (
	// Identity actions
	ActionIdentityRegistered = "identity.registered"
	ActionIdentityVerified   = "identity.verified"
	ActionPhoneHashUpdated   = "identity.phone_hash_updated"

	// Operator actions
	ActionOperatorAdded   = "operator.added"
	ActionOperatorRemoved = "operator.removed"

	// Token actions
	ActionTokenMinted      = "token.minted"
	ActionTokenBurned      = "token.burned"
	ActionTokenTransferred = "token.transferred"

	// Record actions
	ActionProductionRecorded = "production.recorded"
	ActionTradeRecorded      = "trade.recorded"

	// Settlement actions
	ActionTradeSettled          = "trade.settled"
	ActionTradeSettlementFailed = "trade.settlement_failed"

	// Integrity actions
	ActionInvariantViolation = "ledger.invariant_violation"
)

// Resource constants for audit events.
const (
	ResourceIdentity   = "identity"
	ResourceOperator   = "operator"
	ResourceBalance    = "balance"
	ResourceProduction = "production"
	ResourceTrade      = "trade"
	ResourceLedger     = "ledger"
)

// Category constants for audit events.
const (
	CategoryIdentity   = "identity"
	CategoryAccess     = "access"
	CategoryToken      = "token"
	CategoryRecord     = "record"
	CategorySettlement = "settlement"
	CategoryIntegrity  = "integrity"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
