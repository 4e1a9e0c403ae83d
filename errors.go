package thermal

import (
	"errors"
	"fmt"

	"github.com/xraph/thermal/types"
)

// Sentinel errors. Match them with errors.Is; returned errors may wrap
// them with context.
var (
	// Capability errors
	ErrNotAuthorized = errors.New("thermal: not authorized")

	// Identity errors
	ErrAlreadyRegistered = errors.New("thermal: account already registered")
	ErrPhoneHashTaken    = errors.New("thermal: phone hash bound to another account")
	ErrNotVerified       = errors.New("thermal: account not verified")

	// Token errors
	ErrInvalidAmount       = errors.New("thermal: invalid amount")
	ErrInsufficientBalance = errors.New("thermal: insufficient balance")
	ErrOverflow            = fmt.Errorf("thermal: arithmetic overflow: %w", ErrInvalidAmount)

	// Record errors
	ErrDuplicateTradeID = errors.New("thermal: duplicate trade id")
	ErrNotFound         = errors.New("thermal: not found")
	ErrAlreadySettled   = errors.New("thermal: trade already settled")
	ErrAlreadyFailed    = errors.New("thermal: trade already failed")

	// General errors
	ErrInvalidInput       = errors.New("thermal: invalid input")
	ErrInvariantViolation = errors.New("thermal: invariant violation")
	ErrNotStarted         = errors.New("thermal: ledger not started")
	ErrAlreadyStarted     = errors.New("thermal: ledger already started")
	ErrOwnerMismatch      = errors.New("thermal: stored owner differs from configured owner")

	// Store errors
	ErrStoreClosed = errors.New("thermal: store is closed")
)

// ValidationError describes a rejected input field. It unwraps to
// ErrInvalidInput or ErrInvalidAmount.
type ValidationError struct {
	Field   string
	Message string
	Kind    error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("thermal: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap returns the sentinel the validation failure belongs to.
func (e ValidationError) Unwrap() error {
	if e.Kind == nil {
		return ErrInvalidInput
	}
	return e.Kind
}

func invalidInput(field, msg string) error {
	return ValidationError{Field: field, Message: msg, Kind: ErrInvalidInput}
}

func invalidAmount(field, msg string) error {
	return ValidationError{Field: field, Message: msg, Kind: ErrInvalidAmount}
}

// overflow maps a types.ErrOverflow into ErrOverflow.
func overflow(op string, err error) error {
	if errors.Is(err, types.ErrOverflow) {
		return fmt.Errorf("%s: %w", op, ErrOverflow)
	}
	return err
}

// InvariantError reports which ledger invariant failed.
type InvariantError struct {
	Invariant string
	Detail    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("thermal: invariant %s violated: %s", e.Invariant, e.Detail)
}

// Unwrap returns ErrInvariantViolation.
func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAuthError returns true if the caller lacked a capability.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNotAuthorized) || errors.Is(err, ErrNotVerified)
}

// IsValidationError returns true if the input was rejected before any
// state was read.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrInvalidAmount)
}

// IsSettlementConflict returns true if a trade was already final.
func IsSettlementConflict(err error) bool {
	return errors.Is(err, ErrAlreadySettled) || errors.Is(err, ErrAlreadyFailed)
}
