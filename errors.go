package tierledger

import (
	"errors"
	"fmt"

	"github.com/xraph/tierledger/accrual"
	"github.com/xraph/tierledger/funding"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("tierledger: not found")
	ErrAlreadyExists = errors.New("tierledger: already exists")
	ErrInvalidInput  = errors.New("tierledger: invalid input")

	// Tier errors
	ErrInvalidTier  = errors.New("tierledger: invalid tier")
	ErrTierNotFound = errors.New("tierledger: tier not found")

	// Subscription errors
	ErrSubscriptionNotFound = errors.New("tierledger: subscription not found")
	ErrNotSubscribed        = errors.New("tierledger: account has no active subscription")

	// Funding errors
	ErrInsufficientFunding = errors.New("tierledger: insufficient funding")
	ErrInsufficientBalance = errors.New("tierledger: insufficient balance")
	ErrCustodyShortfall    = errors.New("tierledger: custody transfer failed")

	// Distribution errors
	ErrPaused            = errors.New("tierledger: distribution paused")
	ErrInvalidShare      = errors.New("tierledger: share percent must be between 0 and 100")
	ErrRecipientRequired = errors.New("tierledger: recipient required for a non-zero share")

	// Accrual errors
	ErrClockRegression = accrual.ErrClockRegression
	ErrWeightUnderflow = accrual.ErrWeightUnderflow
	ErrAmountOverflow  = errors.New("tierledger: amount exceeds 128 bits")

	// Store errors
	ErrStoreNotReady     = errors.New("tierledger: store not ready")
	ErrStoreClosed       = errors.New("tierledger: store is closed")
	ErrTransactionFailed = errors.New("tierledger: transaction failed")
	ErrMigrationFailed   = errors.New("tierledger: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tierledger: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTierNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrNotSubscribed)
}

// IsFundingError returns true if the error came from moving funds.
func IsFundingError(err error) bool {
	return errors.Is(err, ErrInsufficientFunding) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrCustodyShortfall) ||
		errors.Is(err, funding.ErrInsufficientBalance) ||
		errors.Is(err, funding.ErrInsufficientAllowance) ||
		errors.Is(err, funding.ErrInsufficientPayment)
}

// IsFatal returns true if the error means ledger state or its clock can no
// longer be trusted. The operation must not be retried.
func IsFatal(err error) bool {
	return errors.Is(err, ErrClockRegression) ||
		errors.Is(err, ErrWeightUnderflow) ||
		errors.Is(err, ErrAmountOverflow)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed) ||
		errors.Is(err, funding.ErrUnavailable)
}
