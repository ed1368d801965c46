// Package funding defines the external collaborators the ledger moves value
// through: the deposit token and the adapter that converts native payment
// into deposit tokens.
//
// Implementations are expected to be all-or-nothing per call. Completed
// calls are never undone by the ledger; when a later step fails it returns
// collected tokens with a new transfer.
package funding

import (
	"context"
	"errors"

	"github.com/xraph/tierledger/types"
)

var (
	// ErrInsufficientBalance is returned when an account holds fewer tokens
	// than a transfer requires.
	ErrInsufficientBalance = errors.New("funding: insufficient balance")

	// ErrInsufficientAllowance is returned when a spender has not been
	// approved for the amount it tries to pull.
	ErrInsufficientAllowance = errors.New("funding: insufficient allowance")

	// ErrInsufficientPayment is returned by an adapter when the supplied
	// payment cannot buy the requested amount.
	ErrInsufficientPayment = errors.New("funding: insufficient payment")

	// ErrUnavailable is returned when the collaborator cannot be reached.
	ErrUnavailable = errors.New("funding: unavailable")
)

// Adapter quotes reference prices in deposit tokens and acquires tokens on
// behalf of an account.
type Adapter interface {
	// Quote converts a reference price into an amount of deposit tokens.
	// It must not move funds.
	Quote(ctx context.Context, referencePrice types.Amount) (types.Amount, error)

	// Acquire buys up to tokenAmount deposit tokens for beneficiary using
	// payment. The ledger names its custody account as beneficiary. Unused
	// payment is returned by the adapter itself. The returned amount may be
	// less than requested.
	Acquire(ctx context.Context, beneficiary types.AccountID, tokenAmount, payment types.Amount) (types.Amount, error)
}

// PaymentEstimator is implemented by adapters that can price an
// acquisition before it happens.
type PaymentEstimator interface {
	PaymentFor(ctx context.Context, tokenAmount types.Amount) (types.Amount, error)
}

// Token is the deposit asset.
type Token interface {
	BalanceOf(ctx context.Context, account types.AccountID) (types.Amount, error)

	// Allowance is what spender may still pull from owner.
	Allowance(ctx context.Context, owner, spender types.AccountID) (types.Amount, error)

	// Transfer moves amount from one account to another.
	Transfer(ctx context.Context, from, to types.AccountID, amount types.Amount) error

	// TransferFrom moves amount from owner to to, spending spender's
	// allowance.
	TransferFrom(ctx context.Context, spender, owner, to types.AccountID, amount types.Amount) error
}
