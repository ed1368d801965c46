package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/tierledger/funding"
	"github.com/xraph/tierledger/types"
)

// Compile-time interface checks.
var (
	_ funding.Adapter          = (*Adapter)(nil)
	_ funding.PaymentEstimator = (*Adapter)(nil)
)

// Adapter sells tokens out of a reserve account at fixed rates.
type Adapter struct {
	token   *Token
	reserve types.AccountID

	quoteNum, quoteDen uint64
	tokensPerPayment   uint64

	mu       sync.Mutex
	received types.Amount
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithQuoteRate sets how many deposit tokens one reference unit costs,
// expressed as num/den.
func WithQuoteRate(num, den uint64) AdapterOption {
	return func(a *Adapter) {
		a.quoteNum, a.quoteDen = num, den
	}
}

// WithPaymentRate sets how many deposit tokens one unit of native payment buys.
func WithPaymentRate(tokensPerPayment uint64) AdapterOption {
	return func(a *Adapter) {
		a.tokensPerPayment = tokensPerPayment
	}
}

// NewAdapter returns an adapter selling from reserve. Both rates default to 1.
func NewAdapter(token *Token, reserve types.AccountID, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		token:            token,
		reserve:          reserve,
		quoteNum:         1,
		quoteDen:         1,
		tokensPerPayment: 1,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Quote(_ context.Context, referencePrice types.Amount) (types.Amount, error) {
	if a.quoteDen == 0 {
		return types.ZeroAmount(), fmt.Errorf("quote rate has zero denominator: %w", funding.ErrUnavailable)
	}
	return referencePrice.MulDiv(types.NewAmount(a.quoteNum), types.NewAmount(a.quoteDen)), nil
}

func (a *Adapter) PaymentFor(_ context.Context, tokenAmount types.Amount) (types.Amount, error) {
	rate := a.tokensPerPayment
	if rate == 0 {
		return types.ZeroAmount(), fmt.Errorf("payment rate is zero: %w", funding.ErrUnavailable)
	}
	// ceil(tokenAmount / rate)
	return tokenAmount.Add(types.NewAmount(rate - 1)).DivUint64(rate), nil
}

func (a *Adapter) Acquire(ctx context.Context, beneficiary types.AccountID, tokenAmount, payment types.Amount) (types.Amount, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	affordable := payment.MulUint64(a.tokensPerPayment)
	stock, err := a.token.BalanceOf(ctx, a.reserve)
	if err != nil {
		return types.ZeroAmount(), err
	}
	acquired := tokenAmount.Min(affordable).Min(stock)
	if acquired.IsZero() {
		return acquired, nil
	}

	if err := a.token.Transfer(ctx, a.reserve, beneficiary, acquired); err != nil {
		return types.ZeroAmount(), fmt.Errorf("acquire %s for %s: %w", acquired, beneficiary, err)
	}
	spent, _ := a.PaymentFor(ctx, acquired) //nolint:errcheck // fixed-rate estimate never fails
	a.received = a.received.Add(spent)
	return acquired, nil
}

// Received is the native payment the adapter has kept so far.
func (a *Adapter) Received() types.Amount {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.received
}
