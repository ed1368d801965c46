package tierledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/tierledger/accrual"
	"github.com/xraph/tierledger/funding"
	"github.com/xraph/tierledger/id"
	"github.com/xraph/tierledger/store"
	"github.com/xraph/tierledger/subscription"
	"github.com/xraph/tierledger/tier"
	"github.com/xraph/tierledger/types"
)

// PriceEstimate breaks down what a subscribe call would cost.
type PriceEstimate struct {
	// Required is the tier's reference price quoted in deposit tokens.
	Required types.Amount `json:"required"`
	// Credit is the unrealized deposit of the subscription being replaced.
	Credit types.Amount `json:"credit"`
	// Net is what must be pulled from the account.
	Net types.Amount `json:"net"`
	// Refund is credit above the new price, returned to the account.
	Refund types.Amount `json:"refund"`
	// Available is min(balance, allowance) of the account.
	Available types.Amount `json:"available"`
	// Pull is the part of Net taken from the account's own tokens.
	Pull types.Amount `json:"pull"`
	// Shortfall is the rest of Net, acquired by the funding adapter
	// straight into custody.
	Shortfall types.Amount `json:"shortfall"`
	// Payment is the native payment the adapter expects for the shortfall.
	// Zero when the adapter cannot estimate it.
	Payment types.Amount `json:"payment"`
}

// Receipt describes a completed subscribe call.
type Receipt struct {
	Subscription *subscription.Subscription `json:"subscription"`
	Replaced     *subscription.Subscription `json:"replaced,omitempty"`
	Price        PriceEstimate              `json:"price"`
	Acquired     types.Amount               `json:"acquired"`
}

// Withdrawal describes a completed unsubscribe call.
type Withdrawal struct {
	Subscription *subscription.Subscription `json:"subscription"`
	Settlement   subscription.Settlement    `json:"settlement"`
}

// Subscribe puts account into tierID at now. An active subscription held by
// the account is replaced: its unrealized deposit is credited toward the new
// price and any excess is refunded. The account's own tokens are pulled
// first; payment is forwarded to the funding adapter to acquire whatever
// they do not cover.
//
// Ledger records are committed before any funds move. If a transfer then
// fails, tokens already collected are returned and the previous records are
// restored.
func (l *Ledger) Subscribe(ctx context.Context, account types.AccountID, tierID tier.ID, payment types.Amount, now time.Time) (*Receipt, error) {
	if account.IsZero() {
		return nil, ValidationError{Field: "account", Message: "must not be empty"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	base, st, err := l.settle(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", account, err)
	}

	prev, err := l.subscriptionRecord(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", account, err)
	}
	replaced, credit, err := retire(st, prev, st.LastSettlement)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", account, err)
	}

	t, err := l.store.GetTier(ctx, tierID)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", account, err)
	}

	price, err := l.price(ctx, account, t, credit)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s to tier %d: %w", account, tierID, err)
	}

	sub := &subscription.Subscription{
		Entity:                types.NewEntity(l.clock.Now()),
		ID:                    id.NewSubscriptionID(),
		Account:               account,
		TierID:                t.ID,
		DepositedAmount:       price.Required,
		LockedRatePercent:     t.AnnualRatePercent,
		LockedDurationSeconds: t.DurationSeconds,
		StartedAt:             st.LastSettlement,
		Active:                true,
	}
	st.Open(sub.DepositedAmount, sub.Weight())

	if err := l.commit(ctx, "subscribe", &store.Changeset{
		Subscriptions: []*subscription.Subscription{sub},
		Accrual:       st,
	}); err != nil {
		return nil, err
	}

	acquired, err := l.collect(ctx, account, price, payment)
	if err != nil {
		undo := &store.Changeset{Accrual: base}
		if prev != nil {
			undo.Subscriptions = []*subscription.Subscription{prev}
		} else {
			undo.RemoveSubscriptions = []types.AccountID{account}
		}
		return nil, l.revert(ctx, "subscribe", undo, fmt.Errorf("subscribe %s: %w", account, err))
	}

	attrs := []any{
		"account", account,
		"tier", t.ID,
		"deposit", l.display(sub.DepositedAmount),
		"rate_percent", sub.LockedRatePercent,
		"pulled", l.display(price.Pull),
		"acquired", l.display(acquired),
	}
	if replaced != nil {
		attrs = append(attrs, "replaced_tier", replaced.TierID, "credit", l.display(credit))
	}
	l.logger.Info("subscribed", attrs...)
	l.plugins.EmitSubscribed(ctx, sub, replaced)

	return &Receipt{
		Subscription: sub,
		Replaced:     replaced,
		Price:        *price,
		Acquired:     acquired,
	}, nil
}

// Unsubscribe ends account's active subscription at now and refunds the
// unrealized part of its deposit. The closed record is committed before the
// refund is sent and restored if the refund fails.
func (l *Ledger) Unsubscribe(ctx context.Context, account types.AccountID, now time.Time) (*Withdrawal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	base, st, err := l.settle(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("unsubscribe %s: %w", account, err)
	}

	prev, err := l.subscriptionRecord(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("unsubscribe %s: %w", account, err)
	}
	if prev == nil || !prev.Active {
		return nil, fmt.Errorf("unsubscribe %s: %w", account, ErrNotSubscribed)
	}

	sub := prev.Clone()
	settlement, err := sub.Settle(st.LastSettlement)
	if err != nil {
		return nil, fmt.Errorf("unsubscribe %s: %w", account, err)
	}
	if err := st.Release(sub.DepositedAmount, sub.Weight()); err != nil {
		return nil, fmt.Errorf("unsubscribe %s: %w", account, err)
	}
	st.Credit(settlement.Forfeited)
	sub.Close(st.LastSettlement)

	if err := l.commit(ctx, "unsubscribe", &store.Changeset{
		Subscriptions: []*subscription.Subscription{sub},
		Accrual:       st,
	}); err != nil {
		return nil, err
	}

	if settlement.Refund.IsPositive() {
		if err := l.token.Transfer(ctx, l.custody, account, settlement.Refund); err != nil {
			return nil, l.revert(ctx, "unsubscribe", &store.Changeset{
				Subscriptions: []*subscription.Subscription{prev},
				Accrual:       base,
			}, fmt.Errorf("unsubscribe %s: %w: %w", account, ErrCustodyShortfall, err))
		}
	}

	l.logger.Info("unsubscribed",
		"account", account,
		"tier", sub.TierID,
		"refund", l.display(settlement.Refund),
		"accrued", l.display(settlement.Accrued),
		"forfeited", l.display(settlement.Forfeited),
	)
	l.plugins.EmitUnsubscribed(ctx, sub, settlement)

	return &Withdrawal{Subscription: sub, Settlement: settlement}, nil
}

// EstimateSubscriptionPrice reports what Subscribe would charge account for
// tierID at now. It moves no funds and writes nothing.
func (l *Ledger) EstimateSubscriptionPrice(ctx context.Context, account types.AccountID, tierID tier.ID, now time.Time) (*PriceEstimate, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, err := l.store.GetTier(ctx, tierID)
	if err != nil {
		return nil, err
	}

	credit := types.ZeroAmount()
	sub, err := l.subscriptionRecord(ctx, account)
	if err != nil {
		return nil, err
	}
	if sub != nil && sub.Active {
		settlement, err := sub.Settle(now)
		if err != nil {
			return nil, err
		}
		credit = settlement.Refund
	}

	price, err := l.price(ctx, account, t, credit)
	if err != nil {
		return nil, err
	}

	if est, ok := l.adapter.(funding.PaymentEstimator); ok && price.Shortfall.IsPositive() {
		if price.Payment, err = est.PaymentFor(ctx, price.Shortfall); err != nil {
			return nil, fmt.Errorf("estimate payment: %w", err)
		}
	}
	return price, nil
}

// GetSubscription returns the subscription record held for account.
func (l *Ledger) GetSubscription(ctx context.Context, account types.AccountID) (*subscription.Subscription, error) {
	return l.store.GetSubscription(ctx, account)
}

// ListSubscriptions pages through subscription records. It is a read
// surface only and is never used for accrual.
func (l *Ledger) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	return l.store.ListSubscriptions(ctx, opts)
}

// retire removes prev from the aggregate when it is active and returns a
// closed copy along with its unrealized deposit. It returns a nil
// subscription and zero credit when there is nothing to replace.
func retire(st *accrual.State, prev *subscription.Subscription, now time.Time) (*subscription.Subscription, types.Amount, error) {
	if prev == nil || !prev.Active {
		return nil, types.ZeroAmount(), nil
	}

	sub := prev.Clone()
	settlement, err := sub.Settle(now)
	if err != nil {
		return nil, types.ZeroAmount(), err
	}
	if err := st.Release(sub.DepositedAmount, sub.Weight()); err != nil {
		return nil, types.ZeroAmount(), err
	}
	st.Credit(settlement.Forfeited)
	sub.Close(now)
	return sub, settlement.Refund, nil
}

// collect moves the subscription price into custody: the account's tokens
// first, then whatever the adapter acquires for the shortfall. When a
// replaced subscription's credit exceeds the price, the excess is refunded
// instead. Tokens collected before a failure are returned to the account.
func (l *Ledger) collect(ctx context.Context, account types.AccountID, price *PriceEstimate, payment types.Amount) (types.Amount, error) {
	acquired := types.ZeroAmount()

	if price.Refund.IsPositive() {
		if err := l.token.Transfer(ctx, l.custody, account, price.Refund); err != nil {
			return acquired, fmt.Errorf("refund: %w: %w", ErrCustodyShortfall, err)
		}
		return acquired, nil
	}

	if price.Pull.IsPositive() {
		if err := l.token.TransferFrom(ctx, l.custody, account, l.custody, price.Pull); err != nil {
			return acquired, fmt.Errorf("%w: %w", ErrInsufficientBalance, err)
		}
	}
	if price.Shortfall.IsZero() {
		return acquired, nil
	}

	acquired, err := l.adapter.Acquire(ctx, l.custody, price.Shortfall, payment)
	switch {
	case err != nil && IsFundingError(err):
		acquired, err = types.ZeroAmount(), fmt.Errorf("%w: %w", ErrInsufficientFunding, err)
	case err != nil:
		acquired, err = types.ZeroAmount(), fmt.Errorf("acquire: %w", err)
	case acquired.LessThan(price.Shortfall):
		err = fmt.Errorf("%w: acquired %s of %s", ErrInsufficientFunding, acquired, price.Shortfall)
	}
	if err != nil {
		l.giveBack(ctx, account, price.Pull.Add(acquired))
		return types.ZeroAmount(), err
	}
	return acquired, nil
}

// giveBack returns tokens collected for a subscribe call that did not go
// through.
func (l *Ledger) giveBack(ctx context.Context, account types.AccountID, amount types.Amount) {
	if amount.IsZero() {
		return
	}
	if err := l.token.Transfer(ctx, l.custody, account, amount); err != nil {
		l.logger.Error("could not return collected tokens",
			"account", account,
			"amount", l.display(amount),
			"error", err,
		)
	}
}

// subscriptionRecord returns the record held for account, active or not,
// or nil when there is none.
func (l *Ledger) subscriptionRecord(ctx context.Context, account types.AccountID) (*subscription.Subscription, error) {
	sub, err := l.store.GetSubscription(ctx, account)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil, nil //nolint:nilnil // no record is not an error here
		}
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	return sub, nil
}

// price quotes t for account given credit from a replaced subscription.
func (l *Ledger) price(ctx context.Context, account types.AccountID, t *tier.Tier, credit types.Amount) (*PriceEstimate, error) {
	required, err := l.adapter.Quote(ctx, t.ReferencePrice)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}
	if !required.FitsUint128() {
		return nil, fmt.Errorf("quote %s: %w", required, ErrAmountOverflow)
	}

	p := &PriceEstimate{
		Required:  required,
		Credit:    credit,
		Net:       required.SubClamp(credit),
		Refund:    credit.SubClamp(required),
		Available: types.ZeroAmount(),
		Pull:      types.ZeroAmount(),
		Shortfall: types.ZeroAmount(),
		Payment:   types.ZeroAmount(),
	}
	if p.Net.IsZero() {
		return p, nil
	}

	balance, err := l.token.BalanceOf(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	allowance, err := l.token.Allowance(ctx, account, l.custody)
	if err != nil {
		return nil, fmt.Errorf("allowance: %w", err)
	}
	p.Available = balance.Min(allowance)
	p.Pull = p.Net.Min(p.Available)
	p.Shortfall = p.Net.SubClamp(p.Pull)
	return p, nil
}
