package tierledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/tierledger/accrual"
	"github.com/xraph/tierledger/distribution"
	"github.com/xraph/tierledger/id"
	"github.com/xraph/tierledger/store"
	"github.com/xraph/tierledger/types"
)

// Distribute pays out the undistributed pool if the interval since the last
// distribution has elapsed. The pool is always settled to now, even when the
// payout is deferred. A zero pool advances the distribution time and records
// no payout.
//
// The payout is committed before any transfer. If the recipient's transfer
// fails the previous records are restored. If only the sink's transfer
// fails, the payout is rewritten to what the recipient received and the
// sink's share stays in the pool.
func (l *Ledger) Distribute(ctx context.Context, now time.Time) (*distribution.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg, err := l.store.GetDistributionConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("distribute: load config: %w", err)
	}
	if cfg.Paused {
		return nil, ErrPaused
	}

	base, st, err := l.settle(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("distribute: %w", err)
	}
	now = st.LastSettlement

	if !cfg.Due(now) {
		if err := l.commit(ctx, "distribute", &store.Changeset{Accrual: st}); err != nil {
			return nil, err
		}
		next := cfg.NextDue()
		l.logger.Debug("distribution deferred",
			"next_due", next,
			"accrued", l.display(st.AccruedUndistributed),
		)
		l.plugins.EmitDistributionDeferred(ctx, next)
		return &distribution.Result{Deferred: true, NextDue: next}, nil
	}

	prevCfg := *cfg
	cfg.LastDistribution = now
	cfg.UpdatedAt = l.clock.Now()

	if st.AccruedUndistributed.IsZero() {
		if err := l.commit(ctx, "distribute", &store.Changeset{Config: cfg, Accrual: st}); err != nil {
			return nil, err
		}
		l.logger.Debug("distribution skipped, nothing accrued")
		return &distribution.Result{}, nil
	}

	if err := l.checkCustody(ctx, st.AccruedUndistributed); err != nil {
		return nil, fmt.Errorf("distribute: %w", err)
	}

	undrained := st.Clone()
	toRecipient, toSink := cfg.Split(st.AccruedUndistributed)
	payout := &distribution.Payout{
		ID:            id.NewPayoutID(),
		Amount:        st.Drain(),
		Recipient:     cfg.Recipient,
		ToRecipient:   toRecipient,
		Sink:          l.sink,
		ToSink:        toSink,
		DistributedAt: now,
	}

	if err := l.commit(ctx, "distribute", &store.Changeset{
		Payout:  payout,
		Config:  cfg,
		Accrual: st,
	}); err != nil {
		return nil, err
	}

	undo := &store.Changeset{
		RemovePayouts: []id.PayoutID{payout.ID},
		Config:        &prevCfg,
		Accrual:       base,
	}
	if toRecipient.IsPositive() {
		if err := l.token.Transfer(ctx, l.custody, cfg.Recipient, toRecipient); err != nil {
			return nil, l.revert(ctx, "distribute", undo,
				fmt.Errorf("distribute to %s: %w: %w", cfg.Recipient, ErrCustodyShortfall, err))
		}
	}
	if toSink.IsPositive() {
		if err := l.token.Transfer(ctx, l.custody, l.sink, toSink); err != nil {
			cause := fmt.Errorf("distribute to %s: %w: %w", l.sink, ErrCustodyShortfall, err)
			if toRecipient.IsPositive() {
				undo, err = l.partialPayout(payout, undrained)
				if err != nil {
					return nil, errors.Join(cause, err)
				}
			}
			return nil, l.revert(ctx, "distribute", undo, cause)
		}
	}

	l.logger.Info("profit distributed",
		"payout", payout.ID.String(),
		"amount", l.display(payout.Amount),
		"recipient", payout.Recipient,
		"to_recipient", l.display(toRecipient),
		"to_sink", l.display(toSink),
	)
	l.plugins.EmitDistributed(ctx, payout)

	return &distribution.Result{Payout: payout}, nil
}

// partialPayout rewrites a payout whose sink transfer failed after the
// recipient was paid. Only the recipient's share leaves the pool.
func (l *Ledger) partialPayout(full *distribution.Payout, undrained *accrual.State) (*store.Changeset, error) {
	st := undrained.Clone()
	if err := st.Withdraw(full.ToRecipient); err != nil {
		return nil, fmt.Errorf("distribute: %w", err)
	}

	partial := *full
	partial.ID = id.NewPayoutID()
	partial.Amount = full.ToRecipient
	partial.ToSink = types.ZeroAmount()

	l.logger.Error("partial distribution, sink share kept in pool",
		"payout", partial.ID.String(),
		"recipient", partial.Recipient,
		"to_recipient", l.display(partial.ToRecipient),
		"kept", l.display(full.ToSink),
	)
	return &store.Changeset{
		RemovePayouts: []id.PayoutID{full.ID},
		Payout:        &partial,
		Accrual:       st,
	}, nil
}

// SetDistributionConfig sets the payout recipient, its share and the minimum
// interval between payouts. Accrued amounts are not touched.
func (l *Ledger) SetDistributionConfig(ctx context.Context, recipient types.AccountID, sharePercent uint16, interval time.Duration) error {
	if sharePercent > 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidShare, sharePercent)
	}
	if sharePercent > 0 && recipient.IsZero() {
		return ErrRecipientRequired
	}
	if interval < 0 {
		return ValidationError{Field: "interval", Message: "must not be negative"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cfg, err := l.store.GetDistributionConfig(ctx)
	if err != nil {
		return fmt.Errorf("load distribution config: %w", err)
	}
	cfg.Recipient = recipient
	cfg.SharePercent = sharePercent
	cfg.Interval = interval
	cfg.UpdatedAt = l.clock.Now()

	if err := l.commit(ctx, "set distribution config", &store.Changeset{Config: cfg}); err != nil {
		return err
	}

	l.logger.Info("distribution configured",
		"recipient", recipient,
		"share_percent", sharePercent,
		"interval", interval,
	)
	return nil
}

// Pause stops distributions until Resume is called.
func (l *Ledger) Pause(ctx context.Context) error {
	return l.setPaused(ctx, true)
}

// Resume re-enables distributions.
func (l *Ledger) Resume(ctx context.Context) error {
	return l.setPaused(ctx, false)
}

func (l *Ledger) setPaused(ctx context.Context, paused bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg, err := l.store.GetDistributionConfig(ctx)
	if err != nil {
		return fmt.Errorf("load distribution config: %w", err)
	}
	if cfg.Paused == paused {
		return nil
	}
	cfg.Paused = paused
	cfg.UpdatedAt = l.clock.Now()

	if err := l.commit(ctx, "set paused", &store.Changeset{Config: cfg}); err != nil {
		return err
	}

	l.logger.Info("distribution pause changed", "paused", paused)
	l.plugins.EmitPauseChanged(ctx, paused)
	return nil
}

// DistributionConfig returns the current distribution config.
func (l *Ledger) DistributionConfig(ctx context.Context) (*distribution.Config, error) {
	return l.store.GetDistributionConfig(ctx)
}

// ListPayouts returns payout history, newest first.
func (l *Ledger) ListPayouts(ctx context.Context, opts distribution.ListOpts) ([]*distribution.Payout, error) {
	return l.store.ListPayouts(ctx, opts)
}

// checkCustody fails when custody cannot cover amount.
func (l *Ledger) checkCustody(ctx context.Context, amount types.Amount) error {
	held, err := l.token.BalanceOf(ctx, l.custody)
	if err != nil {
		return fmt.Errorf("custody balance: %w", err)
	}
	if held.LessThan(amount) {
		l.logger.Error("custody cannot cover accrued profit",
			"custody", l.custody,
			"held", l.display(held),
			"accrued", l.display(amount),
			"shortfall", l.display(amount.Sub(held)),
		)
		return fmt.Errorf("%w: custody holds %s, payout needs %s", ErrCustodyShortfall, held, amount)
	}
	return nil
}
