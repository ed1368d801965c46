package subscription

import (
	"time"

	"github.com/xraph/tierledger/accrual"
	"github.com/xraph/tierledger/id"
	"github.com/xraph/tierledger/tier"
	"github.com/xraph/tierledger/types"
)

// Subscription is an account's position in a tier. An account holds at most
// one active subscription.
type Subscription struct {
	types.Entity
	ID                    id.SubscriptionID `json:"id"`
	Account               types.AccountID   `json:"account"`
	TierID                tier.ID           `json:"tier_id"`
	DepositedAmount       types.Amount      `json:"deposited_amount"`
	LockedRatePercent     uint16            `json:"locked_rate_percent"`
	LockedDurationSeconds uint64            `json:"locked_duration_seconds"`
	StartedAt             time.Time         `json:"started_at"`
	EndedAt               *time.Time        `json:"ended_at,omitempty"`
	Active                bool              `json:"active"`
}

// Weight is the subscription's contribution to the aggregate weighted deposit.
func (s *Subscription) Weight() types.Amount {
	return s.DepositedAmount.MulUint64(uint64(s.LockedRatePercent))
}

// Settlement is the split of a deposit at the moment a subscription ends.
type Settlement struct {
	// Held is the elapsed holding time capped at the locked duration.
	Held uint64 `json:"held_seconds"`
	// Accrued is the subscriber's share earned over Held.
	Accrued types.Amount `json:"accrued"`
	// Refund is returned to the account. Zero once the duration has passed.
	Refund types.Amount `json:"refund"`
	// Forfeited is the part of the deposit that is neither refunded nor
	// already covered by aggregate accrual. It is credited to the
	// undistributed pool.
	Forfeited types.Amount `json:"forfeited"`
}

// Settle computes how the deposit splits if the subscription ends at now.
func (s *Subscription) Settle(now time.Time) (Settlement, error) {
	elapsed, err := accrual.Elapsed(s.StartedAt, now)
	if err != nil {
		return Settlement{}, err
	}

	held := min(elapsed, s.LockedDurationSeconds)
	w := s.Weight()
	out := Settlement{
		Held:    held,
		Accrued: accrual.Accrue(w, held),
		Refund:  types.ZeroAmount(),
	}
	if elapsed < s.LockedDurationSeconds {
		out.Refund = s.DepositedAmount.SubClamp(out.Accrued)
	}
	out.Forfeited = s.DepositedAmount.SubClamp(out.Refund).SubClamp(accrual.Accrue(w, elapsed))
	return out, nil
}

// Expired reports whether the locked duration has fully elapsed at now.
func (s *Subscription) Expired(now time.Time) bool {
	elapsed, err := accrual.Elapsed(s.StartedAt, now)
	return err == nil && elapsed >= s.LockedDurationSeconds
}

// Clone returns a deep copy of s.
func (s *Subscription) Clone() *Subscription {
	cp := *s
	if s.EndedAt != nil {
		ended := *s.EndedAt
		cp.EndedAt = &ended
	}
	return &cp
}

// Close marks the subscription inactive as of now.
func (s *Subscription) Close(now time.Time) {
	ended := now.UTC()
	s.Active = false
	s.EndedAt = &ended
	s.Touch(now)
}
