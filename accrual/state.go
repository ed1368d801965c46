// Package accrual holds the aggregate accounting state that lets the ledger
// accrue profit for every subscriber in constant time.
//
// Each active subscription contributes weight = deposit * rate percent. The
// aggregate of those weights is kept in [State.TotalWeightedDeposit], so the
// amount accrued across all subscribers over an interval is a single
// multiplication regardless of how many subscriptions exist.
package accrual

import (
	"errors"
	"time"

	"github.com/xraph/tierledger/types"
)

// SecondsPerYear is the length of the accrual year (365 days).
const SecondsPerYear uint64 = 31_536_000

var (
	// ErrClockRegression is returned when an operation is given a time
	// earlier than the last settlement.
	ErrClockRegression = errors.New("accrual: clock regression")

	// ErrWeightUnderflow is returned when more weight is removed than the
	// aggregate holds. It always indicates corrupted state.
	ErrWeightUnderflow = errors.New("accrual: weight underflow")

	// ErrPoolUnderflow is returned when more is withdrawn than accrued.
	ErrPoolUnderflow = errors.New("accrual: pool underflow")
)

var yearPercent = types.NewAmount(100 * SecondsPerYear)

// Accrue returns weight * elapsed / (100 * SecondsPerYear), truncated.
func Accrue(weight types.Amount, elapsed uint64) types.Amount {
	if elapsed == 0 || weight.IsZero() {
		return types.ZeroAmount()
	}
	return weight.MulDiv(types.NewAmount(elapsed), yearPercent)
}

// Elapsed returns the whole seconds between from and to.
// A zero from is treated as "no history" and yields zero.
func Elapsed(from, to time.Time) (uint64, error) {
	if from.IsZero() {
		return 0, nil
	}
	d := to.Unix() - from.Unix()
	if d < 0 {
		return 0, ErrClockRegression
	}
	return uint64(d), nil
}

// State is the singleton accrual record.
type State struct {
	TotalWeightedDeposit types.Amount `json:"total_weighted_deposit"`
	LastSettlement       time.Time    `json:"last_settlement"`
	AccruedUndistributed types.Amount `json:"accrued_undistributed"`
	ActiveSubscriptions  uint64       `json:"active_subscriptions"`
	TotalDeposited       types.Amount `json:"total_deposited"`
	TotalDistributed     types.Amount `json:"total_distributed"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

// Clone returns a working copy. Amounts are immutable so a shallow copy is
// independent of the original.
func (s *State) Clone() *State {
	c := *s
	return &c
}

// Settle folds the profit accrued since the last settlement into
// AccruedUndistributed and moves LastSettlement to now. It returns the
// amount that was added.
func (s *State) Settle(now time.Time) (types.Amount, error) {
	elapsed, err := Elapsed(s.LastSettlement, now)
	if err != nil {
		return types.ZeroAmount(), err
	}
	delta := Accrue(s.TotalWeightedDeposit, elapsed)
	s.AccruedUndistributed = s.AccruedUndistributed.Add(delta)
	s.LastSettlement = now.UTC().Truncate(time.Second)
	s.UpdatedAt = s.LastSettlement
	return delta, nil
}

// Estimate projects AccruedUndistributed to now without modifying state.
func (s *State) Estimate(now time.Time) (types.Amount, error) {
	elapsed, err := Elapsed(s.LastSettlement, now)
	if err != nil {
		return types.ZeroAmount(), err
	}
	return s.AccruedUndistributed.Add(Accrue(s.TotalWeightedDeposit, elapsed)), nil
}

// AddWeight adds a subscription's weight to the aggregate. Callers must
// Settle first.
func (s *State) AddWeight(w types.Amount) {
	s.TotalWeightedDeposit = s.TotalWeightedDeposit.Add(w)
}

// RemoveWeight removes a subscription's weight from the aggregate.
func (s *State) RemoveWeight(w types.Amount) error {
	next, ok := s.TotalWeightedDeposit.CheckedSub(w)
	if !ok {
		return ErrWeightUnderflow
	}
	s.TotalWeightedDeposit = next
	return nil
}

// Open accounts for a new active subscription.
func (s *State) Open(deposit, weight types.Amount) {
	s.AddWeight(weight)
	s.ActiveSubscriptions++
	s.TotalDeposited = s.TotalDeposited.Add(deposit)
}

// Release accounts for a subscription leaving the active set.
func (s *State) Release(deposit, weight types.Amount) error {
	if err := s.RemoveWeight(weight); err != nil {
		return err
	}
	if s.ActiveSubscriptions == 0 {
		return ErrWeightUnderflow
	}
	s.ActiveSubscriptions--
	s.TotalDeposited = s.TotalDeposited.SubClamp(deposit)
	return nil
}

// Credit adds an amount directly to AccruedUndistributed.
func (s *State) Credit(amount types.Amount) {
	s.AccruedUndistributed = s.AccruedUndistributed.Add(amount)
}

// Drain zeroes AccruedUndistributed and returns what it held.
func (s *State) Drain() types.Amount {
	out := s.AccruedUndistributed
	s.AccruedUndistributed = types.ZeroAmount()
	s.TotalDistributed = s.TotalDistributed.Add(out)
	return out
}

// Withdraw moves amount out of AccruedUndistributed into TotalDistributed.
func (s *State) Withdraw(amount types.Amount) error {
	next, ok := s.AccruedUndistributed.CheckedSub(amount)
	if !ok {
		return ErrPoolUnderflow
	}
	s.AccruedUndistributed = next
	s.TotalDistributed = s.TotalDistributed.Add(amount)
	return nil
}
