package subscription_test

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/tierledger/accrual"
	"github.com/xraph/tierledger/subscription"
	"github.com/xraph/tierledger/types"
)

const day = 24 * time.Hour

var start = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func newSub(deposit uint64, rate uint16, duration time.Duration) *subscription.Subscription {
	return &subscription.Subscription{
		Account:               "acct-1",
		DepositedAmount:       types.NewAmount(deposit),
		LockedRatePercent:     rate,
		LockedDurationSeconds: uint64(duration / time.Second),
		StartedAt:             start,
		Active:                true,
	}
}

func TestWeight(t *testing.T) {
	s := newSub(5_000_000, 20, 30*day)
	if got := s.Weight().String(); got != "100000000" {
		t.Errorf("expected weight 100000000, got %s", got)
	}
}

func TestSettle(t *testing.T) {
	tests := []struct {
		name      string
		deposit   uint64
		rate      uint16
		duration  time.Duration
		held      time.Duration
		refund    string
		forfeited string
	}{
		{"mid-term refund", 3_000_000, 15, 90 * day, 30 * day, "2963014", "0"},
		{"at start", 1_000, 10, 30 * day, 0, "1000", "0"},
		{"exactly at duration", 1_000_000, 100, 10 * day, 10 * day, "0", "972603"},
		{"long past duration", 1_000_000, 100, 10 * day, 20 * day, "0", "945206"},
		{"rate above 100 saturates", 1_000, 50_000, 365 * day, 30 * day, "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSub(tt.deposit, tt.rate, tt.duration)
			got, err := s.Settle(start.Add(tt.held))
			if err != nil {
				t.Fatalf("Settle: %v", err)
			}
			if got.Refund.String() != tt.refund {
				t.Errorf("refund: expected %s, got %s", tt.refund, got.Refund)
			}
			if got.Forfeited.String() != tt.forfeited {
				t.Errorf("forfeited: expected %s, got %s", tt.forfeited, got.Forfeited)
			}
		})
	}
}

func TestSettleMatchesIndependentAccrual(t *testing.T) {
	s := newSub(3_000_000, 15, 90*day)
	held := uint64((30 * day) / time.Second)
	want := types.NewAmount(3_000_000).Sub(
		types.NewAmount(3_000_000 * 15 * held / (100 * accrual.SecondsPerYear)),
	)
	got, err := s.Settle(start.Add(30 * day))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Refund.Equal(want) {
		t.Errorf("expected refund %s, got %s", want, got.Refund)
	}
}

func TestSettleClockRegression(t *testing.T) {
	s := newSub(1_000, 10, day)
	_, err := s.Settle(start.Add(-time.Second))
	if !errors.Is(err, accrual.ErrClockRegression) {
		t.Fatalf("expected ErrClockRegression, got %v", err)
	}
}

func TestClose(t *testing.T) {
	s := newSub(1_000, 10, day)
	end := start.Add(time.Hour)
	s.Close(end)
	if s.Active {
		t.Error("expected inactive after Close")
	}
	if s.EndedAt == nil || !s.EndedAt.Equal(end) {
		t.Errorf("expected EndedAt %v, got %v", end, s.EndedAt)
	}
	if !s.Expired(start.Add(day)) {
		t.Error("expected Expired at duration")
	}
}
