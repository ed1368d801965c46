package distribution_test

import (
	"testing"
	"time"

	"github.com/xraph/tierledger/distribution"
	"github.com/xraph/tierledger/types"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name      string
		share     uint16
		payout    uint64
		recipient string
		sink      string
	}{
		{"all to sink", 0, 1_000, "0", "1000"},
		{"all to recipient", 100, 1_000, "1000", "0"},
		{"thirty percent", 30, 1_000, "300", "700"},
		{"remainder goes to sink", 33, 10, "3", "7"},
		{"zero payout", 50, 0, "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &distribution.Config{SharePercent: tt.share}
			r, s := c.Split(types.NewAmount(tt.payout))
			if r.String() != tt.recipient || s.String() != tt.sink {
				t.Errorf("expected %s/%s, got %s/%s", tt.recipient, tt.sink, r, s)
			}
			if !r.Add(s).Equal(types.NewAmount(tt.payout)) {
				t.Error("split does not conserve payout")
			}
		})
	}
}

func TestDue(t *testing.T) {
	last := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c := &distribution.Config{Interval: 24 * time.Hour}

	if !c.Due(last) {
		t.Error("first distribution should always be due")
	}

	c.LastDistribution = last
	if c.Due(last.Add(23 * time.Hour)) {
		t.Error("expected not due inside interval")
	}
	if !c.Due(last.Add(24 * time.Hour)) {
		t.Error("expected due at interval boundary")
	}
	if got := c.NextDue(); !got.Equal(last.Add(24 * time.Hour)) {
		t.Errorf("expected NextDue %v, got %v", last.Add(24*time.Hour), got)
	}
}
