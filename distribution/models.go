package distribution

import (
	"time"

	"github.com/xraph/tierledger/id"
	"github.com/xraph/tierledger/types"
)

// Config controls how and when accrued profit leaves custody.
type Config struct {
	Recipient        types.AccountID `json:"recipient"`
	SharePercent     uint16          `json:"share_percent"`
	Interval         time.Duration   `json:"interval"`
	LastDistribution time.Time       `json:"last_distribution"`
	Paused           bool            `json:"paused"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Due reports whether a payout may happen at now. The first distribution
// is always due.
func (c *Config) Due(now time.Time) bool {
	if c.LastDistribution.IsZero() {
		return true
	}
	return now.Unix()-c.LastDistribution.Unix() >= int64(c.Interval/time.Second)
}

// NextDue returns the earliest time the next payout can happen.
func (c *Config) NextDue() time.Time {
	if c.LastDistribution.IsZero() {
		return time.Time{}
	}
	return c.LastDistribution.Add(c.Interval)
}

// Split divides a payout between the recipient and the sink. The
// recipient's part truncates; the sink receives the remainder.
func (c *Config) Split(payout types.Amount) (toRecipient, toSink types.Amount) {
	toRecipient = payout.MulDiv(types.NewAmount(uint64(c.SharePercent)), types.NewAmount(100))
	return toRecipient, payout.Sub(toRecipient)
}

// Payout is one executed distribution.
type Payout struct {
	ID            id.PayoutID     `json:"id"`
	Amount        types.Amount    `json:"amount"`
	Recipient     types.AccountID `json:"recipient"`
	ToRecipient   types.Amount    `json:"to_recipient"`
	Sink          types.AccountID `json:"sink"`
	ToSink        types.Amount    `json:"to_sink"`
	DistributedAt time.Time       `json:"distributed_at"`
}

// Result is returned by a distribution attempt. Payout is nil when the
// attempt was deferred or there was nothing to pay.
type Result struct {
	Deferred bool      `json:"deferred"`
	NextDue  time.Time `json:"next_due,omitzero"`
	Payout   *Payout   `json:"payout,omitempty"`
}
