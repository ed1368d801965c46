package distribution

import (
	"context"
	"time"
)

// Store persists the singleton distribution config and payout history.
// GetDistributionConfig returns a zero Config when nothing has been written.
type Store interface {
	GetDistributionConfig(ctx context.Context) (*Config, error)
	PutDistributionConfig(ctx context.Context, c *Config) error
	CreatePayout(ctx context.Context, p *Payout) error
	ListPayouts(ctx context.Context, opts ListOpts) ([]*Payout, error)
}

type ListOpts struct {
	Start  time.Time
	End    time.Time
	Limit  int
	Offset int
}
