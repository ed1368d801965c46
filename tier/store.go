package tier

import "context"

type Store interface {
	PutTier(ctx context.Context, t *Tier) error
	GetTier(ctx context.Context, tierID ID) (*Tier, error)
	ListTiers(ctx context.Context) ([]*Tier, error)
}
