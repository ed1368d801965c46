package subscription

import (
	"context"

	"github.com/xraph/tierledger/types"
)

// Store persists subscriptions keyed by account. PutSubscription replaces
// any record already held for the account.
type Store interface {
	GetSubscription(ctx context.Context, account types.AccountID) (*Subscription, error)
	PutSubscription(ctx context.Context, s *Subscription) error
	ListSubscriptions(ctx context.Context, opts ListOpts) ([]*Subscription, error)
}

type ListOpts struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}
