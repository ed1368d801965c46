package store

import (
	"context"

	"github.com/xraph/tierledger/accrual"
	"github.com/xraph/tierledger/distribution"
	"github.com/xraph/tierledger/id"
	"github.com/xraph/tierledger/subscription"
	"github.com/xraph/tierledger/tier"
	"github.com/xraph/tierledger/types"
)

// Store is the unified storage interface for all tierledger records.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Tier methods
	PutTier(ctx context.Context, t *tier.Tier) error
	GetTier(ctx context.Context, tierID tier.ID) (*tier.Tier, error)
	ListTiers(ctx context.Context) ([]*tier.Tier, error)

	// Subscription methods
	GetSubscription(ctx context.Context, account types.AccountID) (*subscription.Subscription, error)
	PutSubscription(ctx context.Context, s *subscription.Subscription) error
	ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error)

	// Accrual methods
	GetAccrualState(ctx context.Context) (*accrual.State, error)
	PutAccrualState(ctx context.Context, s *accrual.State) error

	// Distribution methods
	GetDistributionConfig(ctx context.Context) (*distribution.Config, error)
	PutDistributionConfig(ctx context.Context, c *distribution.Config) error
	CreatePayout(ctx context.Context, p *distribution.Payout) error
	ListPayouts(ctx context.Context, opts distribution.ListOpts) ([]*distribution.Payout, error)

	// Commit applies every write of one ledger operation.
	Commit(ctx context.Context, cs *Changeset) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Changeset is the set of writes produced by one ledger operation. Nil
// fields are left untouched. Backends apply a changeset atomically, removals
// first.
type Changeset struct {
	Subscriptions []*subscription.Subscription
	Payout        *distribution.Payout
	Config        *distribution.Config
	Accrual       *accrual.State

	// RemoveSubscriptions deletes the records held for these accounts.
	RemoveSubscriptions []types.AccountID
	// RemovePayouts deletes payouts recorded by an earlier changeset.
	RemovePayouts []id.PayoutID
}

// Empty reports whether the changeset has nothing to write.
func (cs *Changeset) Empty() bool {
	return cs == nil || (len(cs.Subscriptions) == 0 && cs.Payout == nil && cs.Config == nil && cs.Accrual == nil &&
		len(cs.RemoveSubscriptions) == 0 && len(cs.RemovePayouts) == 0)
}
