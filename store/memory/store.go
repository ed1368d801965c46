package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/xraph/tierledger"
	"github.com/xraph/tierledger/accrual"
	"github.com/xraph/tierledger/distribution"
	"github.com/xraph/tierledger/id"
	ledgerstore "github.com/xraph/tierledger/store"
	"github.com/xraph/tierledger/subscription"
	"github.com/xraph/tierledger/tier"
	"github.com/xraph/tierledger/types"
)

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

// Store keeps every record in process memory. Records are copied on the way
// in and out so callers never share state with the store.
type Store struct {
	mu sync.RWMutex

	tiers         map[tier.ID]*tier.Tier
	subscriptions map[types.AccountID]*subscription.Subscription
	state         *accrual.State
	config        *distribution.Config
	payouts       []*distribution.Payout
	closed        bool
}

func New() *Store {
	return &Store{
		tiers:         make(map[tier.ID]*tier.Tier),
		subscriptions: make(map[types.AccountID]*subscription.Subscription),
		state:         &accrual.State{},
		config:        &distribution.Config{},
		payouts:       make([]*distribution.Payout, 0),
	}
}

// Tier Store implementation
func (s *Store) PutTier(_ context.Context, t *tier.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return tierledger.ErrStoreClosed
	}
	cp := *t
	s.tiers[t.ID] = &cp
	return nil
}

func (s *Store) GetTier(_ context.Context, tierID tier.ID) (*tier.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tiers[tierID]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, tierledger.ErrTierNotFound
}

func (s *Store) ListTiers(_ context.Context) ([]*tier.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*tier.Tier, 0, len(s.tiers))
	for _, t := range s.tiers {
		cp := *t
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Subscription Store implementation
func (s *Store) GetSubscription(_ context.Context, account types.AccountID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[account]; ok {
		return sub.Clone(), nil
	}
	return nil, tierledger.ErrSubscriptionNotFound
}

func (s *Store) PutSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return tierledger.ErrStoreClosed
	}
	s.subscriptions[sub.Account] = sub.Clone()
	return nil
}

func (s *Store) ListSubscriptions(_ context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		if opts.ActiveOnly && !sub.Active {
			continue
		}
		result = append(result, sub.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Account < result[j].Account })

	return paginate(result, opts.Offset, opts.Limit), nil
}

// Accrual Store implementation
func (s *Store) GetAccrualState(_ context.Context) (*accrual.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone(), nil
}

func (s *Store) PutAccrualState(_ context.Context, st *accrual.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return tierledger.ErrStoreClosed
	}
	s.state = st.Clone()
	return nil
}

// Distribution Store implementation
func (s *Store) GetDistributionConfig(_ context.Context) (*distribution.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := *s.config
	return &cp, nil
}

func (s *Store) PutDistributionConfig(_ context.Context, c *distribution.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return tierledger.ErrStoreClosed
	}
	cp := *c
	s.config = &cp
	return nil
}

func (s *Store) CreatePayout(_ context.Context, p *distribution.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return tierledger.ErrStoreClosed
	}
	for _, existing := range s.payouts {
		if existing.ID.String() == p.ID.String() {
			return tierledger.ErrAlreadyExists
		}
	}
	cp := *p
	s.payouts = append(s.payouts, &cp)
	return nil
}

func (s *Store) ListPayouts(_ context.Context, opts distribution.ListOpts) ([]*distribution.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*distribution.Payout, 0, len(s.payouts))
	for i := len(s.payouts) - 1; i >= 0; i-- {
		p := s.payouts[i]
		if !opts.Start.IsZero() && p.DistributedAt.Before(opts.Start) {
			continue
		}
		if !opts.End.IsZero() && p.DistributedAt.After(opts.End) {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	return paginate(result, opts.Offset, opts.Limit), nil
}

// Commit applies the whole changeset under one lock, so readers never
// observe a partial operation.
func (s *Store) Commit(_ context.Context, cs *ledgerstore.Changeset) error {
	if cs.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return tierledger.ErrStoreClosed
	}
	if cs.Payout != nil {
		for _, existing := range s.payouts {
			if existing.ID.String() == cs.Payout.ID.String() {
				return tierledger.ErrAlreadyExists
			}
		}
	}

	for _, account := range cs.RemoveSubscriptions {
		delete(s.subscriptions, account)
	}
	if len(cs.RemovePayouts) > 0 {
		s.payouts = slices.DeleteFunc(s.payouts, func(p *distribution.Payout) bool {
			return slices.ContainsFunc(cs.RemovePayouts, func(r id.PayoutID) bool {
				return r.String() == p.ID.String()
			})
		})
	}

	for _, sub := range cs.Subscriptions {
		s.subscriptions[sub.Account] = sub.Clone()
	}
	if cs.Payout != nil {
		cp := *cs.Payout
		s.payouts = append(s.payouts, &cp)
	}
	if cs.Config != nil {
		cp := *cs.Config
		s.config = &cp
	}
	if cs.Accrual != nil {
		s.state = cs.Accrual.Clone()
	}
	return nil
}

// Core methods
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return tierledger.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Helper functions
func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
