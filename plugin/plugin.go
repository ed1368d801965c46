// Package plugin provides an extensible plugin system for tierledger.
// Plugins can hook into ledger events to extend functionality. Hooks run
// after the ledger has committed the change they describe.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/tierledger/distribution"
	"github.com/xraph/tierledger/subscription"
	"github.com/xraph/tierledger/tier"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l any) error
}

// OnShutdown is called when the ledger stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Tier hooks
// ──────────────────────────────────────────────────

// OnTierUpdated is called after a tier is created or reconfigured.
type OnTierUpdated interface {
	Plugin
	OnTierUpdated(ctx context.Context, t *tier.Tier) error
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscribed is called after an account subscribes. replaced is the
// subscription it superseded, or nil.
type OnSubscribed interface {
	Plugin
	OnSubscribed(ctx context.Context, sub, replaced *subscription.Subscription) error
}

// OnUnsubscribed is called after an account leaves its tier.
type OnUnsubscribed interface {
	Plugin
	OnUnsubscribed(ctx context.Context, sub *subscription.Subscription, settlement subscription.Settlement) error
}

// ──────────────────────────────────────────────────
// Distribution hooks
// ──────────────────────────────────────────────────

// OnDistributed is called after accrued profit was paid out.
type OnDistributed interface {
	Plugin
	OnDistributed(ctx context.Context, p *distribution.Payout) error
}

// OnDistributionDeferred is called when a distribution was requested
// before the interval elapsed.
type OnDistributionDeferred interface {
	Plugin
	OnDistributionDeferred(ctx context.Context, nextDue time.Time) error
}

// OnPauseChanged is called when distribution is paused or resumed.
type OnPauseChanged interface {
	Plugin
	OnPauseChanged(ctx context.Context, paused bool) error
}
