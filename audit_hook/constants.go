package audithook

// Action constants for audit events.
const (
	// Tier actions
	ActionTierUpdated = "tier.updated"

	// Subscription actions
	ActionSubscribed   = "subscription.created"
	ActionReplaced     = "subscription.replaced"
	ActionUnsubscribed = "subscription.ended"
	ActionForfeited    = "subscription.forfeited"

	// Distribution actions
	ActionDistributed          = "distribution.paid"
	ActionDistributionDeferred = "distribution.deferred"
	ActionPaused               = "distribution.paused"
	ActionResumed              = "distribution.resumed"
)

// Resource constants for audit events.
const (
	ResourceTier         = "tier"
	ResourceSubscription = "subscription"
	ResourcePayout       = "payout"
	ResourceDistribution = "distribution"
)

// Category constants for audit events.
const (
	CategoryConfig       = "config"
	CategorySubscription = "subscription"
	CategoryPayment      = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
