// Package audithook bridges tierledger events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import an
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/tierledger/distribution"
	"github.com/xraph/tierledger/plugin"
	"github.com/xraph/tierledger/subscription"
	"github.com/xraph/tierledger/tier"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnTierUpdated          = (*Extension)(nil)
	_ plugin.OnSubscribed           = (*Extension)(nil)
	_ plugin.OnUnsubscribed         = (*Extension)(nil)
	_ plugin.OnDistributed          = (*Extension)(nil)
	_ plugin.OnDistributionDeferred = (*Extension)(nil)
	_ plugin.OnPauseChanged         = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a single audit trail entry.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges ledger events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Tier hooks
// ──────────────────────────────────────────────────

// OnTierUpdated implements plugin.OnTierUpdated.
func (e *Extension) OnTierUpdated(ctx context.Context, t *tier.Tier) error {
	return e.record(ctx, ActionTierUpdated, SeverityInfo, OutcomeSuccess,
		ResourceTier, fmt.Sprint(t.ID), CategoryConfig, nil,
		"duration_seconds", t.DurationSeconds,
		"reference_price", t.ReferencePrice.String(),
		"annual_rate_percent", t.AnnualRatePercent,
	)
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscribed implements plugin.OnSubscribed.
func (e *Extension) OnSubscribed(ctx context.Context, sub, replaced *subscription.Subscription) error {
	if replaced != nil {
		return e.record(ctx, ActionReplaced, SeverityInfo, OutcomeSuccess,
			ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
			"account", string(sub.Account),
			"tier_id", sub.TierID,
			"previous_tier_id", replaced.TierID,
			"previous_subscription_id", replaced.ID.String(),
			"deposit", sub.DepositedAmount.String(),
		)
	}
	return e.record(ctx, ActionSubscribed, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"account", string(sub.Account),
		"tier_id", sub.TierID,
		"deposit", sub.DepositedAmount.String(),
		"rate_percent", sub.LockedRatePercent,
	)
}

// OnUnsubscribed implements plugin.OnUnsubscribed. Exits that forfeit part
// of the deposit are recorded as warnings.
func (e *Extension) OnUnsubscribed(ctx context.Context, sub *subscription.Subscription, s subscription.Settlement) error {
	action, severity := ActionUnsubscribed, SeverityInfo
	if s.Forfeited.IsPositive() {
		action, severity = ActionForfeited, SeverityWarning
	}
	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"account", string(sub.Account),
		"tier_id", sub.TierID,
		"held_seconds", s.Held,
		"refund", s.Refund.String(),
		"accrued", s.Accrued.String(),
		"forfeited", s.Forfeited.String(),
	)
}

// ──────────────────────────────────────────────────
// Distribution hooks
// ──────────────────────────────────────────────────

// OnDistributed implements plugin.OnDistributed.
func (e *Extension) OnDistributed(ctx context.Context, p *distribution.Payout) error {
	return e.record(ctx, ActionDistributed, SeverityInfo, OutcomeSuccess,
		ResourcePayout, p.ID.String(), CategoryPayment, nil,
		"amount", p.Amount.String(),
		"recipient", string(p.Recipient),
		"to_recipient", p.ToRecipient.String(),
		"sink", string(p.Sink),
		"to_sink", p.ToSink.String(),
	)
}

// OnDistributionDeferred implements plugin.OnDistributionDeferred.
func (e *Extension) OnDistributionDeferred(ctx context.Context, nextDue time.Time) error {
	return e.record(ctx, ActionDistributionDeferred, SeverityInfo, OutcomeSuccess,
		ResourceDistribution, "", CategoryPayment, nil,
		"next_due", nextDue,
	)
}

// OnPauseChanged implements plugin.OnPauseChanged.
func (e *Extension) OnPauseChanged(ctx context.Context, paused bool) error {
	if paused {
		return e.record(ctx, ActionPaused, SeverityWarning, OutcomeSuccess,
			ResourceDistribution, "", CategoryConfig, nil)
	}
	return e.record(ctx, ActionResumed, SeverityInfo, OutcomeSuccess,
		ResourceDistribution, "", CategoryConfig, nil)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
